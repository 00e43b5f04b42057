// Command memkeepctl is a local operator and smoke-test CLI over the
// memkeep memory engine. It is not the host-facing hook frontend that
// drives remember/recall during an assistant session.
package main

import (
	"os"

	"github.com/ankurp/memkeep/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
