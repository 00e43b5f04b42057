package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "is-ready",
		Short: "Check whether the embedder is reachable",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			eng, closeFn, err := openEngine()
			if err != nil {
				exitErr("open engine", err)
			}
			defer closeFn()

			if !eng.IsReady(context.Background()) {
				fmt.Println("false")
				os.Exit(1)
			}
			fmt.Println("true")
		},
	}
	RootCmd.AddCommand(cmd)
}

func init() {
	cmd := &cobra.Command{
		Use:   "detect-project",
		Short: "Resolve the current directory to a project name",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			eng, closeFn, err := openEngine()
			if err != nil {
				exitErr("open engine", err)
			}
			defer closeFn()

			name, err := eng.DetectProject(cwdOrExit())
			if err != nil {
				exitErr("detect-project", err)
			}
			fmt.Println(name)
		},
	}
	RootCmd.AddCommand(cmd)
}
