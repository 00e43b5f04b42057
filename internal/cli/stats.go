package cli

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print aggregate counts across the store",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			eng, closeFn, err := openEngine()
			if err != nil {
				exitErr("open engine", err)
			}
			defer closeFn()

			counts, err := eng.Stats(context.Background())
			if err != nil {
				exitErr("stats", err)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			enc.Encode(counts)
		},
	}
	RootCmd.AddCommand(cmd)
}
