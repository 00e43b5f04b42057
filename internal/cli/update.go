package cli

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "update <id> <content>",
		Short: "Replace a memory's content and re-embed it",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				exitErr("parse id", err)
			}
			eng, closeFn, err := openEngine()
			if err != nil {
				exitErr("open engine", err)
			}
			defer closeFn()

			if err := eng.Update(context.Background(), id, args[1]); err != nil {
				exitErr("update", err)
			}
		},
	}
	RootCmd.AddCommand(cmd)
}
