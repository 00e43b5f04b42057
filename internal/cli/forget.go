package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var markObsoleteSupersedes int64

func init() {
	cmd := &cobra.Command{
		Use:   "mark-obsolete <id>",
		Short: "Flag a memory as obsolete without deleting it",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			id := mustParseID(args[0])
			eng, closeFn, err := openEngine()
			if err != nil {
				exitErr("open engine", err)
			}
			defer closeFn()

			var supersedes *int64
			if markObsoleteSupersedes != 0 {
				supersedes = &markObsoleteSupersedes
			}
			if err := eng.MarkObsolete(context.Background(), id, supersedes); err != nil {
				exitErr("mark-obsolete", err)
			}
		},
	}
	cmd.Flags().Int64Var(&markObsoleteSupersedes, "supersedes", 0, "id of the successor memory")
	RootCmd.AddCommand(cmd)
}

func init() {
	cmd := &cobra.Command{
		Use:   "forget <id> [id...]",
		Short: "Delete memories by id",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ids := make([]int64, len(args))
			for i, a := range args {
				ids[i] = mustParseID(a)
			}
			eng, closeFn, err := openEngine()
			if err != nil {
				exitErr("open engine", err)
			}
			defer closeFn()

			if err := eng.Forget(context.Background(), ids); err != nil {
				exitErr("forget", err)
			}
		},
	}
	RootCmd.AddCommand(cmd)
}

var (
	forgetByProject string
	forgetByDryRun  bool
)

func init() {
	categoryCmd := &cobra.Command{
		Use:   "forget-by-category <category>",
		Short: "Delete memories matching a category",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			eng, closeFn, err := openEngine()
			if err != nil {
				exitErr("open engine", err)
			}
			defer closeFn()

			var proj *string
			projectSet := forgetByProject != ""
			if projectSet {
				proj = &forgetByProject
			}
			count, err := eng.ForgetByCategory(context.Background(), args[0], proj, projectSet, forgetByDryRun)
			if err != nil {
				exitErr("forget-by-category", err)
			}
			fmt.Println(count)
		},
	}
	categoryCmd.Flags().StringVar(&forgetByProject, "project", "", "scope to a project")
	categoryCmd.Flags().BoolVar(&forgetByDryRun, "dry-run", false, "count matches without deleting")
	RootCmd.AddCommand(categoryCmd)

	sourceCmd := &cobra.Command{
		Use:   "forget-by-source <source>",
		Short: "Delete memories matching a capture source",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			eng, closeFn, err := openEngine()
			if err != nil {
				exitErr("open engine", err)
			}
			defer closeFn()

			var proj *string
			projectSet := forgetByProject != ""
			if projectSet {
				proj = &forgetByProject
			}
			count, err := eng.ForgetBySource(context.Background(), args[0], proj, projectSet, forgetByDryRun)
			if err != nil {
				exitErr("forget-by-source", err)
			}
			fmt.Println(count)
		},
	}
	sourceCmd.Flags().StringVar(&forgetByProject, "project", "", "scope to a project")
	sourceCmd.Flags().BoolVar(&forgetByDryRun, "dry-run", false, "count matches without deleting")
	RootCmd.AddCommand(sourceCmd)
}

func mustParseID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		exitErr("parse id", err)
	}
	return id
}
