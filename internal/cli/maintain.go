package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	gcProject        string
	consolidateProj  string
	consolidateDry   bool
	cleanupCorruptDry bool
)

func init() {
	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Delete unused low-confidence memories and expired memories",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			eng, closeFn, err := openEngine()
			if err != nil {
				exitErr("open engine", err)
			}
			defer closeFn()

			var proj *string
			projectSet := gcProject != ""
			if projectSet {
				proj = &gcProject
			}
			count, err := eng.GarbageCollect(context.Background(), proj, projectSet)
			if err != nil {
				exitErr("gc", err)
			}
			fmt.Println(count)
		},
	}
	cmd.Flags().StringVar(&gcProject, "project", "", "scope to a project")
	RootCmd.AddCommand(cmd)
}

func init() {
	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Cluster near-duplicate active memories and keep the best representative",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			eng, closeFn, err := openEngine()
			if err != nil {
				exitErr("open engine", err)
			}
			defer closeFn()

			var proj *string
			projectSet := consolidateProj != ""
			if projectSet {
				proj = &consolidateProj
			}
			clusters, err := eng.Consolidate(context.Background(), proj, projectSet, consolidateDry)
			if err != nil {
				exitErr("consolidate", err)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			enc.Encode(clusters)
		},
	}
	cmd.Flags().StringVar(&consolidateProj, "project", "", "scope to a project")
	cmd.Flags().BoolVar(&consolidateDry, "dry-run", false, "report clusters without mutating")
	RootCmd.AddCommand(cmd)
}

func init() {
	cmd := &cobra.Command{
		Use:   "cleanup-corrupted",
		Short: "Delete memories matching known corruption patterns",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			eng, closeFn, err := openEngine()
			if err != nil {
				exitErr("open engine", err)
			}
			defer closeFn()

			result, err := eng.CleanupCorrupted(context.Background(), cleanupCorruptDry)
			if err != nil {
				exitErr("cleanup-corrupted", err)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			enc.Encode(result)
		},
	}
	cmd.Flags().BoolVar(&cleanupCorruptDry, "dry-run", false, "report matches without deleting")
	RootCmd.AddCommand(cmd)
}
