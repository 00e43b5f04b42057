package cli

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/ankurp/memkeep/internal/engine"
)

var (
	recallLimit           int
	recallType            string
	recallMinImportance   int
	recallIncludeObsolete bool
	recallProject         string
)

func init() {
	cmd := &cobra.Command{
		Use:   "recall <query>",
		Short: "Search memories by semantic similarity",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			eng, closeFn, err := openEngine()
			if err != nil {
				exitErr("open engine", err)
			}
			defer closeFn()

			proj := recallProject
			if proj == "" {
				proj, _ = eng.DetectProject(cwdOrExit())
			}

			results, err := eng.Recall(context.Background(), args[0], engine.RecallOptions{
				Limit:           recallLimit,
				Type:            recallType,
				MinImportance:   recallMinImportance,
				IncludeObsolete: recallIncludeObsolete,
				CurrentProject:  proj,
			})
			if err != nil {
				exitErr("recall", err)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(results); err != nil {
				exitErr("encode results", err)
			}
		},
	}
	cmd.Flags().IntVar(&recallLimit, "limit", 0, "max results (default: project_results+global_results)")
	cmd.Flags().StringVar(&recallType, "type", "", "filter by memory type")
	cmd.Flags().IntVar(&recallMinImportance, "min-importance", 0, "minimum importance")
	cmd.Flags().BoolVar(&recallIncludeObsolete, "include-obsolete", false, "include superseded memories")
	cmd.Flags().StringVar(&recallProject, "project", "", "current project for scope boosting (default: auto-detect)")
	RootCmd.AddCommand(cmd)
}
