package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ankurp/memkeep/internal/engine"
)

var (
	rememberType       string
	rememberCategory   string
	rememberProject    string
	rememberReasoning  string
	rememberSource     string
	rememberImportance int
	rememberConfidence float64
	rememberTags       []string
	rememberSupersedes int64
	rememberSkipDedup  bool
)

func init() {
	cmd := &cobra.Command{
		Use:   "remember <content>",
		Short: "Store a new memory",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			eng, closeFn, err := openEngine()
			if err != nil {
				exitErr("open engine", err)
			}
			defer closeFn()

			in := engine.RememberInput{
				Content:    args[0],
				Type:       rememberType,
				Category:   rememberCategory,
				Reasoning:  rememberReasoning,
				Source:     rememberSource,
				Importance: rememberImportance,
				Confidence: rememberConfidence,
				Tags:       rememberTags,
				SkipDedup:  rememberSkipDedup,
			}
			if rememberProject != "" {
				in.Project = &rememberProject
			}
			if rememberSupersedes != 0 {
				in.Supersedes = &rememberSupersedes
			}

			ids, err := eng.Remember(context.Background(), cwdOrExit(), in)
			if err != nil {
				exitErr("remember", err)
			}
			for _, id := range ids {
				fmt.Println(id)
			}
		},
	}
	cmd.Flags().StringVar(&rememberType, "type", "fact", "memory type (decision|preference|fact|pattern|conversation)")
	cmd.Flags().StringVar(&rememberCategory, "category", "", "free-form category label")
	cmd.Flags().StringVar(&rememberProject, "project", "", "explicit project scope (default: auto-detect from cwd)")
	cmd.Flags().StringVar(&rememberReasoning, "reasoning", "", "why this memory was captured")
	cmd.Flags().StringVar(&rememberSource, "source", "manual", "capture source")
	cmd.Flags().IntVar(&rememberImportance, "importance", 0, "importance 1-5 (default: 3)")
	cmd.Flags().Float64Var(&rememberConfidence, "confidence", 0, "confidence 0-1 (default: 1.0)")
	cmd.Flags().StringSliceVar(&rememberTags, "tag", nil, "tag (repeatable)")
	cmd.Flags().Int64Var(&rememberSupersedes, "supersedes", 0, "id of a memory this one replaces")
	cmd.Flags().BoolVar(&rememberSkipDedup, "skip-dedup", false, "bypass nearest-neighbor dedup")
	RootCmd.AddCommand(cmd)
}
