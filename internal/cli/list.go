package cli

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var (
	listLimit       int
	listProject     string
	listAllProjects bool
)

func init() {
	cmd := &cobra.Command{
		Use:   "list-recent",
		Short: "List recently created active memories",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			eng, closeFn, err := openEngine()
			if err != nil {
				exitErr("open engine", err)
			}
			defer closeFn()

			proj := listProject
			if proj == "" && !listAllProjects {
				proj, _ = eng.DetectProject(cwdOrExit())
			}

			rows, err := eng.ListRecent(context.Background(), listLimit, proj, listAllProjects)
			if err != nil {
				exitErr("list-recent", err)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(rows); err != nil {
				exitErr("encode results", err)
			}
		},
	}
	cmd.Flags().IntVar(&listLimit, "limit", 20, "max rows")
	cmd.Flags().StringVar(&listProject, "project", "", "scope to a project (default: auto-detect)")
	cmd.Flags().BoolVar(&listAllProjects, "all-projects", false, "include every project and global memories")
	RootCmd.AddCommand(cmd)
}
