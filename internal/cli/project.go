package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage the project registry",
}

func init() {
	RootCmd.AddCommand(projectCmd)
}

var (
	projectCreatePath        string
	projectCreateDescription string
)

func init() {
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Register a new project",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			eng, closeFn, err := openEngine()
			if err != nil {
				exitErr("open engine", err)
			}
			defer closeFn()

			rec, err := eng.Registry().Create(args[0], projectCreatePath, projectCreateDescription)
			if err != nil {
				exitErr("project create", err)
			}
			printJSON(rec)
		},
	}
	cmd.Flags().StringVar(&projectCreatePath, "path", "", "initial filesystem root for this project")
	cmd.Flags().StringVar(&projectCreateDescription, "description", "", "human-readable description")
	projectCmd.AddCommand(cmd)
}

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered projects",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			eng, closeFn, err := openEngine()
			if err != nil {
				exitErr("open engine", err)
			}
			defer closeFn()

			printJSON(eng.Registry().List())
		},
	}
	projectCmd.AddCommand(cmd)
}

func init() {
	cmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Show a single registered project",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			eng, closeFn, err := openEngine()
			if err != nil {
				exitErr("open engine", err)
			}
			defer closeFn()

			rec, err := eng.Registry().Get(args[0])
			if err != nil {
				exitErr("project get", err)
			}
			printJSON(rec)
		},
	}
	projectCmd.AddCommand(cmd)
}

func init() {
	cmd := &cobra.Command{
		Use:   "add-path <name> <path>",
		Short: "Add a filesystem root to a registered project",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			eng, closeFn, err := openEngine()
			if err != nil {
				exitErr("open engine", err)
			}
			defer closeFn()

			rec, err := eng.Registry().AddPath(args[0], args[1])
			if err != nil {
				exitErr("project add-path", err)
			}
			printJSON(rec)
		},
	}
	projectCmd.AddCommand(cmd)
}

func init() {
	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove a project from the registry",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			eng, closeFn, err := openEngine()
			if err != nil {
				exitErr("open engine", err)
			}
			defer closeFn()

			if err := eng.Registry().Delete(args[0]); err != nil {
				exitErr("project delete", err)
			}
		},
	}
	projectCmd.AddCommand(cmd)
}

func init() {
	cmd := &cobra.Command{
		Use:   "update-description <name> <description>",
		Short: "Update a registered project's description",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			eng, closeFn, err := openEngine()
			if err != nil {
				exitErr("open engine", err)
			}
			defer closeFn()

			rec, err := eng.Registry().UpdateDescription(args[0], args[1])
			if err != nil {
				exitErr("project update-description", err)
			}
			printJSON(rec)
		},
	}
	projectCmd.AddCommand(cmd)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		exitErr("encode output", err)
	}
}
