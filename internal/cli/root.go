// Package cli implements the memkeepctl commands: a thin operator and
// smoke-test wrapper over MemoryEngine. It is not the host-facing hook
// frontend (out of scope per the spec) — just a local CLI for poking at
// the store directly.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ankurp/memkeep/internal/config"
	"github.com/ankurp/memkeep/internal/embedclient"
	"github.com/ankurp/memkeep/internal/engine"
	"github.com/ankurp/memkeep/internal/project"
	"github.com/ankurp/memkeep/internal/redact"
	"github.com/ankurp/memkeep/internal/store"
)

var (
	rootFlag string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "memkeepctl",
	Short: "Operate on a local memkeep memory store",
	Long:  "memkeepctl is a local CLI over the memkeep memory engine: remember, recall, and maintain a single SQLite-backed memory store.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&rootFlag, "root", "r", "", "Data root (default: $MEMKEEP_ROOT or ~/.memkeep)")
}

func dataRoot() string {
	if rootFlag != "" {
		return rootFlag
	}
	if env := os.Getenv("MEMKEEP_ROOT"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".memkeep")
}

// openEngine wires a MemoryEngine from the data root's config.json,
// project-registry.json, and memories.db. One instance is created per
// CLI invocation (spec.md §9).
func openEngine() (*engine.MemoryEngine, func(), error) {
	root := dataRoot()

	cfg, err := config.Load(filepath.Join(root, "config.json"))
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	st, err := store.NewSQLiteStore(filepath.Join(root, "memories.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	resolver, err := project.Open(filepath.Join(root, "project-registry.json"))
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("open project registry: %w", err)
	}

	redactor, err := redact.New(cfg.Sensitive.Patterns)
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("compile redaction patterns: %w", err)
	}

	embedder := embedclient.New(cfg.Embedding.BaseURL, cfg.Embedding.Dimensions)

	eng := engine.New(st, embedder, redactor, resolver, cfg, nil)
	return eng, func() { st.Close() }, nil
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}

func cwdOrExit() string {
	wd, err := os.Getwd()
	if err != nil {
		exitErr("getwd", err)
	}
	return wd
}
