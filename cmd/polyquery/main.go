// Command polyquery is a small harness binary, not a SQL CLI: it runs
// one of a fixed set of built-in execution units through pkg/query.Engine
// and prints the resulting rows. It exists only so the engine has a
// runnable entry point, the way the teacher's cmd/vcs exercises pkg/vcs
// (see SPEC_FULL.md).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "polyquery",
		Short:   "A JIT-compiled columnar query execution core",
		Long:    `polyquery compiles relational algebra execution units into vectorized row functions and runs them over in-memory column fragments.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	}

	rootCmd.AddCommand(
		newRunCommand(),
		newListCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
