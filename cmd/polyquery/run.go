package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Run a built-in execution unit through the engine and print its rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, ok := findScenario(args[0])
			if !ok {
				return fmt.Errorf("unknown scenario %q (see 'polyquery list')", args[0])
			}
			rs, dict, err := runScenario(s)
			if err != nil {
				return fmt.Errorf("run %s: %w", s.name, err)
			}
			cmd.Printf("%s\n", s.description)
			cmd.Print(formatResultSet(rs, dict))
			return nil
		},
	}
	return cmd
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the built-in scenarios runnable with 'run'",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, s := range scenarios() {
				cmd.Printf("%-18s %s\n", s.name, s.description)
			}
			return nil
		},
	}
}
