package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List resolvable task names",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := setupAgent()
			if err != nil {
				return err
			}
			for _, name := range a.List() {
				marker := " "
				if t, ok := a.Registry.Task(name); ok && t.Default {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, name)
			}
			return nil
		},
	}
}
