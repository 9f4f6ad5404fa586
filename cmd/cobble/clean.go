package main

import (
	"github.com/spf13/cobra"
)

func cleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [targets...]",
		Short: "Run clean-actions for targets in dependency-reverse order",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cwd, err := setupAgent()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			return a.Clean(ctx, args, cwd)
		},
	}
}
