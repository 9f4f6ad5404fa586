package main

import (
	"github.com/spf13/cobra"
)

func envCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env <name> [args...]",
		Short: "Invoke an environment's action",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cwd, err := setupAgent()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			out, err := a.RunEnv(ctx, args[0], args[1:], cwd)
			if err != nil {
				return err
			}
			printResult(a, out)
			return nil
		},
	}
}
