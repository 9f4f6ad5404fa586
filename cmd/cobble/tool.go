package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func toolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tool <name> [args...]",
		Short: "Invoke a tool's action directly",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := setupAgent()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			out, err := a.RunTool(ctx, args[0], args[1:])
			if err != nil {
				return err
			}
			printResult(a, out)
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <name>",
		Short: "Run a tool's check action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := setupAgent()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			if err := a.CheckTool(ctx, args[0]); err != nil {
				return fmt.Errorf("tool check %q: %w", args[0], err)
			}
			return nil
		},
	})
	return cmd
}
