package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [targets...]",
		Short: "Run tasks and their dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cwd, err := setupAgent()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			res, err := a.Run(ctx, args, cwd)
			if err != nil {
				return err
			}
			if !res.OK() {
				if res.Canceled {
					return fmt.Errorf("run canceled")
				}
				return fmt.Errorf("run failed")
			}
			return nil
		},
	}
}
