package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jdarais/cobble/internal/build"
)

var (
	// flagNumThreads and friends are persistent flags shared by the task
	// commands.
	flagNumThreads int
	flagVars       []string
	flagTaskOutput string
	flagTaskStdout string
	flagTaskStderr string
	flagDebug      bool
	flagQuiet      bool
)

func main() {
	cmd := &cobra.Command{
		Use:           "cobble",
		Short:         "Multi-project, multi-environment build automation tool",
		Long:          "cobble runs tasks declared in project.lua files, in parallel, skipping work whose inputs and outputs are unchanged.",
		Version:       versionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().IntVarP(&flagNumThreads, "num-threads", "n", 0, "number of worker threads (default from cobble.toml, 5)")
	cmd.PersistentFlags().StringArrayVarP(&flagVars, "var", "v", nil, "override a workspace var (KEY=VALUE)")
	cmd.PersistentFlags().StringVar(&flagTaskOutput, "task-output", "", "task output policy: always, never, or on_fail")
	cmd.PersistentFlags().StringVar(&flagTaskStdout, "task-stdout", "", "task stdout policy: always, never, or on_fail")
	cmd.PersistentFlags().StringVar(&flagTaskStderr, "task-stderr", "", "task stderr policy: always, never, or on_fail")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress status lines")

	cmd.AddCommand(listCmd())
	cmd.AddCommand(runCmd())
	cmd.AddCommand(cleanCmd())
	cmd.AddCommand(toolCmd())
	cmd.AddCommand(envCmd())
	cmd.AddCommand(versionCmd())

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "cobble: %v\n", err)
		os.Exit(1)
	}
}

func versionString() string {
	if commit := build.Commit(); commit != "" {
		return fmt.Sprintf("%s (%s)", build.Version, commit)
	}
	return build.Version
}
