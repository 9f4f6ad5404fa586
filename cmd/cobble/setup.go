package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jdarais/cobble/internal/agent"
	"github.com/jdarais/cobble/internal/config"
	"github.com/jdarais/cobble/internal/core"
	"github.com/jdarais/cobble/internal/logger"
	"github.com/jdarais/cobble/internal/project"
	"github.com/jdarais/cobble/internal/script"
)

// setupAgent discovers the workspace, loads the config and registry, and
// builds the agent with flag overrides applied.
func setupAgent() (*agent.Agent, string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, "", err
	}
	root, err := config.FindWorkspaceRoot(cwd)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, "", err
	}
	if err := cfg.ApplyVarOverrides(flagVars); err != nil {
		return nil, "", err
	}

	opts := []logger.Option{}
	if flagDebug {
		opts = append(opts, logger.WithDebug())
	}
	if flagQuiet {
		opts = append(opts, logger.WithQuiet())
	}
	log := logger.New(opts...)

	reg, err := project.Load(cfg, log)
	if err != nil {
		return nil, "", err
	}

	a := agent.New(cfg, reg, log)
	a.NumThreads = flagNumThreads
	a.Quiet = flagQuiet
	if a.Stdout, err = core.ParseOutputPolicy(flagTaskStdout, ""); err != nil {
		return nil, "", err
	}
	if a.Stderr, err = core.ParseOutputPolicy(flagTaskStderr, ""); err != nil {
		return nil, "", err
	}
	if a.Output, err = core.ParseOutputPolicy(flagTaskOutput, ""); err != nil {
		return nil, "", err
	}
	return a, cwd, nil
}

// signalContext cancels on SIGINT/SIGTERM; in-flight tasks finish, no new
// ones start.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// printResult writes a direct tool/env invocation's return value verbatim,
// bypassing the log handler.
func printResult(a *agent.Agent, out script.Value) {
	if out == nil {
		return
	}
	data, err := script.MarshalValue(out)
	if err != nil {
		return
	}
	_, _ = a.Logger.WriteRaw(append(data, '\n'))
}
