package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/jdarais/cobble/internal/config"
	"github.com/jdarais/cobble/internal/core"
	"github.com/jdarais/cobble/internal/fingerprint"
	"github.com/jdarais/cobble/internal/logger"
	"github.com/jdarais/cobble/internal/project"
	"github.com/jdarais/cobble/internal/runtime"
	"github.com/jdarais/cobble/internal/script"
)

// Agent composes the registry, scheduler, fingerprint engine, and reporter
// for one invocation. It also holds the workspace lock so concurrent cobble
// processes cannot interleave store writes.
type Agent struct {
	Config   *config.Config
	Registry *project.Registry
	Logger   logger.Logger

	// Overrides from flags.
	NumThreads int
	Stdout     core.OutputPolicy
	Stderr     core.OutputPolicy
	Output     core.OutputPolicy
	Quiet      bool

	runID string
	lock  *flock.Flock
	store *fingerprint.Store
	mux   *runtime.Multiplexer
}

func New(cfg *config.Config, reg *project.Registry, log logger.Logger) *Agent {
	return &Agent{
		Config:   cfg,
		Registry: reg,
		Logger:   log,
		runID:    uuid.NewString(),
		mux:      runtime.NewMultiplexer(os.Stdout, os.Stderr),
	}
}

// setup acquires the workspace lock and opens the fingerprint store.
func (a *Agent) setup() error {
	stateDir, err := a.Config.StateDir()
	if err != nil {
		return err
	}
	a.lock = flock.New(filepath.Join(stateDir, "lock"))
	locked, err := a.lock.TryLock()
	if err != nil {
		return fmt.Errorf("workspace lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another cobble invocation is running in this workspace")
	}
	a.store, err = fingerprint.Open(filepath.Join(stateDir, "fingerprint.db"))
	if err != nil {
		_ = a.lock.Unlock()
		return err
	}
	a.Logger.Debugf("run %s: state dir %s", a.runID, stateDir)
	return nil
}

func (a *Agent) teardown() {
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.lock != nil {
		_ = a.lock.Unlock()
	}
}

func (a *Agent) numThreads() int {
	if a.NumThreads > 0 {
		return a.NumThreads
	}
	if a.Config.NumThreads > 0 {
		return a.Config.NumThreads
	}
	return runtime.DefaultNumThreads
}

func (a *Agent) newScheduler() *runtime.Scheduler {
	reporter := runtime.NewReporter(a.mux, a.Quiet)
	engine := fingerprint.NewEngine(a.store, a.Config.RootDir, a.Config.Vars, a.Logger)
	return runtime.New(&runtime.Config{
		NumThreads:    a.numThreads(),
		Registry:      a.Registry,
		Engine:        engine,
		Multiplexer:   a.mux,
		Reporter:      reporter,
		Logger:        a.Logger,
		Root:          a.Config.RootDir,
		Vars:          a.Config.Vars,
		Stdout:        a.Stdout,
		Stderr:        a.Stderr,
		Output:        a.Output,
		DefaultStdout: a.Config.Stdout,
		DefaultStderr: a.Config.Stderr,
		DefaultOutput: a.Config.Output,
	})
}

// Run executes the targets' transitive closure.
func (a *Agent) Run(ctx context.Context, targets []string, cwd string) (*runtime.Result, error) {
	tasks, err := a.ResolveTargets(targets, cwd)
	if err != nil {
		return nil, err
	}
	if err := a.setup(); err != nil {
		return nil, err
	}
	defer a.teardown()

	graph, err := runtime.NewExecutionGraph(a.Registry, tasks)
	if err != nil {
		return nil, err
	}
	sc := a.newScheduler()
	defer sc.Close()

	res := sc.Schedule(ctx, graph)
	runtime.NewReporter(a.mux, a.Quiet).Summary(res.Statuses)
	return res, nil
}

// Clean runs each target's clean-actions in dependency-reverse order and
// drops their fingerprint records.
func (a *Agent) Clean(ctx context.Context, targets []string, cwd string) error {
	tasks, err := a.ResolveTargets(targets, cwd)
	if err != nil {
		return err
	}
	if err := a.setup(); err != nil {
		return err
	}
	defer a.teardown()

	graph, err := runtime.NewExecutionGraph(a.Registry, tasks)
	if err != nil {
		return err
	}
	order := graph.TopoOrder()

	inv := runtime.NewInvoker(a.Registry, a.Config.RootDir, a.Config.Vars, a.Logger)
	defer inv.Close()
	reporter := runtime.NewReporter(a.mux, a.Quiet)

	var firstErr error
	for i := len(order) - 1; i >= 0; i-- {
		t, ok := a.Registry.Task(order[i])
		if !ok || len(t.CleanActions) == 0 {
			continue
		}
		streams := a.mux.Streams(t.Interactive)
		deps := &fingerprint.ResolvedDeps{Tasks: map[string]fingerprint.TaskDep{}}
		_, err := inv.RunActions(ctx, t, t.CleanActions, deps, map[string]string{}, streams)
		failed := err != nil
		a.mux.Flush(streams, core.OutputOnFail, core.OutputAlways, failed, failed)
		if failed {
			reporter.TaskStatus(t.Name, core.TaskFailed, 0, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := a.store.Delete(t.Name); err != nil {
			a.Logger.Warnf("dropping fingerprint for %s: %v", t.Name, err)
		}
		reporter.TaskStatus(t.Name, core.TaskSucceeded, 0, nil)
	}
	return firstErr
}

// RunTool invokes a tool's action directly with the given arguments.
func (a *Agent) RunTool(ctx context.Context, name string, args []string) (script.Value, error) {
	tool, ok := a.Registry.Tool(name)
	if !ok {
		return nil, core.Definitionf("unknown tool %q", name)
	}
	return a.invokeStandalone(ctx, tool.Action, args)
}

// CheckTool runs a tool's check action; a missing check is an error.
func (a *Agent) CheckTool(ctx context.Context, name string) error {
	tool, ok := a.Registry.Tool(name)
	if !ok {
		return core.Definitionf("unknown tool %q", name)
	}
	if tool.Check == nil {
		return core.Definitionf("tool %q has no check action", name)
	}
	_, err := a.invokeStandalone(ctx, tool.Check, nil)
	return err
}

// RunEnv invokes an environment's action directly. The env's setup task
// runs (or skips) first.
func (a *Agent) RunEnv(ctx context.Context, name string, args []string, cwd string) (script.Value, error) {
	envName, err := a.resolveEnvTarget(name, cwd)
	if err != nil {
		return nil, err
	}
	env, _ := a.Registry.Env(envName)

	if err := a.setup(); err != nil {
		return nil, err
	}
	defer a.teardown()

	if env.SetupTask != nil {
		graph, err := runtime.NewExecutionGraph(a.Registry, []string{env.SetupTask.Name})
		if err != nil {
			return nil, err
		}
		sc := a.newScheduler()
		defer sc.Close()
		if res := sc.Schedule(ctx, graph); !res.OK() {
			return nil, fmt.Errorf("env %q setup failed", envName)
		}
	}
	return a.invokeStandaloneLocked(ctx, env.Action, args)
}

func (a *Agent) invokeStandalone(ctx context.Context, action *core.Action, args []string) (script.Value, error) {
	if err := a.setup(); err != nil {
		return nil, err
	}
	defer a.teardown()
	return a.invokeStandaloneLocked(ctx, action, args)
}

// invokeStandaloneLocked runs a single action outside any task, with
// output passed straight through to the terminal.
func (a *Agent) invokeStandaloneLocked(ctx context.Context, action *core.Action, args []string) (script.Value, error) {
	inv := runtime.NewInvoker(a.Registry, a.Config.RootDir, a.Config.Vars, a.Logger)
	defer inv.Close()

	argv := script.NewTable()
	for _, arg := range args {
		argv.Append(arg)
	}
	pseudo := &core.Task{Name: "(direct)", Project: core.RootName}
	streams := a.mux.Streams(true)
	deps := &fingerprint.ResolvedDeps{Tasks: map[string]fingerprint.TaskDep{}}
	return inv.RunActionsWithArgs(ctx, pseudo, []*core.Action{action}, deps, map[string]string{}, streams, argv)
}

// List returns every resolvable task name.
func (a *Agent) List() []string {
	return a.Registry.TaskNames()
}
