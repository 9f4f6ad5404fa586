package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jdarais/cobble/internal/core"
	"github.com/jdarais/cobble/internal/fingerprint"
	"github.com/jdarais/cobble/internal/logger"
	"github.com/jdarais/cobble/internal/project"
	"github.com/jdarais/cobble/internal/script"
)

// DefaultNumThreads is the worker pool size when none is configured.
const DefaultNumThreads = 5

// Config wires the scheduler's collaborators.
type Config struct {
	NumThreads  int
	Registry    *project.Registry
	Engine      *fingerprint.Engine
	Multiplexer *Multiplexer
	Reporter    *Reporter
	Logger      logger.Logger
	Root        string
	Vars        map[string]string

	// Stream policy resolution order: flag override, task setting,
	// workspace default, engine fallback.
	Stdout        core.OutputPolicy
	Stderr        core.OutputPolicy
	Output        core.OutputPolicy
	DefaultStdout core.OutputPolicy
	DefaultStderr core.OutputPolicy
	DefaultOutput core.OutputPolicy
}

// Result is the outcome of one scheduled run.
type Result struct {
	Statuses map[string]core.TaskStatus
	Canceled bool
}

// OK reports whether every task ended in success or skip.
func (r *Result) OK() bool {
	for _, s := range r.Statuses {
		if s != core.TaskSucceeded && s != core.TaskSkipped {
			return false
		}
	}
	return !r.Canceled
}

// Scheduler executes a graph with a bounded worker pool. Each worker owns a
// private script state; tasks occupy one worker from dispatch to
// completion. Interactive tasks hold the exclusive slot: in-flight work
// drains first, the task runs alone, then normal dispatch resumes.
type Scheduler struct {
	cfg *Config

	mu       sync.Mutex
	cond     *sync.Cond
	wg       sync.WaitGroup
	canceled bool
	running  int
	// exclusive is set while an interactive task is in flight.
	exclusive bool

	invokers chan *Invoker
}

func New(cfg *Config) *Scheduler {
	if cfg.NumThreads < 1 {
		cfg.NumThreads = DefaultNumThreads
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default
	}
	sc := &Scheduler{cfg: cfg}
	sc.cond = sync.NewCond(&sc.mu)
	sc.invokers = make(chan *Invoker, cfg.NumThreads)
	for i := 0; i < cfg.NumThreads; i++ {
		sc.invokers <- NewInvoker(cfg.Registry, cfg.Root, cfg.Vars, cfg.Logger)
	}
	return sc
}

// Close tears down the worker script states.
func (sc *Scheduler) Close() {
	close(sc.invokers)
	for inv := range sc.invokers {
		inv.Close()
	}
}

// Cancel stops new dispatch; in-flight tasks run to completion.
func (sc *Scheduler) Cancel() {
	sc.mu.Lock()
	sc.canceled = true
	sc.mu.Unlock()
	sc.cond.Broadcast()
}

// Schedule runs the graph to completion and returns per-task statuses.
func (sc *Scheduler) Schedule(ctx context.Context, g *ExecutionGraph) *Result {
	stop := context.AfterFunc(ctx, sc.Cancel)
	defer stop()

	sc.mu.Lock()
	if ctx.Err() != nil {
		sc.canceled = true
	}
	for {
		if sc.allSettled(g) {
			break
		}
		n := sc.nextDispatch(g)
		if n == nil {
			if sc.running == 0 {
				if sc.canceled || !sc.anyPending(g) {
					sc.abortRemaining(g)
					break
				}
			}
			sc.cond.Wait()
			continue
		}
		n.setStatus(core.TaskRunning)
		sc.running++
		if n.Task.Interactive {
			sc.exclusive = true
		}
		sc.wg.Add(1)
		go func() {
			defer sc.wg.Done()
			sc.runNode(ctx, g, n)
		}()
	}
	canceled := sc.canceled
	sc.mu.Unlock()

	// Workers may still be between their terminal status write and their
	// pool hand-back; Close must not race that send.
	sc.wg.Wait()

	res := &Result{Statuses: map[string]core.TaskStatus{}, Canceled: canceled}
	for _, n := range g.Nodes() {
		res.Statuses[n.Name()] = n.Status()
	}
	return res
}

// allSettled reports whether every node reached a terminal state. Caller
// holds the lock; node status reads take only the node's own mutex.
func (sc *Scheduler) allSettled(g *ExecutionGraph) bool {
	for _, n := range g.Nodes() {
		if !n.done() {
			return false
		}
	}
	return true
}

// anyPending reports whether any node could still become ready.
func (sc *Scheduler) anyPending(g *ExecutionGraph) bool {
	return sc.firstReady(g, false) != nil
}

// nextDispatch picks the next node to run, honoring the worker limit and
// the interactive exclusion rules. Caller holds the lock.
func (sc *Scheduler) nextDispatch(g *ExecutionGraph) *Node {
	if sc.canceled || sc.exclusive || sc.running >= sc.cfg.NumThreads {
		return nil
	}
	// A ready interactive task stops new non-interactive dispatch until the
	// in-flight set drains, then runs alone.
	if in := sc.firstReady(g, true); in != nil {
		if sc.running == 0 {
			return in
		}
		return nil
	}
	return sc.firstReady(g, false)
}

// firstReady returns the lexicographically first ready node. When
// interactiveOnly is set, only interactive nodes are considered.
func (sc *Scheduler) firstReady(g *ExecutionGraph, interactiveOnly bool) *Node {
	for _, n := range g.Nodes() {
		if n.Status() != core.TaskNone {
			continue
		}
		if interactiveOnly && !n.Task.Interactive {
			continue
		}
		ready := true
		for _, dep := range g.DepsOf(n.Name()) {
			depNode, ok := g.Node(dep)
			if !ok || !depNode.satisfied() {
				ready = false
				break
			}
		}
		if ready {
			return n
		}
	}
	return nil
}

// abortRemaining marks every still-pending node aborted. Consumers of a
// failed task are not handled here: finishNode already marked them blocked.
// Caller holds the lock.
func (sc *Scheduler) abortRemaining(g *ExecutionGraph) {
	for _, n := range g.Nodes() {
		if n.Status() == core.TaskNone {
			n.setStatus(core.TaskAborted)
			sc.cfg.Reporter.TaskStatus(n.Name(), core.TaskAborted, 0, nil)
		}
	}
}

// runNode drives one task's lifecycle on a worker goroutine.
func (sc *Scheduler) runNode(ctx context.Context, g *ExecutionGraph, n *Node) {
	requeued, err := sc.expandCalcDeps(g, n)
	if err != nil {
		sc.finishNode(g, n, nil, func() error { return err })
		return
	}
	if requeued {
		// New calc-discovered predecessors are pending; put the node back
		// and let the loop redispatch once they settle.
		sc.mu.Lock()
		n.setStatus(core.TaskNone)
		sc.running--
		if n.Task.Interactive {
			sc.exclusive = false
		}
		sc.mu.Unlock()
		sc.cond.Broadcast()
		return
	}

	deps := n.resolvedDeps(g)
	sources := sc.cfg.Registry.ProjectSources(n.Task.Project)

	if upToDate, rec := sc.cfg.Engine.UpToDate(ctx, n.Task, deps, sources); upToDate {
		output, err := rec.OutputValue()
		if err != nil {
			sc.cfg.Logger.Warnf("stored output for %s unreadable: %v", n.Name(), err)
		}
		n.setResult(output, rec.OutputDigest)
		sc.settle(g, n, core.TaskSkipped, nil, nil)
		return
	}

	sc.executeNode(ctx, g, n, deps, sources)
}

// executeNode runs the task's actions and commits the fingerprint.
func (sc *Scheduler) executeNode(ctx context.Context, g *ExecutionGraph, n *Node, deps *fingerprint.ResolvedDeps, sources []string) {
	inv := <-sc.invokers
	defer func() { sc.invokers <- inv }()

	streams := sc.cfg.Multiplexer.Streams(n.Task.Interactive)

	fileHashes, err := sc.cfg.Engine.FileHashes(deps.Files)
	if err != nil {
		sc.settle(g, n, core.TaskFailed, streams, &TaskError{Task: n.Name(), Err: err})
		return
	}

	output, err := inv.RunActions(ctx, n.Task, n.Task.Actions, deps, fileHashes, streams)
	if err != nil {
		sc.settle(g, n, core.TaskFailed, streams, err)
		return
	}

	artifacts, err := sc.cfg.Engine.VerifyArtifacts(n.Task, sc.calcArtifacts(g, n))
	if err != nil {
		sc.settle(g, n, core.TaskFailed, streams, &TaskError{Task: n.Name(), Err: err})
		return
	}

	if _, err := sc.cfg.Engine.Commit(ctx, n.Task, deps, sources, artifacts, output); err != nil {
		sc.settle(g, n, core.TaskFailed, streams, &TaskError{Task: n.Name(), Err: err})
		return
	}

	n.setResult(output, script.Digest(output))
	sc.settle(g, n, core.TaskSucceeded, streams, nil)
}

// expandCalcDeps merges completed calc tasks' outputs into the node's dep
// set and grows the graph with any newly discovered task deps. Returns
// requeued=true when a new predecessor still has to run.
func (sc *Scheduler) expandCalcDeps(g *ExecutionGraph, n *Node) (bool, error) {
	requeued := false
	for _, calc := range n.Task.CalcDeps {
		calcNode, ok := g.Node(calc)
		if !ok {
			return false, &TaskError{Task: n.Name(), Err: fmt.Errorf("calc dep %q not in graph", calc)}
		}
		if !n.markCalcMerged(calc) {
			continue
		}
		out, ok := calcNode.State().Output.(*script.Table)
		if !ok {
			if calcNode.State().Output == nil {
				continue
			}
			return false, &TaskError{Task: n.Name(), Err: fmt.Errorf("calc dep %q returned a non-table output", calc)}
		}
		files, tasks, vars, err := parseCalcOutput(out)
		if err != nil {
			return false, &TaskError{Task: n.Name(), Err: fmt.Errorf("calc dep %q: %w", calc, err)}
		}

		resolvedFiles := make([]string, 0, len(files))
		for _, f := range files {
			p, err := core.ResolvePath(calcNode.Task.ProjectDir, f)
			if err != nil {
				return false, &TaskError{Task: n.Name(), Err: err}
			}
			resolvedFiles = append(resolvedFiles, p)
		}
		n.addCalcDeps(resolvedFiles, vars)

		for _, ref := range tasks {
			dep, err := core.ResolveName(calcNode.Task.Project, ref)
			if err != nil {
				return false, &TaskError{Task: n.Name(), Err: err}
			}
			if err := g.AddDiscoveredDep(n.Name(), dep); err != nil {
				return false, err
			}
			depNode, _ := g.Node(dep)
			if depNode != nil && !depNode.satisfied() {
				requeued = true
			}
		}
	}
	return requeued, nil
}

// calcArtifacts collects artifact files enumerated by artifacts.calc tasks.
func (sc *Scheduler) calcArtifacts(g *ExecutionGraph, n *Node) []string {
	var out []string
	for _, calc := range n.Task.Artifacts.Calc {
		calcNode, ok := g.Node(calc)
		if !ok {
			continue
		}
		tbl, ok := calcNode.State().Output.(*script.Table)
		if !ok {
			continue
		}
		if files, ok := tbl.GetTable("files"); ok {
			if list, ok := files.Strings(); ok {
				for _, f := range list {
					if p, err := core.ResolvePath(calcNode.Task.ProjectDir, f); err == nil {
						out = append(out, p)
					}
				}
			}
		}
	}
	return out
}

// settle finishes a node: records status, flushes output, reports, and
// propagates failure to every transitive consumer.
func (sc *Scheduler) settle(g *ExecutionGraph, n *Node, status core.TaskStatus, streams *TaskStreams, err error) {
	sc.finishNode(g, n, streams, func() error {
		n.setStatus(status)
		return err
	})
}

func (sc *Scheduler) finishNode(g *ExecutionGraph, n *Node, streams *TaskStreams, apply func() error) {
	err := apply()
	if err != nil {
		n.setError(err)
		if n.Status() != core.TaskFailed {
			n.setStatus(core.TaskFailed)
		}
	}
	status := n.Status()
	failed := status == core.TaskFailed

	if streams != nil {
		stdout := firstPolicy(sc.cfg.Stdout, n.Task.Stdout, sc.cfg.DefaultStdout, core.OutputOnFail)
		stderr := firstPolicy(sc.cfg.Stderr, n.Task.Stderr, sc.cfg.DefaultStderr, core.OutputAlways)
		// A failed task's output always reaches the terminal.
		sc.cfg.Multiplexer.Flush(streams, stdout, stderr, failed, failed)
	}

	st := n.State()
	elapsed := time.Duration(0)
	if !st.StartedAt.IsZero() && !st.FinishedAt.IsZero() {
		elapsed = st.FinishedAt.Sub(st.StartedAt)
	}
	sc.cfg.Reporter.TaskStatus(n.Name(), status, elapsed, err)

	if status == core.TaskSucceeded && st.Output != nil {
		outPolicy := firstPolicy(sc.cfg.Output, n.Task.Output, sc.cfg.DefaultOutput, core.OutputNever)
		if wantFlush(outPolicy, false) {
			if data, merr := script.MarshalValue(st.Output); merr == nil {
				sc.cfg.Multiplexer.WriteLine(fmt.Sprintf("%s output: %s", n.Name(), data))
			}
		}
	}

	if failed {
		for _, desc := range g.Descendants(n.Name()) {
			if depNode, ok := g.Node(desc); ok && depNode.Status() == core.TaskNone {
				depNode.setStatus(core.TaskBlocked)
				sc.cfg.Reporter.TaskStatus(desc, core.TaskBlocked, 0, nil)
			}
		}
	}

	sc.mu.Lock()
	sc.running--
	if n.Task.Interactive {
		sc.exclusive = false
	}
	sc.mu.Unlock()
	sc.cond.Broadcast()
}

// firstPolicy returns the first non-empty policy in precedence order.
func firstPolicy(policies ...core.OutputPolicy) core.OutputPolicy {
	for _, p := range policies {
		if p != "" {
			return p
		}
	}
	return core.OutputAlways
}

// parseCalcOutput validates a calc task's output table: only files, tasks,
// and vars keys are honored; anything else is a hard error so typos do not
// silently drop dependencies.
func parseCalcOutput(out *script.Table) (files, tasks, vars []string, err error) {
	for key := range out.Map {
		switch key {
		case "files", "tasks", "vars":
		default:
			return nil, nil, nil, fmt.Errorf("unknown key %q in calc output", key)
		}
	}
	if sub, ok := out.GetTable("files"); ok {
		if files, ok = sub.Strings(); !ok {
			return nil, nil, nil, fmt.Errorf("calc output files must be strings")
		}
	}
	if sub, ok := out.GetTable("tasks"); ok {
		if tasks, ok = sub.Strings(); !ok {
			return nil, nil, nil, fmt.Errorf("calc output tasks must be strings")
		}
	}
	if sub, ok := out.GetTable("vars"); ok {
		if vars, ok = sub.Strings(); !ok {
			return nil, nil, nil, fmt.Errorf("calc output vars must be strings")
		}
	}
	return files, tasks, vars, nil
}
