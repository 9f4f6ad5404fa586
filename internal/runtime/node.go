package runtime

import (
	"sync"
	"time"

	"github.com/jdarais/cobble/internal/core"
	"github.com/jdarais/cobble/internal/fingerprint"
	"github.com/jdarais/cobble/internal/script"
)

// NodeState is the mutable execution state of one task node.
type NodeState struct {
	Status       core.TaskStatus
	Err          error
	Output       script.Value
	OutputDigest string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Node pairs an immutable task with its per-invocation state. Nodes are
// created for one scheduler run and discarded afterwards.
type Node struct {
	Task *core.Task

	mu    sync.Mutex
	state NodeState

	// depFiles/depVars accumulate the static dependency set plus anything
	// merged in from completed calc deps. mergedCalc tracks which calc
	// tasks have been folded in already.
	depFiles   []string
	depTasks   map[string]bool
	depVars    []string
	mergedCalc map[string]bool
}

func newNode(t *core.Task) *Node {
	n := &Node{
		Task:       t,
		depTasks:   map[string]bool{},
		mergedCalc: map[string]bool{},
	}
	n.depFiles = append(n.depFiles, t.Deps.Files...)
	n.depVars = append(n.depVars, t.Deps.Vars...)
	return n
}

func (n *Node) Name() string { return n.Task.Name }

func (n *Node) State() NodeState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *Node) Status() core.TaskStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.Status
}

func (n *Node) setStatus(s core.TaskStatus) {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch s {
	case core.TaskRunning:
		n.state.StartedAt = time.Now()
	case core.TaskSucceeded, core.TaskFailed, core.TaskSkipped, core.TaskAborted:
		n.state.FinishedAt = time.Now()
	}
	n.state.Status = s
}

func (n *Node) setResult(output script.Value, digest string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.state.Output = output
	n.state.OutputDigest = digest
}

func (n *Node) setError(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.state.Err = err
}

// done reports whether the node reached a terminal state.
func (n *Node) done() bool {
	switch n.Status() {
	case core.TaskSucceeded, core.TaskFailed, core.TaskSkipped, core.TaskBlocked, core.TaskAborted:
		return true
	}
	return false
}

// satisfied reports whether downstream work may proceed past this node.
func (n *Node) satisfied() bool {
	s := n.Status()
	return s == core.TaskSucceeded || s == core.TaskSkipped
}

// addCalcDeps merges calc-discovered file and var deps.
func (n *Node) addCalcDeps(files, vars []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.depFiles = appendMissing(n.depFiles, files)
	n.depVars = appendMissing(n.depVars, vars)
}

func (n *Node) markCalcMerged(calc string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.mergedCalc[calc] {
		return false
	}
	n.mergedCalc[calc] = true
	return true
}

// resolvedDeps snapshots the node's dependency set, pulling dep task
// outputs from their graph nodes.
func (n *Node) resolvedDeps(g *ExecutionGraph) *fingerprint.ResolvedDeps {
	n.mu.Lock()
	files := append([]string{}, n.depFiles...)
	vars := append([]string{}, n.depVars...)
	n.mu.Unlock()

	deps := &fingerprint.ResolvedDeps{
		Files: files,
		Vars:  vars,
		Tasks: map[string]fingerprint.TaskDep{},
	}
	for _, dep := range g.DepsOf(n.Name()) {
		depNode, ok := g.Node(dep)
		if !ok {
			continue
		}
		st := depNode.State()
		deps.Tasks[dep] = fingerprint.TaskDep{Digest: st.OutputDigest, Value: st.Output}
	}
	return deps
}

func appendMissing(dst []string, src []string) []string {
	have := map[string]bool{}
	for _, s := range dst {
		have[s] = true
	}
	for _, s := range src {
		if !have[s] {
			have[s] = true
			dst = append(dst, s)
		}
	}
	return dst
}
