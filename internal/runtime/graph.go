package runtime

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jdarais/cobble/internal/core"
	"github.com/jdarais/cobble/internal/project"
)

// ExecutionGraph is the dependency graph for one invocation. Edges run from
// dependency to dependent. The graph grows during execution as calc deps
// are expanded; every mutation re-checks acyclicity.
type ExecutionGraph struct {
	mu    sync.RWMutex
	reg   *project.Registry
	nodes map[string]*Node

	// From maps a task to its dependents; To maps a task to its deps.
	From map[string][]string
	To   map[string][]string
}

// NewExecutionGraph builds the initial graph from the targets' transitive
// closure: declared task deps, producers of file deps, env setup tasks, and
// calc tasks. Returns a DefinitionError on a cycle.
func NewExecutionGraph(reg *project.Registry, targets []string) (*ExecutionGraph, error) {
	g := &ExecutionGraph{
		reg:   reg,
		nodes: map[string]*Node{},
		From:  map[string][]string{},
		To:    map[string][]string{},
	}
	for _, target := range targets {
		if err := g.ensureTask(target); err != nil {
			return nil, err
		}
	}
	if cycle := g.findCycle(); len(cycle) > 0 {
		return nil, core.Definitionf("dependency cycle detected: %s", strings.Join(cycle, " -> "))
	}
	return g, nil
}

// ensureTask adds the task and its transitive dependency closure.
func (g *ExecutionGraph) ensureTask(name string) error {
	if _, ok := g.nodes[name]; ok {
		return nil
	}
	t, ok := g.reg.Task(name)
	if !ok {
		return core.Definitionf("unknown task %q", name)
	}
	g.nodes[name] = newNode(t)

	deps := map[string]bool{}
	for _, dep := range t.Deps.Tasks {
		deps[dep] = true
	}
	for _, dep := range t.CalcDeps {
		deps[dep] = true
	}
	for _, dep := range t.Artifacts.Calc {
		deps[dep] = true
	}
	// A file dep produced by another task pulls that producer in.
	for _, f := range t.Deps.Files {
		if owner, ok := g.reg.TaskOwningFile(f); ok && owner != name {
			deps[owner] = true
		}
	}
	if t.Env != "" {
		if env, ok := g.reg.Env(t.Env); ok && env.SetupTask != nil {
			deps[env.SetupTask.Name] = true
		}
	}
	// Env aliases on actions imply their setup tasks as well.
	for _, a := range t.Actions {
		for _, envName := range a.EnvAliases {
			if env, ok := g.reg.Env(envName); ok && env.SetupTask != nil && env.SetupTask.Name != name {
				deps[env.SetupTask.Name] = true
			}
		}
	}

	for dep := range deps {
		if err := g.ensureTask(dep); err != nil {
			return err
		}
		g.addEdge(dep, name)
	}
	return nil
}

func (g *ExecutionGraph) addEdge(from, to string) {
	for _, existing := range g.From[from] {
		if existing == to {
			return
		}
	}
	g.From[from] = append(g.From[from], to)
	g.To[to] = append(g.To[to], from)
}

// AddDiscoveredDep adds a calc-discovered dependency edge (and the dep's
// subtree if new), then re-checks for cycles.
func (g *ExecutionGraph) AddDiscoveredDep(task, dep string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.ensureTask(dep); err != nil {
		return err
	}
	g.addEdge(dep, task)
	if cycle := g.findCycle(); len(cycle) > 0 {
		return core.Definitionf("dependency cycle detected after calc expansion: %s", strings.Join(cycle, " -> "))
	}
	return nil
}

// Node returns the node for a task name.
func (g *ExecutionGraph) Node(name string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[name]
	return n, ok
}

// Nodes returns all nodes sorted by name.
func (g *ExecutionGraph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// DepsOf returns the task's current dependencies.
func (g *ExecutionGraph) DepsOf(name string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string{}, g.To[name]...)
}

// DependentsOf returns the task's direct dependents.
func (g *ExecutionGraph) DependentsOf(name string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string{}, g.From[name]...)
}

// Descendants returns every transitive dependent of the task.
func (g *ExecutionGraph) Descendants(name string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	seen := map[string]bool{}
	var walk func(string)
	walk = func(n string) {
		for _, next := range g.From[n] {
			if !seen[next] {
				seen[next] = true
				walk(next)
			}
		}
	}
	walk(name)
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// TopoOrder returns the tasks in dependency order, lexicographic among
// peers, so traversals are reproducible.
func (g *ExecutionGraph) TopoOrder() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	indeg := map[string]int{}
	for n := range g.nodes {
		indeg[n] = len(g.To[n])
	}
	var ready []string
	for n, d := range indeg {
		if d == 0 {
			ready = append(ready, n)
		}
	}
	sort.Strings(ready)
	var order []string
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)
		var unlocked []string
		for _, next := range g.From[n] {
			indeg[next]--
			if indeg[next] == 0 {
				unlocked = append(unlocked, next)
			}
		}
		sort.Strings(unlocked)
		ready = mergeSorted(ready, unlocked)
	}
	return order
}

func mergeSorted(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] <= b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

// findCycle returns the node set of one cycle, or nil. Callers hold the
// lock. The reported set is minimal: only nodes on the detected back-edge
// path are included.
func (g *ExecutionGraph) findCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	var stack []string
	var cycle []string

	var visit func(n string) bool
	visit = func(n string) bool {
		color[n] = gray
		stack = append(stack, n)
		for _, next := range g.From[n] {
			switch color[next] {
			case gray:
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == next {
						cycle = append([]string{}, stack[i:]...)
						return true
					}
				}
			case white:
				if visit(next) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
		return false
	}

	names := make([]string, 0, len(g.nodes))
	for n := range g.nodes {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if color[n] == white && visit(n) {
			sort.Strings(cycle)
			return cycle
		}
	}
	return nil
}

// String renders the graph for debugging.
func (g *ExecutionGraph) String() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var b strings.Builder
	names := make([]string, 0, len(g.nodes))
	for n := range g.nodes {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		deps := append([]string{}, g.To[n]...)
		sort.Strings(deps)
		fmt.Fprintf(&b, "%s <- [%s]\n", n, strings.Join(deps, ", "))
	}
	return b.String()
}
