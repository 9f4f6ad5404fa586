package core

import (
	"github.com/jdarais/cobble/internal/script"
)

// Task is a named unit of work: an ordered list of actions with declared
// dependencies and artifacts. All name and file references are resolved to
// absolute names / workspace-relative paths at registry-build time.
type Task struct {
	Name       string
	Project    string
	ProjectDir string

	Actions      []*Action
	CleanActions []*Action

	// Env is the absolute name of the task's environment, if any. Depending
	// on an environment implies depending on its setup task.
	Env string

	Deps      DepSet
	CalcDeps  []string
	Artifacts Artifacts

	AlwaysRun   bool
	Interactive bool
	Default     bool

	// Output policies for the task's buffered streams.
	Stdout OutputPolicy
	Stderr OutputPolicy
	Output OutputPolicy
}

// DepSet holds a task's static dependencies, resolved to absolute task
// names and workspace-relative file paths. Var names are workspace-global.
type DepSet struct {
	Files []string
	Tasks []string
	Vars  []string
}

// Artifacts declares the files a task produces. Files entries may be
// doublestar patterns; Calc names tasks whose outputs enumerate additional
// artifact files at runtime.
type Artifacts struct {
	Files []string
	Calc  []string
}

// Environment pairs a setup task with an invocation action. Tasks that
// reference the environment depend on its setup task and gain the action
// under an alias in their scope.
type Environment struct {
	Name      string
	SetupTask *Task
	Action    *Action
}

// Tool wraps an external command: a global name, an invocation action, and
// an optional check action used by `tool check`.
type Tool struct {
	Name   string
	Check  *Action
	Action *Action
}

// Action is one step within a task: either a script closure or a command
// argument list bound to a tool or environment. Both variants carry the
// alias maps in scope at the point of declaration.
type Action struct {
	// Closure is set for the script-function variant.
	Closure *script.Closure

	// Args is set for the argument-list variant. Tool or Env (at most one)
	// names the alias the list is routed through; with neither, the built-in
	// cmd tool runs the list.
	Args []string
	Tool string
	Env  string

	// ToolAliases and EnvAliases map in-scope aliases to global tool names
	// and absolute environment names.
	ToolAliases map[string]string
	EnvAliases  map[string]string
}

// IsScript reports whether the action is the script-function variant.
func (a *Action) IsScript() bool {
	return a.Closure != nil
}
