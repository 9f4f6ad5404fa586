package project

import (
	"fmt"
	"strings"

	"github.com/jdarais/cobble/internal/core"
)

// Frame is the result of running one project's definition script: the
// project identity plus everything it declared.
type Frame struct {
	Project string
	Dir     string
	Sources []string

	Tasks []*TaskDecl
	Envs  []*EnvDecl
	Tools []*ToolDecl
}

// Builder accumulates definition frames and seals them into a Registry.
// It exists only during the definition phase; the global mutable state the
// scripts see is confined here and discarded once Seal returns.
type Builder struct {
	frames []*Frame
	sealed bool
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) AddFrame(f *Frame) {
	if b.sealed {
		panic("project: AddFrame after Seal")
	}
	b.frames = append(b.frames, f)
}

// Seal resolves every reference to an absolute name, validates the result,
// and returns the immutable registry. Any problem is a DefinitionError.
func (b *Builder) Seal() (*Registry, error) {
	b.sealed = true
	r := &Registry{
		tasks:          map[string]*core.Task{},
		envs:           map[string]*core.Environment{},
		tools:          map[string]*core.Tool{},
		projects:       map[string]*Project{},
		artifactOwners: map[string]string{},
	}

	for _, f := range b.frames {
		if existing, ok := r.projects[f.Project]; ok {
			existing.SourceFiles = appendUnique(existing.SourceFiles, f.Sources...)
		} else {
			r.projects[f.Project] = &Project{Name: f.Project, Dir: f.Dir, SourceFiles: f.Sources}
		}
	}

	// First pass: register tools and environments (with their setup tasks)
	// so task references can resolve against the full namespace.
	for _, f := range b.frames {
		for _, d := range f.Tools {
			if d.Name == "" {
				return nil, core.DefinitionAtf(d.File, d.Line, "tool declaration is missing a name")
			}
			if _, dup := r.tools[d.Name]; dup {
				return nil, core.DefinitionAtf(d.File, d.Line, "duplicate tool name %q", d.Name)
			}
			if d.Action == nil {
				return nil, core.DefinitionAtf(d.File, d.Line, "tool %q has no action", d.Name)
			}
			r.tools[d.Name] = &core.Tool{Name: d.Name}
		}
		for _, d := range f.Envs {
			if d.Name == "" {
				return nil, core.DefinitionAtf(d.File, d.Line, "env declaration is missing a name")
			}
			name := core.JoinName(f.Project, d.Name)
			if _, dup := r.envs[name]; dup {
				return nil, core.DefinitionAtf(d.File, d.Line, "duplicate env name %q", name)
			}
			if d.Setup == nil || d.Action == nil {
				return nil, core.DefinitionAtf(d.File, d.Line, "env %q must declare setup and action", name)
			}
			r.envs[name] = &core.Environment{Name: name}
		}
	}

	// Second pass: build tasks, including env setup tasks, so the task
	// namespace is complete before reference checking.
	for _, f := range b.frames {
		for _, d := range f.Tasks {
			t, err := b.buildTask(r, f, d, "")
			if err != nil {
				return nil, err
			}
			if err := b.register(r, t, d.File, d.Line); err != nil {
				return nil, err
			}
		}
		for _, d := range f.Envs {
			envName := core.JoinName(f.Project, d.Name)
			setup, err := b.buildTask(r, f, d.Setup, envName)
			if err != nil {
				return nil, err
			}
			if err := b.register(r, setup, d.File, d.Line); err != nil {
				return nil, err
			}
			env := r.envs[envName]
			env.SetupTask = setup
			if env.Action, err = b.buildAction(r, f, d.Action, ""); err != nil {
				return nil, core.DefinitionAtf(d.File, d.Line, "env %q: %v", envName, err)
			}
		}
		for _, d := range f.Tools {
			tool := r.tools[d.Name]
			var err error
			if tool.Action, err = b.buildAction(r, f, d.Action, ""); err != nil {
				return nil, core.DefinitionAtf(d.File, d.Line, "tool %q: %v", d.Name, err)
			}
			if d.Check != nil {
				if tool.Check, err = b.buildAction(r, f, d.Check, ""); err != nil {
					return nil, core.DefinitionAtf(d.File, d.Line, "tool %q check: %v", d.Name, err)
				}
			}
		}
	}

	// Final pass: every reference must land on a registered name.
	for _, t := range r.tasks {
		for _, dep := range t.Deps.Tasks {
			if _, ok := r.tasks[dep]; !ok {
				return nil, core.Definitionf("task %q depends on unknown task %q", t.Name, dep)
			}
		}
		for _, dep := range t.CalcDeps {
			if _, ok := r.tasks[dep]; !ok {
				return nil, core.Definitionf("task %q has unknown calc dependency %q", t.Name, dep)
			}
		}
		for _, dep := range t.Artifacts.Calc {
			if _, ok := r.tasks[dep]; !ok {
				return nil, core.Definitionf("task %q has unknown artifact calc task %q", t.Name, dep)
			}
		}
		if t.Env != "" {
			if _, ok := r.envs[t.Env]; !ok {
				return nil, core.Definitionf("task %q references unknown env %q", t.Name, t.Env)
			}
		}
		for _, a := range append(append([]*core.Action{}, t.Actions...), t.CleanActions...) {
			for alias, tool := range a.ToolAliases {
				if _, ok := r.tools[tool]; !ok {
					return nil, core.Definitionf("task %q: tool alias %q references unknown tool %q", t.Name, alias, tool)
				}
			}
			for alias, env := range a.EnvAliases {
				if _, ok := r.envs[env]; !ok {
					return nil, core.Definitionf("task %q: env alias %q references unknown env %q", t.Name, alias, env)
				}
			}
		}
	}
	return r, nil
}

func (b *Builder) register(r *Registry, t *core.Task, file string, line int) error {
	if _, dup := r.tasks[t.Name]; dup {
		return core.DefinitionAtf(file, line, "duplicate task name %q", t.Name)
	}
	r.tasks[t.Name] = t
	for _, art := range t.Artifacts.Files {
		if !strings.ContainsAny(art, "*?[{") {
			r.artifactOwners[art] = t.Name
		}
	}
	return nil
}

// buildTask resolves one task declaration. overrideName is set for env
// setup tasks, which inherit the env's absolute name.
func (b *Builder) buildTask(r *Registry, f *Frame, d *TaskDecl, overrideName string) (*core.Task, error) {
	name := overrideName
	if name == "" {
		if d.Name == "" {
			return nil, core.DefinitionAtf(d.File, d.Line, "task declaration is missing a name")
		}
		name = core.JoinName(f.Project, d.Name)
	}

	t := &core.Task{
		Name:        name,
		Project:     f.Project,
		ProjectDir:  f.Dir,
		AlwaysRun:   d.AlwaysRun,
		Interactive: d.Interactive,
		Default:     d.Default,
		CalcDeps:    make([]string, 0, len(d.CalcDeps)),
	}

	var err error
	if t.Stdout, err = core.ParseOutputPolicy(d.Stdout, ""); err != nil {
		return nil, core.DefinitionAtf(d.File, d.Line, "task %q stdout: %v", name, err)
	}
	if t.Stderr, err = core.ParseOutputPolicy(d.Stderr, ""); err != nil {
		return nil, core.DefinitionAtf(d.File, d.Line, "task %q stderr: %v", name, err)
	}
	if t.Output, err = core.ParseOutputPolicy(d.Output, ""); err != nil {
		return nil, core.DefinitionAtf(d.File, d.Line, "task %q output: %v", name, err)
	}

	if d.Env != "" {
		if t.Env, err = b.resolveEnv(r, f.Project, d.Env); err != nil {
			return nil, core.DefinitionAtf(d.File, d.Line, "task %q: %v", name, err)
		}
	}

	for _, ref := range d.DepTasks {
		dep, err := core.ResolveName(f.Project, ref)
		if err != nil {
			return nil, core.DefinitionAtf(d.File, d.Line, "task %q: %v", name, err)
		}
		t.Deps.Tasks = append(t.Deps.Tasks, dep)
	}
	for _, ref := range d.CalcDeps {
		dep, err := core.ResolveName(f.Project, ref)
		if err != nil {
			return nil, core.DefinitionAtf(d.File, d.Line, "task %q: %v", name, err)
		}
		t.CalcDeps = append(t.CalcDeps, dep)
	}
	for _, ref := range d.ArtCalc {
		dep, err := core.ResolveName(f.Project, ref)
		if err != nil {
			return nil, core.DefinitionAtf(d.File, d.Line, "task %q: %v", name, err)
		}
		t.Artifacts.Calc = append(t.Artifacts.Calc, dep)
	}
	for _, ref := range d.DepFiles {
		p, err := core.ResolvePath(f.Dir, ref)
		if err != nil {
			return nil, core.DefinitionAtf(d.File, d.Line, "task %q: %v", name, err)
		}
		t.Deps.Files = append(t.Deps.Files, p)
	}
	for _, ref := range d.ArtFiles {
		p, err := core.ResolvePath(f.Dir, ref)
		if err != nil {
			return nil, core.DefinitionAtf(d.File, d.Line, "task %q: %v", name, err)
		}
		t.Artifacts.Files = append(t.Artifacts.Files, p)
	}
	t.Deps.Vars = append(t.Deps.Vars, d.DepVars...)

	for _, ad := range d.Actions {
		a, err := b.buildAction(r, f, ad, t.Env)
		if err != nil {
			return nil, core.DefinitionAtf(d.File, d.Line, "task %q: %v", name, err)
		}
		t.Actions = append(t.Actions, a)
	}
	for _, ad := range d.CleanActions {
		a, err := b.buildAction(r, f, ad, t.Env)
		if err != nil {
			return nil, core.DefinitionAtf(d.File, d.Line, "task %q clean: %v", name, err)
		}
		t.CleanActions = append(t.CleanActions, a)
	}
	return t, nil
}

// buildAction resolves an action's alias scope. taskEnv is the owning
// task's resolved environment name; it contributes the first env alias.
func (b *Builder) buildAction(r *Registry, f *Frame, d *ActionDecl, taskEnv string) (*core.Action, error) {
	a := &core.Action{
		Closure:     d.Closure,
		Args:        d.Args,
		Tool:        d.Tool,
		Env:         d.Env,
		ToolAliases: map[string]string{},
		EnvAliases:  map[string]string{},
	}
	if taskEnv != "" {
		a.EnvAliases[lastSegment(taskEnv)] = taskEnv
	}
	if d.Tool != "" {
		a.ToolAliases[d.Tool] = d.Tool
	}
	if d.Env != "" {
		resolved, err := b.resolveEnv(r, f.Project, d.Env)
		if err != nil {
			return nil, err
		}
		a.EnvAliases[d.Env] = resolved
	}
	for alias, ref := range d.Tools {
		a.ToolAliases[alias] = ref
	}
	for alias, ref := range d.Envs {
		resolved, err := b.resolveEnv(r, f.Project, ref)
		if err != nil {
			return nil, err
		}
		a.EnvAliases[alias] = resolved
	}
	return a, nil
}

// resolveEnv looks an env reference up in the declaring project's scope,
// walking parent projects up to the root. Absolute references are direct.
func (b *Builder) resolveEnv(r *Registry, project, ref string) (string, error) {
	if core.IsAbsName(ref) {
		name, err := core.ResolveName(project, ref)
		if err != nil {
			return "", err
		}
		if _, ok := r.envs[name]; !ok {
			return "", fmt.Errorf("unknown env %q", ref)
		}
		return name, nil
	}
	for p := project; ; p = core.ParentName(p) {
		candidate := core.JoinName(p, ref)
		if _, ok := r.envs[candidate]; ok {
			return candidate, nil
		}
		if p == core.RootName {
			return "", fmt.Errorf("unknown env %q", ref)
		}
	}
}

func lastSegment(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}

func appendUnique(dst []string, src ...string) []string {
	for _, s := range src {
		found := false
		for _, d := range dst {
			if d == s {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, s)
		}
	}
	return dst
}
