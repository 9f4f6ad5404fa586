package project

import (
	"sort"
	"strings"

	"github.com/jdarais/cobble/internal/core"
)

// Project is one node of the workspace tree: a name, the directory its
// declarations live in, and the script files that defined it. Source files
// feed the engine's self-invalidation digest.
type Project struct {
	Name        string
	Dir         string
	SourceFiles []string
}

// Registry is the immutable catalog of tasks, environments, and tools,
// produced by the definition phase and shared freely afterwards.
type Registry struct {
	tasks    map[string]*core.Task
	envs     map[string]*core.Environment
	tools    map[string]*core.Tool
	projects map[string]*Project

	// artifactOwners maps a declared artifact file path to the task that
	// produces it, so deps.files entries can pull in producers.
	artifactOwners map[string]string
}

func (r *Registry) Task(name string) (*core.Task, bool) {
	t, ok := r.tasks[name]
	return t, ok
}

func (r *Registry) Env(name string) (*core.Environment, bool) {
	e, ok := r.envs[name]
	return e, ok
}

func (r *Registry) Tool(name string) (*core.Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) Project(name string) (*Project, bool) {
	p, ok := r.projects[name]
	return p, ok
}

// Projects returns all projects sorted by name.
func (r *Registry) Projects() []*Project {
	out := make([]*Project, 0, len(r.projects))
	for _, p := range r.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Tasks returns all tasks sorted by absolute name.
func (r *Registry) Tasks() []*core.Task {
	out := make([]*core.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// TaskNames returns all task names sorted.
func (r *Registry) TaskNames() []string {
	out := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// TaskOwningFile returns the task that declares path among its artifacts.
func (r *Registry) TaskOwningFile(path string) (string, bool) {
	name, ok := r.artifactOwners[path]
	return name, ok
}

// DefaultTasks returns the tasks flagged default in the project and its
// subprojects, or every task in that subtree when none is flagged.
func (r *Registry) DefaultTasks(project string) []string {
	var defaults, all []string
	prefix := project
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	for name, t := range r.tasks {
		if t.Project != project && !strings.HasPrefix(name, prefix) {
			continue
		}
		all = append(all, name)
		if t.Default {
			defaults = append(defaults, name)
		}
	}
	sort.Strings(defaults)
	sort.Strings(all)
	if len(defaults) > 0 {
		return defaults
	}
	return all
}

// ProjectSources returns the script files that defined the project.
func (r *Registry) ProjectSources(project string) []string {
	if p, ok := r.projects[project]; ok {
		return p.SourceFiles
	}
	return nil
}
