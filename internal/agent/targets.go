package agent

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/jdarais/cobble/internal/core"
)

// ResolveTargets maps command-line targets to absolute task names. A
// target may be an absolute task name, a bare name resolved against the
// project containing cwd, or a project name (its default tasks, or all of
// them when none is flagged default).
func (a *Agent) ResolveTargets(targets []string, cwd string) ([]string, error) {
	base := a.projectForDir(cwd)
	seen := map[string]bool{}
	var out []string
	add := func(names ...string) {
		for _, n := range names {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}

	if len(targets) == 0 {
		defaults := a.Registry.DefaultTasks(base)
		if len(defaults) == 0 {
			return nil, core.Definitionf("no tasks found in project %q", base)
		}
		add(defaults...)
		sort.Strings(out)
		return out, nil
	}

	for _, target := range targets {
		name, err := core.ResolveName(base, target)
		if err != nil {
			return nil, core.Definitionf("target %q: %v", target, err)
		}
		if _, ok := a.Registry.Task(name); ok {
			add(name)
			continue
		}
		if _, ok := a.Registry.Project(name); ok {
			defaults := a.Registry.DefaultTasks(name)
			if len(defaults) == 0 {
				return nil, core.Definitionf("project %q has no tasks", name)
			}
			add(defaults...)
			continue
		}
		// A bare task name may also live in an ancestor project.
		if !core.IsAbsName(target) {
			if resolved, ok := a.searchUp(base, target); ok {
				add(resolved)
				continue
			}
		}
		return nil, core.Definitionf("unknown target %q", target)
	}
	sort.Strings(out)
	return out, nil
}

// resolveEnvTarget resolves an env reference the same way.
func (a *Agent) resolveEnvTarget(target, cwd string) (string, error) {
	base := a.projectForDir(cwd)
	name, err := core.ResolveName(base, target)
	if err != nil {
		return "", core.Definitionf("env %q: %v", target, err)
	}
	if _, ok := a.Registry.Env(name); ok {
		return name, nil
	}
	if !core.IsAbsName(target) {
		for p := base; ; p = core.ParentName(p) {
			candidate := core.JoinName(p, target)
			if _, ok := a.Registry.Env(candidate); ok {
				return candidate, nil
			}
			if p == core.RootName {
				break
			}
		}
	}
	return "", core.Definitionf("unknown env %q", target)
}

// searchUp looks for a task named ref in base and its ancestors.
func (a *Agent) searchUp(base, ref string) (string, bool) {
	for p := base; ; p = core.ParentName(p) {
		candidate := core.JoinName(p, ref)
		if _, ok := a.Registry.Task(candidate); ok {
			return candidate, true
		}
		if p == core.RootName {
			return "", false
		}
	}
}

// projectForDir finds the project whose directory contains dir; the root
// project when none does.
func (a *Agent) projectForDir(dir string) string {
	rel, err := filepath.Rel(a.Config.RootDir, dir)
	if err != nil || strings.HasPrefix(rel, "..") {
		return core.RootName
	}
	rel = filepath.ToSlash(rel)
	if rel == "." {
		rel = ""
	}

	best := core.RootName
	bestLen := -1
	for _, p := range a.Registry.Projects() {
		if p.Dir == rel || p.Dir == "" || strings.HasPrefix(rel+"/", p.Dir+"/") {
			if len(p.Dir) > bestLen {
				best = p.Name
				bestLen = len(p.Dir)
			}
		}
	}
	return best
}
