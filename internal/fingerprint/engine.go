package fingerprint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/jdarais/cobble/internal/core"
	"github.com/jdarais/cobble/internal/logger"
	"github.com/jdarais/cobble/internal/script"
)

// TaskDep is a dependency task's contribution to a fingerprint: the digest
// of its output this run, plus the output value itself for the action
// context.
type TaskDep struct {
	Digest string
	Value  script.Value
}

// ResolvedDeps is a task's dependency set after calc expansion, with dep
// task outputs filled in from the current run.
type ResolvedDeps struct {
	Files []string
	Tasks map[string]TaskDep
	Vars  []string
}

// Engine computes fingerprints and decides up-to-date against the store.
type Engine struct {
	store *Store
	root  string
	vars  map[string]string
	log   logger.Logger
}

func NewEngine(store *Store, root string, vars map[string]string, log logger.Logger) *Engine {
	return &Engine{store: store, root: root, vars: vars, log: log}
}

// Var returns the workspace var's value and whether it is defined.
func (e *Engine) Var(name string) (string, bool) {
	v, ok := e.vars[name]
	return v, ok
}

// Record returns the stored record for a task, if present. Store read
// errors are reported as absent.
func (e *Engine) Record(task string) (*Record, bool) {
	rec, ok, err := e.store.Get(task)
	if err != nil {
		e.log.Warnf("fingerprint read for %s failed: %v", task, err)
		return nil, false
	}
	return rec, ok
}

// UpToDate decides whether the task can be skipped. The decision ladder:
// no record, always_run, changed file dep, changed dep output, changed var,
// changed or missing artifact, changed action bodies — any hit means run.
func (e *Engine) UpToDate(ctx context.Context, task *core.Task, deps *ResolvedDeps, sources []string) (bool, *Record) {
	if task.AlwaysRun {
		return false, nil
	}
	rec, ok := e.Record(task.Name)
	if !ok {
		return false, nil
	}

	files, err := e.ExpandFiles(deps.Files)
	if err != nil {
		e.log.Warnf("expanding file deps for %s: %v", task.Name, err)
		return false, rec
	}
	if len(files) != len(rec.FileHashes) {
		return false, rec
	}
	for _, f := range files {
		want, ok := rec.FileHashes[f]
		if !ok {
			return false, rec
		}
		got, err := HashFile(e.abs(f))
		if err != nil || got != want {
			return false, rec
		}
	}

	if len(deps.Tasks) != len(rec.TaskOutputs) {
		return false, rec
	}
	for name, dep := range deps.Tasks {
		if rec.TaskOutputs[name] != dep.Digest {
			return false, rec
		}
	}

	if len(deps.Vars) != len(rec.VarHashes) {
		return false, rec
	}
	for _, name := range deps.Vars {
		want, ok := rec.VarHashes[name]
		if !ok || want != e.varHash(name) {
			return false, rec
		}
	}

	for path, want := range rec.ArtifactHashes {
		got, err := HashFile(e.abs(path))
		if err != nil || got != want {
			return false, rec
		}
	}

	if e.ActionsDigest(task) != rec.ActionsDigest {
		return false, rec
	}
	if e.ProjectDigest(sources) != rec.ProjectDigest {
		return false, rec
	}
	return true, rec
}

// Commit verifies declared artifacts, computes the new record, and persists
// it. Called only after every action completed without error.
func (e *Engine) Commit(ctx context.Context, task *core.Task, deps *ResolvedDeps, sources []string, artifacts []string, output script.Value) (*Record, error) {
	rec := &Record{
		FileHashes:     map[string]string{},
		TaskOutputs:    map[string]string{},
		VarHashes:      map[string]string{},
		ArtifactHashes: map[string]string{},
		OutputDigest:   script.Digest(output),
		ActionsDigest:  e.ActionsDigest(task),
		ProjectDigest:  e.ProjectDigest(sources),
	}

	files, err := e.ExpandFiles(deps.Files)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		h, err := HashFile(e.abs(f))
		if err != nil {
			return nil, err
		}
		rec.FileHashes[f] = h
	}
	for name, dep := range deps.Tasks {
		rec.TaskOutputs[name] = dep.Digest
	}
	for _, name := range deps.Vars {
		rec.VarHashes[name] = e.varHash(name)
	}

	for _, art := range artifacts {
		h, err := HashFile(e.abs(art))
		if err != nil {
			return nil, err
		}
		if h == AbsentHash {
			return nil, fmt.Errorf("declared artifact %q does not exist after successful run", art)
		}
		rec.ArtifactHashes[art] = h
	}

	if data, err := script.MarshalValue(output); err == nil {
		rec.Output = data
	} else {
		// Outputs holding closures cannot be persisted; consumers of a
		// skipped run will see a nil value while the digest still matches.
		e.log.Debugf("task %s output not persistable: %v", task.Name, err)
	}

	if err := e.store.Put(ctx, task.Name, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// VerifyArtifacts expands the task's declared artifact set and checks every
// literal entry exists. Returns the expanded list.
func (e *Engine) VerifyArtifacts(task *core.Task, calcFiles []string) ([]string, error) {
	patterns := append(append([]string{}, task.Artifacts.Files...), calcFiles...)
	expanded, err := e.ExpandFiles(patterns)
	if err != nil {
		return nil, err
	}
	for _, art := range expanded {
		if _, err := os.Stat(e.abs(art)); err != nil {
			return nil, fmt.Errorf("declared artifact %q does not exist after successful run", art)
		}
	}
	return expanded, nil
}

// ExpandFiles resolves doublestar patterns against the workspace root.
// Literal entries pass through even when the file is absent, so the
// missing-input and missing-artifact checks still see them.
func (e *Engine) ExpandFiles(patterns []string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, p := range patterns {
		if !strings.ContainsAny(p, "*?[{") {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
			continue
		}
		matches, err := doublestar.Glob(os.DirFS(e.root), p)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", p, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// FileHashes expands file dep patterns and hashes each entry; used both for
// fingerprinting and for the action context's files table.
func (e *Engine) FileHashes(patterns []string) (map[string]string, error) {
	files, err := e.ExpandFiles(patterns)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(files))
	for _, f := range files {
		h, err := HashFile(e.abs(f))
		if err != nil {
			return nil, err
		}
		out[f] = h
	}
	return out, nil
}

// ActionsDigest digests the task's action bodies: closures by bytecode and
// captured values, arg-list actions by their arguments and routing.
func (e *Engine) ActionsDigest(task *core.Task) string {
	tbl := script.NewTable()
	for _, group := range [][]*core.Action{task.Actions, task.CleanActions} {
		g := script.NewTable()
		for _, a := range group {
			at := script.NewTable()
			if a.Closure != nil {
				at.Set("body", script.DigestClosures([]*script.Closure{a.Closure}))
			}
			args := script.NewTable()
			for _, arg := range a.Args {
				args.Append(arg)
			}
			at.Set("args", args)
			at.Set("tool", a.Tool)
			at.Set("env", a.Env)
			g.Append(at)
		}
		tbl.Append(g)
	}
	return script.Digest(tbl)
}

// ProjectDigest hashes the project definition scripts, so editing a
// project.lua invalidates the tasks it defines.
func (e *Engine) ProjectDigest(sources []string) string {
	tbl := script.NewTable()
	for _, src := range sources {
		h, err := HashFile(e.abs(src))
		if err != nil {
			h = AbsentHash
		}
		tbl.Set(src, h)
	}
	return script.Digest(tbl)
}

func (e *Engine) varHash(name string) string {
	v, ok := e.vars[name]
	if !ok {
		return AbsentHash
	}
	return HashString(v)
}

func (e *Engine) abs(rel string) string {
	return filepath.Join(e.root, filepath.FromSlash(rel))
}
