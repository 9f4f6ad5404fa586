package fingerprint

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdarais/cobble/internal/core"
	"github.com/jdarais/cobble/internal/logger"
	"github.com/jdarais/cobble/internal/script"
)

type engineFixture struct {
	root   string
	engine *Engine
	store  *Store
}

func setupEngine(t *testing.T, vars map[string]string) *engineFixture {
	t.Helper()
	root := t.TempDir()
	store, err := Open(filepath.Join(root, "fingerprint.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	if vars == nil {
		vars = map[string]string{}
	}
	return &engineFixture{
		root:   root,
		engine: NewEngine(store, root, vars, logger.Default),
		store:  store,
	}
}

func (f *engineFixture) write(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(f.root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func testTask(name string) *core.Task {
	return &core.Task{Name: name, Project: "/", ProjectDir: ""}
}

func TestUpToDateLadder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("NoRecord", func(t *testing.T) {
		t.Parallel()
		f := setupEngine(t, nil)
		utd, _ := f.engine.UpToDate(ctx, testTask("/t"), &ResolvedDeps{Tasks: map[string]TaskDep{}}, nil)
		assert.False(t, utd)
	})

	t.Run("AlwaysRun", func(t *testing.T) {
		t.Parallel()
		f := setupEngine(t, nil)
		task := testTask("/t")
		task.AlwaysRun = true
		deps := &ResolvedDeps{Tasks: map[string]TaskDep{}}
		_, err := f.engine.Commit(ctx, task, deps, nil, nil, "out")
		require.NoError(t, err)

		utd, _ := f.engine.UpToDate(ctx, task, deps, nil)
		assert.False(t, utd)
	})

	t.Run("UnchangedIsUpToDate", func(t *testing.T) {
		t.Parallel()
		f := setupEngine(t, map[string]string{"python.version": "3.10"})
		f.write(t, "in.txt", "A")
		task := testTask("/t")
		deps := &ResolvedDeps{
			Files: []string{"in.txt"},
			Vars:  []string{"python.version"},
			Tasks: map[string]TaskDep{},
		}
		_, err := f.engine.Commit(ctx, task, deps, nil, nil, "out")
		require.NoError(t, err)

		utd, rec := f.engine.UpToDate(ctx, task, deps, nil)
		assert.True(t, utd)
		require.NotNil(t, rec)
		assert.Equal(t, script.Digest("out"), rec.OutputDigest)
	})

	t.Run("FileContentChange", func(t *testing.T) {
		t.Parallel()
		f := setupEngine(t, nil)
		f.write(t, "in.txt", "A")
		task := testTask("/t")
		deps := &ResolvedDeps{Files: []string{"in.txt"}, Tasks: map[string]TaskDep{}}
		_, err := f.engine.Commit(ctx, task, deps, nil, nil, nil)
		require.NoError(t, err)

		f.write(t, "in.txt", "B")
		utd, _ := f.engine.UpToDate(ctx, task, deps, nil)
		assert.False(t, utd)

		// Restoring the content restores up-to-date.
		f.write(t, "in.txt", "A")
		utd, _ = f.engine.UpToDate(ctx, task, deps, nil)
		assert.True(t, utd)
	})

	t.Run("DepOutputChange", func(t *testing.T) {
		t.Parallel()
		f := setupEngine(t, nil)
		task := testTask("/t")
		deps := &ResolvedDeps{Tasks: map[string]TaskDep{"/dep": {Digest: "d1"}}}
		_, err := f.engine.Commit(ctx, task, deps, nil, nil, nil)
		require.NoError(t, err)

		utd, _ := f.engine.UpToDate(ctx, task, deps, nil)
		assert.True(t, utd)

		changed := &ResolvedDeps{Tasks: map[string]TaskDep{"/dep": {Digest: "d2"}}}
		utd, _ = f.engine.UpToDate(ctx, task, changed, nil)
		assert.False(t, utd)
	})

	t.Run("VarChange", func(t *testing.T) {
		t.Parallel()
		f := setupEngine(t, map[string]string{"v": "3.10"})
		task := testTask("/t")
		deps := &ResolvedDeps{Vars: []string{"v"}, Tasks: map[string]TaskDep{}}
		_, err := f.engine.Commit(ctx, task, deps, nil, nil, nil)
		require.NoError(t, err)

		utd, _ := f.engine.UpToDate(ctx, task, deps, nil)
		assert.True(t, utd)

		f.engine.vars["v"] = "3.11"
		utd, _ = f.engine.UpToDate(ctx, task, deps, nil)
		assert.False(t, utd)

		f.engine.vars["v"] = "3.10"
		utd, _ = f.engine.UpToDate(ctx, task, deps, nil)
		assert.True(t, utd)
	})

	t.Run("ArtifactTamper", func(t *testing.T) {
		t.Parallel()
		f := setupEngine(t, nil)
		f.write(t, "out.txt", "built")
		task := testTask("/t")
		task.Artifacts.Files = []string{"out.txt"}
		deps := &ResolvedDeps{Tasks: map[string]TaskDep{}}
		_, err := f.engine.Commit(ctx, task, deps, nil, []string{"out.txt"}, nil)
		require.NoError(t, err)

		utd, _ := f.engine.UpToDate(ctx, task, deps, nil)
		assert.True(t, utd)

		f.write(t, "out.txt", "tampered")
		utd, _ = f.engine.UpToDate(ctx, task, deps, nil)
		assert.False(t, utd)

		require.NoError(t, os.Remove(filepath.Join(f.root, "out.txt")))
		utd, _ = f.engine.UpToDate(ctx, task, deps, nil)
		assert.False(t, utd)
	})

	t.Run("NewFileDepAppears", func(t *testing.T) {
		t.Parallel()
		f := setupEngine(t, nil)
		f.write(t, "a.txt", "a")
		task := testTask("/t")
		deps := &ResolvedDeps{Files: []string{"a.txt"}, Tasks: map[string]TaskDep{}}
		_, err := f.engine.Commit(ctx, task, deps, nil, nil, nil)
		require.NoError(t, err)

		grown := &ResolvedDeps{Files: []string{"a.txt", "b.txt"}, Tasks: map[string]TaskDep{}}
		utd, _ := f.engine.UpToDate(ctx, task, grown, nil)
		assert.False(t, utd)
	})
}

func TestCommitMissingArtifact(t *testing.T) {
	t.Parallel()
	f := setupEngine(t, nil)
	task := testTask("/t")
	task.Artifacts.Files = []string{"never-built.txt"}

	_, err := f.engine.VerifyArtifacts(task, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestExpandFilesGlobs(t *testing.T) {
	t.Parallel()
	f := setupEngine(t, nil)
	f.write(t, "src/a.py", "")
	f.write(t, "src/b.py", "")
	f.write(t, "src/notes.md", "")

	files, err := f.engine.ExpandFiles([]string{"src/**/*.py", "literal.txt"})
	require.NoError(t, err)
	assert.Equal(t, []string{"literal.txt", "src/a.py", "src/b.py"}, files)
}

func TestActionsDigestChangesWithArgs(t *testing.T) {
	t.Parallel()
	f := setupEngine(t, nil)

	t1 := testTask("/t")
	t1.Actions = []*core.Action{{Args: []string{"echo", "hi"}}}
	t2 := testTask("/t")
	t2.Actions = []*core.Action{{Args: []string{"echo", "bye"}}}
	t3 := testTask("/t")
	t3.Actions = []*core.Action{{Args: []string{"echo", "hi"}}}

	assert.NotEqual(t, f.engine.ActionsDigest(t1), f.engine.ActionsDigest(t2))
	assert.Equal(t, f.engine.ActionsDigest(t1), f.engine.ActionsDigest(t3))
}

func TestProjectDigest(t *testing.T) {
	t.Parallel()
	f := setupEngine(t, nil)
	f.write(t, "project.lua", `task { name = "t" }`)

	d1 := f.engine.ProjectDigest([]string{"project.lua"})
	f.write(t, "project.lua", `task { name = "t", always_run = true }`)
	d2 := f.engine.ProjectDigest([]string{"project.lua"})
	assert.NotEqual(t, d1, d2)
}
