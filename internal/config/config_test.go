package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdarais/cobble/internal/core"
)

func writeWorkspace(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, MarkerFile), []byte(content), 0o644))
	return dir
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()
	root := writeWorkspace(t, "")

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"."}, cfg.RootProjects)
	assert.Equal(t, 5, cfg.NumThreads)
	assert.Equal(t, core.OutputOnFail, cfg.Stdout)
	assert.Equal(t, core.OutputAlways, cfg.Stderr)
	assert.Equal(t, core.OutputNever, cfg.Output)
	assert.Empty(t, cfg.Vars)
}

func TestLoadFull(t *testing.T) {
	t.Parallel()
	root := writeWorkspace(t, `
root_projects = ["app", "libs"]
num_threads = 2
stdout = "always"
stderr = "never"

[vars]
python.version = "3.10"
release = true
`)

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"app", "libs"}, cfg.RootProjects)
	assert.Equal(t, 2, cfg.NumThreads)
	assert.Equal(t, core.OutputAlways, cfg.Stdout)
	assert.Equal(t, core.OutputNever, cfg.Stderr)
	assert.Equal(t, "3.10", cfg.Vars["python.version"])
	assert.Equal(t, "true", cfg.Vars["release"])
}

func TestLoadInvalidPolicy(t *testing.T) {
	t.Parallel()
	root := writeWorkspace(t, `stdout = "sometimes"`)
	_, err := Load(root)
	require.Error(t, err)
}

func TestApplyVarOverrides(t *testing.T) {
	t.Parallel()
	root := writeWorkspace(t, `
[vars]
key = "from-file"
`)
	cfg, err := Load(root)
	require.NoError(t, err)

	require.NoError(t, cfg.ApplyVarOverrides([]string{"key=from-flag", "extra=1"}))
	assert.Equal(t, "from-flag", cfg.Vars["key"])
	assert.Equal(t, "1", cfg.Vars["extra"])

	require.Error(t, cfg.ApplyVarOverrides([]string{"novalue"}))
}

func TestFindWorkspaceRoot(t *testing.T) {
	t.Parallel()
	root := writeWorkspace(t, "")
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	found, err := FindWorkspaceRoot(nested)
	require.NoError(t, err)
	wantRoot, _ := filepath.EvalSymlinks(root)
	gotRoot, _ := filepath.EvalSymlinks(found)
	assert.Equal(t, wantRoot, gotRoot)

	outside := t.TempDir()
	_, err = FindWorkspaceRoot(outside)
	assert.ErrorIs(t, err, ErrNoWorkspace)
}
