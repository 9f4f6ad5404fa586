package fingerprint

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "fingerprint.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	_, ok, err := s.Get("/t")
	require.NoError(t, err)
	assert.False(t, ok)

	rec := &Record{
		FileHashes:    map[string]string{"in.txt": "abc"},
		TaskOutputs:   map[string]string{"/dep": "def"},
		VarHashes:     map[string]string{},
		OutputDigest:  "odig",
		ActionsDigest: "adig",
	}
	require.NoError(t, s.Put(ctx, "/t", rec))

	got, ok, err := s.Get("/t")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abc", got.FileHashes["in.txt"])
	assert.Equal(t, "def", got.TaskOutputs["/dep"])
	assert.Equal(t, "odig", got.OutputDigest)
}

func TestStoreReplace(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "/t", &Record{OutputDigest: "one"}))
	require.NoError(t, s.Put(ctx, "/t", &Record{OutputDigest: "two"}))

	got, ok, err := s.Get("/t")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "two", got.OutputDigest)
}

func TestStoreDelete(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "/t", &Record{OutputDigest: "x"}))
	require.NoError(t, s.Delete("/t"))

	_, ok, err := s.Get("/t")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting a missing record is not an error.
	require.NoError(t, s.Delete("/t"))
}

func TestStorePersistsAcrossOpens(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "fingerprint.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "/t", &Record{OutputDigest: "persisted"}))
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	got, ok, err := s2.Get("/t")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "persisted", got.OutputDigest)
}
