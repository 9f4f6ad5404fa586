package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		base    string
		ref     string
		want    string
		wantErr bool
	}{
		{name: "relative", base: "/pkg", ref: "build", want: "/pkg/build"},
		{name: "absolute", base: "/pkg", ref: "/other/task", want: "/other/task"},
		{name: "parent", base: "/pkg/sub", ref: "../build", want: "/pkg/build"},
		{name: "root base", base: "/", ref: "t", want: "/t"},
		{name: "nested ref", base: "/a", ref: "b/c", want: "/a/b/c"},
		{name: "clean absolute", base: "/a", ref: "/a/./b", want: "/a/b"},
		{name: "empty", base: "/a", ref: "", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ResolveName(tt.base, tt.ref)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolvePath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		dir     string
		ref     string
		want    string
		wantErr bool
	}{
		{name: "project file", dir: "pkg", ref: "src/main.py", want: "pkg/src/main.py"},
		{name: "root project", dir: "", ref: "in.txt", want: "in.txt"},
		{name: "parent segment", dir: "pkg/sub", ref: "../shared.txt", want: "pkg/shared.txt"},
		{name: "escape", dir: "", ref: "../outside.txt", wantErr: true},
		{name: "empty", dir: "pkg", ref: "", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ResolvePath(tt.dir, tt.ref)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJoinAndParent(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "/a/b", JoinName("/a", "b"))
	assert.Equal(t, "/b", JoinName("/", "b"))
	assert.Equal(t, "/a", ParentName("/a/b"))
	assert.Equal(t, "/", ParentName("/a"))
	assert.Equal(t, "/", ParentName("/"))
}

func TestParseOutputPolicy(t *testing.T) {
	t.Parallel()
	p, err := ParseOutputPolicy("", OutputOnFail)
	require.NoError(t, err)
	assert.Equal(t, OutputOnFail, p)

	p, err = ParseOutputPolicy("always", OutputNever)
	require.NoError(t, err)
	assert.Equal(t, OutputAlways, p)

	_, err = ParseOutputPolicy("sometimes", OutputNever)
	require.Error(t, err)
}
