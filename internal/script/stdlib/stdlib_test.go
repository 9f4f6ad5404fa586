package stdlib_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	"github.com/jdarais/cobble/internal/script"
	"github.com/jdarais/cobble/internal/script/stdlib"
)

func newState(t *testing.T) *script.State {
	t.Helper()
	s := script.NewState(stdlib.Modules())
	t.Cleanup(s.Close)
	return s
}

func evalString(t *testing.T, s *script.State, code string) lua.LValue {
	t.Helper()
	require.NoError(t, s.L.DoString(code))
	v := s.L.GetGlobal("result")
	return v
}

func TestJSONModule(t *testing.T) {
	t.Parallel()
	s := newState(t)

	v := evalString(t, s, `result = json.encode({ name = "x", n = 2 })`)
	decoded := evalString(t, s, `result = json.decode('{"a": [1, 2], "b": "s"}')`)
	assert.Contains(t, v.String(), `"name":"x"`)

	tbl, ok := decoded.(*lua.LTable)
	require.True(t, ok)
	a := tbl.RawGetString("a").(*lua.LTable)
	assert.Equal(t, 2, a.Len())
	assert.Equal(t, "s", tbl.RawGetString("b").String())
}

func TestTOMLModule(t *testing.T) {
	t.Parallel()
	s := newState(t)

	decoded := evalString(t, s, `result = toml.decode('[server]\nport = 8080\nname = "api"')`)
	tbl := decoded.(*lua.LTable)
	server := tbl.RawGetString("server").(*lua.LTable)
	assert.Equal(t, "api", server.RawGetString("name").String())
	assert.Equal(t, lua.LNumber(8080), server.RawGetString("port"))
}

func TestVersionModule(t *testing.T) {
	t.Parallel()
	s := newState(t)

	v := evalString(t, s, `result = version.parse("1.22.3").minor`)
	assert.Equal(t, lua.LNumber(22), v)

	cmp := evalString(t, s, `result = version.compare("2.0.0", "1.9.9")`)
	assert.Equal(t, lua.LNumber(1), cmp)

	sat := evalString(t, s, `result = version.satisfies("3.10.2", ">= 3.10")`)
	assert.Equal(t, lua.LTrue, sat)
}

func TestIterModule(t *testing.T) {
	t.Parallel()
	s := newState(t)

	mapped := evalString(t, s, `result = iter.map({1, 2, 3}, function(x) return x * 2 end)`)
	tbl := mapped.(*lua.LTable)
	assert.Equal(t, lua.LNumber(6), tbl.RawGetInt(3))

	reduced := evalString(t, s, `result = iter.reduce({1, 2, 3, 4}, 0, function(acc, x) return acc + x end)`)
	assert.Equal(t, lua.LNumber(10), reduced)

	filtered := evalString(t, s, `result = #iter.filter({1, 2, 3, 4}, function(x) return x % 2 == 0 end)`)
	assert.Equal(t, lua.LNumber(2), filtered)
}

func TestTblextModule(t *testing.T) {
	t.Parallel()
	s := newState(t)

	extended := evalString(t, s, `result = #tblext.extend({"a"}, {"b", "c"})`)
	assert.Equal(t, lua.LNumber(3), extended)

	merged := evalString(t, s, `result = tblext.merge({x = 1}, {x = 2, y = 3}).x`)
	assert.Equal(t, lua.LNumber(2), merged)

	keys := evalString(t, s, `result = table.concat(tblext.keys({b = 1, a = 2}), ",")`)
	assert.Equal(t, "a,b", keys.String())
}

func TestMaybeModule(t *testing.T) {
	t.Parallel()
	s := newState(t)

	v := evalString(t, s, `result = maybe.get(nil, "fallback")`)
	assert.Equal(t, "fallback", v.String())

	v = evalString(t, s, `result = maybe.map(3, function(x) return x + 1 end)`)
	assert.Equal(t, lua.LNumber(4), v)

	v = evalString(t, s, `result = maybe.map(nil, function(x) return x + 1 end)`)
	assert.Equal(t, lua.LNil, v)
}

func TestCmdModule(t *testing.T) {
	t.Parallel()
	s := newState(t)
	s.SetContext(context.Background())

	res := evalString(t, s, `result = cmd({ "echo", "hello" }).stdout`)
	assert.Equal(t, "hello\n", res.String())

	// Single string form splits shell-style.
	res = evalString(t, s, `result = cmd({ "echo one two" }).stdout`)
	assert.Equal(t, "one two\n", res.String())

	// Nonzero exit raises unless tolerated.
	require.Error(t, s.L.DoString(`cmd({ "false" })`))
	res = evalString(t, s, `result = cmd({ "false", ignore_status = true }).status`)
	assert.Equal(t, lua.LNumber(1), res)
}

func TestCmdModuleCwd(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "present.txt"), []byte("x"), 0o644))

	s := newState(t)
	s.SetContext(context.Background())
	require.NoError(t, s.L.DoString(`result = cmd({ "ls", cwd = [[`+dir+`]] }).stdout`))
	assert.Contains(t, s.L.GetGlobal("result").String(), "present.txt")
}

func TestScopeModule(t *testing.T) {
	t.Parallel()
	s := newState(t)

	require.NoError(t, s.L.DoString(`
		order = {}
		scope.on_exit(function() table.insert(order, "first") end)
		scope.on_exit(function() table.insert(order, "second") end)
		scope.run_exits()
		result = table.concat(order, ",")
	`))
	// Handlers run in reverse registration order.
	assert.Equal(t, "second,first", s.L.GetGlobal("result").String())
}

func TestPathModule(t *testing.T) {
	t.Parallel()
	s := newState(t)

	v := evalString(t, s, `result = path.join("a", "b", "c.txt")`)
	assert.Equal(t, "a/b/c.txt", v.String())
	v = evalString(t, s, `result = path.ext("x/y.tar.gz")`)
	assert.Equal(t, ".gz", v.String())
	v = evalString(t, s, `result = path.dir("a/b/c.txt")`)
	assert.Equal(t, "a/b", v.String())
}

func TestPathGlob(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "a.py"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "b.py"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "c.txt"), nil, 0o644))

	s := newState(t)
	s.SetContext(context.WithValue(context.Background(), stdlib.CtxDir, dir))
	v := evalString(t, s, `result = #path.glob("src/*.py")`)
	assert.Equal(t, lua.LNumber(2), v)
}
