package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
)

func TestFromLuaRoundTrip(t *testing.T) {
	t.Parallel()
	s := NewState(nil)
	defer s.Close()

	err := s.L.DoString(`value = { "a", "b", nested = { x = 1, flag = true }, name = "top" }`)
	require.NoError(t, err)

	v, err := s.FromLua(s.L.GetGlobal("value"))
	require.NoError(t, err)

	tbl, ok := v.(*Table)
	require.True(t, ok)
	assert.Equal(t, []Value{"a", "b"}, tbl.Arr)
	assert.Equal(t, "top", tbl.Get("name"))
	nested, ok := tbl.GetTable("nested")
	require.True(t, ok)
	assert.Equal(t, float64(1), nested.Get("x"))
	assert.Equal(t, true, nested.Get("flag"))

	// Round-trip back into a fresh state.
	s2 := NewState(nil)
	defer s2.Close()
	lv := s2.ToLua(v)
	back, err := s2.FromLua(lv)
	require.NoError(t, err)
	assert.Equal(t, Digest(v), Digest(back))
}

func TestFromLuaRejectsCycles(t *testing.T) {
	t.Parallel()
	s := NewState(nil)
	defer s.Close()

	require.NoError(t, s.L.DoString(`value = {}; value.self = value`))
	_, err := s.FromLua(s.L.GetGlobal("value"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cyclic")
}

func TestFromLuaRejectsUserdata(t *testing.T) {
	t.Parallel()
	s := NewState(nil)
	defer s.Close()

	ud := s.L.NewUserData()
	_, err := s.FromLua(ud)
	require.Error(t, err)
}

func TestClosureTransport(t *testing.T) {
	t.Parallel()
	s := NewState(nil)
	defer s.Close()

	err := s.L.DoString(`
		local base = 10
		local prefix = "n="
		adder = function(x) return prefix .. (base + x) end
	`)
	require.NoError(t, err)

	fn, ok := s.L.GetGlobal("adder").(*lua.LFunction)
	require.True(t, ok)

	c, err := s.Extract(fn)
	require.NoError(t, err)
	require.Len(t, c.Upvalues, 2)

	// Materialize and call in a different state.
	s2 := NewState(nil)
	defer s2.Close()
	ret, err := s2.Call(s2.Materialize(c), lua.LNumber(5))
	require.NoError(t, err)
	assert.Equal(t, "n=15", ret.String())
}

func TestClosureTransportNestedFunctions(t *testing.T) {
	t.Parallel()
	s := NewState(nil)
	defer s.Close()

	err := s.L.DoString(`
		local greet = function(name) return "hi " .. name end
		outer = function() return greet("cobble") end
	`)
	require.NoError(t, err)

	fn := s.L.GetGlobal("outer").(*lua.LFunction)
	c, err := s.Extract(fn)
	require.NoError(t, err)

	s2 := NewState(nil)
	defer s2.Close()
	ret, err := s2.Call(s2.Materialize(c))
	require.NoError(t, err)
	assert.Equal(t, "hi cobble", ret.String())
}

func TestClosureRejectsForeignNative(t *testing.T) {
	t.Parallel()
	s := NewState(nil)
	defer s.Close()

	// A native function that is not a registered builtin cannot cross
	// state boundaries.
	err := s.L.DoString(`
		local native = print
		uses_native = function() native("x") end
	`)
	require.NoError(t, err)

	fn := s.L.GetGlobal("uses_native").(*lua.LFunction)
	_, err = s.Extract(fn)
	require.Error(t, err)
}

func TestBuiltinTransport(t *testing.T) {
	t.Parallel()
	mods := ModuleMap{
		"strings": {
			"upper": func(L *lua.LState) int {
				L.Push(lua.LString("UP"))
				return 1
			},
		},
	}
	s := NewState(mods)
	defer s.Close()

	err := s.L.DoString(`
		local up = strings.upper
		shout = function() return up() end
	`)
	require.NoError(t, err)

	fn := s.L.GetGlobal("shout").(*lua.LFunction)
	c, err := s.Extract(fn)
	require.NoError(t, err)

	s2 := NewState(mods)
	defer s2.Close()
	ret, err := s2.Call(s2.Materialize(c))
	require.NoError(t, err)
	assert.Equal(t, "UP", ret.String())
}

func TestDigestDeterminism(t *testing.T) {
	t.Parallel()
	a := NewTable()
	a.Set("x", float64(1))
	a.Set("y", "two")
	a.Append("first")

	b := NewTable()
	b.Append("first")
	b.Set("y", "two")
	b.Set("x", float64(1))

	assert.Equal(t, Digest(a), Digest(b))

	b.Set("x", float64(2))
	assert.NotEqual(t, Digest(a), Digest(b))
}

func TestDigestClosureBodyChange(t *testing.T) {
	t.Parallel()
	s := NewState(nil)
	defer s.Close()

	require.NoError(t, s.L.DoString(`
		f1 = function() return 1 end
		f2 = function() return 2 end
		f3 = function() return 1 end
	`))
	c1, err := s.Extract(s.L.GetGlobal("f1").(*lua.LFunction))
	require.NoError(t, err)
	c2, err := s.Extract(s.L.GetGlobal("f2").(*lua.LFunction))
	require.NoError(t, err)
	c3, err := s.Extract(s.L.GetGlobal("f3").(*lua.LFunction))
	require.NoError(t, err)

	d1 := DigestClosures([]*Closure{c1})
	d2 := DigestClosures([]*Closure{c2})
	d3 := DigestClosures([]*Closure{c3})
	assert.NotEqual(t, d1, d2)
	assert.Equal(t, d1, d3)
}

func TestMarshalValueRoundTrip(t *testing.T) {
	t.Parallel()
	v := NewTable()
	v.Append("a")
	v.Append(float64(2))
	v.Set("ok", true)
	sub := NewTable()
	sub.Set("deep", "yes")
	v.Set("nested", sub)

	data, err := MarshalValue(v)
	require.NoError(t, err)

	back, err := UnmarshalValue(data)
	require.NoError(t, err)
	assert.Equal(t, Digest(v), Digest(back))
}

func TestMarshalValueRejectsClosures(t *testing.T) {
	t.Parallel()
	s := NewState(nil)
	defer s.Close()
	require.NoError(t, s.L.DoString(`f = function() end`))
	c, err := s.Extract(s.L.GetGlobal("f").(*lua.LFunction))
	require.NoError(t, err)

	v := NewTable()
	v.Set("fn", c)
	_, err = MarshalValue(v)
	require.Error(t, err)
}

func TestScriptErrorTranslation(t *testing.T) {
	t.Parallel()
	s := NewState(nil)
	defer s.Close()

	require.NoError(t, s.L.DoString(`boom = function() error("kaboom") end`))
	fn := s.L.GetGlobal("boom").(*lua.LFunction)
	_, err := s.Call(fn)
	require.Error(t, err)

	var sErr *Error
	require.ErrorAs(t, err, &sErr)
	assert.Contains(t, sErr.Message, "kaboom")
}
