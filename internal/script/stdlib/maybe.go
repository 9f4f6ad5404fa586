package stdlib

import (
	lua "github.com/yuin/gopher-lua"
)

// maybeModule provides nil-tolerant helpers for optional values.
func maybeModule() map[string]lua.LGFunction {
	return map[string]lua.LGFunction{
		"get": maybeGet,
		"map": maybeMap,
	}
}

// maybe.get(v, default) returns v unless it is nil.
func maybeGet(L *lua.LState) int {
	v := L.CheckAny(1)
	if v == lua.LNil {
		L.Push(L.CheckAny(2))
	} else {
		L.Push(v)
	}
	return 1
}

// maybe.map(v, fn) applies fn to v when v is non-nil, else returns nil.
func maybeMap(L *lua.LState) int {
	v := L.CheckAny(1)
	fn := L.CheckFunction(2)
	if v == lua.LNil {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(fn)
	L.Push(v)
	L.Call(1, 1)
	return 1
}
