package stdlib

import (
	"encoding/json"

	lua "github.com/yuin/gopher-lua"
)

func jsonModule() map[string]lua.LGFunction {
	return map[string]lua.LGFunction{
		"encode": jsonEncode,
		"decode": jsonDecode,
	}
}

func jsonEncode(L *lua.LState) int {
	v, err := luaToGo(L.CheckAny(1), 0)
	if err != nil {
		L.RaiseError("json.encode: %v", err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		L.RaiseError("json.encode: %v", err)
	}
	L.Push(lua.LString(out))
	return 1
}

func jsonDecode(L *lua.LState) int {
	var v any
	if err := json.Unmarshal([]byte(L.CheckString(1)), &v); err != nil {
		L.RaiseError("json.decode: %v", err)
	}
	L.Push(goToLua(L, v))
	return 1
}
