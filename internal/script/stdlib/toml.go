package stdlib

import (
	"bytes"

	"github.com/BurntSushi/toml"
	lua "github.com/yuin/gopher-lua"
)

func tomlModule() map[string]lua.LGFunction {
	return map[string]lua.LGFunction{
		"encode": tomlEncode,
		"decode": tomlDecode,
	}
}

func tomlEncode(L *lua.LState) int {
	v, err := luaToGo(L.CheckTable(1), 0)
	if err != nil {
		L.RaiseError("toml.encode: %v", err)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(v); err != nil {
		L.RaiseError("toml.encode: %v", err)
	}
	L.Push(lua.LString(buf.String()))
	return 1
}

func tomlDecode(L *lua.LState) int {
	var v map[string]any
	if err := toml.Unmarshal([]byte(L.CheckString(1)), &v); err != nil {
		L.RaiseError("toml.decode: %v", err)
	}
	L.Push(goToLua(L, anyMap(v)))
	return 1
}

// anyMap normalizes toml's decoded types (map[string]any values may contain
// nested map[string]any / []map[string]any) into plain any trees.
func anyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}

func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return anyMap(val)
	case []map[string]any:
		arr := make([]any, len(val))
		for i, el := range val {
			arr[i] = anyMap(el)
		}
		return arr
	case []any:
		arr := make([]any, len(val))
		for i, el := range val {
			arr[i] = normalize(el)
		}
		return arr
	case int64:
		return float64(val)
	default:
		return v
	}
}
