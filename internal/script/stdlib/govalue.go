package stdlib

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// luaToGo converts a Lua value into plain Go data (nil, bool, float64,
// string, []any, map[string]any) for serialization modules.
func luaToGo(lv lua.LValue, depth int) (any, error) {
	if depth > 64 {
		return nil, fmt.Errorf("value nesting too deep")
	}
	switch v := lv.(type) {
	case *lua.LNilType, nil:
		return nil, nil
	case lua.LBool:
		return bool(v), nil
	case lua.LNumber:
		return float64(v), nil
	case lua.LString:
		return string(v), nil
	case *lua.LTable:
		n := v.Len()
		if n > 0 {
			arr := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				el, err := luaToGo(v.RawGetInt(i), depth+1)
				if err != nil {
					return nil, err
				}
				arr = append(arr, el)
			}
			return arr, nil
		}
		m := map[string]any{}
		var convErr error
		v.ForEach(func(k, val lua.LValue) {
			if convErr != nil {
				return
			}
			el, err := luaToGo(val, depth+1)
			if err != nil {
				convErr = err
				return
			}
			m[k.String()] = el
		})
		return m, convErr
	default:
		return nil, fmt.Errorf("cannot serialize value of type %s", lv.Type())
	}
}

// goToLua converts decoded Go data back into Lua values.
func goToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case float64:
		return lua.LNumber(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []any:
		tbl := L.CreateTable(len(val), 0)
		for _, el := range val {
			tbl.Append(goToLua(L, el))
		}
		return tbl
	case map[string]any:
		tbl := L.CreateTable(0, len(val))
		for k, el := range val {
			tbl.RawSetString(k, goToLua(L, el))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprint(val))
	}
}
