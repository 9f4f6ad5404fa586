package script

import (
	"fmt"
	"strconv"

	lua "github.com/yuin/gopher-lua"
)

const maxConvertDepth = 100

// FromLua deep-converts a Lua value into its portable form. Functions become
// Closures (or Builtin references for engine-provided natives); userdata,
// channels, and coroutines are rejected.
func (s *State) FromLua(lv lua.LValue) (Value, error) {
	return s.fromLua(lv, map[lua.LValue]bool{}, 0)
}

func (s *State) fromLua(lv lua.LValue, seen map[lua.LValue]bool, depth int) (Value, error) {
	if depth > maxConvertDepth {
		return nil, fmt.Errorf("value nesting exceeds %d levels", maxConvertDepth)
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
	case *lua.LFunction:
		if v.IsG {
			if name, ok := s.builtinNames[v]; ok {
				return Builtin{Name: name}, nil
			}
			return nil, fmt.Errorf("native function is not transportable")
		}
		return s.extract(v, seen)
	case *lua.LTable:
		if seen[v] {
			return nil, fmt.Errorf("cyclic table is not transportable")
		}
		seen[v] = true
		defer delete(seen, v)

		t := NewTable()
		n := v.Len()
		for i := 1; i <= n; i++ {
			el, err := s.fromLua(v.RawGetInt(i), seen, depth+1)
			if err != nil {
				return nil, err
			}
			t.Arr = append(t.Arr, el)
		}
		var convErr error
		v.ForEach(func(k, val lua.LValue) {
			if convErr != nil {
				return
			}
			var key string
			switch kv := k.(type) {
			case lua.LString:
				key = string(kv)
			case lua.LNumber:
				i := int(kv)
				if lua.LNumber(i) == kv && i >= 1 && i <= n {
					return // array part, already collected
				}
				key = strconv.FormatFloat(float64(kv), 'g', -1, 64)
			default:
				convErr = fmt.Errorf("unsupported table key type %s", k.Type())
				return
			}
			converted, err := s.fromLua(val, seen, depth+1)
			if err != nil {
				convErr = err
				return
			}
			t.Map[key] = converted
		})
		if convErr != nil {
			return nil, convErr
		}
		return t, nil
	default:
		return nil, fmt.Errorf("value of type %s is not transportable", lv.Type())
	}
}

// ToLua materializes a portable value in this state.
func (s *State) ToLua(v Value) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case float64:
		return lua.LNumber(val)
	case int:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case Builtin:
		if fn, ok := s.builtinByName[val.Name]; ok {
			return fn
		}
		return lua.LNil
	case *Closure:
		return s.Materialize(val)
	case *Table:
		tbl := s.L.CreateTable(len(val.Arr), len(val.Map))
		for _, el := range val.Arr {
			tbl.Append(s.ToLua(el))
		}
		for k, el := range val.Map {
			tbl.RawSetString(k, s.ToLua(el))
		}
		return tbl
	default:
		return lua.LNil
	}
}
