package script

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// Closure is the portable form of a Lua function: its compiled prototype
// plus a snapshot of its upvalues. The prototype is immutable after
// compilation, so it can be shared across states; upvalues are deep-copied
// portable values re-materialized in the target state.
type Closure struct {
	Proto    *lua.FunctionProto
	Upvalues []Value
}

// Extract converts a Lua function defined in this state into its portable
// form. Native functions other than registered builtins, userdata, channels,
// and coroutines anywhere in the upvalue graph are rejected.
func (s *State) Extract(fn *lua.LFunction) (*Closure, error) {
	if fn.IsG {
		return nil, fmt.Errorf("cannot transport native function between script states")
	}
	return s.extract(fn, map[lua.LValue]bool{})
}

func (s *State) extract(fn *lua.LFunction, seen map[lua.LValue]bool) (*Closure, error) {
	if seen[fn] {
		return nil, fmt.Errorf("cannot transport self-referential function")
	}
	seen[fn] = true
	defer delete(seen, fn)

	c := &Closure{Proto: fn.Proto, Upvalues: make([]Value, len(fn.Upvalues))}
	for i, uv := range fn.Upvalues {
		v, err := s.fromLua(uv.Value(), seen, 0)
		if err != nil {
			return nil, fmt.Errorf("upvalue %d: %w", i, err)
		}
		c.Upvalues[i] = v
	}
	return c, nil
}

// Materialize re-creates the closure as a callable function in this state.
func (s *State) Materialize(c *Closure) *lua.LFunction {
	fn := &lua.LFunction{
		IsG:      false,
		Env:      s.L.Env,
		Proto:    c.Proto,
		Upvalues: make([]*lua.Upvalue, len(c.Upvalues)),
	}
	for i, v := range c.Upvalues {
		uv := &lua.Upvalue{}
		uv.SetValue(s.ToLua(v))
		fn.Upvalues[i] = uv
	}
	return fn
}
