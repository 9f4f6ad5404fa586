package script

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// ModuleMap describes engine-provided modules: module name → function name →
// implementation. A "__call" entry makes the module table itself callable.
type ModuleMap map[string]map[string]lua.LGFunction

// State wraps a single Lua state. States are not safe for concurrent use;
// the engine creates one per worker plus one for the definition phase.
// Values cross states only through their portable representations.
type State struct {
	L *lua.LState

	builtinNames  map[*lua.LFunction]string
	builtinByName map[string]*lua.LFunction
}

// NewState creates a state with the standard Lua libraries opened and the
// given engine modules registered as both globals and require-able modules.
func NewState(modules ModuleMap) *State {
	L := lua.NewState()
	s := &State{
		L:             L,
		builtinNames:  map[*lua.LFunction]string{},
		builtinByName: map[string]*lua.LFunction{},
	}
	for name, fns := range modules {
		s.registerModule(name, fns)
	}
	return s
}

func (s *State) registerModule(name string, fns map[string]lua.LGFunction) {
	L := s.L
	tbl := L.NewTable()
	for fname, impl := range fns {
		lf := L.NewFunction(impl)
		full := name + "." + fname
		s.builtinNames[lf] = full
		s.builtinByName[full] = lf
		if fname == "__call" {
			meta := L.NewTable()
			meta.RawSetString("__call", lf)
			L.SetMetatable(tbl, meta)
			continue
		}
		tbl.RawSetString(fname, lf)
	}
	L.SetGlobal(name, tbl)
	L.PreloadModule(name, func(L *lua.LState) int {
		L.Push(tbl)
		return 1
	})
}

// RegisterGlobalFunc registers a native function under a global name and
// records it as a transportable builtin reference.
func (s *State) RegisterGlobalFunc(name string, impl lua.LGFunction) {
	lf := s.L.NewFunction(impl)
	s.builtinNames[lf] = name
	s.builtinByName[name] = lf
	s.L.SetGlobal(name, lf)
}

// Builtin returns this state's instance of a registered builtin function.
func (s *State) Builtin(name string) (*lua.LFunction, bool) {
	fn, ok := s.builtinByName[name]
	return fn, ok
}

// SetContext attaches ctx to the state; long-running library calls observe
// cancellation through it.
func (s *State) SetContext(ctx context.Context) {
	s.L.SetContext(ctx)
}

func (s *State) Close() {
	s.L.Close()
}

// DoFile runs a script file, translating any raised error.
func (s *State) DoFile(path string) error {
	return wrapError(s.L.DoFile(path))
}

// Call invokes fn with args and returns its single result.
func (s *State) Call(fn *lua.LFunction, args ...lua.LValue) (lua.LValue, error) {
	L := s.L
	L.Push(fn)
	for _, a := range args {
		L.Push(a)
	}
	if err := L.PCall(len(args), 1, nil); err != nil {
		return lua.LNil, wrapError(err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	return ret, nil
}

// CallClosure materializes c in this state and invokes it with portable
// args, returning the portable result.
func (s *State) CallClosure(c *Closure, args ...Value) (Value, error) {
	fn := s.Materialize(c)
	largs := make([]lua.LValue, len(args))
	for i, a := range args {
		largs[i] = s.ToLua(a)
	}
	ret, err := s.Call(fn, largs...)
	if err != nil {
		return nil, err
	}
	v, err := s.FromLua(ret)
	if err != nil {
		return nil, fmt.Errorf("action return value: %w", err)
	}
	return v, nil
}
