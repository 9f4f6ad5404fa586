package stdlib

import (
	lua "github.com/yuin/gopher-lua"
)

const scopeStackGlobal = "__scope_on_exit"

// scopeModule implements deferred cleanup for actions. scope.on_exit(fn)
// registers fn; the invoker calls scope.run_exits after the action finishes,
// on both success and error paths, running handlers in reverse order.
func scopeModule() map[string]lua.LGFunction {
	return map[string]lua.LGFunction{
		"on_exit":   scopeOnExit,
		"run_exits": scopeRunExits,
	}
}

func scopeOnExit(L *lua.LState) int {
	fn := L.CheckFunction(1)
	stack, ok := L.GetGlobal(scopeStackGlobal).(*lua.LTable)
	if !ok {
		stack = L.NewTable()
		L.SetGlobal(scopeStackGlobal, stack)
	}
	stack.Append(fn)
	return 0
}

func scopeRunExits(L *lua.LState) int {
	stack, ok := L.GetGlobal(scopeStackGlobal).(*lua.LTable)
	if !ok {
		return 0
	}
	L.SetGlobal(scopeStackGlobal, lua.LNil)
	var firstErr lua.LValue = lua.LNil
	for i := stack.Len(); i >= 1; i-- {
		fn, ok := stack.RawGetInt(i).(*lua.LFunction)
		if !ok {
			continue
		}
		L.Push(fn)
		if err := L.PCall(0, 0, nil); err != nil && firstErr == lua.LNil {
			firstErr = lua.LString(err.Error())
		}
	}
	if firstErr != lua.LNil {
		L.Push(firstErr)
		return 1
	}
	return 0
}
