package stdlib

import (
	lua "github.com/yuin/gopher-lua"
)

func iterModule() map[string]lua.LGFunction {
	return map[string]lua.LGFunction{
		"map":    iterMap,
		"filter": iterFilter,
		"reduce": iterReduce,
	}
}

func iterMap(L *lua.LState) int {
	tbl := L.CheckTable(1)
	fn := L.CheckFunction(2)
	res := L.NewTable()
	for i := 1; i <= tbl.Len(); i++ {
		L.Push(fn)
		L.Push(tbl.RawGetInt(i))
		L.Call(1, 1)
		res.Append(L.Get(-1))
		L.Pop(1)
	}
	L.Push(res)
	return 1
}

func iterFilter(L *lua.LState) int {
	tbl := L.CheckTable(1)
	fn := L.CheckFunction(2)
	res := L.NewTable()
	for i := 1; i <= tbl.Len(); i++ {
		el := tbl.RawGetInt(i)
		L.Push(fn)
		L.Push(el)
		L.Call(1, 1)
		keep := lua.LVAsBool(L.Get(-1))
		L.Pop(1)
		if keep {
			res.Append(el)
		}
	}
	L.Push(res)
	return 1
}

func iterReduce(L *lua.LState) int {
	tbl := L.CheckTable(1)
	acc := L.CheckAny(2)
	fn := L.CheckFunction(3)
	for i := 1; i <= tbl.Len(); i++ {
		L.Push(fn)
		L.Push(acc)
		L.Push(tbl.RawGetInt(i))
		L.Call(2, 1)
		acc = L.Get(-1)
		L.Pop(1)
	}
	L.Push(acc)
	return 1
}
