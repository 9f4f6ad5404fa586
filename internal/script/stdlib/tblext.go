package stdlib

import (
	"sort"

	lua "github.com/yuin/gopher-lua"
)

func tblextModule() map[string]lua.LGFunction {
	return map[string]lua.LGFunction{
		"extend": tblextExtend,
		"merge":  tblextMerge,
		"keys":   tblextKeys,
		"values": tblextValues,
	}
}

// tblextExtend appends the array parts of every subsequent table onto the
// first and returns it.
func tblextExtend(L *lua.LState) int {
	dst := L.CheckTable(1)
	for i := 2; i <= L.GetTop(); i++ {
		src := L.CheckTable(i)
		for j := 1; j <= src.Len(); j++ {
			dst.Append(src.RawGetInt(j))
		}
	}
	L.Push(dst)
	return 1
}

// tblextMerge returns a new table with the hash parts of all arguments
// merged left to right; later values win.
func tblextMerge(L *lua.LState) int {
	res := L.NewTable()
	for i := 1; i <= L.GetTop(); i++ {
		L.CheckTable(i).ForEach(func(k, v lua.LValue) {
			res.RawSet(k, v)
		})
	}
	L.Push(res)
	return 1
}

func tblextKeys(L *lua.LState) int {
	tbl := L.CheckTable(1)
	var keys []string
	tbl.ForEach(func(k, _ lua.LValue) {
		keys = append(keys, k.String())
	})
	sort.Strings(keys)
	res := L.NewTable()
	for _, k := range keys {
		res.Append(lua.LString(k))
	}
	L.Push(res)
	return 1
}

func tblextValues(L *lua.LState) int {
	tbl := L.CheckTable(1)
	res := L.NewTable()
	tbl.ForEach(func(_, v lua.LValue) {
		res.Append(v)
	})
	L.Push(res)
	return 1
}
