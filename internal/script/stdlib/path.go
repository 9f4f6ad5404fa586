package stdlib

import (
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	lua "github.com/yuin/gopher-lua"
)

func pathModule() map[string]lua.LGFunction {
	return map[string]lua.LGFunction{
		"join":   pathJoin,
		"dir":    pathDir,
		"base":   pathBase,
		"ext":    pathExt,
		"is_abs": pathIsAbs,
		"glob":   pathGlob,
	}
}

func pathJoin(L *lua.LState) int {
	parts := make([]string, L.GetTop())
	for i := 1; i <= L.GetTop(); i++ {
		parts[i-1] = L.CheckString(i)
	}
	L.Push(lua.LString(filepath.ToSlash(filepath.Join(parts...))))
	return 1
}

func pathDir(L *lua.LState) int {
	L.Push(lua.LString(filepath.ToSlash(filepath.Dir(L.CheckString(1)))))
	return 1
}

func pathBase(L *lua.LState) int {
	L.Push(lua.LString(filepath.Base(L.CheckString(1))))
	return 1
}

func pathExt(L *lua.LState) int {
	L.Push(lua.LString(filepath.Ext(L.CheckString(1))))
	return 1
}

func pathIsAbs(L *lua.LState) int {
	L.Push(lua.LBool(filepath.IsAbs(L.CheckString(1))))
	return 1
}

// pathGlob matches a doublestar pattern against the directory carried in
// the state's context (the workspace root while an action runs), or the
// process working directory when none is set, and returns the matches.
func pathGlob(L *lua.LState) int {
	pattern := L.CheckString(1)

	dir := "."
	if ctx := L.Context(); ctx != nil {
		if d, ok := ctx.Value(CtxDir).(string); ok {
			dir = d
		}
	}
	matches, err := doublestar.Glob(os.DirFS(dir), pattern)
	if err != nil {
		L.RaiseError("path.glob: %v", err)
	}
	res := L.NewTable()
	for _, m := range matches {
		res.Append(lua.LString(m))
	}
	L.Push(res)
	return 1
}
