package stdlib

import (
	"github.com/Masterminds/semver/v3"
	lua "github.com/yuin/gopher-lua"
)

// versionModule wraps semver parsing and comparison for tool check actions.
func versionModule() map[string]lua.LGFunction {
	return map[string]lua.LGFunction{
		"parse":     versionParse,
		"compare":   versionCompare,
		"satisfies": versionSatisfies,
	}
}

func versionParse(L *lua.LState) int {
	v, err := semver.NewVersion(L.CheckString(1))
	if err != nil {
		L.RaiseError("version.parse: %v", err)
	}
	res := L.NewTable()
	res.RawSetString("major", lua.LNumber(v.Major()))
	res.RawSetString("minor", lua.LNumber(v.Minor()))
	res.RawSetString("patch", lua.LNumber(v.Patch()))
	res.RawSetString("prerelease", lua.LString(v.Prerelease()))
	res.RawSetString("str", lua.LString(v.String()))
	L.Push(res)
	return 1
}

func versionCompare(L *lua.LState) int {
	a, err := semver.NewVersion(L.CheckString(1))
	if err != nil {
		L.RaiseError("version.compare: %v", err)
	}
	b, err := semver.NewVersion(L.CheckString(2))
	if err != nil {
		L.RaiseError("version.compare: %v", err)
	}
	L.Push(lua.LNumber(a.Compare(b)))
	return 1
}

func versionSatisfies(L *lua.LState) int {
	v, err := semver.NewVersion(L.CheckString(1))
	if err != nil {
		L.RaiseError("version.satisfies: %v", err)
	}
	c, err := semver.NewConstraint(L.CheckString(2))
	if err != nil {
		L.RaiseError("version.satisfies: %v", err)
	}
	L.Push(lua.LBool(c.Check(v)))
	return 1
}
