// Package stdlib implements the engine-provided modules available to
// project scripts and actions: cmd, path, json, toml, version, iter,
// tblext, maybe, and scope.
package stdlib

import (
	lua "github.com/yuin/gopher-lua"
)

type ctxKey int

const (
	// CtxStdout and CtxStderr carry the current action's output writers;
	// cmd streams subprocess output through them when present.
	CtxStdout ctxKey = iota
	CtxStderr
	// CtxDir is the directory command and glob operations resolve against.
	CtxDir
)

// Modules returns all engine modules for registration into a new state.
func Modules() map[string]map[string]lua.LGFunction {
	return map[string]map[string]lua.LGFunction{
		"cmd":     cmdModule(),
		"path":    pathModule(),
		"json":    jsonModule(),
		"toml":    tomlModule(),
		"version": versionModule(),
		"iter":    iterModule(),
		"tblext":  tblextModule(),
		"maybe":   maybeModule(),
		"scope":   scopeModule(),
	}
}
