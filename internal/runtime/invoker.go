package runtime

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/jdarais/cobble/internal/core"
	"github.com/jdarais/cobble/internal/fingerprint"
	"github.com/jdarais/cobble/internal/logger"
	"github.com/jdarais/cobble/internal/project"
	"github.com/jdarais/cobble/internal/script"
	"github.com/jdarais/cobble/internal/script/stdlib"
)

// Invoker bridges the executor and one worker's script state. Actions reach
// the worker as portable closures; the invoker materializes them, builds
// the per-invocation action context, and translates script errors.
type Invoker struct {
	state *script.State
	reg   *project.Registry
	root  string
	vars  map[string]string
	log   logger.Logger
}

func NewInvoker(reg *project.Registry, root string, vars map[string]string, log logger.Logger) *Invoker {
	s := script.NewState(stdlib.Modules())

	L := s.L
	ws := L.NewTable()
	ws.RawSetString("dir", lua.LString(root))
	L.SetGlobal("WORKSPACE", ws)
	platform := L.NewTable()
	platform.RawSetString("arch", lua.LString(runtime.GOARCH))
	platform.RawSetString("os", lua.LString(runtime.GOOS))
	family := "unix"
	if runtime.GOOS == "windows" {
		family = "windows"
	}
	platform.RawSetString("os_family", lua.LString(family))
	L.SetGlobal("PLATFORM", platform)

	return &Invoker{state: s, reg: reg, root: root, vars: vars, log: log}
}

func (inv *Invoker) Close() {
	inv.state.Close()
}

// RunActions executes the task's actions in declaration order. The return
// value of action k becomes the args of action k+1; the final return value
// is the task output.
func (inv *Invoker) RunActions(ctx context.Context, task *core.Task, actions []*core.Action, deps *fingerprint.ResolvedDeps, fileHashes map[string]string, streams *TaskStreams) (script.Value, error) {
	return inv.RunActionsWithArgs(ctx, task, actions, deps, fileHashes, streams, nil)
}

// RunActionsWithArgs is RunActions with an initial args value; direct tool
// and env invocations seed it from the command line.
func (inv *Invoker) RunActionsWithArgs(ctx context.Context, task *core.Task, actions []*core.Action, deps *fingerprint.ResolvedDeps, fileHashes map[string]string, streams *TaskStreams, args script.Value) (script.Value, error) {
	for i, a := range actions {
		ret, err := inv.invokeAction(ctx, task, a, deps, fileHashes, streams, args)
		// Scoped cleanup runs at the action boundary, on both paths.
		inv.runScopeExits()
		if err != nil {
			return nil, &TaskError{Task: task.Name, Err: fmt.Errorf("action %d: %w", i+1, err)}
		}
		args = ret
	}
	return args, nil
}

// invokeAction runs one action against a fresh action context.
func (inv *Invoker) invokeAction(ctx context.Context, task *core.Task, a *core.Action, deps *fingerprint.ResolvedDeps, fileHashes map[string]string, streams *TaskStreams, args script.Value) (script.Value, error) {
	// Cancellation is cooperative: an in-flight action runs to completion,
	// so the state's context must not abort the VM mid-action.
	runCtx := context.WithValue(context.WithoutCancel(ctx), stdlib.CtxStdout, streams.Stdout)
	runCtx = context.WithValue(runCtx, stdlib.CtxStderr, streams.Stderr)
	runCtx = context.WithValue(runCtx, stdlib.CtxDir, inv.root)
	inv.state.SetContext(runCtx)

	if a.IsScript() {
		ctxTbl := inv.actionContext(ctx, task, a, deps, fileHashes, streams, args)
		fn := inv.state.Materialize(a.Closure)
		ret, err := inv.state.Call(fn, ctxTbl)
		if err != nil {
			return nil, err
		}
		v, err := inv.state.FromLua(ret)
		if err != nil {
			return nil, fmt.Errorf("action return value: %w", err)
		}
		return v, nil
	}
	return inv.invokeArgList(ctx, task, a, deps, fileHashes, streams, args)
}

// invokeArgList routes an argument-list action: through its tool alias,
// its env alias, or the built-in cmd tool.
func (inv *Invoker) invokeArgList(ctx context.Context, task *core.Task, a *core.Action, deps *fingerprint.ResolvedDeps, fileHashes map[string]string, streams *TaskStreams, args script.Value) (script.Value, error) {
	argv := script.NewTable()
	for _, arg := range a.Args {
		argv.Append(arg)
	}
	// Chained args append after the action's own entries.
	if prev, ok := args.(*script.Table); ok {
		argv.Arr = append(argv.Arr, prev.Arr...)
	}

	switch {
	case a.Tool != "":
		toolName, ok := a.ToolAliases[a.Tool]
		if !ok {
			toolName = a.Tool
		}
		tool, ok := inv.reg.Tool(toolName)
		if !ok {
			return nil, fmt.Errorf("unknown tool %q", toolName)
		}
		return inv.invokeAction(ctx, task, tool.Action, deps, fileHashes, streams, argv)
	case a.Env != "":
		envName, ok := a.EnvAliases[a.Env]
		if !ok {
			return nil, fmt.Errorf("unknown env alias %q", a.Env)
		}
		env, ok := inv.reg.Env(envName)
		if !ok {
			return nil, fmt.Errorf("unknown env %q", envName)
		}
		return inv.invokeAction(ctx, task, env.Action, deps, fileHashes, streams, argv)
	default:
		return inv.runCmd(argv)
	}
}

// runCmd invokes the cmd builtin with the argument list.
func (inv *Invoker) runCmd(argv *script.Table) (script.Value, error) {
	L := inv.state.L
	call, ok := inv.state.Builtin("cmd.__call")
	if !ok {
		return nil, fmt.Errorf("cmd builtin is not registered")
	}
	spec := inv.state.ToLua(argv)

	L.Push(call)
	L.Push(L.GetGlobal("cmd"))
	L.Push(spec)
	if err := L.PCall(2, 1, nil); err != nil {
		return nil, scriptErr(err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	v, err := inv.state.FromLua(ret)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// actionContext builds the table passed to a script action.
func (inv *Invoker) actionContext(ctx context.Context, task *core.Task, a *core.Action, deps *fingerprint.ResolvedDeps, fileHashes map[string]string, streams *TaskStreams, args script.Value) lua.LValue {
	L := inv.state.L
	ctxTbl := L.NewTable()

	toolTbl := L.NewTable()
	for alias, toolName := range a.ToolAliases {
		if tool, ok := inv.reg.Tool(toolName); ok {
			toolTbl.RawSetString(alias, inv.invocationFunc(ctx, task, tool.Action, deps, fileHashes, streams))
		}
	}
	ctxTbl.RawSetString("tool", toolTbl)

	envTbl := L.NewTable()
	for alias, envName := range a.EnvAliases {
		if env, ok := inv.reg.Env(envName); ok {
			envTbl.RawSetString(alias, inv.invocationFunc(ctx, task, env.Action, deps, fileHashes, streams))
		}
	}
	ctxTbl.RawSetString("env", envTbl)

	filesTbl := L.NewTable()
	for path, hash := range fileHashes {
		entry := L.NewTable()
		entry.RawSetString("path", lua.LString(path))
		entry.RawSetString("abs_path", lua.LString(filepath.Join(inv.root, filepath.FromSlash(path))))
		entry.RawSetString("hash", lua.LString(hash))
		filesTbl.RawSetString(path, entry)
	}
	ctxTbl.RawSetString("files", filesTbl)

	tasksTbl := L.NewTable()
	for name, dep := range deps.Tasks {
		tasksTbl.RawSetString(name, inv.state.ToLua(dep.Value))
	}
	ctxTbl.RawSetString("tasks", tasksTbl)

	varsTbl := L.NewTable()
	for _, name := range deps.Vars {
		if v, ok := inv.vars[name]; ok {
			varsTbl.RawSetString(name, lua.LString(v))
		}
	}
	ctxTbl.RawSetString("vars", varsTbl)

	projTbl := L.NewTable()
	projTbl.RawSetString("dir", lua.LString(task.ProjectDir))
	ctxTbl.RawSetString("project", projTbl)

	ctxTbl.RawSetString("args", inv.state.ToLua(args))

	actionTbl := L.NewTable()
	argsTbl := L.NewTable()
	for _, arg := range a.Args {
		argsTbl.Append(lua.LString(arg))
	}
	actionTbl.RawSetString("args", argsTbl)
	if a.Tool != "" {
		actionTbl.RawSetString("tool", lua.LString(a.Tool))
	}
	if a.Env != "" {
		actionTbl.RawSetString("env", lua.LString(a.Env))
	}
	ctxTbl.RawSetString("action", actionTbl)

	ctxTbl.RawSetString("out", inv.printFunc(streams.Stdout))
	ctxTbl.RawSetString("err", inv.printFunc(streams.Stderr))
	return ctxTbl
}

// invocationFunc wraps a tool or env action as a callable for the action
// context: the call's arguments become the wrapped action's args.
func (inv *Invoker) invocationFunc(ctx context.Context, task *core.Task, action *core.Action, deps *fingerprint.ResolvedDeps, fileHashes map[string]string, streams *TaskStreams) *lua.LFunction {
	return inv.state.L.NewFunction(func(L *lua.LState) int {
		callArgs := script.NewTable()
		for i := 1; i <= L.GetTop(); i++ {
			v, err := inv.state.FromLua(L.Get(i))
			if err != nil {
				L.RaiseError("%v", err)
			}
			callArgs.Append(v)
		}
		ret, err := inv.invokeAction(ctx, task, action, deps, fileHashes, streams, callArgs)
		if err != nil {
			L.RaiseError("%v", err)
		}
		L.Push(inv.state.ToLua(ret))
		return 1
	})
}

// printFunc writes its arguments tab-separated with a trailing newline,
// like print, into the given stream.
func (inv *Invoker) printFunc(w io.Writer) *lua.LFunction {
	return inv.state.L.NewFunction(func(L *lua.LState) int {
		parts := make([]string, 0, L.GetTop())
		for i := 1; i <= L.GetTop(); i++ {
			parts = append(parts, L.Get(i).String())
		}
		fmt.Fprintln(w, strings.Join(parts, "\t"))
		return 0
	})
}

// runScopeExits runs scope.on_exit handlers registered during the action.
func (inv *Invoker) runScopeExits() {
	if fn, ok := inv.state.Builtin("scope.run_exits"); ok {
		L := inv.state.L
		L.Push(fn)
		if err := L.PCall(0, 0, nil); err != nil {
			inv.log.Warnf("scope cleanup failed: %v", err)
		}
	}
}

func scriptErr(err error) error {
	if err == nil {
		return nil
	}
	if apiErr, ok := err.(*lua.ApiError); ok {
		return &script.Error{Message: apiErr.Object.String(), Traceback: apiErr.StackTrace}
	}
	return err
}
