package stdlib

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"

	lua "github.com/yuin/gopher-lua"
	"mvdan.cc/sh/v3/shell"
)

// cmdModule implements the cmd builtin. The module table is callable:
//
//	cmd { "echo", "hi" }
//	cmd { "sh -c 'make all'", cwd = "sub", ignore_status = true }
//
// A single string argument is split shell-style. The call returns a table
// {status, stdout, stderr}; a nonzero exit raises an error unless
// ignore_status is set.
func cmdModule() map[string]lua.LGFunction {
	return map[string]lua.LGFunction{
		"__call": cmdCall,
	}
}

func cmdCall(L *lua.LState) int {
	// arg 1 is the module table itself
	spec := L.CheckTable(2)

	var argv []string
	for i := 1; i <= spec.Len(); i++ {
		s, ok := spec.RawGetInt(i).(lua.LString)
		if !ok {
			L.RaiseError("cmd: argument %d is not a string", i)
		}
		argv = append(argv, string(s))
	}
	if len(argv) == 0 {
		L.RaiseError("cmd: no command given")
	}
	if len(argv) == 1 {
		fields, err := shell.Fields(argv[0], os.Getenv)
		if err != nil {
			L.RaiseError("cmd: %v", err)
		}
		argv = fields
	}
	if len(argv) == 0 {
		L.RaiseError("cmd: empty command")
	}

	ctx := L.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	if cwd, ok := spec.RawGetString("cwd").(lua.LString); ok {
		cmd.Dir = string(cwd)
	} else if dir, ok := ctx.Value(CtxDir).(string); ok {
		cmd.Dir = dir
	}

	cmd.Env = os.Environ()
	if envTbl, ok := spec.RawGetString("env").(*lua.LTable); ok {
		envTbl.ForEach(func(k, v lua.LValue) {
			cmd.Env = append(cmd.Env, k.String()+"="+v.String())
		})
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = teeTo(ctx, CtxStdout, &stdout)
	cmd.Stderr = teeTo(ctx, CtxStderr, &stderr)

	runErr := cmd.Run()
	status := 0
	if runErr != nil {
		exitErr, ok := runErr.(*exec.ExitError)
		if !ok {
			L.RaiseError("cmd: %v", runErr)
		}
		status = exitErr.ExitCode()
	}

	ignore := lua.LVAsBool(spec.RawGetString("ignore_status"))
	if status != 0 && !ignore {
		L.RaiseError("cmd: %q exited with status %d", argv[0], status)
	}

	res := L.NewTable()
	res.RawSetString("status", lua.LNumber(status))
	res.RawSetString("stdout", lua.LString(stdout.String()))
	res.RawSetString("stderr", lua.LString(stderr.String()))
	L.Push(res)
	return 1
}

// teeTo duplicates subprocess output into the action's buffered writer when
// one is attached to the context.
func teeTo(ctx context.Context, key ctxKey, capture io.Writer) io.Writer {
	if w, ok := ctx.Value(key).(io.Writer); ok && w != nil {
		return io.MultiWriter(capture, w)
	}
	return capture
}
