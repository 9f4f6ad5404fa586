package project

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/jdarais/cobble/internal/config"
	"github.com/jdarais/cobble/internal/core"
	"github.com/jdarais/cobble/internal/logger"
	"github.com/jdarais/cobble/internal/script"
	"github.com/jdarais/cobble/internal/script/stdlib"
)

// DefinitionFile is the per-project definition script name.
const DefinitionFile = "project.lua"

// Loader runs project definition scripts and feeds a Builder. The
// definition state is private to the loader and closed once loading ends;
// everything that survives is portable.
type Loader struct {
	cfg     *config.Config
	log     logger.Logger
	state   *script.State
	builder *Builder

	stack   []*Frame
	curFile string
}

// Load discovers and runs all project definition scripts, then seals the
// registry.
func Load(cfg *config.Config, log logger.Logger) (*Registry, error) {
	l := &Loader{
		cfg:     cfg,
		log:     log,
		builder: NewBuilder(),
	}
	l.state = script.NewState(stdlib.Modules())
	defer l.state.Close()
	l.installGlobals()

	for _, root := range cfg.RootProjects {
		name := core.RootName
		if root != "." && root != "" {
			name = "/" + path.Base(filepath.ToSlash(root))
		}
		if err := l.loadProject(name, filepath.ToSlash(root)); err != nil {
			return nil, err
		}
	}
	return l.builder.Seal()
}

func (l *Loader) installGlobals() {
	L := l.state.L

	ws := L.NewTable()
	ws.RawSetString("dir", lua.LString(l.cfg.RootDir))
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

	l.state.RegisterGlobalFunc("task", l.declTask)
	l.state.RegisterGlobalFunc("env", l.declEnv)
	l.state.RegisterGlobalFunc("tool", l.declTool)
	l.state.RegisterGlobalFunc("project", l.declProject)
	l.state.RegisterGlobalFunc("project_dir", l.declProjectDir)
	l.state.RegisterGlobalFunc("script_dir", func(L *lua.LState) int {
		L.Push(lua.LString(l.frame().Dir))
		return 1
	})
}

func (l *Loader) frame() *Frame {
	if len(l.stack) == 0 {
		return &Frame{Project: core.RootName}
	}
	return l.stack[len(l.stack)-1]
}

// loadProject runs dir/project.lua as project name.
func (l *Loader) loadProject(name, dir string) error {
	relDir := dir
	if relDir == "." {
		relDir = ""
	}
	file := filepath.Join(l.cfg.RootDir, filepath.FromSlash(relDir), DefinitionFile)
	relFile := path.Join(relDir, DefinitionFile)
	if _, err := os.Stat(file); err != nil {
		return core.Definitionf("project %q: missing %s", name, relFile)
	}

	l.log.Debugf("loading project %s from %s", name, relFile)
	frame := &Frame{Project: name, Dir: relDir, Sources: []string{relFile}}
	l.stack = append(l.stack, frame)
	prevFile := l.curFile
	l.curFile = relFile

	err := l.state.DoFile(file)

	l.curFile = prevFile
	l.stack = l.stack[:len(l.stack)-1]
	if err != nil {
		var sErr *script.Error
		if errors.As(err, &sErr) {
			return core.Definitionf("project %q: %s", name, sErr.Message)
		}
		return fmt.Errorf("project %q: %w", name, err)
	}
	l.builder.AddFrame(frame)
	return nil
}

func (l *Loader) declTask(L *lua.LState) int {
	tbl := L.CheckTable(1)
	d, err := parseTaskDecl(l.state, tbl)
	if err != nil {
		L.RaiseError("task: %v", err)
	}
	d.File, d.Line = l.where(L)
	f := l.frame()
	f.Tasks = append(f.Tasks, d)
	return 0
}

func (l *Loader) declEnv(L *lua.LState) int {
	tbl := L.CheckTable(1)
	d, err := parseEnvDecl(l.state, tbl)
	if err != nil {
		L.RaiseError("env: %v", err)
	}
	d.File, d.Line = l.where(L)
	f := l.frame()
	f.Envs = append(f.Envs, d)
	return 0
}

func (l *Loader) declTool(L *lua.LState) int {
	tbl := L.CheckTable(1)
	d, err := parseToolDecl(l.state, tbl)
	if err != nil {
		L.RaiseError("tool: %v", err)
	}
	d.File, d.Line = l.where(L)
	f := l.frame()
	f.Tools = append(f.Tools, d)
	return 0
}

// declProject handles project(name, fn): an inline subproject sharing the
// parent's directory.
func (l *Loader) declProject(L *lua.LState) int {
	name := L.CheckString(1)
	fn := L.CheckFunction(2)

	parent := l.frame()
	child := &Frame{
		Project: core.JoinName(parent.Project, name),
		Dir:     parent.Dir,
		Sources: []string{l.curFile},
	}
	l.stack = append(l.stack, child)
	L.Push(fn)
	err := L.PCall(0, 0, nil)
	l.stack = l.stack[:len(l.stack)-1]
	if err != nil {
		L.RaiseError("project %q: %v", name, err)
	}
	l.builder.AddFrame(child)
	return 0
}

// declProjectDir handles project_dir(path): recurse into a subdirectory's
// own project.lua.
func (l *Loader) declProjectDir(L *lua.LState) int {
	rel := L.CheckString(1)

	parent := l.frame()
	childDir := path.Join(parent.Dir, rel)
	childName := core.JoinName(parent.Project, path.Base(rel))
	if err := l.loadProject(childName, childDir); err != nil {
		L.RaiseError("%v", err)
	}
	return 0
}

// where extracts the declaration site from the Lua call stack.
func (l *Loader) where(L *lua.LState) (string, int) {
	loc := strings.TrimSuffix(strings.TrimSpace(L.Where(1)), ":")
	if i := strings.LastIndex(loc, ":"); i > 0 {
		if line, err := strconv.Atoi(loc[i+1:]); err == nil {
			return loc[:i], line
		}
	}
	return l.curFile, 0
}
