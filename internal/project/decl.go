package project

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/jdarais/cobble/internal/script"
)

// Declaration structs hold the raw, unresolved form of project.lua
// declarations. Name references stay as written; the builder resolves them
// against the declaring project when the registry is sealed.

type TaskDecl struct {
	Name         string
	Actions      []*ActionDecl
	CleanActions []*ActionDecl
	Env          string
	DepFiles     []string
	DepTasks     []string
	DepVars      []string
	CalcDeps     []string
	ArtFiles     []string
	ArtCalc      []string
	AlwaysRun    bool
	Interactive  bool
	Default      bool
	Stdout       string
	Stderr       string
	Output       string

	File string
	Line int
}

type ActionDecl struct {
	Closure *script.Closure
	Args    []string
	Tool    string
	Env     string
	Tools   map[string]string
	Envs    map[string]string
}

type EnvDecl struct {
	Name   string
	Setup  *TaskDecl
	Action *ActionDecl

	File string
	Line int
}

type ToolDecl struct {
	Name   string
	Check  *ActionDecl
	Action *ActionDecl

	File string
	Line int
}

// parseTaskDecl reads a task{...} declaration table.
func parseTaskDecl(s *script.State, tbl *lua.LTable) (*TaskDecl, error) {
	d := &TaskDecl{}
	var err error

	if d.Name, err = optString(tbl, "name"); err != nil {
		return nil, err
	}
	if d.Actions, err = parseActionList(s, tbl.RawGetString("actions"), "actions"); err != nil {
		return nil, err
	}
	if d.CleanActions, err = parseActionList(s, tbl.RawGetString("clean"), "clean"); err != nil {
		return nil, err
	}
	if d.Env, err = optString(tbl, "env"); err != nil {
		return nil, err
	}

	if deps, ok := tbl.RawGetString("deps").(*lua.LTable); ok {
		if d.DepFiles, err = stringList(deps, "files"); err != nil {
			return nil, fmt.Errorf("deps.%w", err)
		}
		if d.DepTasks, err = stringList(deps, "tasks"); err != nil {
			return nil, fmt.Errorf("deps.%w", err)
		}
		if d.DepVars, err = stringList(deps, "vars"); err != nil {
			return nil, fmt.Errorf("deps.%w", err)
		}
		if d.CalcDeps, err = stringList(deps, "calc"); err != nil {
			return nil, fmt.Errorf("deps.%w", err)
		}
	}
	if arts, ok := tbl.RawGetString("artifacts").(*lua.LTable); ok {
		if d.ArtFiles, err = stringList(arts, "files"); err != nil {
			return nil, fmt.Errorf("artifacts.%w", err)
		}
		if d.ArtCalc, err = stringList(arts, "calc"); err != nil {
			return nil, fmt.Errorf("artifacts.%w", err)
		}
	}

	d.AlwaysRun = lua.LVAsBool(tbl.RawGetString("always_run"))
	d.Interactive = lua.LVAsBool(tbl.RawGetString("interactive"))
	d.Default = lua.LVAsBool(tbl.RawGetString("default"))

	if d.Stdout, err = optString(tbl, "stdout"); err != nil {
		return nil, err
	}
	if d.Stderr, err = optString(tbl, "stderr"); err != nil {
		return nil, err
	}
	if d.Output, err = optString(tbl, "output"); err != nil {
		return nil, err
	}
	return d, nil
}

func parseEnvDecl(s *script.State, tbl *lua.LTable) (*EnvDecl, error) {
	d := &EnvDecl{}
	var err error
	if d.Name, err = optString(tbl, "name"); err != nil {
		return nil, err
	}
	if setup, ok := tbl.RawGetString("setup").(*lua.LTable); ok {
		if d.Setup, err = parseTaskDecl(s, setup); err != nil {
			return nil, fmt.Errorf("setup: %w", err)
		}
	}
	if action := tbl.RawGetString("action"); action != lua.LNil {
		if d.Action, err = parseActionDecl(s, action, "action"); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func parseToolDecl(s *script.State, tbl *lua.LTable) (*ToolDecl, error) {
	d := &ToolDecl{}
	var err error
	if d.Name, err = optString(tbl, "name"); err != nil {
		return nil, err
	}
	if check := tbl.RawGetString("check"); check != lua.LNil {
		if d.Check, err = parseActionDecl(s, check, "check"); err != nil {
			return nil, err
		}
	}
	if action := tbl.RawGetString("action"); action != lua.LNil {
		if d.Action, err = parseActionDecl(s, action, "action"); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func parseActionList(s *script.State, lv lua.LValue, field string) ([]*ActionDecl, error) {
	if lv == lua.LNil {
		return nil, nil
	}
	tbl, ok := lv.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("%s: expected a list", field)
	}
	var out []*ActionDecl
	for i := 1; i <= tbl.Len(); i++ {
		a, err := parseActionDecl(s, tbl.RawGetInt(i), fmt.Sprintf("%s[%d]", field, i))
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// parseActionDecl reads one action: a function, or a table holding an
// argument list plus optional tool=/env= routing and tools=/envs= scope
// additions.
func parseActionDecl(s *script.State, lv lua.LValue, field string) (*ActionDecl, error) {
	switch v := lv.(type) {
	case *lua.LFunction:
		c, err := s.Extract(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		return &ActionDecl{Closure: c}, nil
	case *lua.LTable:
		d := &ActionDecl{}
		// A single-element table holding a function is the function variant
		// with inline scope additions.
		if fn, ok := v.RawGetInt(1).(*lua.LFunction); ok && v.Len() == 1 {
			c, err := s.Extract(fn)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", field, err)
			}
			d.Closure = c
		} else {
			for i := 1; i <= v.Len(); i++ {
				arg, ok := v.RawGetInt(i).(lua.LString)
				if !ok {
					return nil, fmt.Errorf("%s: argument %d is not a string", field, i)
				}
				d.Args = append(d.Args, string(arg))
			}
		}
		var err error
		if d.Tool, err = optString(v, "tool"); err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		if d.Env, err = optString(v, "env"); err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		if d.Tool != "" && d.Env != "" {
			return nil, fmt.Errorf("%s: action cannot reference both a tool and an env", field)
		}
		if d.Tools, err = stringMap(v, "tools"); err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		if d.Envs, err = stringMap(v, "envs"); err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("%s: expected a function or argument list, got %s", field, lv.Type())
	}
}

func optString(tbl *lua.LTable, key string) (string, error) {
	lv := tbl.RawGetString(key)
	if lv == lua.LNil {
		return "", nil
	}
	s, ok := lv.(lua.LString)
	if !ok {
		return "", fmt.Errorf("%s: expected a string, got %s", key, lv.Type())
	}
	return string(s), nil
}

func stringList(tbl *lua.LTable, key string) ([]string, error) {
	lv := tbl.RawGetString(key)
	if lv == lua.LNil {
		return nil, nil
	}
	list, ok := lv.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("%s: expected a list of strings", key)
	}
	var out []string
	for i := 1; i <= list.Len(); i++ {
		s, ok := list.RawGetInt(i).(lua.LString)
		if !ok {
			return nil, fmt.Errorf("%s: element %d is not a string", key, i)
		}
		out = append(out, string(s))
	}
	return out, nil
}

func stringMap(tbl *lua.LTable, key string) (map[string]string, error) {
	lv := tbl.RawGetString(key)
	if lv == lua.LNil {
		return nil, nil
	}
	m, ok := lv.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("%s: expected a table", key)
	}
	out := map[string]string{}
	var convErr error
	m.ForEach(func(k, v lua.LValue) {
		ks, ok1 := k.(lua.LString)
		vs, ok2 := v.(lua.LString)
		if !ok1 || !ok2 {
			convErr = fmt.Errorf("%s: keys and values must be strings", key)
			return
		}
		out[string(ks)] = string(vs)
	})
	return out, convErr
}
