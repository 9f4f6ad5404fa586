package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/jdarais/cobble/internal/core"
)

// MarkerFile marks the workspace root; its presence alone is sufficient.
const MarkerFile = "cobble.toml"

// StateDirName is the engine-private state directory under the root.
const StateDirName = ".cobble"

// ErrNoWorkspace is returned when no marker file is found above cwd.
var ErrNoWorkspace = errors.New("no cobble.toml found in this or any parent directory")

// Config is the loaded workspace configuration.
type Config struct {
	RootDir      string
	RootProjects []string
	NumThreads   int
	Stdout       core.OutputPolicy
	Stderr       core.OutputPolicy
	Output       core.OutputPolicy
	Vars         map[string]string
}

// FindWorkspaceRoot walks up from dir looking for the marker file.
func FindWorkspaceRoot(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(abs, MarkerFile)); err == nil {
			return abs, nil
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", ErrNoWorkspace
		}
		abs = parent
	}
}

// Load reads cobble.toml at root and applies defaults.
func Load(root string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(filepath.Join(root, MarkerFile))
	v.SetConfigType("toml")

	v.SetDefault("root_projects", []string{"."})
	v.SetDefault("num_threads", 5)
	v.SetDefault("output", string(core.OutputNever))
	v.SetDefault("stdout", string(core.OutputOnFail))
	v.SetDefault("stderr", string(core.OutputAlways))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", MarkerFile, err)
	}

	cfg := &Config{
		RootDir:      root,
		RootProjects: v.GetStringSlice("root_projects"),
		NumThreads:   v.GetInt("num_threads"),
		Vars:         map[string]string{},
	}
	if cfg.NumThreads < 1 {
		return nil, fmt.Errorf("num_threads must be at least 1")
	}

	var err error
	if cfg.Stdout, err = core.ParseOutputPolicy(v.GetString("stdout"), core.OutputOnFail); err != nil {
		return nil, fmt.Errorf("stdout: %w", err)
	}
	if cfg.Stderr, err = core.ParseOutputPolicy(v.GetString("stderr"), core.OutputAlways); err != nil {
		return nil, fmt.Errorf("stderr: %w", err)
	}
	if cfg.Output, err = core.ParseOutputPolicy(v.GetString("output"), core.OutputNever); err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}

	// TOML dotted keys ("python.version") parse as nested tables; flatten
	// them back to dotted var names.
	if raw, ok := v.Get("vars").(map[string]any); ok {
		if err := flattenVars("", raw, cfg.Vars); err != nil {
			return nil, fmt.Errorf("[vars]: %w", err)
		}
	}
	return cfg, nil
}

func flattenVars(prefix string, m map[string]any, out map[string]string) error {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			if err := flattenVars(key, val, out); err != nil {
				return err
			}
		case string:
			out[key] = val
		case bool, int, int64, float64:
			out[key] = fmt.Sprint(val)
		default:
			return fmt.Errorf("var %q has non-scalar value", key)
		}
	}
	return nil
}

// ApplyVarOverrides applies -v KEY=VALUE flags on top of [vars].
func (c *Config) ApplyVarOverrides(overrides []string) error {
	for _, kv := range overrides {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return fmt.Errorf("invalid var override %q (want KEY=VALUE)", kv)
		}
		c.Vars[key] = val
	}
	return nil
}

// StateDir returns the engine state directory, creating it if needed.
func (c *Config) StateDir() (string, error) {
	dir := filepath.Join(c.RootDir, StateDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}
