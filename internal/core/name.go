package core

import (
	"fmt"
	"path"
	"strings"
)

// Names are /-separated absolute paths. The root project is "/"; children
// append one segment per level. Task and environment names live under their
// project's prefix; tool names are a flat global namespace.

// RootName is the absolute name of the root project.
const RootName = "/"

// IsAbsName reports whether ref is an absolute name.
func IsAbsName(ref string) bool {
	return strings.HasPrefix(ref, "/")
}

// JoinName appends leaf segments under base.
func JoinName(base string, leaf ...string) string {
	parts := append([]string{base}, leaf...)
	return path.Join(parts...)
}

// ParentName returns the name one level up, or "/" at the root.
func ParentName(name string) string {
	if name == RootName || name == "" {
		return RootName
	}
	return path.Dir(name)
}

// ResolveName resolves ref against the absolute base name, honoring
// /-rooted references and ".." segments. The result never escapes the root.
func ResolveName(base, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("empty name reference")
	}
	var joined string
	if IsAbsName(ref) {
		joined = path.Clean(ref)
	} else {
		joined = path.Join(base, ref)
	}
	if strings.HasPrefix(joined, "..") || strings.Contains(joined, "/../") {
		return "", fmt.Errorf("name reference %q escapes the workspace root", ref)
	}
	if !strings.HasPrefix(joined, "/") {
		joined = "/" + joined
	}
	return joined, nil
}

// ResolvePath resolves a file reference declared in a project against the
// project's directory, producing a workspace-root-relative slash path.
func ResolvePath(projectDir, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("empty file reference")
	}
	joined := path.Join(projectDir, ref)
	if joined == ".." || strings.HasPrefix(joined, "../") {
		return "", fmt.Errorf("file reference %q escapes the workspace root", ref)
	}
	if joined == "." {
		joined = ""
	}
	return joined, nil
}
