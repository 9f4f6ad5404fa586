package core

import "fmt"

// OutputPolicy controls when a task's buffered stream is written to the
// terminal.
type OutputPolicy string

const (
	OutputAlways OutputPolicy = "always"
	OutputNever  OutputPolicy = "never"
	OutputOnFail OutputPolicy = "on_fail"
)

// ParseOutputPolicy validates a policy string; empty falls back to def.
func ParseOutputPolicy(s string, def OutputPolicy) (OutputPolicy, error) {
	switch OutputPolicy(s) {
	case "":
		return def, nil
	case OutputAlways, OutputNever, OutputOnFail:
		return OutputPolicy(s), nil
	default:
		return "", fmt.Errorf("invalid output policy %q (want always, never, or on_fail)", s)
	}
}
