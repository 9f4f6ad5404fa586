package runtime

import (
	"fmt"
	"sort"
	"time"

	"github.com/fatih/color"

	"github.com/jdarais/cobble/internal/core"
)

// Reporter renders per-task status lines and the end-of-run summary.
// All writes go through the multiplexer's terminal lock.
type Reporter struct {
	mux   *Multiplexer
	quiet bool
}

func NewReporter(mux *Multiplexer, quiet bool) *Reporter {
	return &Reporter{mux: mux, quiet: quiet}
}

var statusColors = map[core.TaskStatus]*color.Color{
	core.TaskRunning:   color.New(color.FgBlue),
	core.TaskSucceeded: color.New(color.FgGreen),
	core.TaskFailed:    color.New(color.FgRed, color.Bold),
	core.TaskSkipped:   color.New(color.FgCyan),
	core.TaskBlocked:   color.New(color.FgYellow),
	core.TaskAborted:   color.New(color.FgYellow),
}

// TaskStatus prints one status line for a task transition.
func (r *Reporter) TaskStatus(name string, status core.TaskStatus, elapsed time.Duration, err error) {
	if r.quiet {
		return
	}
	label := status.Label()
	if c, ok := statusColors[status]; ok {
		label = c.Sprint(label)
	}
	line := fmt.Sprintf("%-7s %s", label, name)
	if elapsed > 0 {
		line += fmt.Sprintf(" (%s)", elapsed.Round(time.Millisecond))
	}
	if err != nil {
		line += fmt.Sprintf(": %v", err)
	}
	r.mux.WriteLine(line)
}

// Summary prints the per-status counts for the run.
func (r *Reporter) Summary(statuses map[string]core.TaskStatus) {
	if r.quiet {
		return
	}
	counts := map[core.TaskStatus]int{}
	for _, s := range statuses {
		counts[s]++
	}
	order := []core.TaskStatus{
		core.TaskSucceeded, core.TaskSkipped, core.TaskFailed,
		core.TaskBlocked, core.TaskAborted,
	}
	var parts []string
	for _, s := range order {
		if counts[s] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[s], s.String()))
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "nothing to do")
	}
	line := ""
	for i, p := range parts {
		if i > 0 {
			line += ", "
		}
		line += p
	}
	r.mux.WriteLine(line)
}

// FailedTasks lists failed task names sorted, for the exit message.
func FailedTasks(statuses map[string]core.TaskStatus) []string {
	var failed []string
	for name, s := range statuses {
		if s == core.TaskFailed {
			failed = append(failed, name)
		}
	}
	sort.Strings(failed)
	return failed
}
