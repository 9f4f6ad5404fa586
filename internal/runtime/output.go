package runtime

import (
	"bytes"
	"io"
	"sync"

	"github.com/jdarais/cobble/internal/core"
)

// Multiplexer owns the terminal. Running tasks write into private buffers;
// completed tasks flush atomically under the terminal lock according to
// their output policy, so parallel tasks never interleave mid-line.
// Interactive tasks bypass buffering and write through directly.
type Multiplexer struct {
	mu     sync.Mutex
	stdout io.Writer
	stderr io.Writer
}

func NewMultiplexer(stdout, stderr io.Writer) *Multiplexer {
	return &Multiplexer{stdout: stdout, stderr: stderr}
}

// TaskStreams are one task's output channels for a single run.
type TaskStreams struct {
	Stdout io.Writer
	Stderr io.Writer

	outBuf *bytes.Buffer
	errBuf *bytes.Buffer
}

// Streams returns a buffer pair for a task, or direct passthrough writers
// for interactive tasks.
func (m *Multiplexer) Streams(interactive bool) *TaskStreams {
	if interactive {
		return &TaskStreams{
			Stdout: &lockedWriter{mu: &m.mu, w: m.stdout},
			Stderr: &lockedWriter{mu: &m.mu, w: m.stderr},
		}
	}
	s := &TaskStreams{outBuf: &bytes.Buffer{}, errBuf: &bytes.Buffer{}}
	s.Stdout = &syncWriter{buf: s.outBuf}
	s.Stderr = &syncWriter{buf: s.errBuf}
	return s
}

// Flush writes the task's buffered output per policy. force overrides the
// policies; failed selects the on_fail behavior. The whole flush holds the
// terminal lock so it lands as one block.
func (m *Multiplexer) Flush(s *TaskStreams, stdoutPolicy, stderrPolicy core.OutputPolicy, failed, force bool) {
	if s == nil || s.outBuf == nil {
		return // interactive streams were never buffered
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if force || wantFlush(stdoutPolicy, failed) {
		writeAll(m.stdout, s.outBuf.Bytes())
	}
	if force || wantFlush(stderrPolicy, failed) {
		writeAll(m.stderr, s.errBuf.Bytes())
	}
	s.outBuf.Reset()
	s.errBuf.Reset()
}

// WriteLine writes a report line directly to stderr under the terminal
// lock; used for status lines between task flushes.
func (m *Multiplexer) WriteLine(line string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	io.WriteString(m.stderr, line)
	if len(line) == 0 || line[len(line)-1] != '\n' {
		io.WriteString(m.stderr, "\n")
	}
}

func wantFlush(policy core.OutputPolicy, failed bool) bool {
	switch policy {
	case core.OutputNever:
		return false
	case core.OutputOnFail:
		return failed
	default:
		return true
	}
}

func writeAll(w io.Writer, data []byte) {
	if len(data) == 0 {
		return
	}
	_, _ = w.Write(data)
	if data[len(data)-1] != '\n' {
		_, _ = io.WriteString(w, "\n")
	}
}

// syncWriter guards a task buffer; the owning worker and subprocess copier
// goroutines may write concurrently.
type syncWriter struct {
	mu  sync.Mutex
	buf *bytes.Buffer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

// lockedWriter serializes direct terminal writes for interactive tasks.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}
