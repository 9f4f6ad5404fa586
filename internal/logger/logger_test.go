package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerLevels(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := New(WithWriter(&buf))

	l.Debug("hidden at info level")
	l.Info("visible message", "task", "/build")
	l.Warnf("formatted %d", 42)

	out := buf.String()
	assert.NotContains(t, out, "hidden at info level")
	assert.Contains(t, out, "visible message")
	assert.Contains(t, out, "task=/build")
	assert.Contains(t, out, "formatted 42")
}

func TestLoggerDebugEnabled(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := New(WithWriter(&buf), WithDebug())

	l.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestLoggerQuiet(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := New(WithWriter(&buf), WithQuiet())

	l.Info("suppressed")
	l.Error("still reported")
	out := buf.String()
	assert.NotContains(t, out, "suppressed")
	assert.Contains(t, out, "still reported")
}

func TestLoggerJSONFormat(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := New(WithWriter(&buf), WithFormat("json"))

	l.Info("structured")
	assert.True(t, strings.HasPrefix(buf.String(), "{"))
	assert.Contains(t, buf.String(), `"msg":"structured"`)
}

func TestLoggerTee(t *testing.T) {
	t.Parallel()
	var primary, file bytes.Buffer
	l := New(WithWriter(&primary), WithLogFile(&file))

	l.Info("goes to both")
	assert.Contains(t, primary.String(), "goes to both")
	assert.Contains(t, file.String(), "goes to both")
}

func TestLoggerWriteRaw(t *testing.T) {
	t.Parallel()
	var primary, file bytes.Buffer
	l := New(WithWriter(&primary), WithLogFile(&file), WithQuiet())

	n, err := l.WriteRaw([]byte("raw bytes\n"))
	assert.NoError(t, err)
	assert.Equal(t, 10, n)
	// Raw writes bypass the handler: no level prefix, no suppression.
	assert.Equal(t, "raw bytes\n", primary.String())
	assert.Equal(t, "raw bytes\n", file.String())
}

func TestLoggerWith(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := New(WithWriter(&buf)).With("run", "abc123")

	l.Info("tagged")
	assert.Contains(t, buf.String(), "run=abc123")
}
