package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"

	slogmulti "github.com/samber/slog-multi"
)

// Logger is the logging interface used throughout the engine. Components
// receive a Logger explicitly; nothing writes through the slog default.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	Debugf(format string, v ...any)
	Infof(format string, v ...any)
	Warnf(format string, v ...any)
	Errorf(format string, v ...any)

	With(args ...any) Logger

	// WriteRaw writes p to the logger's destinations verbatim, bypassing
	// the handler. Used for raw value passthrough such as task outputs.
	WriteRaw(p []byte) (int, error)
}

// Default logs to stderr at info level.
var Default = New()

type Option func(*options)

type options struct {
	debug   bool
	quiet   bool
	format  string
	writer  io.Writer
	logFile io.Writer
}

// WithDebug lowers the level to debug.
func WithDebug() Option { return func(o *options) { o.debug = true } }

// WithQuiet raises the level to error.
func WithQuiet() Option { return func(o *options) { o.quiet = true } }

// WithFormat selects "text" (default) or "json".
func WithFormat(format string) Option { return func(o *options) { o.format = format } }

// WithWriter replaces the primary destination (stderr by default).
func WithWriter(w io.Writer) Option { return func(o *options) { o.writer = w } }

// WithLogFile tees all records to w in addition to the primary destination.
func WithLogFile(w io.Writer) Option { return func(o *options) { o.logFile = w } }

func New(opts ...Option) Logger {
	o := &options{format: "text", writer: os.Stderr}
	for _, opt := range opts {
		opt(o)
	}

	level := slog.LevelInfo
	if o.debug {
		level = slog.LevelDebug
	}
	if o.quiet {
		level = slog.LevelError
	}
	hopts := &slog.HandlerOptions{Level: level}

	handlers := []slog.Handler{newHandler(o.writer, o.format, hopts)}
	if o.logFile != nil {
		handlers = append(handlers, newHandler(o.logFile, o.format, hopts))
	}

	writers := []io.Writer{o.writer}
	if o.logFile != nil {
		writers = append(writers, o.logFile)
	}

	var h slog.Handler
	if len(handlers) == 1 {
		h = handlers[0]
	} else {
		h = slogmulti.Fanout(handlers...)
	}
	return &appLogger{base: slog.New(h), writers: writers}
}

func newHandler(w io.Writer, format string, opts *slog.HandlerOptions) slog.Handler {
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

type appLogger struct {
	base    *slog.Logger
	writers []io.Writer
}

var _ Logger = (*appLogger)(nil)

func (l *appLogger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }
func (l *appLogger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args...) }
func (l *appLogger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args...) }
func (l *appLogger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

func (l *appLogger) Debugf(format string, v ...any) {
	l.log(slog.LevelDebug, fmt.Sprintf(format, v...))
}

func (l *appLogger) Infof(format string, v ...any) {
	l.log(slog.LevelInfo, fmt.Sprintf(format, v...))
}

func (l *appLogger) Warnf(format string, v ...any) {
	l.log(slog.LevelWarn, fmt.Sprintf(format, v...))
}

func (l *appLogger) Errorf(format string, v ...any) {
	l.log(slog.LevelError, fmt.Sprintf(format, v...))
}

func (l *appLogger) With(args ...any) Logger {
	return &appLogger{base: l.base.With(args...), writers: l.writers}
}

func (l *appLogger) WriteRaw(p []byte) (int, error) {
	var n int
	var err error
	for i, w := range l.writers {
		wn, werr := w.Write(p)
		if i == 0 {
			n, err = wn, werr
		}
	}
	return n, err
}

// log records the caller's program counter so source attribution points at
// the call site, not this wrapper.
func (l *appLogger) log(level slog.Level, msg string, args ...any) {
	ctx := context.Background()
	if !l.base.Enabled(ctx, level) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(args...)
	_ = l.base.Handler().Handle(ctx, r)
}
