package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

// Field is a structured logging attribute.
type Field struct {
	Key   string
	Value any
}

// Convenience helpers for common field types.
func String(key, value string) Field       { return Field{Key: key, Value: value} }
func Int(key string, value int) Field      { return Field{Key: key, Value: value} }
func Float64(key string, v float64) Field  { return Field{Key: key, Value: v} }
func Bool(key string, value bool) Field    { return Field{Key: key, Value: value} }
func Any(key string, value any) Field      { return Field{Key: key, Value: value} }
func Strings(key string, v []string) Field { return Field{Key: key, Value: v} }

// Err records err under the "error" key. A nil error records an empty string.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: ""}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Logger is a small structured logging interface that can be backed by slog or
// other structured loggers. Engine components receive it explicitly.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	With(fields ...Field) Logger
}

// Config controls basic logger behaviour.
type Config struct {
	Level     string    // debug, info, warn, error
	Format    string    // json or text
	AddSource bool      // include source locations
	Output    io.Writer // defaults to os.Stderr
}

// New constructs a Logger backed by slog with the provided config.
func New(cfg Config) Logger {
	level := parseLevel(cfg.Level)

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
	}

	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		handler = slog.NewTextHandler(out, opts)
	}

	return &slogger{l: slog.New(handler)}
}

// NewFromEnv constructs a logger using LOG_LEVEL and LOG_FORMAT environment
// variables, defaulting to a human-readable text handler at info level.
func NewFromEnv() Logger {
	return New(Config{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: os.Getenv("LOG_FORMAT"),
	})
}

// Noop returns a logger that drops all logs.
func Noop() Logger { return noopLogger{} }

type slogger struct {
	l *slog.Logger
}

func (s *slogger) With(fields ...Field) Logger {
	return &slogger{l: s.l.With(toArgs(fields...)...)}
}

func (s *slogger) Debug(ctx context.Context, msg string, fields ...Field) {
	s.l.LogAttrs(ctx, slog.LevelDebug, msg, toAttrs(fields...)...)
}

func (s *slogger) Info(ctx context.Context, msg string, fields ...Field) {
	s.l.LogAttrs(ctx, slog.LevelInfo, msg, toAttrs(fields...)...)
}

func (s *slogger) Warn(ctx context.Context, msg string, fields ...Field) {
	s.l.LogAttrs(ctx, slog.LevelWarn, msg, toAttrs(fields...)...)
}

func (s *slogger) Error(ctx context.Context, msg string, fields ...Field) {
	s.l.LogAttrs(ctx, slog.LevelError, msg, toAttrs(fields...)...)
}

type noopLogger struct{}

func (noopLogger) With(fields ...Field) Logger             { return noopLogger{} }
func (noopLogger) Debug(context.Context, string, ...Field) {}
func (noopLogger) Info(context.Context, string, ...Field)  {}
func (noopLogger) Warn(context.Context, string, ...Field)  {}
func (noopLogger) Error(context.Context, string, ...Field) {}

func toAttrs(fields ...Field) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(fields))
	for _, f := range fields {
		attrs = append(attrs, slog.Any(f.Key, f.Value))
	}
	return attrs
}

func toArgs(fields ...Field) []any {
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		args = append(args, slog.Any(f.Key, f.Value))
	}
	return args
}

func parseLevel(level string) slog.Leveler {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ---- Run-scoped helpers ----

type ctxKey string

const (
	runIDKey  ctxKey = "run_id"
	loggerKey ctxKey = "logger"
)

// EnsureRunID attaches a run_id to the context if absent and returns the
// updated context plus the ID.
func EnsureRunID(ctx context.Context) (context.Context, string) {
	if ctx == nil {
		ctx = context.Background()
	}
	if id := RunIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return ContextWithRunID(ctx, id), id
}

// ContextWithRunID stores run_id in context.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts run_id from context.
func RunIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(runIDKey).(string); ok {
		return v
	}
	return ""
}

// WithRunLogger ensures a run_id exists, and returns the updated context
// alongside a logger annotated with that ID.
func WithRunLogger(ctx context.Context, base Logger) (context.Context, Logger) {
	if base == nil {
		base = Noop()
	}
	ctx, id := EnsureRunID(ctx)
	return ctx, base.With(String("run_id", id))
}

// ContextWithLogger stores a logger on the context.
func ContextWithLogger(ctx context.Context, l Logger) context.Context {
	if l == nil {
		l = Noop()
	}
	return context.WithValue(ctx, loggerKey, l)
}

// LoggerFromContext fetches a logger from context if present; otherwise it
// returns nil.
func LoggerFromContext(ctx context.Context) Logger {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(loggerKey).(Logger); ok {
		return v
	}
	return nil
}
