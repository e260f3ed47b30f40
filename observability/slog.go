package observability

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// LevelVerbose sits below slog's debug level so that handlers configured with
// it let everything through.
const LevelVerbose = slog.Level(-8)

type slogLogger struct {
	l *slog.Logger
}

// NewSlogLogger adapts a slog.Logger to the Logger interface.
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return slogLogger{l: l}
}

func (s slogLogger) log(level slog.Level, msg string, fields []Field) {
	ctx := context.Background()
	if !s.l.Enabled(ctx, level) {
		return
	}
	s.l.LogAttrs(ctx, level, msg, attrs(fields)...)
}

func (s slogLogger) Debug(msg string, fields ...Field) { s.log(slog.LevelDebug, msg, fields) }
func (s slogLogger) Info(msg string, fields ...Field)  { s.log(slog.LevelInfo, msg, fields) }
func (s slogLogger) Warn(msg string, fields ...Field)  { s.log(slog.LevelWarn, msg, fields) }
func (s slogLogger) Error(msg string, fields ...Field) { s.log(slog.LevelError, msg, fields) }

func (s slogLogger) With(fields ...Field) Logger {
	args := make([]any, 0, len(fields))
	for _, a := range attrs(fields) {
		args = append(args, a)
	}
	return slogLogger{l: s.l.With(args...)}
}

func attrs(fields []Field) []slog.Attr {
	out := make([]slog.Attr, 0, len(fields))
	for _, f := range fields {
		switch v := f.Value().(type) {
		case string:
			out = append(out, slog.String(f.Key(), v))
		case int:
			out = append(out, slog.Int(f.Key(), v))
		case int64:
			out = append(out, slog.Int64(f.Key(), v))
		case float64:
			out = append(out, slog.Float64(f.Key(), v))
		case bool:
			out = append(out, slog.Bool(f.Key(), v))
		case time.Duration:
			out = append(out, slog.Duration(f.Key(), v))
		case error:
			out = append(out, slog.String(f.Key(), v.Error()))
		case nil:
			out = append(out, slog.Any(f.Key(), nil))
		default:
			out = append(out, slog.Any(f.Key(), v))
		}
	}
	return out
}

// ParseLevel maps the job-level debug setting onto a slog level. "verbose"
// enables everything including per-cut planning messages.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "verbose", "trace":
		return LevelVerbose, nil
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
