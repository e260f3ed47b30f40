package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestNopTracer(t *testing.T) {
	tracer := NopTracer()
	ctx := context.Background()
	ctx2, span := tracer.StartSpan(ctx, "test")
	if ctx2 != ctx {
		t.Fatalf("nop tracer should return same context")
	}
	span.SetTag("key", "value")
	span.SetError(nil)
	span.Finish()
}

func TestOtelTracerWithoutProvider(t *testing.T) {
	tracer := NewOtelTracer("")
	_, span := tracer.StartSpan(context.Background(), "job")
	span.SetTag(AttrPage, 3)
	span.SetTag(AttrDurationMs, 12*time.Millisecond)
	span.SetError(errors.New("boom"))
	span.Finish()
}

func TestSlogLoggerWritesTypedFields(t *testing.T) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	log := NewSlogLogger(slog.New(h)).With(String(AttrJobID, "j-1"))

	log.Info("page done",
		Int(AttrPage, 2),
		Float64("eta", 1500.5),
		Bool("debug", false),
		Duration("elapsed", 2*time.Second),
		Error("err", errors.New("bad")),
	)

	out := buf.String()
	for _, want := range []string{"msg=\"page done\"", "job_id=j-1", "page=2", "eta=1500.5", "debug=false", "elapsed=2s", "err=bad"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output %q missing %q", out, want)
		}
	}
}

func TestSlogLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})
	log := NewSlogLogger(slog.New(h))
	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("shown")
	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("messages below level were written: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("warn message missing: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
		err  bool
	}{
		{"verbose", LevelVerbose, false},
		{"DEBUG", slog.LevelDebug, false},
		{"", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tc := range cases {
		got, err := ParseLevel(tc.in)
		if (err != nil) != tc.err {
			t.Fatalf("ParseLevel(%q) err = %v, want err %v", tc.in, err, tc.err)
		}
		if got != tc.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
