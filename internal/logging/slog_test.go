package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func newTestLogger(t *testing.T) (*SlogLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	return NewSlogLogger(slog.New(h)), &buf
}

func TestSlogLogger_Levels_WriteExpectedOutput(t *testing.T) {
	log, buf := newTestLogger(t)
	ctx := context.Background()

	log.Debug(ctx, "dbg", "a", 1)
	log.Info(ctx, "inf", "b", 2)
	log.Warn(ctx, "wrn", "c", 3)
	log.Error(ctx, "err", "d", 4)

	out := buf.String()

	tests := []struct {
		level string
		msg   string
		key   string
		val   string
	}{
		{"DEBUG", "dbg", "a", "1"},
		{"INFO", "inf", "b", "2"},
		{"WARN", "wrn", "c", "3"},
		{"ERROR", "err", "d", "4"},
	}

	for _, tt := range tests {
		if !strings.Contains(out, "level="+tt.level) {
			t.Fatalf("expected output to contain level=%s, got:\n%s", tt.level, out)
		}
		if !strings.Contains(out, "msg="+tt.msg) {
			t.Fatalf("expected output to contain msg=%s, got:\n%s", tt.msg, out)
		}
		if !strings.Contains(out, tt.key+"="+tt.val) {
			t.Fatalf("expected output to contain %s=%s, got:\n%s", tt.key, tt.val, out)
		}
	}
}

func TestSlogLogger_With_AddsPersistentFields(t *testing.T) {
	log, buf := newTestLogger(t)
	child := log.With("queue", "uploads")

	child.Info(context.Background(), "run finished")

	out := buf.String()
	if !strings.Contains(out, "queue=uploads") {
		t.Fatalf("expected persistent field queue=uploads, got:\n%s", out)
	}
}

func TestNop_ImplementsLogger(t *testing.T) {
	var l Logger = Nop{}
	l.Info(context.Background(), "ignored")
	if _, ok := l.With("k", "v").(Nop); !ok {
		t.Fatalf("expected Nop.With to return Nop")
	}
}
