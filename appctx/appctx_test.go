package appctx

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggerRoundTrip(t *testing.T) {
	base := context.Background()

	if _, ok := LoggerFromContext(base); ok {
		t.Fatal("empty context should carry no logger")
	}
	if GetLogger(base) == nil {
		t.Fatal("GetLogger must fall back to the default logger")
	}

	l := slog.Default().With("component", "test")
	ctx := WithLogger(base, l)

	got, ok := LoggerFromContext(ctx)
	if !ok || got != l {
		t.Fatal("attached logger not returned")
	}
	if GetLogger(ctx) != l {
		t.Fatal("GetLogger should prefer the attached logger")
	}
}

func TestWithAddsAttributes(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), slog.New(slog.NewTextHandler(&buf, nil)))
	ctx = With(ctx, "project_id", "proj-1")

	GetLogger(ctx).Info("saved")
	if out := buf.String(); !strings.Contains(out, "project_id=proj-1") {
		t.Fatalf("attribute not carried: %s", out)
	}
}
