package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
)

func newCapturedLogger() (*bytes.Buffer, ServiceLogger) {
	buf := &bytes.Buffer{}
	handler := slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return buf, NewSlogServiceLogger(slog.New(handler))
}

func TestSlogServiceLoggerWritesFields(t *testing.T) {
	buf, logger := newCapturedLogger()

	logger.Info("call finished", LogFields{"path": "users/get"})

	out := buf.String()
	if !strings.Contains(out, "call finished") {
		t.Fatalf("expected message in output, got %q", out)
	}
	if !strings.Contains(out, "path=users/get") {
		t.Fatalf("expected field in output, got %q", out)
	}
}

func TestSlogServiceLoggerErrorIncludesCause(t *testing.T) {
	buf, logger := newCapturedLogger()

	logger.Error("call failed", errors.New("boom"), LogFields{"path": "users/get"})

	out := buf.String()
	if !strings.Contains(out, "error=boom") {
		t.Fatalf("expected error field in output, got %q", out)
	}
}

func TestWithReturnsDerivedLogger(t *testing.T) {
	buf, logger := newCapturedLogger()

	derived := logger.With(LogFields{"transport": "http"})
	derived.Debug("decoded request", nil)

	if !strings.Contains(buf.String(), "transport=http") {
		t.Fatalf("expected inherited field, got %q", buf.String())
	}
}

func TestWatermillAdapterRoundTrip(t *testing.T) {
	buf, logger := newCapturedLogger()
	adapter := NewWatermillAdapter(logger)

	adapter.Info("subscribed", watermill.LogFields{"topic": "rpc.requests"})
	adapter.With(watermill.LogFields{"component": "bus"}).Debug("pulling", nil)

	out := buf.String()
	if !strings.Contains(out, "topic=rpc.requests") {
		t.Fatalf("expected topic field, got %q", out)
	}
	if !strings.Contains(out, "component=bus") {
		t.Fatalf("expected derived field, got %q", out)
	}
}

func TestNopLoggerDoesNothing(t *testing.T) {
	logger := Nop()
	logger.Info("ignored", nil)
	logger.Error("ignored", errors.New("x"), nil)
	if derived := logger.With(LogFields{"k": "v"}); derived == nil {
		t.Fatal("expected derived nop logger")
	}
}
