package types

import (
	"context"
	"testing"
)

// mockLogger implements the Logger interface for testing purposes.
type mockLogger struct {
	messages []string
}

func (m *mockLogger) Debug(msg string, args ...any) { m.messages = append(m.messages, "debug:"+msg) }
func (m *mockLogger) Info(msg string, args ...any)  { m.messages = append(m.messages, "info:"+msg) }
func (m *mockLogger) Warn(msg string, args ...any)  { m.messages = append(m.messages, "warn:"+msg) }
func (m *mockLogger) Error(msg string, args ...any) { m.messages = append(m.messages, "error:"+msg) }
func (m *mockLogger) With(args ...any) Logger       { return m }

func TestWithRequestID_GetRequestID(t *testing.T) {
	t.Run("round-trip stores and retrieves request ID", func(t *testing.T) {
		id := "req-abc-123-def-456"
		ctx := WithRequestID(context.Background(), id)
		got := GetRequestID(ctx)
		if got != id {
			t.Errorf("got %q, want %q", got, id)
		}
	})

	t.Run("returns empty string when no request ID in context", func(t *testing.T) {
		got := GetRequestID(context.Background())
		if got != "" {
			t.Errorf("expected empty string, got %q", got)
		}
	})

	t.Run("handles empty request ID", func(t *testing.T) {
		ctx := WithRequestID(context.Background(), "")
		got := GetRequestID(ctx)
		if got != "" {
			t.Errorf("expected empty string, got %q", got)
		}
	})
}

func TestWithLogger_LoggerFromContext(t *testing.T) {
	t.Run("round-trip stores and retrieves logger", func(t *testing.T) {
		logger := &mockLogger{}
		ctx := WithLogger(context.Background(), logger)
		got := LoggerFromContext(ctx)
		if got == nil {
			t.Fatal("expected non-nil logger")
		}
		// Verify it is the same logger by calling a method and checking side-effects.
		got.Info("test message")
		if len(logger.messages) != 1 || logger.messages[0] != "info:test message" {
			t.Errorf("unexpected messages: %v", logger.messages)
		}
	})

	t.Run("returns nil when no logger in context", func(t *testing.T) {
		got := LoggerFromContext(context.Background())
		if got != nil {
			t.Error("expected nil logger for empty context")
		}
	})
}

func TestContextKeys_ArePrivate(t *testing.T) {
	// Verify that using a plain string key does not collide with the typed contextKey.
	// This ensures the unexported contextKey type provides collision protection.
	ctx := context.WithValue(context.Background(), "request_id", "should-not-match")
	got := GetRequestID(ctx)
	if got != "" {
		t.Errorf("expected empty string due to key type mismatch, got %q", got)
	}

	ctx = context.WithValue(context.Background(), "logger", &mockLogger{})
	l := LoggerFromContext(ctx)
	if l != nil {
		t.Error("expected nil logger due to key type mismatch")
	}
}

func TestContextValues_DoNotInterfere(t *testing.T) {
	// Verify that setting multiple context values does not interfere with each other.
	logger := &mockLogger{}
	reqID := "req-xyz"

	ctx := context.Background()
	ctx = WithRequestID(ctx, reqID)
	ctx = WithLogger(ctx, logger)

	gotReqID := GetRequestID(ctx)
	if gotReqID != reqID {
		t.Errorf("request ID: got %q, want %q", gotReqID, reqID)
	}

	gotLogger := LoggerFromContext(ctx)
	if gotLogger == nil {
		t.Fatal("expected logger to be present")
	}
}
