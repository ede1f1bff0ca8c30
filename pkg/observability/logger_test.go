package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/michaelayoade/dotmac-framework-sub001/pkg/contextkeys"
)

// LogEntry decodes a slog JSON line, collecting non-standard keys in Fields.
type LogEntry struct {
	Time    string
	Level   string
	Message string
	Fields  map[string]any
}

func (e *LogEntry) UnmarshalJSON(data []byte) error {
	raw := map[string]any{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Fields = make(map[string]any)
	for k, v := range raw {
		switch k {
		case "time":
			e.Time, _ = v.(string)
		case "level":
			e.Level, _ = v.(string)
		case "msg":
			e.Message, _ = v.(string)
		default:
			e.Fields[k] = v
		}
	}
	return nil
}

func lastEntry(t *testing.T, buf *bytes.Buffer) LogEntry {
	t.Helper()
	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("not a JSON log line %q: %v", buf.String(), err)
	}
	return entry
}

func TestLogger_Slog(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.Slog().Error("direct slog write", "component", "recovery")

	entry := lastEntry(t, &buf)
	if entry.Message != "direct slog write" {
		t.Errorf("message = %q, want %q", entry.Message, "direct slog write")
	}
	if entry.Fields["component"] != "recovery" {
		t.Errorf("component field = %v, want recovery", entry.Fields["component"])
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WarnLevel, &buf)

	steps := []struct {
		name    string
		emit    func()
		written bool
	}{
		{"debug suppressed", func() { logger.Debug("sweep starting") }, false},
		{"info suppressed", func() { logger.Info("sweep starting") }, false},
		{"warn written", func() { logger.Warn("sweep slow") }, true},
		{"error written", func() { logger.Error("sweep failed") }, true},
	}
	for _, tt := range steps {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.emit()
			if got := buf.Len() > 0; got != tt.written {
				t.Errorf("wrote = %v, want %v", got, tt.written)
			}
		})
	}
}

func TestLogger_EntryShape(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(InfoLevel, &buf).Info("session created")

	entry := lastEntry(t, &buf)
	if entry.Level != "INFO" {
		t.Errorf("level = %q, want INFO", entry.Level)
	}
	if entry.Message != "session created" {
		t.Errorf("message = %q, want session created", entry.Message)
	}
	if entry.Time == "" {
		t.Error("entry should carry a timestamp")
	}
}

func TestLogger_Formatf(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DebugLevel, &buf)

	calls := []struct {
		name string
		emit func()
		want string
	}{
		{"Debugf", func() { logger.Debugf("sweep removed %d sessions", 3) }, "sweep removed 3 sessions"},
		{"Infof", func() { logger.Infof("listening on %s", ":8443") }, "listening on :8443"},
		{"Warnf", func() { logger.Warnf("retry %d of %d", 2, 5) }, "retry 2 of 5"},
		{"Errorf", func() { logger.Errorf("revocation store: %v", "unreachable") }, "revocation store: unreachable"},
	}
	for _, tt := range calls {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.emit()
			if entry := lastEntry(t, &buf); entry.Message != tt.want {
				t.Errorf("message = %q, want %q", entry.Message, tt.want)
			}
		})
	}
}

func TestLogger_Fields(t *testing.T) {
	t.Run("WithField", func(t *testing.T) {
		var buf bytes.Buffer
		NewLogger(InfoLevel, &buf).WithField("session_id", "s1").Info("touched")

		if entry := lastEntry(t, &buf); entry.Fields["session_id"] != "s1" {
			t.Errorf("session_id = %v, want s1", entry.Fields["session_id"])
		}
	})

	t.Run("WithFields", func(t *testing.T) {
		var buf bytes.Buffer
		NewLogger(InfoLevel, &buf).WithFields(map[string]any{
			"tenant_id": "t1",
			"attempt":   2,
		}).Info("retrying")

		entry := lastEntry(t, &buf)
		if entry.Fields["tenant_id"] != "t1" {
			t.Errorf("tenant_id = %v, want t1", entry.Fields["tenant_id"])
		}
		if entry.Fields["attempt"] != float64(2) {
			t.Errorf("attempt = %v, want 2", entry.Fields["attempt"])
		}
	})

	t.Run("WithFields emits keys sorted", func(t *testing.T) {
		var buf bytes.Buffer
		NewLogger(InfoLevel, &buf).WithFields(map[string]any{
			"zone":  "z",
			"actor": "a",
			"mode":  "m",
		}).Info("ordered")

		line := buf.String()
		actor, mode, zone := strings.Index(line, `"actor"`), strings.Index(line, `"mode"`), strings.Index(line, `"zone"`)
		if actor < 0 || mode < 0 || zone < 0 {
			t.Fatalf("line is missing a field: %s", line)
		}
		if !(actor < mode && mode < zone) {
			t.Errorf("fields out of order in %s", line)
		}
	})

	t.Run("WithError", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(InfoLevel, &buf)

		readErr := strings.NewReader("x").UnreadByte()
		logger.WithError(readErr).Error("session load failed")

		if entry := lastEntry(t, &buf); entry.Fields["error"] == nil {
			t.Error("error field should be present")
		}
	})

	t.Run("WithError nil keeps the receiver", func(t *testing.T) {
		logger := NewLogger(InfoLevel, nil)
		if logger.WithError(nil) != logger {
			t.Error("nil error should not allocate a new logger")
		}
	})
}

func TestContextHelpers(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		logger := NewLogger(InfoLevel, nil)
		ctx := WithLogger(context.Background(), logger)

		if got := GetLogger(ctx); got != logger {
			t.Error("expected the stored logger back from the context")
		}
	})

	t.Run("fallback is shared", func(t *testing.T) {
		first := GetLogger(context.Background())
		if first == nil {
			t.Fatal("expected a fallback logger, got nil")
		}
		if second := GetLogger(context.Background()); second != first {
			t.Error("fallback logger should be built once and reused")
		}
	})

	t.Run("FromContext enriches with identity", func(t *testing.T) {
		var buf bytes.Buffer
		ctx := WithLogger(context.Background(), NewLogger(InfoLevel, &buf))
		ctx = contextkeys.WithRequestID(ctx, "req-123")
		ctx = contextkeys.WithUserID(ctx, "user-456")
		ctx = contextkeys.WithTenantID(ctx, "tenant-789")

		FromContext(ctx).Info("authorized")

		entry := lastEntry(t, &buf)
		if entry.Fields["request_id"] != "req-123" {
			t.Errorf("request_id = %v, want req-123", entry.Fields["request_id"])
		}
		if entry.Fields["user_id"] != "user-456" {
			t.Errorf("user_id = %v, want user-456", entry.Fields["user_id"])
		}
		if entry.Fields["tenant_id"] != "tenant-789" {
			t.Errorf("tenant_id = %v, want tenant-789", entry.Fields["tenant_id"])
		}
	})

	t.Run("FromContext omits absent identity", func(t *testing.T) {
		var buf bytes.Buffer
		ctx := WithLogger(context.Background(), NewLogger(InfoLevel, &buf))

		FromContext(ctx).Info("bare message")

		entry := lastEntry(t, &buf)
		for _, key := range []string{"request_id", "user_id", "tenant_id"} {
			if _, exists := entry.Fields[key]; exists {
				t.Errorf("expected %s to be absent, got %v", key, entry.Fields[key])
			}
		}
	})
}

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
		{LogLevel(-3), "DEBUG"},
		{LogLevel(9), "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
