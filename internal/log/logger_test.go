package log

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/specsync/specsync/internal/errors"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{
		Level:  LevelInfo,
		Format: FormatJSON,
		Output: NewOutput(&buf),
	})

	logger.Info("sync started", "tasks", 12)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}

	if entry["msg"] != "sync started" {
		t.Errorf("expected msg 'sync started', got %v", entry["msg"])
	}

	if entry["tasks"] != float64(12) {
		t.Errorf("expected tasks=12, got %v", entry["tasks"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{
		Level:  LevelWarn,
		Format: FormatText,
		Output: NewOutput(&buf),
	})

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("messages below warn should be filtered, got: %s", out)
	}
	if !strings.Contains(out, "warn message") {
		t.Errorf("warn message should be logged, got: %s", out)
	}
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{
		Level:  LevelInfo,
		Format: FormatJSON,
		Output: NewOutput(&buf),
	})

	err := errors.New(errors.ErrCodeRemoteRateLimit, "rate limited").
		WithSuggestion("wait before retrying")
	logger.WithError(err).Warn("remote call deferred")

	out := buf.String()
	if !strings.Contains(out, "REMOTE-002") {
		t.Errorf("expected error code in output, got: %s", out)
	}
	if !strings.Contains(out, "wait before retrying") {
		t.Errorf("expected suggestion in output, got: %s", out)
	}
}

func TestParseLevelAndFormat(t *testing.T) {
	if ParseLevel("debug") != LevelDebug {
		t.Error("ParseLevel(debug) failed")
	}
	if ParseLevel("bogus") != LevelInfo {
		t.Error("ParseLevel should default to info")
	}
	if ParseFormat("json") != FormatJSON {
		t.Error("ParseFormat(json) failed")
	}
	if ParseFormat("anything") != FormatText {
		t.Error("ParseFormat should default to text")
	}
}

func TestEnabled(t *testing.T) {
	logger := New(Config{Level: LevelWarn, Format: FormatText, Output: OutputStderr()})

	if logger.Enabled(context.Background(), LevelDebug) {
		t.Error("debug should not be enabled at warn level")
	}
	if !logger.Enabled(context.Background(), LevelError) {
		t.Error("error should be enabled at warn level")
	}
}
