package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// newTestLogger builds a logger writing into a buffer for inspection.
func newTestLogger(minLevel LogLevel) (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return &Logger{out: buf, minLevel: minLevel}, buf
}

// decodeEntry parses the single JSON line written by the logger.
func decodeEntry(t *testing.T, buf *bytes.Buffer) LogEntry {
	t.Helper()
	var entry LogEntry
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("failed to decode log entry %q: %v", buf.String(), err)
	}
	return entry
}

// TestLogger_levelFiltering verifies entries below the minimum level
// are suppressed.
func TestLogger_levelFiltering(t *testing.T) {
	logger, buf := newTestLogger(LevelWarn)

	logger.Debug("debug message")
	logger.Info("info message")
	if buf.Len() != 0 {
		t.Errorf("entries below min level were written: %s", buf.String())
	}

	logger.Warn("warn message")
	if buf.Len() == 0 {
		t.Error("warn entry was suppressed at warn level")
	}
}

// TestLogger_entryStructure verifies the JSON shape of an entry.
func TestLogger_entryStructure(t *testing.T) {
	logger, buf := newTestLogger(LevelDebug)

	logger.Info("sync pass finished", map[string]interface{}{
		"successful": 3,
		"failed":     1,
	})

	entry := decodeEntry(t, buf)
	if entry.Level != "INFO" {
		t.Errorf("level = %s, want INFO", entry.Level)
	}
	if entry.Message != "sync pass finished" {
		t.Errorf("message = %s, want sync pass finished", entry.Message)
	}
	if entry.Timestamp == "" {
		t.Error("timestamp missing")
	}
	if entry.Context["failed"] != float64(1) {
		t.Errorf("context = %v, want failed=1", entry.Context)
	}
}

// TestLogger_errorWithCode verifies the error and code fields.
func TestLogger_errorWithCode(t *testing.T) {
	logger, buf := newTestLogger(LevelDebug)

	logger.ErrorWithCode("record sync failed", "SYNC_TIMEOUT",
		errors.New("deadline exceeded"), map[string]interface{}{"record_id": "a"})

	entry := decodeEntry(t, buf)
	if entry.Code != "SYNC_TIMEOUT" {
		t.Errorf("code = %s, want SYNC_TIMEOUT", entry.Code)
	}
	if entry.Error != "deadline exceeded" {
		t.Errorf("error = %s, want deadline exceeded", entry.Error)
	}
}

// TestLogger_mergedContext verifies multiple context maps merge into one.
func TestLogger_mergedContext(t *testing.T) {
	logger, buf := newTestLogger(LevelDebug)

	logger.Info("merged",
		map[string]interface{}{"a": "1"},
		map[string]interface{}{"b": "2"})

	entry := decodeEntry(t, buf)
	if entry.Context["a"] != "1" || entry.Context["b"] != "2" {
		t.Errorf("context = %v, want both keys merged", entry.Context)
	}
}

// TestLogger_oneLinePerEntry verifies entries are newline-delimited JSON.
func TestLogger_oneLinePerEntry(t *testing.T) {
	logger, buf := newTestLogger(LevelDebug)

	logger.Info("first")
	logger.Info("second")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
}
