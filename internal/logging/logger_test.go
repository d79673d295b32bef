// Package logging tests for structured JSON logging.
package logging

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
)

func newBufLogger(min LogLevel) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return &Logger{out: &buf, minLevel: min}, &buf
}

// TestInit_idempotent verifies a second Init is ignored.
func TestInit_idempotent(t *testing.T) {
	global = nil
	once = *new(sync.Once)

	var buf1, buf2 bytes.Buffer
	Init(&buf1, LevelInfo)
	first := Get()

	Init(&buf2, LevelDebug)
	if Get() != first {
		t.Error("second Init() should be ignored")
	}
}

// TestLog_jsonShape verifies entries are one JSON object per line with
// level, message, error and context.
func TestLog_jsonShape(t *testing.T) {
	l, buf := newBufLogger(LevelDebug)

	l.Error("store operation failed", stderrors.New("disk full"),
		map[string]interface{}{"todo_id": "abc", "attempt": 2})

	line := strings.TrimSpace(buf.String())
	var entry LogEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("output is not JSON: %v: %q", err, line)
	}

	if entry.Level != "ERROR" {
		t.Errorf("level = %q, want ERROR", entry.Level)
	}
	if entry.Message != "store operation failed" {
		t.Errorf("message = %q", entry.Message)
	}
	if entry.Error != "disk full" {
		t.Errorf("error = %q", entry.Error)
	}
	if entry.Context["todo_id"] != "abc" {
		t.Errorf("context = %v", entry.Context)
	}
	if entry.Timestamp == "" {
		t.Error("timestamp missing")
	}
}

// TestLog_levelFiltering verifies entries below the minimum level are
// dropped.
func TestLog_levelFiltering(t *testing.T) {
	l, buf := newBufLogger(LevelWarn)

	l.Debug("dropped")
	l.Info("dropped too")
	l.Warn("kept")
	l.Error("kept", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Errorf("lines = %d, want 2: %q", len(lines), buf.String())
	}
}

// TestMergeContext verifies later maps win on key collisions.
func TestMergeContext(t *testing.T) {
	merged := mergeContext(
		map[string]interface{}{"a": 1, "b": 1},
		map[string]interface{}{"b": 2},
	)
	if merged["a"] != 1 || merged["b"] != 2 {
		t.Errorf("merged = %v", merged)
	}

	if mergeContext() != nil {
		t.Error("no context should merge to nil")
	}
}

// TestParseLevel verifies config strings map to levels.
func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   LevelDebug,
		"info":    LevelInfo,
		"warn":    LevelWarn,
		"error":   LevelError,
		"unknown": LevelInfo,
		"":        LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
