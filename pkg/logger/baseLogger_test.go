package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestBaseLoggerPrefix(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, "[Sync]")
	child := l.WithPrefix("[Run]")

	child.Log("processed %d items", 3)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v, want info", entry["level"])
	}
	if msg, _ := entry["message"].(string); msg != "[Sync] [Run] processed 3 items" {
		t.Errorf("message = %q", msg)
	}
}

func TestBaseLoggerError(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, "")
	l.Error("boom: %s", "x")

	if !strings.Contains(buf.String(), `"level":"error"`) {
		t.Errorf("expected error level, got %s", buf.String())
	}
	if !strings.Contains(buf.String(), "boom: x") {
		t.Errorf("expected message, got %s", buf.String())
	}
}
