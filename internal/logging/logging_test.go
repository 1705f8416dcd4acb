package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/Wyydra/agentcall/internal/config"
)

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(config.LogConfig{Level: "info", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Debug().Msg("hidden")
	l.Info().Str("conn_id", "c1").Msg("Client attached")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line above debug level, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if entry["message"] != "Client attached" || entry["conn_id"] != "c1" || entry["level"] != "info" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Fatal("missing timestamp")
	}
}

func TestConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(config.LogConfig{Level: "debug", Format: "console"}, &buf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Debug().Msg("Queued remote candidate")
	if !strings.Contains(buf.String(), "Queued remote candidate") {
		t.Fatalf("missing message in %q", buf.String())
	}
	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Fatal("console output should not be JSON")
	}
}

func TestBadLevel(t *testing.T) {
	if _, err := New(config.LogConfig{Level: "loud", Format: "json"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
