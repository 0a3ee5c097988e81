package logging_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/raysh454/nexus/internal/logging"
)

func TestZapLogger_WritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	l, err := logging.New("scorer", logging.Options{Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	l.Info("analyzed", logging.F("size", 12), logging.F("error", errors.New("boom")))

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if entry["msg"] != "analyzed" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["component"] != "scorer" {
		t.Errorf("component = %v", entry["component"])
	}
	if entry["error"] != "boom" {
		t.Errorf("error field = %v", entry["error"])
	}
}

func TestZapLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l, err := logging.New("", logging.Options{Level: "warn", Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info("hidden")
	l.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line written at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn line missing: %s", out)
	}
}

func TestZapLogger_WithKeepsFields(t *testing.T) {
	var buf bytes.Buffer
	l, _ := logging.New("root", logging.Options{Output: &buf})
	child := l.With(logging.F("job_id", "abc"))
	child.Info("tick")

	if !strings.Contains(buf.String(), `"job_id":"abc"`) {
		t.Errorf("child field missing: %s", buf.String())
	}
}

func TestParseLevel_Unknown(t *testing.T) {
	if _, err := logging.ParseLevel("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
