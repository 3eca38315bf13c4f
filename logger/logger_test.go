package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"btcpulse/config"
)

// go test -v --run ^TestNewInvalidLevel$
func TestNewInvalidLevel(t *testing.T) {
	if _, err := New(config.LogConfig{Level: "loud"}); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

// go test -v --run ^TestBuildJSON$
func TestBuildJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := build(config.LogConfig{Level: "info", Format: "json", Environment: "prod"}, &buf)
	if err != nil {
		t.Fatalf("build returned error: %v", err)
	}

	log.Debug("hidden")
	log.Info("stream connected")
	_ = log.Sync()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line at info level, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["msg"] != "stream connected" || entry["env"] != "prod" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

// go test -v --run ^TestBuildFileOutput$
func TestBuildFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "btcpulse.log")

	var buf bytes.Buffer
	log, err := build(config.LogConfig{Level: "debug", Format: "console", OutputFile: path}, &buf)
	if err != nil {
		t.Fatalf("build returned error: %v", err)
	}
	log.Info("written to file")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not created: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("log file missing entry: %s", data)
	}
	if !strings.Contains(buf.String(), "written to file") {
		t.Errorf("stdout core missing entry: %s", buf.String())
	}
}
