package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDumpDevices(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "found_devices.json")
	doc := `{
  "123_45678": {
    "device_id": 45678,
    "device_type": 123,
    "description": "Bike Speed Sensor",
    "manufacturer_name": "Garmin/Dynastream",
    "last_seen": 1767268800
  },
  "120_12345": {
    "device_id": 12345,
    "device_type": 120,
    "description": "Heart Rate Monitor"
  }
}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := dumpDevices(path, &buf); err != nil {
		t.Fatalf("dumpDevices: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines: got %d, want 2\n%s", len(lines), buf.String())
	}
	// Sorted by key: 120_12345 before 123_45678.
	if !strings.HasPrefix(lines[0], "120_12345: Heart Rate Monitor") {
		t.Errorf("line 0: got %q", lines[0])
	}
	if !strings.Contains(lines[1], "Bike Speed Sensor (Garmin/Dynastream)") {
		t.Errorf("line 1: got %q", lines[1])
	}
	wantSeen := time.Unix(1767268800, 0).UTC().Format(time.RFC3339)
	if !strings.Contains(lines[1], wantSeen) {
		t.Errorf("line 1 missing last seen %q: %q", wantSeen, lines[1])
	}
}

func TestDumpDevicesMissingFile(t *testing.T) {
	if err := dumpDevices(filepath.Join(t.TempDir(), "nope.json"), &bytes.Buffer{}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDumpDevicesMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte("not json"), 0o644)
	if err := dumpDevices(path, &bytes.Buffer{}); err == nil {
		t.Error("expected error for malformed document")
	}
}

func TestRunRequiresReplayTransport(t *testing.T) {
	dir := t.TempDir()
	err := run(
		filepath.Join(dir, "sensor.yaml"),
		filepath.Join(dir, "app.yaml"),
		"",
		filepath.Join(dir, "manufacturers.yaml"),
		filepath.Join(dir, "found.json"),
		"", // no replay log
		"", "", 500*time.Millisecond,
	)
	if err == nil {
		t.Fatal("expected error without a transport")
	}
	if !strings.Contains(err.Error(), "-replay") {
		t.Errorf("error should point at -replay: %v", err)
	}
}

func TestRunMissingReplayLog(t *testing.T) {
	dir := t.TempDir()
	err := run(
		filepath.Join(dir, "sensor.yaml"),
		filepath.Join(dir, "app.yaml"),
		"",
		filepath.Join(dir, "manufacturers.yaml"),
		filepath.Join(dir, "found.json"),
		filepath.Join(dir, "frames.log"),
		"", "", 500*time.Millisecond,
	)
	if err == nil {
		t.Fatal("expected error for missing replay log")
	}
	if !strings.Contains(err.Error(), "replay log") {
		t.Errorf("error should mention the replay log: %v", err)
	}
}
