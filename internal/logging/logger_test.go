package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestInitAndForComponent(t *testing.T) {
	dir := t.TempDir()
	Init(Config{LogDir: dir, Level: "debug", Debug: true})
	defer Shutdown()

	log := ForComponent(CompRecon)
	log.Info("pass_complete", slog.Int("sessions", 3))

	data, err := os.ReadFile(filepath.Join(dir, "statusdeck.log"))
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}

	var rec map[string]any
	if err := json.Unmarshal(data[:len(data)-1], &rec); err != nil {
		t.Fatalf("log line is not valid JSON: %v", err)
	}
	if rec["component"] != CompRecon {
		t.Errorf("expected component %q, got %v", CompRecon, rec["component"])
	}
	if rec["msg"] != "pass_complete" {
		t.Errorf("expected msg pass_complete, got %v", rec["msg"])
	}
}

func TestForComponentBeforeInit(t *testing.T) {
	Shutdown()

	// Created before Init; must pick up the real handler afterwards.
	log := ForComponent(CompIngest)

	dir := t.TempDir()
	Init(Config{LogDir: dir, Debug: true})
	defer Shutdown()

	log.Info("event_applied")

	data, err := os.ReadFile(filepath.Join(dir, "statusdeck.log"))
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("pre-Init component logger produced no output after Init")
	}
}

func TestDiscardWhenNoDirAndNotDebug(t *testing.T) {
	Shutdown()
	Init(Config{})
	defer Shutdown()

	// Must not panic and must not create files anywhere visible.
	ForComponent(CompQuery).Warn("dropped")
}

func TestAggregatorFlush(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "agg.log")
	f, err := os.Create(logPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	logger := slog.New(slog.NewJSONHandler(f, nil))
	agg := NewAggregator(logger, 1)
	agg.Start()

	agg.Record(CompRecon, "pass", slog.Int("sessions", 4))
	agg.Record(CompRecon, "pass", slog.Int("sessions", 5))
	agg.Record(CompProbe, "probe_miss")

	time.Sleep(1500 * time.Millisecond)
	agg.Stop()
	_ = f.Sync()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}

	var records []map[string]any
	start := 0
	for i, b := range data {
		if b == '\n' {
			var r map[string]any
			if err := json.Unmarshal(data[start:i], &r); err == nil {
				records = append(records, r)
			}
			start = i + 1
		}
	}

	if len(records) < 2 {
		t.Fatalf("expected at least 2 summary records, got %d", len(records))
	}

	found := false
	for _, r := range records {
		if r["event"] == "pass" {
			found = true
			if r["count"] != float64(2) {
				t.Errorf("expected count 2 for pass, got %v", r["count"])
			}
			if r["sessions"] != float64(5) {
				t.Errorf("expected last-writer sessions=5, got %v", r["sessions"])
			}
		}
	}
	if !found {
		t.Fatal("pass summary record not found")
	}
}
