package telemetry

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/google/uuid"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestScopedLoggers(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	runID := uuid.New()
	log := WithPipeline(WithTaskID(WithRunID(base, runID), "extract"), "daily")
	log.Info("task attempt started")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}

	if entry["run_id"] != runID.String() {
		t.Errorf("run_id = %v, want %s", entry["run_id"], runID)
	}
	if entry["task_id"] != "extract" {
		t.Errorf("task_id = %v, want extract", entry["task_id"])
	}
	if entry["pipeline"] != "daily" {
		t.Errorf("pipeline = %v, want daily", entry["pipeline"])
	}
}
