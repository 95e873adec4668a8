package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestLoggerTagsService(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "api", "info")
	logger.Info("ride created", "ride_id", "r1")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	if rec["service"] != "api" {
		t.Fatalf("service = %v, want api", rec["service"])
	}
	if rec["ride_id"] != "r1" {
		t.Fatalf("ride_id = %v, want r1", rec["ride_id"])
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "api", "warn")
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info leaked through warn threshold: %s", buf.String())
	}
	logger.Warn("kept")
	if buf.Len() == 0 {
		t.Fatal("warn record missing")
	}
}

func TestLevelFromString(t *testing.T) {
	cases := map[string]slog.Leveler{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		" error ": slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := levelFromString(in); got != want {
			t.Errorf("levelFromString(%q) = %v, want %v", in, got, want)
		}
	}
}
