package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggerTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithHandler(ComponentImporter, slog.NewTextHandler(&buf, nil))

	logger.Info("file parsed", "rows", 3)

	out := buf.String()
	if !strings.Contains(out, "component=importer") {
		t.Errorf("record missing component attribute: %s", out)
	}
	if !strings.Contains(out, "rows=3") {
		t.Errorf("record missing call attributes: %s", out)
	}
}

func TestWithComponentSwitchesTag(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithHandler(ComponentHTTP, slog.NewTextHandler(&buf, nil))

	logger.WithComponent(ComponentWorker).Info("event handled")

	if !strings.Contains(buf.String(), "component=worker") {
		t.Errorf("component not switched: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
