package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		wantJSON bool
		wantErr  bool
	}{
		{name: "auto on a buffer is json", opts: Options{Format: "auto"}, wantJSON: true},
		{name: "empty format is auto", opts: Options{}, wantJSON: true},
		{name: "text", opts: Options{Format: "text"}},
		{name: "json", opts: Options{Format: "JSON", Level: "debug"}, wantJSON: true},
		{name: "bad format", opts: Options{Format: "xml"}, wantErr: true},
		{name: "bad level", opts: Options{Level: "loud"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.opts.Output = &buf
			logger, err := New(tt.opts)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			logger.Info("chapter media attempted", "work_id", "torts")

			line := strings.TrimSpace(buf.String())
			var decoded map[string]any
			isJSON := json.Unmarshal([]byte(line), &decoded) == nil
			if isJSON != tt.wantJSON {
				t.Errorf("json output = %v, want %v: %s", isJSON, tt.wantJSON, line)
			}
			if !strings.Contains(line, "torts") {
				t.Errorf("missing attribute: %s", line)
			}
		})
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "warn", Format: "text", Output: &buf})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{"": slog.LevelInfo, "DEBUG": slog.LevelDebug, "warning": slog.LevelWarn, "error": slog.LevelError} {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
}
