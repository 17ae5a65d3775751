package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSetupWriter_Levels(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	tests := []struct {
		name      string
		verbosity int
		wantLevel zerolog.Level
	}{
		{"default info level", 0, zerolog.InfoLevel},
		{"debug level", 1, zerolog.DebugLevel},
		{"trace level", 2, zerolog.TraceLevel},
		{"high verbosity stays trace", 5, zerolog.TraceLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetupWriter(&bytes.Buffer{}, tt.verbosity, "console")
			if zerolog.GlobalLevel() != tt.wantLevel {
				t.Errorf("SetupWriter(%d) set level to %v, want %v", tt.verbosity, zerolog.GlobalLevel(), tt.wantLevel)
			}
		})
	}
}

func TestSetupWriter_JSON(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	var buf bytes.Buffer
	l := SetupWriter(&buf, 0, "json")
	l.Info().Str("stage", "load_facts").Msg("stage ok")
	l.Debug().Msg("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not json: %v", err)
	}
	if rec["stage"] != "load_facts" || rec["message"] != "stage ok" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestComponent(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	var buf bytes.Buffer
	SetupWriter(&buf, 0, "json")
	l := Component("runner")
	l.Info().Msg("hi")
	if !strings.Contains(buf.String(), `"component":"runner"`) {
		t.Fatalf("component field missing: %s", buf.String())
	}
}
