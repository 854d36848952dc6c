package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestSetup_levels(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		Setup(&bytes.Buffer{}, tt.level, "json")
		if got := zerolog.GlobalLevel(); got != tt.want {
			t.Errorf("Setup(%q) level = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestSetup_writesJSON(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	Setup(&buf, "info", "json")
	log.Info().Str("runId", "r1").Msg("Run started")
	log.Debug().Msg("hidden")

	out := buf.String()
	if !strings.Contains(out, `"runId":"r1"`) || !strings.Contains(out, `"service":"textpair"`) {
		t.Errorf("unexpected log output %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Error("debug entry written at info level")
	}
}
