package logger_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Tjuaco/Molaris-sub001/internal/logger"
)

func TestNewStampsServiceName(t *testing.T) {
	var buf bytes.Buffer
	log, err := logger.New("notify-worker", "production", "info", &buf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	log.Info().Msg("hello")
	out := buf.String()
	if !strings.Contains(out, `"service":"notify-worker"`) || !strings.Contains(out, `"message":"hello"`) {
		t.Fatalf("expected service-stamped JSON output, got %q", out)
	}
}

func TestNewFiltersPerLogger(t *testing.T) {
	cases := map[string]struct {
		level    string
		want     zerolog.Level
		emitted  string
		filtered func(*zerolog.Logger) *zerolog.Event
	}{
		"default_info": {level: "", want: zerolog.InfoLevel, emitted: "kept", filtered: (*zerolog.Logger).Debug},
		"warn":         {level: "Warn", want: zerolog.WarnLevel, emitted: "kept", filtered: (*zerolog.Logger).Info},
		"error":        {level: "ERROR", want: zerolog.ErrorLevel, emitted: "kept", filtered: (*zerolog.Logger).Warn},
	}

	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			log, err := logger.New("notify-worker", "production", tc.level, &buf)
			if err != nil {
				t.Fatalf("New returned error for level %q: %v", tc.level, err)
			}

			if got := log.GetLevel(); got != tc.want {
				t.Fatalf("logger level = %s, want %s", got, tc.want)
			}

			tc.filtered(log).Msg("dropped")
			log.WithLevel(tc.want).Msg(tc.emitted)

			out := buf.String()
			if strings.Contains(out, "dropped") {
				t.Fatalf("event below %s was not filtered: %q", tc.want, out)
			}
			if !strings.Contains(out, tc.emitted) {
				t.Fatalf("event at %s was not emitted: %q", tc.want, out)
			}
		})
	}
}

func TestNewLeavesGlobalLevelAlone(t *testing.T) {
	prev := zerolog.GlobalLevel()

	var buf bytes.Buffer
	if _, err := logger.New("notify-worker", "production", "error", &buf); err != nil {
		t.Fatalf("New: %v", err)
	}

	if got := zerolog.GlobalLevel(); got != prev {
		t.Fatalf("global level changed from %s to %s", prev, got)
	}
}

func TestNewInvalidLevel(t *testing.T) {
	if _, err := logger.New("notify-worker", "production", "not-a-level"); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}
