package utils

import (
	"bytes"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonLogger(buf *bytes.Buffer, level string) *Logger {
	return NewLogger(LoggerOptions{Level: level, Format: "json", Output: buf})
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func TestNewLogger(t *testing.T) {
	t.Run("json output", func(t *testing.T) {
		var buf bytes.Buffer
		jsonLogger(&buf, "info").Info().Msg("Loaded page")

		entry := lastLine(t, &buf)
		assert.Equal(t, "Loaded page", entry["message"])
		assert.Equal(t, "info", entry["level"])
		assert.Contains(t, entry, "time")
	})

	t.Run("pretty output", func(t *testing.T) {
		var buf bytes.Buffer
		NewLogger(LoggerOptions{Format: "pretty", Output: &buf}).Info().Msg("Loaded page")
		assert.Contains(t, buf.String(), "Loaded page")
		assert.NotContains(t, buf.String(), `"message"`)
	})

	t.Run("verbose forces debug", func(t *testing.T) {
		var buf bytes.Buffer
		NewLogger(LoggerOptions{Level: "error", Format: "json", Output: &buf, Verbose: true}).
			Debug().Msg("Dispatch")
		assert.Contains(t, buf.String(), "Dispatch")
	})

	t.Run("level filters", func(t *testing.T) {
		var buf bytes.Buffer
		logger := jsonLogger(&buf, "warn")
		logger.Info().Msg("hidden")
		logger.Warn().Msg("shown")
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{" warning ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestLoggerContextFields(t *testing.T) {
	var buf bytes.Buffer
	base := jsonLogger(&buf, "debug")

	base.WithComponent("machine").
		WithQuery("kittens").
		WithTask("photos_poll").
		WithRunID("run-1").
		Info().Msg("Poll complete")

	entry := lastLine(t, &buf)
	assert.Equal(t, "machine", entry["component"])
	assert.Equal(t, "kittens", entry["query"])
	assert.Equal(t, "photos_poll", entry["task"])
	assert.Equal(t, "run-1", entry["run_id"])

	// derived loggers leave the parent untouched
	base.Info().Msg("plain")
	assert.NotContains(t, lastLine(t, &buf), "component")
}

func TestNewNopLogger(t *testing.T) {
	logger := NewNopLogger()
	require.NotNil(t, logger)
	assert.NotPanics(t, func() {
		logger.WithComponent("x").Error().Msg("dropped")
	})
}

func TestStorageLogger(t *testing.T) {
	var buf bytes.Buffer
	storage := jsonLogger(&buf, "info").ForStorage()

	storage.Infof("compaction %d\n", 3)
	assert.Empty(t, buf.String())

	storage.Warningf("value log %s\n", "full")
	entry := lastLine(t, &buf)
	assert.Equal(t, "value log full", entry["message"])
	assert.Equal(t, "badger", entry["component"])
	assert.Equal(t, "warn", entry["level"])
}
