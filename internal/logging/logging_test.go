package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", "json")

	logger.Debug("hidden")
	logger.Info("message sent to queue", "queue", "weather-data", "attempt", 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "message sent to queue", rec["msg"])
	assert.Equal(t, "weather-data", rec["queue"])
	assert.Equal(t, "weather-collector", rec["service"])
	assert.EqualValues(t, 1, rec["attempt"])
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "debug", "text")

	logger.Debug("normalizing payload", "provider", "open-meteo")
	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "provider=open-meteo")
}
