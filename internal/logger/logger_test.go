package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrettyHandlerRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug", "text")

	log.Info("login", "email", "a@x.com", "password", "hunter22")

	out := buf.String()
	assert.Contains(t, out, "a@x.com")
	assert.Contains(t, out, "[REDACTED]")
	assert.NotContains(t, out, "hunter22")
}

func TestJSONHandlerRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "info", "json")

	log.Info("refresh", "refresh_token", "abc123")

	assert.Contains(t, buf.String(), `"refresh_token":"[REDACTED]"`)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn", "text")

	log.Info("hidden")
	log.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Equal(t, slog.LevelError, ParseLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}
