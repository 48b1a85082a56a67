package logger_test

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/momentics/hioload-socket/internal/logger"
)

func TestNewJSONLevels(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&buf, "warn", "json")
	log.Info("hidden")
	log.Warn("shown", logger.Error(errors.New("boom")), logger.Error(nil), logger.Component("test"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"error":"boom"`)
	assert.Contains(t, out, `"component":"test"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, logger.ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelError, logger.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, logger.ParseLevel("bogus"))
}
