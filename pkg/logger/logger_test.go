package logger_test

import (
	"bytes"
	"testing"

	"github.com/killallgit/strand/pkg/logger"
	"github.com/stretchr/testify/assert"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := logger.NewWithWriter(logger.LevelWarn, &buf)

	l.Debug("debug message")
	l.Info("info message")
	l.Warn("warn message")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.NotContains(t, out, "info message")
	assert.Contains(t, out, "[WARN] warn message")
}

func TestFormatArgs(t *testing.T) {
	var buf bytes.Buffer
	l := logger.NewWithWriter(logger.LevelDebug, &buf)

	l.Info("dropped %d frames for %s", 3, "stream-1")
	assert.Contains(t, buf.String(), "dropped 3 frames for stream-1")
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", logger.LevelDebug.String())
	assert.Equal(t, "INFO", logger.LevelInfo.String())
	assert.Equal(t, "WARN", logger.LevelWarn.String())
	assert.Equal(t, "ERROR", logger.LevelError.String())
}

func TestPackageFunctionsNilSafe(t *testing.T) {
	// Must not panic when Init was never called
	assert.NotPanics(t, func() {
		logger.Debug("no-op")
		logger.Info("no-op")
		logger.Warn("no-op")
	})
}
