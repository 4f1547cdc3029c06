package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newConsoleHandler(&buf, slog.LevelDebug))
	logger = WithComponent(logger, "importer")
	logger.Info("import started", slog.String(FieldTarget, "/downloads/Album"), slog.Int("candidates", 3))

	line := buf.String()
	assert.Contains(t, line, " INFO importer: import started")
	assert.Contains(t, line, `target=/downloads/Album`)
	assert.Contains(t, line, "candidates=3")
}

func TestConsoleHandlerQuotesValuesWithSpaces(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newConsoleHandler(&buf, slog.LevelInfo))
	logger.Warn("skip", slog.String("reason", "no match found"))
	assert.Contains(t, buf.String(), `reason="no match found"`)
}

func TestConsoleHandlerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	handler := newConsoleHandler(&buf, slog.LevelWarn)
	assert.False(t, handler.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, handler.Enabled(context.Background(), slog.LevelError))
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New(Options{Format: "xml"})
	require.Error(t, err)
}

func TestNewNopDiscards(t *testing.T) {
	logger := NewNop()
	require.NotNil(t, logger)
	logger.Error("dropped")
}
