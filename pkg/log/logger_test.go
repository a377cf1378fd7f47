package log_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilson-pinto/medical-agent-poc/pkg/log"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, log.ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, log.ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, log.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, log.ParseLevel("verbose"))
}

func TestJSONLoggerBaseAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, log.Options{
		Service: "svc-name",
		Env:     "prod",
		Version: "2.3.4",
		Level:   slog.LevelDebug,
	})
	logger.Info("hello", slog.Int("count", 1))

	var got map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &got))
	assert.Equal(t, "svc-name", got["service"])
	assert.Equal(t, "prod", got["env"])
	assert.Equal(t, "2.3.4", got["version"])
	assert.Equal(t, float64(1), got["count"])
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, log.Options{Level: slog.LevelInfo})
	ctx := context.Background()

	assert.False(t, logger.Handler().Enabled(ctx, slog.LevelDebug))
	assert.True(t, logger.Handler().Enabled(ctx, slog.LevelInfo))
}

func TestConsoleLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, log.Options{
		Service: "svc",
		Format:  log.FormatConsole,
	})
	logger.Info("started", slog.String("empty", ""), slog.String("key", "v"))

	out := buf.String()
	assert.Contains(t, out, "started")
	assert.Contains(t, out, "v")
	assert.NotContains(t, out, "empty")
}

func TestAudit(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 5, 7, 0, time.UTC)
	assert.Equal(t, "[09:05:07] stage done: 2",
		log.Audit(now, "stage done: %d", 2))
}
