package logger_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docai/internal/config"
	"docai/internal/logger"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, logger.ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, logger.ParseLevel(" WARN "))
	assert.Equal(t, zerolog.InfoLevel, logger.ParseLevel("verbose"))
	assert.Equal(t, zerolog.InfoLevel, logger.ParseLevel(""))
}

func TestSetupWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger.SetupWithWriter(config.LogConfig{Level: "info", Format: "json"}, &buf)
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	l := logger.Component("pipeline")
	l.Info().Str("task_id", "abc").Msg("stored")
	l.Debug().Msg("suppressed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "pipeline", entry["component"])
	assert.Equal(t, "abc", entry["task_id"])
	assert.Equal(t, "stored", entry["message"])
}
