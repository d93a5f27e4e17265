package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, "warn", false)
	require.NoError(t, err)

	logger.Info().Msg("dropped")
	logger.Warn().Str("component", "ledger").Msg("underflow")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "ledger", line["component"])
	assert.Equal(t, "underflow", line["message"])
	assert.Contains(t, line, "time")
}

func TestNewWithWriter_Pretty(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, "debug", true)
	require.NoError(t, err)

	logger.Debug().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.NotContains(t, buf.String(), `"message"`)
}

func TestNewWithWriter_Levels(t *testing.T) {
	logger, err := NewWithWriter(&bytes.Buffer{}, "", false)
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())

	logger, err = NewWithWriter(&bytes.Buffer{}, " ERROR ", false)
	require.NoError(t, err)
	assert.Equal(t, zerolog.ErrorLevel, logger.GetLevel())

	_, err = NewWithWriter(&bytes.Buffer{}, "loud", false)
	require.Error(t, err)
}
