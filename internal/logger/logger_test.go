package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("verbose"))
}

func TestNewWithWriterEmitsJSONOutsideDevelopment(t *testing.T) {
	var buf bytes.Buffer
	zl := NewWithWriter(Config{Env: "production", Level: "info"}, &buf)

	zl.Debug().Msg("dropped")
	zl.Info().Int64("owner_id", 7).Msg("sale applied")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "sale applied", entry["message"])
	assert.Equal(t, float64(7), entry["owner_id"])
}
