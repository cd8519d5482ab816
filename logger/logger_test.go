package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"", zerolog.InfoLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, ParseLevel(tt.input), "input %q", tt.input)
	}
}

func TestNewJSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, zerolog.WarnLevel, false)

	l.Info().Msg("hidden")
	l.Warn().Str("song", "Two").Msg("visible")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "visible", entry["message"])
	assert.Equal(t, "Two", entry["song"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestWithRequest(t *testing.T) {
	var buf bytes.Buffer
	base := New(&buf, zerolog.InfoLevel, false)
	ctx := base.WithContext(context.Background())

	ctx, requestID := WithRequest(ctx, 42)
	require.NotEmpty(t, requestID)

	zerolog.Ctx(ctx).Info().Msg("processing")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, requestID, entry["request_id"])
	assert.Equal(t, float64(42), entry["chat_id"])
}

func TestInitFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")

	closer, err := Init(Config{Output: path, Level: "info"})
	require.NoError(t, err)
	require.NoError(t, closer.Close())
	assert.FileExists(t, path)
}

func TestInitBadFile(t *testing.T) {
	_, err := Init(Config{Output: filepath.Join(t.TempDir(), "missing", "bot.log")})
	assert.Error(t, err)
}
