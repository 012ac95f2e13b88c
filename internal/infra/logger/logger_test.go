package logger

import (
	"bytes"
	"encoding/json"
	"os"
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
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestShortCaller(t *testing.T) {
	file := filepath.Join("root", "internal", "app", "call", "controller.go")
	assert.Equal(t, filepath.Join("call", "controller.go")+":42", shortCaller(0, file, 42))
	assert.Equal(t, "main.go:7", shortCaller(0, "main.go", 7))
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, false, zerolog.InfoLevel)
	logger.Info().Str("state", "active").Msg("call state changed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "active", entry["state"])
	assert.Equal(t, "call state changed", entry[zerolog.MessageFieldName])
	assert.NotContains(t, entry, zerolog.CallerFieldName)
}

func TestInit_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	require.NoError(t, Init(Config{Output: path, Level: "warn"}))
	defer func() { _ = Init(Config{Output: "stderr"}) }()

	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestInit_BadFile(t *testing.T) {
	err := Init(Config{Output: filepath.Join(t.TempDir(), "missing", "server.log")})
	assert.Error(t, err)
}
