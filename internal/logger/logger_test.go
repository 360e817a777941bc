package logger

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SpotTradeBot/config"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     config.LogConfig
		wantErr bool
		level   zerolog.Level
	}{
		{name: "stdout console", cfg: config.LogConfig{Level: "info", Format: "console", Output: "stdout"}, level: zerolog.InfoLevel},
		{name: "stderr json", cfg: config.LogConfig{Level: "debug", Format: "json", Output: "stderr"}, level: zerolog.DebugLevel},
		{name: "file", cfg: config.LogConfig{Level: "warn", Format: "json", Output: filepath.Join(t.TempDir(), "bot.log")}, level: zerolog.WarnLevel},
		{name: "bad level", cfg: config.LogConfig{Level: "loud"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.level, l.GetLevel())
		})
	}
}

func TestSuccess(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	Success(zerolog.New(&buf)).Msg("entered")

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "info", got["level"])
	assert.Equal(t, "success", got["outcome"])
	assert.Equal(t, "entered", got["message"])
}
