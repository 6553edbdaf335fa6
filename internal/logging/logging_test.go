package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cleared-dev/ledger/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LogConfig
		enabled zapcore.Level
		hidden  zapcore.Level
	}{
		{"defaults", config.LogConfig{}, zapcore.InfoLevel, zapcore.DebugLevel},
		{"json debug", config.LogConfig{Level: "debug", Format: "json"}, zapcore.DebugLevel, zapcore.DebugLevel - 1},
		{"console warn", config.LogConfig{Level: "warn", Format: "console"}, zapcore.WarnLevel, zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.cfg)
			require.NoError(t, err)
			assert.True(t, log.Core().Enabled(tt.enabled))
			assert.False(t, log.Core().Enabled(tt.hidden))
		})
	}
}

func TestNew_Errors(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud"})
	assert.ErrorContains(t, err, "parsing log level")

	_, err = New(config.LogConfig{Format: "xml"})
	assert.ErrorContains(t, err, "unknown log format")
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	log := zap.NewExample()
	assert.Same(t, log, OrNop(log))
}
