package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewConfigLevels(t *testing.T) {
	for level, want := range map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"info":  zapcore.InfoLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
		"":      zapcore.InfoLevel,
	} {
		cfg, err := NewConfig(level)
		require.NoError(t, err, level)
		assert.Equal(t, want, cfg.Level.Level(), level)
		assert.True(t, cfg.DisableStacktrace)
		assert.Equal(t, "console", cfg.Encoding)
	}
}

func TestNewConfigRejectsUnknownLevel(t *testing.T) {
	_, err := NewConfig("chatty")
	assert.Error(t, err)
	_, err = New("chatty")
	assert.Error(t, err)
}

func TestInitAndL(t *testing.T) {
	require.NoError(t, Init("warn"))
	assert.False(t, L().Desugar().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, L().Desugar().Core().Enabled(zapcore.WarnLevel))
	assert.NotNil(t, With("component", "test"))

	assert.Error(t, Init("nope"))
	assert.True(t, L().Desugar().Core().Enabled(zapcore.WarnLevel))
}
