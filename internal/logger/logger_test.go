package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/config"
)

func TestNewRespectsLevel(t *testing.T) {
	cfg := &config.Config{Environment: "production"}
	cfg.Log.Level = "warn"

	l, err := New(cfg)
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
}

func TestNewFallsBackToInfo(t *testing.T) {
	cfg := &config.Config{Environment: "production"}
	cfg.Log.Level = "verbose"
	cfg.Log.Format = "console"

	l, err := New(cfg)
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
}
