package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewZapOTELCore_NilProvider(t *testing.T) {
	core := NewZapOTELCore(ZapBridgeConfig{ServiceName: "test", Level: zapcore.InfoLevel})
	assert.False(t, core.Enabled(zapcore.ErrorLevel))
}

func TestLevelFilterCore(t *testing.T) {
	inner, logs := observer.New(zapcore.DebugLevel)
	core := &levelFilterCore{Core: inner, minLevel: zapcore.WarnLevel}

	assert.False(t, core.Enabled(zapcore.InfoLevel))
	assert.True(t, core.Enabled(zapcore.WarnLevel))

	logger := zap.New(core.With([]zapcore.Field{zap.String("driver", "x")}))
	logger.Info("dropped")
	logger.Warn("kept")

	entries := logs.All()
	assert.Len(t, entries, 1)
	assert.Equal(t, "kept", entries[0].Message)
	assert.Contains(t, entries[0].Context, zap.String("driver", "x"))
}

func TestNewBridgedLogger(t *testing.T) {
	base, baseLogs := observer.New(zapcore.InfoLevel)
	mirror, mirrorLogs := observer.New(zapcore.InfoLevel)

	logger := NewBridgedLogger(zap.New(base), mirror)
	logger.Info("hello", zap.String("k", "v"))
	logger.Debug("hidden")

	assert.Equal(t, 1, baseLogs.Len())
	assert.Equal(t, 1, mirrorLogs.Len())
}
