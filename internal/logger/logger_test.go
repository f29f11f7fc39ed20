package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestAppLogger_LevelFallsBackToInfo(t *testing.T) {
	l := NewAppLogger(&Config{LogLevel: "verbose"})
	assert.Equal(t, zapcore.InfoLevel, l.getLoggerLevel())

	l = NewAppLogger(&Config{LogLevel: "debug"})
	assert.Equal(t, zapcore.DebugLevel, l.getLoggerLevel())
}

func TestAppLogger_WithKeepsSettings(t *testing.T) {
	l := NewAppLogger(&Config{LogLevel: "warn", DevMode: true, Encoder: "console"})
	l.InitLogger()

	child := l.With("uid", 42)
	assert.NotNil(t, child.Logger())
	assert.NotPanics(t, func() { child.Infof("message %d", 1) })
}
