package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
		" WARN ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"fatal":   zapcore.FatalLevel,
	}
	for s, lvl := range cases {
		got, ok := ParseLevel(s)
		require.True(t, ok, s)
		assert.Equal(t, lvl, got, s)
	}

	_, ok := ParseLevel("loud")
	assert.False(t, ok)
}

func TestSetLevel(t *testing.T) {
	prev := Level()
	t.Cleanup(func() { SetLevel(prev) })

	SetLevel(zapcore.DebugLevel)
	assert.Equal(t, zapcore.DebugLevel, Level())
}

func TestContextLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := zap.New(core).Sugar()

	ctx := ToContext(context.Background(), l)
	ctx = WithKV(ctx, "port", "/dev/ttyACM0")
	ctx = WithName(ctx, "link")

	Infof(ctx, "connected at %d baud", 115200)
	Debugf(ctx, "line %q", "x")
	InfoKV(ctx, "reading", "distance", 10.0)

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "connected at 115200 baud", entries[0].Message)
	assert.Equal(t, "link", entries[0].LoggerName)
	assert.Equal(t, "/dev/ttyACM0", entries[0].ContextMap()["port"])
	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
	assert.Equal(t, 10.0, entries[2].ContextMap()["distance"])
}

func TestFromContext_FallsBackToGlobal(t *testing.T) {
	assert.Same(t, Logger(), FromContext(context.Background()))
	//nolint:staticcheck // nil context is handled on purpose.
	assert.Same(t, Logger(), FromContext(nil))
}
