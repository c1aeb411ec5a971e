package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/itohio/gosonar/pkg/config"
	"github.com/itohio/gosonar/pkg/link"
	"github.com/itohio/gosonar/pkg/logger"
	"github.com/itohio/gosonar/pkg/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Split(strings.TrimSpace(b.buf.String()), "\n")
}

func fastConfig() *config.Config {
	cfg := config.Default()
	cfg.Sensor.Interval = 5 * time.Millisecond
	cfg.Sensor.PollTimeout = 5 * time.Millisecond
	cfg.Mock.Distance = 20
	cfg.Mock.Noise = 0
	cfg.Mock.DropRate = 0
	cfg.Mock.EchoDelay = 50 * time.Microsecond
	return cfg
}

func TestRunConsole_Mock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	dev := link.NewMock(fastConfig())

	errc := make(chan error, 1)
	go func() { errc <- runConsole(ctx, dev, strings.NewReader("s\n"), out) }()

	require.Eventually(t, func() bool { return len(out.lines()) >= 4 }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("console did not stop")
	}
	assert.False(t, dev.IsConnected())

	lines := out.lines()
	assert.Equal(t, report.Prompt, lines[0])
	for _, line := range lines[1:4] {
		r, err := report.Parse(line)
		require.NoError(t, err, line)
		assert.True(t, r.OK)
		assert.InDelta(t, 20.0, r.Distance, 0.1)
	}
}

func TestRunConsole_ConnectError(t *testing.T) {
	cfg := fastConfig()
	cfg.Serial.Port = "/dev/gosonar-does-not-exist"

	err := runConsole(context.Background(), newDevice(cfg, false), strings.NewReader(""), &syncBuffer{})
	assert.Error(t, err)
}

func TestNewDevice(t *testing.T) {
	cfg := fastConfig()

	_, isMock := newDevice(cfg, true).(*link.Mock)
	assert.True(t, isMock)

	_, isSerial := newDevice(cfg, false).(*link.Serial)
	assert.True(t, isSerial)
}

func TestSetup_Overrides(t *testing.T) {
	prev, prevLevel := opts, logger.Level()
	t.Cleanup(func() {
		opts = prev
		logger.SetLevel(prevLevel)
	})

	opts = options{
		configPath:     t.TempDir() + "/missing.yaml",
		port:           "COM9",
		logLevel:       "debug",
		averageSamples: 4,
	}
	require.NoError(t, setup(nil, nil))

	assert.Equal(t, "COM9", cfg.Serial.Port)
	assert.Equal(t, 4, cfg.Display.AverageSamples)
	assert.Equal(t, "debug", cfg.Log.Level)

	opts.logLevel = "chatty"
	assert.Error(t, setup(nil, nil))
}
