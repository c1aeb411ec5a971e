package link

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itohio/gosonar/pkg/command"
	"github.com/itohio/gosonar/pkg/config"
	"github.com/itohio/gosonar/pkg/logger"
	"github.com/itohio/gosonar/pkg/report"
	"github.com/itohio/gosonar/pkg/rtc"
	"github.com/itohio/gosonar/pkg/sim"
	"github.com/itohio/gosonar/pkg/sonar"
)

// Mock runs the measurement loop in-process against a simulated sensor.
type Mock struct {
	cfg *config.Config

	mu        sync.RWMutex
	readings  chan report.Reading
	commands  *command.Queue
	sensor    *sim.Sensor
	cancel    context.CancelFunc
	done      chan struct{}
	connected bool
	running   atomic.Bool
}

// NewMock creates a new mocked device instance.
func NewMock(cfg *config.Config) *Mock {
	if cfg == nil {
		cfg = config.Default()
	}

	return &Mock{
		cfg:      cfg,
		readings: make(chan report.Reading, DefaultBufferSize),
	}
}

// Connect builds the simulated sensor and starts the control loop.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return ErrAlreadyConnected
	}

	settings := m.cfg.Settings()
	sensor := sim.New(&m.cfg.Mock, settings.SpeedOfSound)
	commands := command.NewQueue(4)

	if m.done != nil {
		m.readings = make(chan report.Reading, DefaultBufferSize)
	}
	rep := &mockReporter{mock: m, out: m.readings}

	s, err := sonar.New(settings, sensor.Hardware(), rtc.New(m.cfg.Clock.Epoch), rep)
	if err != nil {
		return fmt.Errorf("failed to create sonar: %w", err)
	}

	ctx, cancel := context.WithCancel(logger.WithName(context.Background(), "mock"))
	done := make(chan struct{})

	m.sensor = sensor
	m.commands = commands
	m.cancel = cancel
	m.done = done
	m.connected = true

	go func() {
		defer close(done)
		if err := s.Run(ctx, commands); err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorf(ctx, "measurement loop stopped: %v", err)
		}
	}()

	logger.Infof(ctx, "simulated sensor at %.1f cm", m.cfg.Mock.Distance)
	return nil
}

// Close stops the control loop, waits for pending echoes and closes the
// readings channel.
func (m *Mock) Close() error {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return nil
	}
	m.connected = false
	cancel, done, sensor, readings := m.cancel, m.done, m.sensor, m.readings
	m.mu.Unlock()

	cancel()
	<-done
	sensor.Close()
	close(readings)
	m.running.Store(false)

	return nil
}

// Readings returns the channel of measurement results.
func (m *Mock) Readings() <-chan report.Reading {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.readings
}

// Start enables measurements.
func (m *Mock) Start() error {
	return m.send(command.Start)
}

// Stop disables measurements.
func (m *Mock) Stop() error {
	return m.send(command.Stop)
}

// IsConnected returns whether the device is currently connected.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Running reports whether the loop is measuring.
func (m *Mock) Running() bool {
	return m.running.Load()
}

// SetDistance moves the simulated target.
func (m *Mock) SetDistance(cm float64) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.connected {
		return ErrNotConnected
	}
	m.sensor.SetDistance(cm)
	return nil
}

func (m *Mock) send(cmd command.Command) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.connected {
		return ErrNotConnected
	}
	if !m.commands.Push(cmd.Byte()) {
		return fmt.Errorf("command queue full, dropped %s", cmd)
	}
	return nil
}

// mockReporter forwards results from the loop goroutine to the readings
// channel.
type mockReporter struct {
	mock *Mock
	out  chan<- report.Reading
}

func (r *mockReporter) Report(res sonar.Result) {
	select {
	case r.out <- report.FromResult(res, time.Now()):
	default:
		logger.Warnf(context.Background(), "readings channel full, dropping %s", report.Format(res))
	}
}

func (r *mockReporter) Control(enabled bool) {
	r.mock.running.Store(enabled)
	if enabled {
		logger.Infof(context.Background(), "mock: %s", report.Starting)
	} else {
		logger.Infof(context.Background(), "mock: %s", report.Stopping)
	}
}
