// Package sim simulates an HC-SR04 ultrasonic sensor so the measurement core
// can run on the host with real timers and goroutine "interrupts".
package sim

import (
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itohio/gosonar/pkg/config"
	"github.com/itohio/gosonar/pkg/sonar"
)

const (
	// RatedRange is the farthest target the sensor reports, in centimetres.
	RatedRange = 400.0
	// NoObjectPulse is the echo width the sensor emits when nothing is in range.
	NoObjectPulse = 38 * time.Millisecond
)

// Sensor implements sonar.Trigger, sonar.Echo and sonar.Clock.
//
// Edges are delivered from a goroutine after real sleeps, so the deadline
// race behaves as on hardware. The clock is virtual: it jumps to the exact
// edge instant before each edge is delivered, which keeps measured widths
// independent of host scheduling jitter.
type Sensor struct {
	cfg   config.MockConfig
	speed float64
	start time.Time

	mu       sync.Mutex
	handler  func(rising bool)
	high     bool
	distance float64
	rng      *rand.Rand

	now   atomic.Uint64
	pings atomic.Uint64
	wg    sync.WaitGroup
}

var (
	_ sonar.Trigger = (*Sensor)(nil)
	_ sonar.Echo    = (*Sensor)(nil)
	_ sonar.Clock   = (*Sensor)(nil)
)

// New creates a simulated sensor. speed is in cm/µs.
func New(cfg *config.MockConfig, speed float32) *Sensor {
	if cfg == nil {
		def := config.Default().Mock
		cfg = &def
	}
	if speed <= 0 {
		speed = sonar.SpeedOfSound
	}

	return &Sensor{
		cfg:      *cfg,
		speed:    float64(speed),
		start:    time.Now(),
		distance: cfg.Distance,
		rng:      rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}
}

// Hardware returns the sensor wired as trigger, echo and clock.
func (s *Sensor) Hardware() sonar.Hardware {
	return sonar.Hardware{
		Trigger: s,
		Echo:    s,
		Clock:   s,
	}
}

// SetDistance moves the simulated target.
func (s *Sensor) SetDistance(cm float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.distance = cm
}

// SetDropRate changes the fraction of lost echoes.
func (s *Sensor) SetDropRate(rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.DropRate = rate
}

// Pings returns the number of trigger pulses seen.
func (s *Sensor) Pings() uint64 {
	return s.pings.Load()
}

// SetEdgeHandler implements sonar.Echo.
func (s *Sensor) SetEdgeHandler(handler func(rising bool)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
	return nil
}

// Micros implements sonar.Clock.
func (s *Sensor) Micros() uint64 {
	return s.now.Load()
}

// High implements sonar.Trigger.
func (s *Sensor) High() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.high = true
}

// Low implements sonar.Trigger. The falling trigger edge starts a ping.
func (s *Sensor) Low() {
	s.mu.Lock()
	fired := s.high
	s.high = false
	handler := s.handler
	drop := s.rng.Float64() < s.cfg.DropRate
	width := s.echoWidth()
	s.mu.Unlock()

	if !fired || handler == nil {
		return
	}

	s.pings.Add(1)
	base := s.advance(uint64(time.Since(s.start) / time.Microsecond))
	if drop {
		return
	}

	s.wg.Add(1)
	go s.echo(handler, base, width)
}

// Close waits for in-flight echoes.
func (s *Sensor) Close() {
	s.wg.Wait()
}

func (s *Sensor) echo(handler func(rising bool), base uint64, width time.Duration) {
	defer s.wg.Done()

	delay := s.cfg.EchoDelay
	rise := base + uint64(delay/time.Microsecond)
	fall := rise + uint64(width/time.Microsecond)

	time.Sleep(delay)
	s.advance(rise)
	handler(true)

	time.Sleep(width)
	s.advance(fall)
	handler(false)
}

// echoWidth returns the width of the next echo pulse. Callers hold mu.
func (s *Sensor) echoWidth() time.Duration {
	d := s.distance
	if s.cfg.Noise > 0 {
		phase := float64(s.pings.Load())
		d += (math.Sin(phase*0.7) + math.Cos(phase*1.3)) * s.cfg.Noise * 0.5
	}
	if d <= 0 || d > RatedRange {
		return NoObjectPulse
	}
	us := math.Round(2 * d / s.speed)
	return time.Duration(us) * time.Microsecond
}

// advance moves the virtual clock forward to at least us and returns it.
func (s *Sensor) advance(us uint64) uint64 {
	for {
		cur := s.now.Load()
		if us <= cur {
			return cur
		}
		if s.now.CompareAndSwap(cur, us) {
			return us
		}
	}
}
