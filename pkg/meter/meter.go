package meter

import (
	"math"
	"sync"
	"time"

	"github.com/itohio/gosonar/pkg/config"
	"github.com/itohio/gosonar/pkg/sample"
)

var _ DistanceMeter = (*Meter)(nil)

// Velocity is the rate of change between two consecutive successful samples.
type Velocity struct {
	Time  time.Time // Timestamp of the later sample
	Value float64   // cm/s, negative when the target approaches
}

// Stats summarises the samples inside the window.
type Stats struct {
	Count    int           // Samples in window
	Failures int           // Timed out samples in window
	Last     sample.Sample // Most recent sample
	Min      float64       // Smallest successful distance
	Max      float64       // Largest successful distance
	Mean     float64       // Mean successful distance
	Velocity float64       // Latest velocity (cm/s)
}

// FailureRate returns the fraction of timed out samples.
func (s Stats) FailureRate() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.Failures) / float64(s.Count)
}

// DistanceMeter keeps a rolling history of samples and derived statistics.
type DistanceMeter interface {
	ProcessSamples(input <-chan sample.Sample)
	Samples() []sample.Sample                            // Current samples (FIFO, ordered first to last)
	Velocities() []Velocity                              // Velocities between consecutive successful samples
	Stats() Stats                                        // Statistics over the current window
	OnUpdate(func(samples []sample.Sample, stats Stats)) // Register callback for updates
}

// Meter implements DistanceMeter.
// Removal is based on timestamp (time window), not number of samples.
type Meter struct {
	samples    []sample.Sample
	velocities []Velocity
	lastOK     *sample.Sample

	mu sync.RWMutex

	callbacks []func(samples []sample.Sample, stats Stats)
	cbMu      sync.RWMutex

	windowDuration time.Duration

	// Set when the input channel closes, prevents further callbacks.
	shutdown bool
}

// New creates a new Meter with the display window from cfg.
func New(cfg *config.Config) *Meter {
	if cfg == nil {
		cfg = config.Default()
	}

	return &Meter{
		samples:        make([]sample.Sample, 0),
		velocities:     make([]Velocity, 0),
		windowDuration: cfg.Window(),
	}
}

// ProcessSamples consumes samples until the input channel closes, then
// stops notifying callbacks.
func (m *Meter) ProcessSamples(input <-chan sample.Sample) {
	for s := range input {
		m.processSample(s)
	}

	m.mu.Lock()
	m.shutdown = true
	m.mu.Unlock()
}

// processSample adds a sample, trims the window and notifies callbacks.
func (m *Meter) processSample(s sample.Sample) {
	m.mu.Lock()

	m.samples = append(m.samples, s)

	cutoff := s.Timestamp.Add(-m.windowDuration)
	m.samples = trim(m.samples, cutoff, func(s sample.Sample) time.Time { return s.Timestamp })

	if s.OK {
		if m.lastOK != nil {
			dt := s.Timestamp.Sub(m.lastOK.Timestamp).Seconds()
			if dt > 0 {
				m.velocities = append(m.velocities, Velocity{
					Time:  s.Timestamp,
					Value: (s.Distance - m.lastOK.Distance) / dt,
				})
			}
		}
		last := s
		m.lastOK = &last
	}
	m.velocities = trim(m.velocities, cutoff, func(v Velocity) time.Time { return v.Time })

	shouldNotify := !m.shutdown
	m.mu.Unlock()

	if shouldNotify {
		m.notifyCallbacks()
	}
}

// trim drops leading elements stamped at or before cutoff.
func trim[T any](items []T, cutoff time.Time, stamp func(T) time.Time) []T {
	i := 0
	for i < len(items) && !stamp(items[i]).After(cutoff) {
		i++
	}
	if i == 0 {
		return items
	}
	return append(items[:0], items[i:]...)
}

// Samples returns a copy of the current samples buffer.
func (m *Meter) Samples() []sample.Sample {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]sample.Sample, len(m.samples))
	copy(result, m.samples)
	return result
}

// Velocities returns a copy of the current velocities buffer.
func (m *Meter) Velocities() []Velocity {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Velocity, len(m.velocities))
	copy(result, m.velocities)
	return result
}

// Stats returns statistics over the current window.
func (m *Meter) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats()
}

// stats requires mu to be held.
func (m *Meter) stats() Stats {
	st := Stats{Count: len(m.samples)}
	if st.Count == 0 {
		return st
	}
	st.Last = m.samples[st.Count-1]

	st.Min = math.Inf(1)
	st.Max = math.Inf(-1)
	var sum float64
	ok := 0
	for _, s := range m.samples {
		if !s.OK {
			st.Failures++
			continue
		}
		ok++
		sum += s.Distance
		st.Min = math.Min(st.Min, s.Distance)
		st.Max = math.Max(st.Max, s.Distance)
	}
	if ok == 0 {
		st.Min, st.Max = 0, 0
	} else {
		st.Mean = sum / float64(ok)
	}

	if n := len(m.velocities); n > 0 {
		st.Velocity = m.velocities[n-1].Value
	}
	return st
}

// OnUpdate registers a callback function that will be called when samples are updated.
// The callback should copy data quickly and return as fast as possible.
func (m *Meter) OnUpdate(callback func(samples []sample.Sample, stats Stats)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

// ResetShutdown resets the shutdown flag, allowing callbacks to be sent again.
// This should be called before starting a new measurement chain.
func (m *Meter) ResetShutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdown = false
}

// SetWindow changes the history length. Older samples are dropped with the
// next sample.
func (m *Meter) SetWindow(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windowDuration = d
}

// Clear drops the history.
func (m *Meter) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = m.samples[:0]
	m.velocities = m.velocities[:0]
	m.lastOK = nil
}

// notifyCallbacks invokes all registered callbacks with current data.
// Makes copies of data while holding read lock, then calls callbacks without lock.
func (m *Meter) notifyCallbacks() {
	m.mu.RLock()
	samplesCopy := make([]sample.Sample, len(m.samples))
	copy(samplesCopy, m.samples)
	stats := m.stats()
	m.mu.RUnlock()

	m.cbMu.RLock()
	callbacks := make([]func(samples []sample.Sample, stats Stats), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(samplesCopy, stats)
		}
	}
}
