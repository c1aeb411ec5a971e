package meter

import (
	"sync"
	"testing"
	"time"

	"github.com/itohio/gosonar/pkg/config"
	"github.com/itohio/gosonar/pkg/sample"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMeter(window float64) *Meter {
	cfg := config.Default()
	cfg.Display.WindowSeconds = window
	return New(cfg)
}

func ok(at time.Time, d float64) sample.Sample {
	return sample.Sample{Timestamp: at, OK: true, Distance: d}
}

func failed(at time.Time) sample.Sample {
	return sample.Sample{Timestamp: at}
}

func TestNew(t *testing.T) {
	m := newMeter(10)
	assert.Equal(t, 10*time.Second, m.windowDuration)
	assert.Empty(t, m.Samples())
	assert.Equal(t, Stats{}, m.Stats())

	assert.Equal(t, 60*time.Second, New(nil).windowDuration)
}

func TestMeter_Stats(t *testing.T) {
	m := newMeter(60)
	now := time.Now()

	m.processSample(ok(now, 20))
	m.processSample(failed(now.Add(time.Second)))
	m.processSample(ok(now.Add(2*time.Second), 10))
	m.processSample(ok(now.Add(3*time.Second), 30))

	st := m.Stats()
	assert.Equal(t, 4, st.Count)
	assert.Equal(t, 1, st.Failures)
	assert.Equal(t, 0.25, st.FailureRate())
	assert.Equal(t, 10.0, st.Min)
	assert.Equal(t, 30.0, st.Max)
	assert.Equal(t, 20.0, st.Mean)
	assert.Equal(t, 30.0, st.Last.Distance)
	assert.Equal(t, 20.0, st.Velocity)
}

func TestMeter_StatsOnlyFailures(t *testing.T) {
	m := newMeter(60)
	now := time.Now()
	m.processSample(failed(now))
	m.processSample(failed(now.Add(time.Second)))

	st := m.Stats()
	assert.Equal(t, 2, st.Count)
	assert.Equal(t, 1.0, st.FailureRate())
	assert.Zero(t, st.Min)
	assert.Zero(t, st.Max)
	assert.Zero(t, st.Mean)
	assert.False(t, st.Last.OK)
}

func TestMeter_Velocities(t *testing.T) {
	m := newMeter(60)
	now := time.Now()

	m.processSample(ok(now, 50))
	m.processSample(failed(now.Add(time.Second)))
	m.processSample(ok(now.Add(2*time.Second), 40))
	m.processSample(ok(now.Add(4*time.Second), 44))

	v := m.Velocities()
	require.Len(t, v, 2)
	assert.Equal(t, -5.0, v[0].Value, "failures are skipped")
	assert.Equal(t, now.Add(2*time.Second), v[0].Time)
	assert.Equal(t, 2.0, v[1].Value)
}

func TestMeter_TimeWindow(t *testing.T) {
	m := newMeter(5)
	now := time.Now()

	for i := 0; i < 10; i++ {
		m.processSample(ok(now.Add(time.Duration(i)*time.Second), float64(i)))
	}

	samples := m.Samples()
	require.Len(t, samples, 5)
	assert.Equal(t, 5.0, samples[0].Distance)
	assert.Equal(t, 9.0, samples[4].Distance)

	for _, v := range m.Velocities() {
		assert.True(t, v.Time.After(now.Add(4*time.Second)))
	}
	assert.Equal(t, 5.0, m.Stats().Min)
}

func TestMeter_Clear(t *testing.T) {
	m := newMeter(60)
	now := time.Now()
	m.processSample(ok(now, 1))
	m.processSample(ok(now.Add(time.Second), 2))

	m.Clear()
	assert.Empty(t, m.Samples())
	assert.Empty(t, m.Velocities())

	m.processSample(ok(now.Add(2*time.Second), 3))
	assert.Empty(t, m.Velocities(), "no velocity across a clear")
}

func TestMeter_OnUpdate(t *testing.T) {
	m := newMeter(60)

	var mu sync.Mutex
	var got []Stats
	m.OnUpdate(func(samples []sample.Sample, stats Stats) {
		mu.Lock()
		defer mu.Unlock()
		assert.Len(t, samples, stats.Count)
		got = append(got, stats)
	})

	input := make(chan sample.Sample, 3)
	now := time.Now()
	input <- ok(now, 10)
	input <- ok(now.Add(time.Second), 12)
	input <- failed(now.Add(2 * time.Second))
	close(input)

	m.ProcessSamples(input)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 3)
	assert.Equal(t, 1, got[0].Count)
	assert.Equal(t, 11.0, got[1].Mean)
	assert.Equal(t, 1, got[2].Failures)
}

// TestMeter_GracefulShutdown_NoCallbacksAfterClose tests that meter stops sending
// callbacks after the input channel is closed.
func TestMeter_GracefulShutdown_NoCallbacksAfterClose(t *testing.T) {
	m := newMeter(10)

	calls := 0
	m.OnUpdate(func([]sample.Sample, Stats) { calls++ })

	input := make(chan sample.Sample, 2)
	input <- ok(time.Now(), 1)
	close(input)
	m.ProcessSamples(input)
	require.Equal(t, 1, calls)

	// Late samples are still recorded but not announced.
	m.processSample(ok(time.Now(), 2))
	assert.Equal(t, 1, calls)
	assert.Len(t, m.Samples(), 2)

	m.ResetShutdown()
	m.processSample(ok(time.Now(), 3))
	assert.Equal(t, 2, calls)
}

func TestMeter_SetWindow(t *testing.T) {
	m := newMeter(60)
	now := time.Now()
	for i := 0; i < 10; i++ {
		m.processSample(ok(now.Add(time.Duration(i)*time.Second), float64(i)))
	}

	m.SetWindow(2 * time.Second)
	m.processSample(ok(now.Add(10*time.Second), 10))

	samples := m.Samples()
	assert.Len(t, samples, 2)
	assert.Equal(t, 9.0, samples[0].Distance)
}
