package sonar

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/itohio/gosonar/pkg/command"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now atomic.Uint64
}

func (c *fakeClock) Micros() uint64 { return c.now.Load() }

type fakeEcho struct {
	clock   *fakeClock
	handler func(rising bool)
	err     error
}

func (e *fakeEcho) SetEdgeHandler(h func(rising bool)) error {
	if e.err != nil {
		return e.err
	}
	e.handler = h
	return nil
}

func (e *fakeEcho) edge(at uint64, rising bool) {
	e.clock.now.Store(at)
	e.handler(rising)
}

type fakeTrigger struct {
	high    bool
	pulses  int
	onPulse func()
}

func (t *fakeTrigger) High() { t.high = true }

func (t *fakeTrigger) Low() {
	if !t.high {
		return
	}
	t.high = false
	t.pulses++
	if t.onPulse != nil {
		t.onPulse()
	}
}

type fixedWall struct{ t time.Time }

func (w fixedWall) Now() time.Time { return w.t }

type recorder struct {
	mu        sync.Mutex
	results   []Result
	controls  []bool
	onReport  func(Result)
	onControl func(bool)
}

func (r *recorder) Report(res Result) {
	r.mu.Lock()
	r.results = append(r.results, res)
	r.mu.Unlock()
	if r.onReport != nil {
		r.onReport(res)
	}
}

func (r *recorder) Control(enabled bool) {
	r.mu.Lock()
	r.controls = append(r.controls, enabled)
	r.mu.Unlock()
	if r.onControl != nil {
		r.onControl(enabled)
	}
}

func (r *recorder) snapshot() ([]Result, []bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Result(nil), r.results...), append([]bool(nil), r.controls...)
}

var wallTime = time.Date(2025, time.March, 14, 11, 50, 0, 0, time.UTC)

type rig struct {
	sonar   *Sonar
	clock   *fakeClock
	echo    *fakeEcho
	trigger *fakeTrigger
	timers  *manualTimers
	rec     *recorder
}

func newRig(t *testing.T) *rig {
	t.Helper()

	clock := &fakeClock{}
	r := &rig{
		clock:   clock,
		echo:    &fakeEcho{clock: clock},
		trigger: &fakeTrigger{},
		timers:  &manualTimers{},
		rec:     &recorder{},
	}

	settings := DefaultSettings()
	settings.Interval = time.Millisecond
	settings.PollTimeout = time.Millisecond

	s, err := New(settings, Hardware{
		Trigger: r.trigger,
		Echo:    r.echo,
		Clock:   clock,
		Timers:  r.timers,
		Delay:   func(time.Duration) {},
		Idle: func() {
			// The deadline elapses while the orchestrator polls.
			if tm := r.timers.last(); tm != nil {
				tm.fire()
			}
		},
	}, fixedWall{wallTime}, r.rec)
	require.NoError(t, err)
	r.sonar = s

	return r
}

func TestNew_Validation(t *testing.T) {
	clock := &fakeClock{}
	hw := Hardware{Trigger: &fakeTrigger{}, Echo: &fakeEcho{clock: clock}, Clock: clock}
	wall := fixedWall{wallTime}
	rec := &recorder{}

	tests := []struct {
		name    string
		mutate  func(s *Settings, hw *Hardware, wall *WallClock, rep *Reporter)
		wantErr error
	}{
		{"no trigger", func(_ *Settings, hw *Hardware, _ *WallClock, _ *Reporter) { hw.Trigger = nil }, ErrNoTrigger},
		{"no echo", func(_ *Settings, hw *Hardware, _ *WallClock, _ *Reporter) { hw.Echo = nil }, ErrNoEcho},
		{"no clock", func(_ *Settings, hw *Hardware, _ *WallClock, _ *Reporter) { hw.Clock = nil }, ErrNoClock},
		{"no wall clock", func(_ *Settings, _ *Hardware, w *WallClock, _ *Reporter) { *w = nil }, ErrNoWallClock},
		{"no reporter", func(_ *Settings, _ *Hardware, _ *WallClock, r *Reporter) { *r = nil }, ErrNoReporter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			h := hw
			var w WallClock = wall
			var r Reporter = rec
			tt.mutate(&s, &h, &w, &r)

			_, err := New(s, h, w, r)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNew_InvalidSettings(t *testing.T) {
	clock := &fakeClock{}
	hw := Hardware{Trigger: &fakeTrigger{}, Echo: &fakeEcho{clock: clock}, Clock: clock}

	s := DefaultSettings()
	s.Deadline = 0
	_, err := New(s, hw, fixedWall{wallTime}, &recorder{})
	assert.ErrorContains(t, err, "deadline")

	s = DefaultSettings()
	s.SpeedOfSound = 0
	_, err = New(s, hw, fixedWall{wallTime}, &recorder{})
	assert.ErrorContains(t, err, "speed of sound")
}

func TestNew_EchoAttachError(t *testing.T) {
	clock := &fakeClock{}
	boom := errors.New("irq unavailable")
	hw := Hardware{Trigger: &fakeTrigger{}, Echo: &fakeEcho{clock: clock, err: boom}, Clock: clock}

	_, err := New(DefaultSettings(), hw, fixedWall{wallTime}, &recorder{})
	assert.ErrorIs(t, err, boom)
}

func TestRunCycle_Success(t *testing.T) {
	r := newRig(t)
	r.trigger.onPulse = func() {
		r.echo.edge(1000, true)
		r.echo.edge(1582, false)
	}

	res := r.sonar.RunCycle()

	require.True(t, res.OK())
	assert.InDelta(t, 9.9813, res.Distance, 1e-3)
	assert.Equal(t, float32(10.0), res.Rounded())
	assert.Equal(t, 582*time.Microsecond, res.Echo)
	assert.Equal(t, wallTime, res.Time)
	assert.Equal(t, 1, r.trigger.pulses)

	tm := r.timers.last()
	require.NotNil(t, tm)
	assert.Equal(t, 30*time.Millisecond, tm.deadline)
	assert.True(t, tm.stopped, "alarm must be disarmed after the echo")
	assert.False(t, tm.fired)
}

func TestRunCycle_Timeout(t *testing.T) {
	r := newRig(t)

	res := r.sonar.RunCycle()

	assert.Equal(t, Timeout, res.Outcome)
	assert.False(t, res.OK())
	assert.Zero(t, res.Distance)
	assert.Equal(t, wallTime, res.Time)
	assert.True(t, r.sonar.Window().TimedOut())
}

func TestRunCycle_TimeoutIgnoresTimestamps(t *testing.T) {
	r := newRig(t)
	r.trigger.onPulse = func() {
		r.echo.edge(1000, true)
	}

	res := r.sonar.RunCycle()
	assert.Equal(t, Timeout, res.Outcome)

	// A late falling edge cannot revive the concluded cycle.
	r.echo.edge(40000, false)
	assert.True(t, r.sonar.Window().TimedOut())
	_, ended := r.sonar.Window().End()
	assert.False(t, ended)
}

func TestRunCycle_StaleAlarmCannotTimeOutNextCycle(t *testing.T) {
	r := newRig(t)

	r.trigger.onPulse = func() {
		r.echo.edge(1000, true)
		r.echo.edge(1100, false)
	}
	first := r.sonar.RunCycle()
	require.True(t, first.OK())
	stale := r.timers.last()

	r.trigger.onPulse = func() {
		// The previous cycle's callback runs anyway, as if Stop lost the race.
		stale.f()
		r.echo.edge(5000, true)
		r.echo.edge(5582, false)
	}
	second := r.sonar.RunCycle()

	require.True(t, second.OK(), "stale alarm must not time out the next cycle")
	assert.InDelta(t, 9.9813, second.Distance, 1e-3)
	assert.Equal(t, 2, r.timers.count())
}

func TestRunCycle_MutualExclusivity(t *testing.T) {
	r := newRig(t)

	for i := range 20 {
		if i%2 == 0 {
			base := uint64(i) * 100000
			r.trigger.onPulse = func() {
				r.echo.edge(base, true)
				r.echo.edge(base+582, false)
			}
		} else {
			r.trigger.onPulse = nil
		}

		res := r.sonar.RunCycle()
		w := r.sonar.Window()
		_, ended := w.End()
		assert.NotEqual(t, ended, w.TimedOut(), "cycle %d", i)
		assert.Equal(t, ended, res.OK(), "cycle %d", i)
	}
}

func TestRun_DisabledNeverTriggers(t *testing.T) {
	r := newRig(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := r.sonar.Run(ctx, command.NewQueue(1))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	results, controls := r.rec.snapshot()
	assert.Empty(t, results)
	assert.Empty(t, controls)
	assert.Zero(t, r.trigger.pulses)
}

func TestRun_EndToEnd(t *testing.T) {
	r := newRig(t)
	r.trigger.onPulse = func() {
		r.echo.edge(100, true)
		r.echo.edge(682, false)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.rec.onReport = func(Result) { cancel() }

	q := command.NewQueue(1)
	q.Push('s')

	err := r.sonar.Run(ctx, q)
	assert.ErrorIs(t, err, context.Canceled)

	results, controls := r.rec.snapshot()
	require.Len(t, results, 1)
	assert.True(t, results[0].OK())
	assert.InDelta(t, 9.98, results[0].Distance, 0.01)
	assert.Equal(t, []bool{true}, controls)
	assert.True(t, r.timers.last().stopped, "no timeout may fire after the echo")
}

func TestRun_StopGatesFurtherCycles(t *testing.T) {
	r := newRig(t)
	r.trigger.onPulse = func() {
		r.echo.edge(100, true)
		r.echo.edge(682, false)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := command.NewQueue(4)
	q.Push('S')
	r.rec.onReport = func(Result) { q.Push('P') }
	r.rec.onControl = func(enabled bool) {
		if !enabled {
			time.AfterFunc(30*time.Millisecond, cancel)
		}
	}

	err := r.sonar.Run(ctx, q)
	assert.ErrorIs(t, err, context.Canceled)

	results, controls := r.rec.snapshot()
	assert.Len(t, results, 1)
	assert.Equal(t, []bool{true, false}, controls)
	assert.Equal(t, 1, r.trigger.pulses)
	assert.False(t, r.sonar.Enabled())
}

func TestRun_TimeoutDoesNotHaltLoop(t *testing.T) {
	r := newRig(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.rec.onReport = func(Result) {
		if results, _ := r.rec.snapshot(); len(results) == 3 {
			cancel()
		}
	}

	q := command.NewQueue(1)
	q.Push('s')

	err := r.sonar.Run(ctx, q)
	assert.ErrorIs(t, err, context.Canceled)

	results, _ := r.rec.snapshot()
	require.Len(t, results, 3)
	for _, res := range results {
		assert.Equal(t, Timeout, res.Outcome)
	}
}

func TestApply_IgnoresUnknown(t *testing.T) {
	r := newRig(t)
	r.sonar.Apply(command.None)
	assert.False(t, r.sonar.Enabled())

	_, controls := r.rec.snapshot()
	assert.Empty(t, controls)
}
