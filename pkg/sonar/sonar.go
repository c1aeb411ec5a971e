// Package sonar implements the pulse-timing state machine of an ultrasonic
// time-of-flight range finder.
//
// A cycle resets the shared PulseWindow, arms a Guard deadline, emits a
// trigger pulse and polls until either the falling echo edge or the deadline
// resolves the window. The same code runs on the MCU (TinyGo, GPIO
// interrupts) and on the host against a simulated sensor.
package sonar

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/itohio/gosonar/pkg/command"
)

var (
	ErrNoTrigger   = errors.New("trigger output is required")
	ErrNoEcho      = errors.New("echo input is required")
	ErrNoClock     = errors.New("monotonic clock is required")
	ErrNoWallClock = errors.New("wall clock is required")
	ErrNoReporter  = errors.New("reporter is required")
)

// Trigger is the digital output wired to the sensor's trigger input.
// machine.Pin satisfies it.
type Trigger interface {
	High()
	Low()
}

// Echo is the digital input wired to the sensor's echo output. The handler
// must be invoked on both edges with the new line level.
type Echo interface {
	SetEdgeHandler(handler func(rising bool)) error
}

// Clock is a monotonic microsecond counter.
type Clock interface {
	Micros() uint64
}

// WallClock supplies the time attached to each result.
type WallClock interface {
	Now() time.Time
}

// Reporter consumes results and control changes.
type Reporter interface {
	Report(r Result)
	Control(enabled bool)
}

// Settings are the timing constants of a measurement cycle.
type Settings struct {
	Deadline     time.Duration // Echo deadline per cycle
	TriggerWidth time.Duration // Trigger pulse width
	Interval     time.Duration // Delay after each cycle
	PollTimeout  time.Duration // Bounded wait for one command
	SpeedOfSound float32       // cm/µs
}

// DefaultSettings returns the sensor's datasheet timings.
func DefaultSettings() Settings {
	return Settings{
		Deadline:     30 * time.Millisecond,
		TriggerWidth: 10 * time.Microsecond,
		Interval:     1000 * time.Millisecond,
		PollTimeout:  100 * time.Millisecond,
		SpeedOfSound: SpeedOfSound,
	}
}

// Validate checks that every timing is usable.
func (s Settings) Validate() error {
	switch {
	case s.Deadline <= 0:
		return fmt.Errorf("deadline must be positive, got %v", s.Deadline)
	case s.TriggerWidth <= 0:
		return fmt.Errorf("trigger width must be positive, got %v", s.TriggerWidth)
	case s.Interval < 0:
		return fmt.Errorf("interval must not be negative, got %v", s.Interval)
	case s.PollTimeout < 0:
		return fmt.Errorf("poll timeout must not be negative, got %v", s.PollTimeout)
	case s.SpeedOfSound <= 0:
		return fmt.Errorf("speed of sound must be positive, got %v", s.SpeedOfSound)
	}
	return nil
}

// Hardware bundles the sensor-facing collaborators.
type Hardware struct {
	Trigger Trigger
	Echo    Echo
	Clock   Clock
	Timers  Scheduler // nil uses SystemScheduler

	// Delay holds the trigger high. nil uses time.Sleep.
	Delay func(time.Duration)
	// Idle is called on every poll iteration while waiting for the echo.
	// nil uses runtime.Gosched.
	Idle func()
}

// Sonar drives measurement cycles and holds the start/stop control state.
type Sonar struct {
	settings Settings
	hw       Hardware
	wall     WallClock
	reporter Reporter

	window  PulseWindow
	guard   *Guard
	enabled atomic.Bool
}

// New wires the orchestrator to its collaborators and installs the edge
// handler. The trigger is driven low.
func New(settings Settings, hw Hardware, wall WallClock, reporter Reporter) (*Sonar, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	switch {
	case hw.Trigger == nil:
		return nil, ErrNoTrigger
	case hw.Echo == nil:
		return nil, ErrNoEcho
	case hw.Clock == nil:
		return nil, ErrNoClock
	case wall == nil:
		return nil, ErrNoWallClock
	case reporter == nil:
		return nil, ErrNoReporter
	}

	if hw.Delay == nil {
		hw.Delay = time.Sleep
	}
	if hw.Idle == nil {
		hw.Idle = runtime.Gosched
	}

	s := &Sonar{
		settings: settings,
		hw:       hw,
		wall:     wall,
		reporter: reporter,
		guard:    NewGuard(hw.Timers),
	}

	hw.Trigger.Low()
	if err := hw.Echo.SetEdgeHandler(s.onEdge); err != nil {
		return nil, fmt.Errorf("failed to attach echo handler: %w", err)
	}

	return s, nil
}

// onEdge runs in interrupt context: one clock read and one atomic write.
func (s *Sonar) onEdge(rising bool) {
	now := s.hw.Clock.Micros()
	if rising {
		s.window.MarkStart(now)
	} else {
		s.window.MarkEnd(now)
	}
}

// Settings returns the timing constants in use.
func (s *Sonar) Settings() Settings {
	return s.settings
}

// Window exposes the shared pulse record for inspection.
func (s *Sonar) Window() *PulseWindow {
	return &s.window
}

// SetEnabled starts or stops measurements from the next loop iteration.
func (s *Sonar) SetEnabled(enabled bool) {
	s.enabled.Store(enabled)
}

// Enabled reports whether measurements are running.
func (s *Sonar) Enabled() bool {
	return s.enabled.Load()
}

// RunCycle performs one measurement. Reset precedes arming and arming
// precedes the trigger, so no edge or deadline of an earlier cycle can
// resolve this one.
func (s *Sonar) RunCycle() Result {
	cycle := s.window.Reset()
	alarm := s.guard.Arm(s.settings.Deadline, func() {
		s.window.Expire(cycle)
	})

	s.pulse()

	for !s.window.Concluded() {
		s.hw.Idle()
	}

	res := Result{Outcome: Timeout}
	if !s.window.TimedOut() {
		s.guard.Disarm(alarm)

		echo, _ := s.window.Echo()
		res = Result{
			Outcome:  Success,
			Distance: Distance(echo, s.settings.SpeedOfSound),
			Echo:     time.Duration(echo) * time.Microsecond,
		}
	}
	res.Time = s.wall.Now()

	return res
}

func (s *Sonar) pulse() {
	s.hw.Trigger.High()
	s.hw.Delay(s.settings.TriggerWidth)
	s.hw.Trigger.Low()
}

// Apply executes one command and tells the reporter about control changes.
func (s *Sonar) Apply(cmd command.Command) {
	switch cmd {
	case command.Start:
		s.SetEnabled(true)
		s.reporter.Control(true)
	case command.Stop:
		s.SetEnabled(false)
		s.reporter.Control(false)
	}
}

// Run is the control loop. Every iteration polls one command with a bounded
// wait, and when enabled runs and reports a cycle followed by the
// inter-cycle delay. It returns only when ctx is done.
func (s *Sonar) Run(ctx context.Context, commands command.Source) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if b, ok := commands.Poll(s.settings.PollTimeout); ok {
			s.Apply(command.Parse(b))
		}

		if !s.Enabled() {
			continue
		}

		s.reporter.Report(s.RunCycle())

		if err := sleep(ctx, s.settings.Interval); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
