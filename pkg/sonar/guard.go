package sonar

import (
	"sync/atomic"
	"time"
)

// Timer is a scheduled one-shot callback. Stop reports whether it prevented
// the callback from running, with the semantics of (*time.Timer).Stop.
type Timer interface {
	Stop() bool
}

// Scheduler schedules one-shot callbacks. On the host and under TinyGo the
// callback runs on its own goroutine, standing in for the alarm interrupt.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemScheduler schedules callbacks with time.AfterFunc.
type SystemScheduler struct{}

// AfterFunc implements Scheduler.
func (SystemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// PendingAlarm is the handle of one armed deadline.
type PendingAlarm struct {
	timer Timer
	fired atomic.Bool
}

// Fired reports whether the deadline callback ran.
func (a *PendingAlarm) Fired() bool {
	return a.fired.Load()
}

// Guard bounds an interrupt-driven wait with a deadline. Whoever resolves
// first wins: the waited-for event, or the expire callback. The loser must
// be a no-op, which callers get by making expire conditional (see
// PulseWindow.Expire).
type Guard struct {
	timers Scheduler
}

// NewGuard returns a Guard using timers, or SystemScheduler when nil.
func NewGuard(timers Scheduler) *Guard {
	if timers == nil {
		timers = SystemScheduler{}
	}
	return &Guard{timers: timers}
}

// Arm schedules expire to run once after deadline.
func (g *Guard) Arm(deadline time.Duration, expire func()) *PendingAlarm {
	a := &PendingAlarm{}
	a.timer = g.timers.AfterFunc(deadline, func() {
		a.fired.Store(true)
		expire()
	})
	return a
}

// Disarm cancels a pending deadline. It returns true when the callback was
// prevented and false when it had already fired (or a is nil); never both.
func (g *Guard) Disarm(a *PendingAlarm) bool {
	if a == nil || a.timer == nil {
		return false
	}
	return a.timer.Stop()
}
