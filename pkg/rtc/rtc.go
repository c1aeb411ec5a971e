// Package rtc provides the free-running wall clock used to timestamp
// measurements. Boards without a battery-backed RTC start from a fixed
// epoch at boot.
package rtc

import (
	"sync"
	"time"
)

// DefaultEpoch is the date and time the clock starts from at boot.
var DefaultEpoch = time.Date(2025, time.March, 14, 11, 50, 0, 0, time.UTC)

// Clock is a wall clock seeded once and running on the monotonic timer.
type Clock struct {
	mu    sync.Mutex
	epoch time.Time
	base  time.Time
	now   func() time.Time
}

// New returns a Clock reading epoch now.
func New(epoch time.Time) *Clock {
	return newClock(epoch, time.Now)
}

func newClock(epoch time.Time, now func() time.Time) *Clock {
	return &Clock{
		epoch: epoch,
		base:  now(),
		now:   now,
	}
}

// Now returns the current wall-clock time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch.Add(c.now().Sub(c.base))
}

// Set re-seeds the clock so that it reads t now.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch = t
	c.base = c.now()
}

// HMS returns the current hour, minute and second.
func (c *Clock) HMS() (hour, minute, second int) {
	return c.Now().Clock()
}
