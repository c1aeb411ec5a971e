package sonar

import (
	"time"

	"github.com/chewxy/math32"
)

// SpeedOfSound is the speed of sound in air at ~20°C in cm/µs.
const SpeedOfSound float32 = 0.0343

// Outcome tells how a measurement cycle concluded.
type Outcome uint8

const (
	// Success means the falling edge arrived before the deadline.
	Success Outcome = iota
	// Timeout means the deadline fired first. It is an expected outcome.
	Timeout
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Result is the outcome of one measurement cycle.
type Result struct {
	Outcome  Outcome
	Distance float32       // Centimetres, zero on timeout
	Echo     time.Duration // Echo pulse width, zero on timeout
	Time     time.Time     // Wall-clock time at resolution
}

// OK reports whether the cycle produced a distance.
func (r Result) OK() bool {
	return r.Outcome == Success
}

// Rounded returns the distance rounded to one decimal place.
func (r Result) Rounded() float32 {
	return math32.Round(r.Distance*10) / 10
}

// Distance converts an echo width in microseconds into centimetres. The
// pulse travels to the target and back, hence the division by two.
func Distance(echoUS uint64, speed float32) float32 {
	return float32(echoUS) * speed / 2
}

// MaxRange returns the farthest target, in centimetres, whose echo can
// still beat deadline.
func MaxRange(deadline time.Duration, speed float32) float32 {
	us := float32(deadline / time.Microsecond)
	return us * speed / 2
}

// DeadlineFor returns the smallest deadline that lets an echo from rangeCM
// arrive, rounded up to a whole millisecond.
func DeadlineFor(rangeCM float32, speed float32) time.Duration {
	if speed <= 0 {
		return 0
	}
	ms := math32.Ceil(2 * rangeCM / speed / 1000)
	return time.Duration(ms) * time.Millisecond
}
