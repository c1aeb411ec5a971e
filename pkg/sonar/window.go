package sonar

import "sync/atomic"

// Outcome word layout:
//
//	[63:62] state (pending, echo, timeout)
//	[61:48] cycle number, wraps
//	[47:0]  end timestamp in microseconds (echo only)
//
// Packing all three into one word makes resolution a single compare-and-swap,
// so a late timeout can never overwrite an echo and vice versa.
const (
	statePending uint64 = 0
	stateEcho    uint64 = 1
	stateTimeout uint64 = 2

	stateShift = 62
	cycleShift = 48
	cycleMask  = 1<<14 - 1
	stampMask  = 1<<48 - 1

	startSet = 1 << 63
)

func pack(state uint64, cycle uint32, stamp uint64) uint64 {
	return state<<stateShift | uint64(cycle&cycleMask)<<cycleShift | stamp&stampMask
}

func stateOf(word uint64) uint64 { return word >> stateShift }
func cycleOf(word uint64) uint32 { return uint32(word>>cycleShift) & cycleMask }
func stampOf(word uint64) uint64 { return word & stampMask }

// PulseWindow is the record shared between the edge handler, the timeout
// callback and the orchestrator. Every field is a single atomic word.
type PulseWindow struct {
	start   atomic.Uint64
	outcome atomic.Uint64
}

// Reset clears the window and opens a new cycle, returning its number.
// Only the orchestrator calls Reset, and only before arming the guard.
func (w *PulseWindow) Reset() uint32 {
	next := (cycleOf(w.outcome.Load()) + 1) & cycleMask
	w.start.Store(0)
	w.outcome.Store(pack(statePending, next, 0))
	return next
}

// MarkStart records a rising edge at us. Ignored once the window concluded.
func (w *PulseWindow) MarkStart(us uint64) {
	if stateOf(w.outcome.Load()) != statePending {
		return
	}
	w.start.Store(startSet | us&stampMask)
}

// MarkEnd records a falling edge at us and resolves the window as an echo.
// It reports whether this edge won the race. A falling edge without a
// recorded rising edge is ignored.
func (w *PulseWindow) MarkEnd(us uint64) bool {
	cur := w.outcome.Load()
	if stateOf(cur) != statePending || w.start.Load() == 0 {
		return false
	}
	return w.outcome.CompareAndSwap(cur, pack(stateEcho, cycleOf(cur), us))
}

// Expire resolves cycle as timed out. It reports whether the deadline won;
// it is a no-op when the window already concluded or moved on to another cycle.
func (w *PulseWindow) Expire(cycle uint32) bool {
	return w.outcome.CompareAndSwap(pack(statePending, cycle, 0), pack(stateTimeout, cycle, 0))
}

// Start returns the rising edge timestamp, if any.
func (w *PulseWindow) Start() (uint64, bool) {
	v := w.start.Load()
	return v & stampMask, v&startSet != 0
}

// End returns the falling edge timestamp, if the echo won.
func (w *PulseWindow) End() (uint64, bool) {
	v := w.outcome.Load()
	return stampOf(v), stateOf(v) == stateEcho
}

// TimedOut reports whether the deadline won the current cycle.
func (w *PulseWindow) TimedOut() bool {
	return stateOf(w.outcome.Load()) == stateTimeout
}

// Concluded reports whether either resolver won the current cycle.
func (w *PulseWindow) Concluded() bool {
	return stateOf(w.outcome.Load()) != statePending
}

// Cycle returns the current cycle number.
func (w *PulseWindow) Cycle() uint32 {
	return cycleOf(w.outcome.Load())
}

// Echo returns the measured pulse width in microseconds when the echo won.
func (w *PulseWindow) Echo() (uint64, bool) {
	end, ok := w.End()
	if !ok {
		return 0, false
	}
	start, _ := w.Start()
	return end - start, true
}
