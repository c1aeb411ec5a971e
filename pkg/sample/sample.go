package sample

import (
	"context"
	"time"

	"github.com/itohio/gosonar/pkg/logger"
	"github.com/itohio/gosonar/pkg/report"
)

// DefaultBufferSize is the output channel size used when none is given.
const DefaultBufferSize = 100

// Sample represents one measurement prepared for display.
type Sample struct {
	Timestamp time.Time     // Host time the reading arrived
	Clock     time.Duration // Firmware time of day
	OK        bool          // false for a timed out cycle
	Distance  float64       // Centimetres, zero when !OK
}

// Converter is a function type that converts a Reading channel to a Sample channel.
type Converter func(in <-chan report.Reading) <-chan Sample

// NewConverter creates a converter function that transforms Reading to Sample.
// Readings without a receive time are stamped on arrival.
func NewConverter(bufSize int) Converter {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}

	return func(in <-chan report.Reading) <-chan Sample {
		out := make(chan Sample, bufSize)

		go func() {
			defer close(out)

			for r := range in {
				select {
				case out <- FromReading(r):
				case <-time.After(time.Second):
					logger.Warnf(context.Background(), "converter output channel full, dropping %s", r)
				}
			}
		}()

		return out
	}
}

// FromReading converts a single reading.
func FromReading(r report.Reading) Sample {
	ts := r.Received
	if ts.IsZero() {
		ts = time.Now()
	}

	s := Sample{
		Timestamp: ts,
		Clock:     r.Clock,
		OK:        r.OK,
	}
	if r.OK {
		s.Distance = r.Distance
	}
	return s
}
