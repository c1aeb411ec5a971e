package sample

import (
	"context"

	"github.com/itohio/gosonar/pkg/logger"
)

// NewAveragingConverter creates a converter that replaces each successful
// distance with the moving average of the last windowSize successful
// distances. Failed samples pass through unchanged and do not enter the
// window.
func NewAveragingConverter(windowSize int, bufSize int) func(in <-chan Sample) <-chan Sample {
	if windowSize <= 0 {
		windowSize = 1 // No averaging if invalid
	}
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}

	return func(in <-chan Sample) <-chan Sample {
		out := make(chan Sample, bufSize)

		go func() {
			defer close(out)

			window := make([]float64, 0, windowSize)
			for s := range in {
				if s.OK {
					if len(window) == windowSize {
						window = window[1:]
					}
					window = append(window, s.Distance)
					s.Distance = mean(window)
				}

				select {
				case out <- s:
				default:
					logger.Warnf(context.Background(), "averaging converter output channel full")
				}
			}
		}()

		return out
	}
}

// Average returns the mean distance of the successful samples and how many
// there were.
func Average(samples []Sample) (float64, int) {
	var sum float64
	n := 0
	for _, s := range samples {
		if s.OK {
			sum += s.Distance
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
