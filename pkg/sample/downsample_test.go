package sample

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func series(n int) []Sample {
	now := time.Now()
	samples := make([]Sample, n)
	for i := range samples {
		samples[i] = Sample{
			Timestamp: now.Add(time.Duration(i) * time.Second),
			OK:        true,
			Distance:  float64(i),
		}
	}
	return samples
}

func TestDownsampleSamples_NoDownsampling(t *testing.T) {
	samples := series(3)

	// Test with nil dst
	result := DownsampleSamples(nil, samples, 10)
	require.Equal(t, samples, result)

	// Test with sufficient capacity dst
	dst := make([]Sample, 0, 10)
	result = DownsampleSamples(dst, samples, 10)
	require.Equal(t, samples, result)
	// Should reuse dst
	assert.Equal(t, cap(dst), cap(result))
}

func TestDownsampleSamples_WithDownsampling(t *testing.T) {
	samples := series(100)

	dst := make([]Sample, 0, 20)
	result := DownsampleSamples(dst, samples, 10)
	require.Len(t, result, 10)

	// Should always include first sample
	assert.Equal(t, samples[0], result[0])
	// Should be in last 20% of range
	assert.GreaterOrEqual(t, result[len(result)-1].Distance, 80.0)
	assert.Equal(t, 20, cap(result))
}

func TestDownsampleSamples_KeepsFailures(t *testing.T) {
	samples := series(100)
	samples[37] = Sample{Timestamp: samples[37].Timestamp}

	result := DownsampleSamples(nil, samples, 10)
	require.Len(t, result, 10)

	assert.False(t, result[3].OK)
	assert.Equal(t, samples[37].Timestamp, result[3].Timestamp)
	for i, s := range result {
		if i != 3 {
			assert.True(t, s.OK, "index %d", i)
		}
	}
}

func TestDownsample_Generic(t *testing.T) {
	values := []float64{0, 1, 2, 3, 4, 5, 6, 7}

	assert.Equal(t, []float64{0, 2, 4, 6}, Downsample(nil, values, 4))
	assert.Equal(t, values, Downsample(nil, values, 8))
	assert.Empty(t, Downsample[float64](nil, nil, 4))
}
