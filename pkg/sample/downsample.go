package sample

// Downsample reduces src to at most maxPoints elements by decimation.
// Destination-based: reuses dst if it has sufficient capacity, otherwise allocates new.
// Returns the destination slice (may be dst if reused, or a new slice if dst was too small).
// If len(src) <= maxPoints, copies all elements to dst.
func Downsample[T any](dst []T, src []T, maxPoints int) []T {
	if len(src) <= maxPoints {
		if cap(dst) >= len(src) {
			dst = dst[:len(src)]
			copy(dst, src)
			return dst
		}
		result := make([]T, len(src))
		copy(result, src)
		return result
	}

	if cap(dst) >= maxPoints {
		dst = dst[:0] // Reset length but keep capacity
	} else {
		dst = make([]T, 0, maxPoints)
	}

	// Calculate step size for decimation
	step := float64(len(src)) / float64(maxPoints)

	for i := range maxPoints {
		idx := int(float64(i) * step)
		if idx < len(src) {
			dst = append(dst, src[idx])
		}
	}

	return dst
}

// DownsampleSamples downsamples samples for display. Failed samples are
// always kept so that timeouts remain visible after decimation.
func DownsampleSamples(dst []Sample, samples []Sample, maxPoints int) []Sample {
	if len(samples) <= maxPoints {
		return Downsample(dst, samples, maxPoints)
	}

	dst = Downsample(dst, samples, maxPoints)

	step := float64(len(samples)) / float64(maxPoints)
	for i, s := range samples {
		if s.OK {
			continue
		}
		// Replace the decimated point that stands for this bucket.
		bucket := int(float64(i) / step)
		if bucket < len(dst) {
			dst[bucket] = s
		}
	}
	return dst
}
