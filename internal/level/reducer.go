// SPDX-License-Identifier: MIT
/*
Package level implements the loudness aggregation pipeline that sits behind
the capture callback:

- Reduce turns one captured buffer into a FrameSummary
- Aggregator folds summaries into one-second windows
- Dispatcher delivers changed window averages to listeners off the audio thread
- Monitor ties the three together and guards teardown

Thread Safety:
- Reduce is pure and allocation-free
- Aggregator state is guarded by a single mutex held for O(1) work
- Listener code never runs on the producer's goroutine
*/
package level

import "math"

// WindowMs is the length of one aggregation window in milliseconds.
const WindowMs = 1000.0

// FrameSummary is the scalar reduction of a single captured buffer.
type FrameSummary struct {
	MagnitudeSum float64 // Sum of |sample| over the whole buffer.
	SampleCount  uint    // Number of samples in the buffer (may be zero).
	DurationMs   float64 // Wall-clock time the buffer represents, 0 if unknown.
}

// Reduce computes the magnitude sum of samples in a single linear pass.
// A negative or NaN duration is treated as absent and reported as 0.
// Performance Critical (Hot Path):
// - No allocations
// - No branching on sample values
func Reduce(samples []float32, durationMs float64) FrameSummary {
	var sum float64
	for _, s := range samples {
		sum += math.Abs(float64(s))
	}

	if !(durationMs > 0) {
		durationMs = 0
	}

	return FrameSummary{
		MagnitudeSum: sum,
		SampleCount:  uint(len(samples)),
		DurationMs:   durationMs,
	}
}

// DurationMs returns how long frames samples last at sampleRate.
// PortAudio does not report a per-buffer duration, so the capture source
// derives it from the quantum size instead. Returns 0 for a non-positive rate.
func DurationMs(frames int, sampleRate float64) float64 {
	if frames <= 0 || !(sampleRate > 0) {
		return 0
	}
	return float64(frames) * 1000 / sampleRate
}
