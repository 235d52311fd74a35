// SPDX-License-Identifier: MIT
package level

import (
	"math"
	"sync"
	"sync/atomic"
)

// Accumulator is a copy of the cumulative window state.
type Accumulator struct {
	Magnitude  float64 // Summed magnitude of every frame folded since the last reset.
	DurationMs float64 // Summed frame duration since the last reset.
	Reads      uint    // Frames folded since the last reset, the averaging divisor.
}

// Stats are monotonically increasing pipeline counters.
type Stats struct {
	Frames     uint64 // Frames folded.
	Windows    uint64 // Windows completed.
	Emitted    uint64 // Window averages that differed from the previous emission.
	Suppressed uint64 // Window averages equal to the previous emission.
}

// Aggregator folds FrameSummary values into one-second windows and reports
// the window average whenever it changes.
//
// The threshold check and the reset share one critical section, so no frame
// is lost or counted twice. The last emitted average is kept outside that
// section as float64 bits behind an atomic swap.
type Aggregator struct {
	mu  sync.Mutex
	acc Accumulator

	lastEmitted atomic.Uint64 // math.Float64bits of the last emitted average.

	frames     atomic.Uint64
	windows    atomic.Uint64
	emitted    atomic.Uint64
	suppressed atomic.Uint64
}

// NewAggregator returns an aggregator with an empty window and a last
// emitted average of 0.
func NewAggregator() *Aggregator {
	a := &Aggregator{}
	a.Reset()
	return a
}

// Reset zeroes the cumulative window state. The last emitted average is kept.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.reset()
	a.mu.Unlock()
}

// reset must be called with a.mu held.
func (a *Aggregator) reset() {
	a.acc = Accumulator{}
}

// Fold adds one frame to the current window. When the window reaches
// WindowMs it is closed and its average returned with emitted set, unless
// the average is bit-identical to the previous emission.
func (a *Aggregator) Fold(s FrameSummary) (average float64, emitted bool) {
	var (
		windowAverage float64
		completed     bool
	)

	a.mu.Lock()
	a.acc.Magnitude += s.MagnitudeSum
	a.acc.DurationMs += s.DurationMs
	a.acc.Reads++

	// Reads was incremented above, so the divisor is never zero here.
	if a.acc.DurationMs >= WindowMs {
		windowAverage = a.acc.Magnitude / float64(a.acc.Reads)
		completed = true
		a.reset()
	}
	a.mu.Unlock()

	a.frames.Add(1)
	if !completed {
		return 0, false
	}
	a.windows.Add(1)

	bits := math.Float64bits(windowAverage)
	if a.lastEmitted.Swap(bits) == bits {
		a.suppressed.Add(1)
		return windowAverage, false
	}

	a.emitted.Add(1)
	return windowAverage, true
}

// Snapshot returns a consistent copy of the cumulative window state.
func (a *Aggregator) Snapshot() Accumulator {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acc
}

// LastLevel returns the most recently emitted window average.
func (a *Aggregator) LastLevel() float64 {
	return math.Float64frombits(a.lastEmitted.Load())
}

// Stats returns the pipeline counters.
func (a *Aggregator) Stats() Stats {
	return Stats{
		Frames:     a.frames.Load(),
		Windows:    a.windows.Load(),
		Emitted:    a.emitted.Load(),
		Suppressed: a.suppressed.Load(),
	}
}
