// SPDX-License-Identifier: MIT
package level

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned when a closed Monitor is asked to run.
var ErrClosed = errors.New("level monitor is closed")

// Monitor is the aggregation pipeline attached to a capture source. Process
// is called once per captured buffer from the audio thread; listeners
// subscribed through OnLevelChanged receive each changed window average on
// the dispatcher goroutine.
type Monitor struct {
	aggregator *Aggregator
	dispatcher *Dispatcher
	notify     func(string)

	// lifecycle is read-held by Process and write-held by Close, so Close
	// waits for an in-flight fold and no fold starts afterwards.
	lifecycle sync.RWMutex
	closed    bool
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithNotifier sets the diagnostic sink that receives status messages.
func WithNotifier(fn func(string)) MonitorOption {
	return func(m *Monitor) {
		if fn != nil {
			m.notify = fn
		}
	}
}

// WithQueueSize sets how many pending level changes are buffered.
func WithQueueSize(n int) MonitorOption {
	return func(m *Monitor) {
		m.dispatcher = NewDispatcher(n)
	}
}

// NewMonitor creates a monitor with a fresh window.
func NewMonitor(opts ...MonitorOption) *Monitor {
	m := &Monitor{
		aggregator: NewAggregator(),
		dispatcher: NewDispatcher(DefaultQueueSize),
		notify:     func(string) {},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnLevelChanged registers a listener for changed window averages.
func (m *Monitor) OnLevelChanged(l Listener) {
	m.dispatcher.Subscribe(l)
}

// Process reduces one captured buffer and folds it into the current window.
// It runs on the audio thread: it never blocks on listeners, and a call that
// overlaps Close is skipped rather than made to wait.
func (m *Monitor) Process(samples []float32, durationMs float64) {
	if !m.lifecycle.TryRLock() {
		return
	}
	defer m.lifecycle.RUnlock()
	if m.closed {
		return
	}

	if avg, ok := m.aggregator.Fold(Reduce(samples, durationMs)); ok {
		m.dispatcher.Publish(avg)
	}
}

// Run delivers level changes until ctx is cancelled or the monitor is closed.
func (m *Monitor) Run(ctx context.Context) error {
	m.lifecycle.RLock()
	closed := m.closed
	m.lifecycle.RUnlock()
	if closed {
		return ErrClosed
	}

	m.notify("Audio monitoring initiated")
	err := m.dispatcher.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close waits for an in-flight Process call, stops further folds and lets
// Run deliver what is already queued. It is safe to call more than once.
func (m *Monitor) Close() error {
	m.lifecycle.Lock()
	wasClosed := m.closed
	m.closed = true
	m.lifecycle.Unlock()

	if wasClosed {
		return nil
	}
	m.dispatcher.Close()
	m.notify("Audio monitoring stopped")
	return nil
}

// Snapshot returns the current partial window.
func (m *Monitor) Snapshot() Accumulator {
	return m.aggregator.Snapshot()
}

// LastLevel returns the most recently emitted window average.
func (m *Monitor) LastLevel() float64 {
	return m.aggregator.LastLevel()
}

// Stats returns the aggregation counters.
func (m *Monitor) Stats() Stats {
	return m.aggregator.Stats()
}

// Dropped returns how many level changes were lost to a full queue.
func (m *Monitor) Dropped() uint64 {
	return m.dispatcher.Dropped()
}
