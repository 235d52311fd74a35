// SPDX-License-Identifier: MIT
package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	applog "spotmeter/internal/log"
)

// Transport defines a generic interface for sending level events.
// Implementations should be thread-safe.
type Transport interface {
	Send(data any) error
	Close() error
}

// Processor defines the interface for components that consume raw capture
// buffers. durationMs is the time the buffer represents.
// Implementations must be real-time safe (non-blocking, no allocations).
type Processor interface {
	Process(buffer []float32, durationMs float64)
}

// LevelEvent is the payload broadcast for every changed window average.
type LevelEvent struct {
	Type      string  `json:"type"`
	Level     float64 `json:"level"`
	Sequence  uint64  `json:"sequence"`
	Timestamp int64   `json:"timestamp"` // Unix milliseconds.
}

// Fanout forwards level changes to a fixed set of transports.
type Fanout struct {
	transports []Transport
	seq        atomic.Uint64
	now        func() time.Time

	closeOnce sync.Once
	closeErr  error
}

// NewFanout returns a Fanout over transports. Nil entries are skipped.
func NewFanout(transports ...Transport) *Fanout {
	f := &Fanout{now: time.Now}
	for _, t := range transports {
		if t != nil {
			f.transports = append(f.transports, t)
		}
	}
	return f
}

// HandleLevel wraps average in a LevelEvent and sends it to every transport.
// Its signature matches level.Listener.
func (f *Fanout) HandleLevel(_ context.Context, average float64) {
	ev := LevelEvent{
		Type:      "level",
		Level:     average,
		Sequence:  f.seq.Add(1),
		Timestamp: f.now().UnixMilli(),
	}
	for _, t := range f.transports {
		if err := t.Send(ev); err != nil {
			applog.Warnf("Transport: send failed for %T: %v", t, err)
		}
	}
}

// Send forwards data unchanged to every transport.
func (f *Fanout) Send(data any) error {
	var errs []error
	for _, t := range f.transports {
		if err := t.Send(data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of transports.
func (f *Fanout) Len() int {
	return len(f.transports)
}

// Close closes every transport once and joins their errors.
func (f *Fanout) Close() error {
	f.closeOnce.Do(func() {
		var errs []error
		for _, t := range f.transports {
			if err := t.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		f.closeErr = errors.Join(errs...)
	})
	return f.closeErr
}

var _ Transport = (*Fanout)(nil)
