// SPDX-License-Identifier: MIT
package level

import (
	"context"
	"sync"
	"sync/atomic"

	applog "spotmeter/internal/log"
)

// DefaultQueueSize is the number of pending level changes a Dispatcher
// buffers before dropping new ones. At one window per second this is over
// a minute of backlog.
const DefaultQueueSize = 64

// Listener reacts to a changed window average. Listeners run on the
// dispatcher goroutine, one value at a time, never on the audio thread.
type Listener func(ctx context.Context, average float64)

// Dispatcher is a single-consumer queue between the real-time producer and
// the level listeners. Publish never blocks; Run delivers values in order.
type Dispatcher struct {
	queue chan float64
	done  chan struct{}

	mu        sync.RWMutex
	listeners []Listener

	closeOnce sync.Once
	dropped   atomic.Uint64
	delivered atomic.Uint64
}

// NewDispatcher creates a dispatcher with room for size pending values.
// A non-positive size falls back to DefaultQueueSize.
func NewDispatcher(size int) *Dispatcher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Dispatcher{
		queue: make(chan float64, size),
		done:  make(chan struct{}),
	}
}

// Subscribe registers a listener. Listeners are invoked in registration order.
func (d *Dispatcher) Subscribe(l Listener) {
	if l == nil {
		return
	}
	d.mu.Lock()
	d.listeners = append(d.listeners, l)
	d.mu.Unlock()
}

// Publish queues average for delivery. It reports false when the queue is
// full or the dispatcher is closed, in which case the value is dropped.
func (d *Dispatcher) Publish(average float64) bool {
	select {
	case <-d.done:
		d.dropped.Add(1)
		return false
	default:
	}

	select {
	case d.queue <- average:
		return true
	default:
		d.dropped.Add(1)
		return false
	}
}

// Run delivers queued values to the listeners until ctx is cancelled or
// Close is called. Values still queued when Close is called are delivered
// before Run returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case avg := <-d.queue:
			d.deliver(ctx, avg)
		case <-d.done:
			for {
				select {
				case avg := <-d.queue:
					d.deliver(ctx, avg)
				default:
					return nil
				}
			}
		}
	}
}

// Close stops accepting values and lets Run drain the queue. It is safe to
// call more than once.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.done)
	})
}

// Dropped returns the number of values that could not be queued.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Delivered returns the number of values handed to the listeners.
func (d *Dispatcher) Delivered() uint64 {
	return d.delivered.Load()
}

func (d *Dispatcher) deliver(ctx context.Context, avg float64) {
	d.mu.RLock()
	listeners := d.listeners
	d.mu.RUnlock()

	for _, l := range listeners {
		invoke(ctx, l, avg)
	}
	d.delivered.Add(1)
}

// invoke isolates the dispatcher from a panicking listener.
func invoke(ctx context.Context, l Listener, avg float64) {
	defer func() {
		if r := recover(); r != nil {
			applog.Errorf("Dispatcher: listener panicked on level %.6f: %v", avg, r)
		}
	}()
	l(ctx, avg)
}
