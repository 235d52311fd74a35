// SPDX-License-Identifier: MIT
// Package observe exposes the level pipeline's counters as OpenTelemetry
// metrics. A Prometheus exporter bridge is available via NewProvider so the
// metrics can be scraped from /metrics. Tests should use NewMetrics with
// their own metric.MeterProvider.
package observe

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"spotmeter/internal/level"
	"spotmeter/internal/volume"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "spotmeter"

// PipelineSource is the read side of a level.Monitor.
type PipelineSource interface {
	Stats() level.Stats
	Dropped() uint64
	LastLevel() float64
}

// CaptureSource reports how many buffers the capture engine processed.
type CaptureSource interface {
	Buffers() uint64
}

// Sources are polled on every collection. Capture may be nil.
type Sources struct {
	Pipeline PipelineSource
	Capture  CaptureSource
}

// Metrics holds the synchronous instruments and the registration of the
// observable ones.
type Metrics struct {
	// VolumeRequests counts volume requests. Use with attribute:
	//   attribute.String("status", "ok" | "error" | "rejected")
	VolumeRequests metric.Int64Counter

	// Volume is the last volume percent successfully applied.
	Volume metric.Int64Gauge

	registration metric.Registration
}

// NewMetrics creates the instruments on mp. The pipeline counters are read
// from src at collection time, so the audio thread never touches an
// instrument.
func NewMetrics(mp metric.MeterProvider, src Sources) (*Metrics, error) {
	if src.Pipeline == nil {
		return nil, errors.New("observe: pipeline source is required")
	}

	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.VolumeRequests, err = m.Int64Counter("spotmeter.volume.requests",
		metric.WithDescription("Volume change requests by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Volume, err = m.Int64Gauge("spotmeter.volume",
		metric.WithDescription("Last applied playback volume."),
		metric.WithUnit("%"),
	); err != nil {
		return nil, err
	}

	frames, err := m.Int64ObservableCounter("spotmeter.frames",
		metric.WithDescription("Capture buffers folded into the level window."))
	if err != nil {
		return nil, err
	}
	windows, err := m.Int64ObservableCounter("spotmeter.windows",
		metric.WithDescription("One-second windows completed."))
	if err != nil {
		return nil, err
	}
	emitted, err := m.Int64ObservableCounter("spotmeter.levels.emitted",
		metric.WithDescription("Window averages that differed from the previous one."))
	if err != nil {
		return nil, err
	}
	suppressed, err := m.Int64ObservableCounter("spotmeter.levels.suppressed",
		metric.WithDescription("Window averages equal to the previous one."))
	if err != nil {
		return nil, err
	}
	dropped, err := m.Int64ObservableCounter("spotmeter.notifications.dropped",
		metric.WithDescription("Level changes lost to a full notification queue."))
	if err != nil {
		return nil, err
	}
	lastLevel, err := m.Float64ObservableGauge("spotmeter.level",
		metric.WithDescription("Most recently emitted window average."))
	if err != nil {
		return nil, err
	}

	instruments := []metric.Observable{frames, windows, emitted, suppressed, dropped, lastLevel}

	var buffers metric.Int64ObservableCounter
	if src.Capture != nil {
		if buffers, err = m.Int64ObservableCounter("spotmeter.capture.buffers",
			metric.WithDescription("Buffers delivered by the capture stream.")); err != nil {
			return nil, err
		}
		instruments = append(instruments, buffers)
	}

	met.registration, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := src.Pipeline.Stats()
		o.ObserveInt64(frames, int64(stats.Frames))
		o.ObserveInt64(windows, int64(stats.Windows))
		o.ObserveInt64(emitted, int64(stats.Emitted))
		o.ObserveInt64(suppressed, int64(stats.Suppressed))
		o.ObserveInt64(dropped, int64(src.Pipeline.Dropped()))
		o.ObserveFloat64(lastLevel, src.Pipeline.LastLevel())
		if src.Capture != nil {
			o.ObserveInt64(buffers, int64(src.Capture.Buffers()))
		}
		return nil
	}, instruments...)
	if err != nil {
		return nil, err
	}

	return met, nil
}

// RecordVolumeResult records one volume request. Its signature matches
// volume.ResultFunc.
func (m *Metrics) RecordVolumeResult(ctx context.Context, percent int, err error) {
	status := "ok"
	switch {
	case errors.Is(err, volume.ErrVolumeOutOfRange):
		status = "rejected"
	case err != nil:
		status = "error"
	}
	m.VolumeRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	if err == nil {
		m.Volume.Record(ctx, int64(percent))
	}
}

// Close unregisters the observable callbacks.
func (m *Metrics) Close() error {
	if m.registration == nil {
		return nil
	}
	return m.registration.Unregister()
}
