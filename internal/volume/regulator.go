// SPDX-License-Identifier: MIT
package volume

import (
	"context"
	"sync"

	applog "spotmeter/internal/log"
)

// Setter applies a playback volume. *Controller is the production Setter.
type Setter interface {
	SetVolume(ctx context.Context, percent int) error
}

// RegulatorConfig holds the regulation parameters, all on a 0..100 scale.
type RegulatorConfig struct {
	InitialVolume int
	MinNoiseLevel float64
	MaxNoiseLevel float64
	Delta         float64 // Tolerance between volume and noise before stepping.
}

// Regulator keeps the playback volume within Delta of the ambient noise,
// moving it one percent per level change.
type Regulator struct {
	setter Setter
	cfg    RegulatorConfig

	mu     sync.Mutex
	volume int
	noise  float64
}

// NewRegulator returns a regulator starting at cfg.InitialVolume.
func NewRegulator(setter Setter, cfg RegulatorConfig) *Regulator {
	return &Regulator{
		setter: setter,
		cfg:    cfg,
		volume: clampPercent(cfg.InitialVolume),
	}
}

// Normalize maps a window average onto the 0..100 noise scale. When the
// noise bounds are narrowed from 0..100 the level is stretched by the
// remaining range.
func Normalize(level, minNoise, maxNoise float64) float64 {
	var noise float64
	if minNoise != 0 || maxNoise != 100 {
		r := (100 - maxNoise + minNoise) / 100
		if r <= 0 {
			r = 1
		}
		noise = level / r * 100
	} else {
		noise = level * 100
	}
	return min(max(noise, 0), 100)
}

// HandleLevel reacts to one changed window average. Its signature matches
// level.Listener. Setter failures are logged and the step is kept.
func (r *Regulator) HandleLevel(ctx context.Context, level float64) {
	noise := Normalize(level, r.cfg.MinNoiseLevel, r.cfg.MaxNoiseLevel)

	r.mu.Lock()
	r.noise = noise
	prev := r.volume
	switch v := float64(r.volume); {
	case v+r.cfg.Delta < noise:
		if r.volume < 100 {
			r.volume++
		}
	case v-r.cfg.Delta > noise:
		if r.volume > 0 {
			r.volume--
		}
	}
	next := r.volume
	r.mu.Unlock()

	if next == prev {
		return
	}
	applog.Debugf("Volume: noise %.2f, volume %d -> %d", noise, prev, next)
	if err := r.setter.SetVolume(ctx, next); err != nil {
		applog.Errorf("Volume: %v", err)
	}
}

// Volume returns the current target volume.
func (r *Regulator) Volume() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.volume
}

// Noise returns the last normalized noise level.
func (r *Regulator) Noise() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.noise
}

func clampPercent(p int) int {
	return min(max(p, 0), 100)
}
