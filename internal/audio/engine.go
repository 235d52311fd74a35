// SPDX-License-Identifier: MIT
/*
Package audio is the capture source in front of the level pipeline:
- PortAudio float32 input stream
- Per-quantum fan out to transport.Processor sinks with the buffer duration
- Optional WAV recording with atomic state management

Thread Safety:
- Pre-allocates buffers to avoid GC in hot path
- Locks OS thread during audio processing
- Recording is swapped in and out through an atomic pointer
*/
package audio

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"spotmeter/internal/config"
	"spotmeter/internal/level"
	applog "spotmeter/internal/log"
	"spotmeter/internal/transport"
)

type Engine struct {
	// Core configuration and state.
	config *config.Config

	// Audio input handling.
	inputBuffer  []float32
	monoBuffer   []float32 // First channel of inputBuffer when capturing more than one.
	inputDevice  *portaudio.DeviceInfo
	inputLatency time.Duration
	inputStream  *portaudio.Stream
	streamMu     sync.Mutex

	processors []transport.Processor

	recorder atomic.Pointer[Recorder]
	buffers  atomic.Uint64
}

// NewEngine resolves the configured input device and prepares the buffers.
// It does not open the stream.
func NewEngine(cfg *config.Config) (*Engine, error) {
	inputDevice, err := InputDevice(cfg.Audio.InputDevice)
	if err != nil {
		return nil, fmt.Errorf("capture device: %w", err)
	}
	return newEngine(cfg, inputDevice)
}

func newEngine(cfg *config.Config, inputDevice *portaudio.DeviceInfo) (*Engine, error) {
	if inputDevice.MaxInputChannels < cfg.Audio.InputChannels {
		return nil, fmt.Errorf("device %q has %d input channels, %d requested",
			inputDevice.Name, inputDevice.MaxInputChannels, cfg.Audio.InputChannels)
	}

	engine := &Engine{
		config:      cfg,
		inputBuffer: make([]float32, cfg.BufferSamples()),
		inputDevice: inputDevice,
	}
	if cfg.Audio.InputChannels > 1 {
		engine.monoBuffer = make([]float32, cfg.Audio.FramesPerBuffer)
	}

	if cfg.Audio.LowLatency {
		engine.inputLatency = inputDevice.DefaultLowInputLatency
	} else {
		engine.inputLatency = inputDevice.DefaultHighInputLatency
	}

	return engine, nil
}

// AddProcessor registers a sink for every captured buffer. It must be
// called before StartInputStream.
func (e *Engine) AddProcessor(p transport.Processor) {
	if p != nil {
		e.processors = append(e.processors, p)
	}
}

// Device returns the input device the engine captures from.
func (e *Engine) Device() *portaudio.DeviceInfo {
	return e.inputDevice
}

// Buffers returns how many capture buffers have been processed.
func (e *Engine) Buffers() uint64 {
	return e.buffers.Load()
}

func (e *Engine) StartInputStream() error {
	e.streamMu.Lock()
	defer e.streamMu.Unlock()

	if e.inputStream != nil {
		return errors.New("input stream already started")
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: e.config.Audio.InputChannels,
			Device:   e.inputDevice,
			Latency:  e.inputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: e.config.Audio.FramesPerBuffer,
		SampleRate:      e.config.Audio.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, e.processInputStream)
	if err != nil {
		return fmt.Errorf("failed to open input stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to start input stream: %w", err)
	}
	e.inputStream = stream

	applog.Infof("Audio: Capturing from %q (%.0f Hz, %d ch, %d frames, latency %s)",
		e.inputDevice.Name, e.config.Audio.SampleRate, e.config.Audio.InputChannels,
		e.config.Audio.FramesPerBuffer, e.inputLatency)
	return nil
}

// StopInputStream stops and closes the stream. Once it returns the callback
// is no longer invoked.
func (e *Engine) StopInputStream() error {
	e.streamMu.Lock()
	defer e.streamMu.Unlock()

	if e.inputStream == nil {
		return nil
	}

	stream := e.inputStream
	e.inputStream = nil

	stopErr := stream.Stop()
	closeErr := stream.Close()
	if err := errors.Join(stopErr, closeErr); err != nil {
		return fmt.Errorf("failed to stop input stream: %w", err)
	}
	return nil
}

// processInputStream is the core audio processing callback.
// Performance Critical:
// - Runs in a dedicated OS thread (LockOSThread)
// - Uses pre-allocated buffers only
// - No dynamic allocations in the hot path
func (e *Engine) processInputStream(in []float32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	n := copy(e.inputBuffer, in)
	e.processBuffer(e.inputBuffer[:n])

	if r := e.recorder.Load(); r != nil {
		if err := r.Write(e.inputBuffer[:n]); err != nil && !errors.Is(err, ErrRecorderClosed) {
			applog.Errorf("Audio: writing recording: %v", err)
		}
	}
}

// processBuffer hands the first channel of buffer to every processor along
// with its duration.
// Performance Critical (Hot Path):
// - No allocations
func (e *Engine) processBuffer(buffer []float32) {
	channels := e.config.Audio.InputChannels
	if channels < 1 {
		channels = 1
	}

	mono := buffer
	if channels > 1 {
		frames := len(buffer) / channels
		for i := range frames {
			e.monoBuffer[i] = buffer[i*channels]
		}
		mono = e.monoBuffer[:frames]
	}

	durationMs := level.DurationMs(len(mono), e.config.Audio.SampleRate)
	for _, p := range e.processors {
		p.Process(mono, durationMs)
	}
	e.buffers.Add(1)
}
