// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	applog "spotmeter/internal/log"
)

// ErrRecorderClosed is returned by Write after Close.
var ErrRecorderClosed = errors.New("recorder closed")

// Recorder writes float32 capture buffers to a PCM WAV file.
type Recorder struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	encoder *wav.Encoder
	buf     *audio.IntBuffer // Reusable buffer for format conversion.
	scale   float64
	frames  uint64
	closed  bool
}

// NewRecorder creates path and prepares a WAV encoder. bitDepth must be 16
// or 24; bufferSamples sizes the conversion buffer.
func NewRecorder(path string, sampleRate, channels, bitDepth, bufferSamples int) (*Recorder, error) {
	if bitDepth != 16 && bitDepth != 24 {
		return nil, fmt.Errorf("unsupported bit depth %d", bitDepth)
	}
	if channels < 1 {
		channels = 1
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}

	return &Recorder{
		path:    path,
		file:    file,
		encoder: wav.NewEncoder(file, sampleRate, bitDepth, channels, 1),
		buf: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: channels,
				SampleRate:  sampleRate,
			},
			Data:           make([]int, bufferSamples),
			SourceBitDepth: bitDepth,
		},
		scale: float64(int(1)<<(bitDepth-1) - 1),
	}, nil
}

// Write converts samples to integer PCM and appends them to the file. It
// never waits on Close: a buffer that overlaps Close is dropped.
func (r *Recorder) Write(samples []float32) error {
	if !r.mu.TryLock() {
		return nil
	}
	defer r.mu.Unlock()

	if r.closed {
		return ErrRecorderClosed
	}

	if cap(r.buf.Data) < len(samples) {
		r.buf.Data = make([]int, len(samples))
	}
	r.buf.Data = r.buf.Data[:len(samples)]
	for i, s := range samples {
		v := math.Max(-1, math.Min(1, float64(s)))
		r.buf.Data[i] = int(math.Round(v * r.scale))
	}

	if err := r.encoder.Write(r.buf); err != nil {
		return err
	}
	r.frames += uint64(len(samples) / r.buf.Format.NumChannels)
	return nil
}

// Frames returns how many frames have been written.
func (r *Recorder) Frames() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Close finalizes the WAV header and closes the file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	encErr := r.encoder.Close()
	fileErr := r.file.Close()
	if err := errors.Join(encErr, fileErr); err != nil {
		return fmt.Errorf("failed to finalize recording %s: %w", r.path, err)
	}
	applog.Infof("Audio: Recorded %d frames to %s", r.frames, r.path)
	return nil
}

func (e *Engine) StartRecording(filename string) error {
	if e.recorder.Load() != nil {
		return errors.New("already recording")
	}

	r, err := NewRecorder(filename, int(e.config.Audio.SampleRate),
		e.config.Audio.InputChannels, e.config.Recording.BitDepth, len(e.inputBuffer))
	if err != nil {
		return err
	}

	if !e.recorder.CompareAndSwap(nil, r) {
		r.Close()
		os.Remove(filename)
		return errors.New("already recording")
	}
	applog.Infof("Audio: Recording to %s", filename)
	return nil
}

func (e *Engine) StopRecording() error {
	r := e.recorder.Swap(nil)
	if r == nil {
		return nil
	}
	return r.Close()
}

// Close stops recording and releases the stream. Both steps run even if
// the first fails.
func (e *Engine) Close() error {
	return errors.Join(e.StopRecording(), e.StopInputStream())
}
