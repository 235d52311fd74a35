// SPDX-License-Identifier: MIT
package audio

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gordonklaus/portaudio"
)

// fakeDevices replaces the PortAudio device list for the duration of t.
func fakeDevices(t *testing.T, devices ...*portaudio.DeviceInfo) {
	t.Helper()
	orig := paDevicesFunc
	t.Cleanup(func() { paDevicesFunc = orig })
	paDevicesFunc = func() ([]*portaudio.DeviceInfo, error) { return devices, nil }
}

// failDevices makes every device query fail with err.
func failDevices(t *testing.T, err error) {
	t.Helper()
	orig := paDevicesFunc
	t.Cleanup(func() { paDevicesFunc = orig })
	paDevicesFunc = func() ([]*portaudio.DeviceInfo, error) { return nil, err }
}

var (
	usbMic = &portaudio.DeviceInfo{
		Name:                    "USB Mic",
		MaxInputChannels:        1,
		DefaultSampleRate:       48000,
		DefaultLowInputLatency:  5 * time.Millisecond,
		DefaultHighInputLatency: 20 * time.Millisecond,
		HostApi:                 &portaudio.HostApiInfo{Name: "Core Audio"},
	}
	speakers = &portaudio.DeviceInfo{Name: "Speakers", MaxOutputChannels: 2, DefaultSampleRate: 44100}
)

func TestHostDevicesFromPortAudio(t *testing.T) {
	fakeDevices(t, usbMic, speakers)

	devices, err := HostDevices()
	if err != nil {
		t.Fatalf("HostDevices() error = %v", err)
	}
	want := []Device{
		{ID: 0, Name: "USB Mic", HostAPI: "Core Audio", MaxInputChannels: 1, DefaultSampleRate: 48000,
			LowInputLatency: 5 * time.Millisecond, HighInputLatency: 20 * time.Millisecond},
		{ID: 1, Name: "Speakers", MaxOutputChannels: 2, DefaultSampleRate: 44100},
	}
	if len(devices) != len(want) {
		t.Fatalf("HostDevices() returned %d devices, want %d", len(devices), len(want))
	}
	for i := range want {
		if devices[i] != want[i] {
			t.Errorf("device %d = %+v, want %+v", i, devices[i], want[i])
		}
	}
}

func TestInputDeviceSelection(t *testing.T) {
	fakeDevices(t, speakers, usbMic)

	orig := paLibDefaultInputDeviceFunc
	t.Cleanup(func() { paLibDefaultInputDeviceFunc = orig })
	paLibDefaultInputDeviceFunc = func() (*portaudio.DeviceInfo, error) { return usbMic, nil }

	tests := []struct {
		name    string
		id      int
		want    *portaudio.DeviceInfo
		wantErr string
	}{
		{"System default", -1, usbMic, ""},
		{"Explicit input device", 1, usbMic, ""},
		{"Output-only device", 0, nil, "does not support input"},
		{"Below default", -2, nil, "invalid device ID"},
		{"Past the end", 2, nil, "invalid device ID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, err := InputDevice(tt.id)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("InputDevice(%d) error = %v, want %q", tt.id, err, tt.wantErr)
				}
				return
			}
			if err != nil || dev != tt.want {
				t.Errorf("InputDevice(%d) = %v, %v; want %s", tt.id, dev, err, tt.want.Name)
			}
		})
	}
}

func TestDeviceQueryErrors(t *testing.T) {
	errBackend := errors.New("backend gone")

	t.Run("HostDevices", func(t *testing.T) {
		failDevices(t, errBackend)
		if _, err := HostDevices(); !errors.Is(err, errBackend) {
			t.Errorf("HostDevices() error = %v, want %v", err, errBackend)
		}
	})

	t.Run("InputDevice", func(t *testing.T) {
		failDevices(t, errBackend)
		if _, err := InputDevice(0); !errors.Is(err, errBackend) {
			t.Errorf("InputDevice() error = %v, want %v", err, errBackend)
		}
	})

	t.Run("Default input", func(t *testing.T) {
		fakeDevices(t, usbMic)
		orig := paLibDefaultInputDeviceFunc
		t.Cleanup(func() { paLibDefaultInputDeviceFunc = orig })
		paLibDefaultInputDeviceFunc = func() (*portaudio.DeviceInfo, error) { return nil, errBackend }

		if _, err := InputDevice(-1); !errors.Is(err, errBackend) {
			t.Errorf("InputDevice(-1) error = %v, want %v", err, errBackend)
		}
	})

	t.Run("ListDevices", func(t *testing.T) {
		failDevices(t, errBackend)
		if err := ListDevices(&bytes.Buffer{}); !errors.Is(err, errBackend) {
			t.Errorf("ListDevices() error = %v, want %v", err, errBackend)
		}
	})
}

func TestLifecycleErrorsAreWrapped(t *testing.T) {
	origInit, origTerm := paLibInitialize, paLibTerminate
	t.Cleanup(func() { paLibInitialize, paLibTerminate = origInit, origTerm })

	errInit := errors.New("no host api")
	paLibInitialize = func() error { return errInit }
	paLibTerminate = func() error { return nil }

	if err := Initialize(); !errors.Is(err, errInit) || !strings.Contains(err.Error(), "initialize PortAudio") {
		t.Errorf("Initialize() error = %v", err)
	}
	if err := Terminate(); err != nil {
		t.Errorf("Terminate() error = %v", err)
	}
}

func TestPaDevicesNeverNil(t *testing.T) {
	orig := paLibDevicesFunc
	t.Cleanup(func() { paLibDevicesFunc = orig })

	paLibDevicesFunc = func() ([]*portaudio.DeviceInfo, error) { return nil, nil }
	devices, err := paDevices()
	if err != nil || devices == nil || len(devices) != 0 {
		t.Errorf("paDevices() = %v, %v; want empty non-nil slice", devices, err)
	}

	paLibDevicesFunc = func() ([]*portaudio.DeviceInfo, error) {
		return nil, errors.New("PortAudio not initialized")
	}
	if devices, err := paDevices(); err == nil || devices != nil {
		t.Errorf("paDevices() = %v, %v; want nil and an error", devices, err)
	}
}

func TestListDevices(t *testing.T) {
	fakeDevices(t, usbMic, speakers)

	var buf bytes.Buffer
	if err := ListDevices(&buf); err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"[0] USB Mic (Input)",
		"Host API: Core Audio",
		"Default sample rate: 48000 Hz",
		"Latency: Low=5.00ms, High=20.00ms",
		"[1] Speakers (Output)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("ListDevices() output missing %q:\n%s", want, out)
		}
	}
}

func TestDeviceType(t *testing.T) {
	tests := []struct {
		in, out int
		want    string
	}{
		{1, 0, "Input"},
		{0, 2, "Output"},
		{2, 2, "Input/Output"},
		{0, 0, "Unknown"},
	}
	for _, tt := range tests {
		d := Device{MaxInputChannels: tt.in, MaxOutputChannels: tt.out}
		if got := d.Type(); got != tt.want {
			t.Errorf("Device{%d in, %d out}.Type() = %q, want %q", tt.in, tt.out, got, tt.want)
		}
	}
}

// TestHostDevicesOnHardware runs against the real backend when one exists.
func TestHostDevicesOnHardware(t *testing.T) {
	if err := Initialize(); err != nil {
		t.Skipf("PortAudio unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := Terminate(); err != nil {
			t.Errorf("Terminate() error = %v", err)
		}
	})

	devices, err := HostDevices()
	if err != nil {
		t.Fatalf("HostDevices() error = %v", err)
	}
	for i, d := range devices {
		if d.ID != i || d.Name == "" {
			t.Errorf("device %d = %+v", i, d)
		}
	}
}
