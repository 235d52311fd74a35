package config

import "time"

// Core configuration constants that define the boundaries and defaults
// for the level monitor.
const (
	// Capture defaults. The level pipeline treats the buffer duration as the
	// authoritative clock, so these only shape the quantum size.
	DefaultChannels        = 1           // Mono audio
	DefaultDeviceID        = MinDeviceID // Default to system default device
	DefaultFramesPerBuffer = 512         // ~11.6ms at 44.1kHz
	DefaultLowLatency      = false       // Standard latency mode
	DefaultSampleRate      = 44100       // 32-bit float PCM at CD rate
	DefaultQueueSize       = 64          // Pending level changes before dropping

	// Recording defaults.
	DefaultRecordInputStream = false
	DefaultOutputFile        = "" // Auto-generated filename
	DefaultBitDepth          = 16

	// Volume regulation defaults.
	DefaultVolumeEndpoint = "https://api.spotify.com/v1/me/player/volume"
	DefaultInitialVolume  = 50
	DefaultMinNoiseLevel  = 0.0
	DefaultMaxNoiseLevel  = 100.0
	DefaultDelta          = 5.0
	DefaultVolumeTimeout  = 5 * time.Second

	// Transport defaults.
	DefaultWebSocketAddress = ":8080"
	DefaultUDPTargetAddress = "127.0.0.1:9090"
	DefaultUDPSendInterval  = time.Second

	// Metrics defaults.
	DefaultMetricsAddress = ":9464"

	DefaultLogLevel = "info"
	DefaultCommand  = "" // No command by default

	// Hardware and processing limits
	MinDeviceID     = -1     // -1 represents system default device
	MinSampleRate   = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate   = 192000 // Maximum supported sample rate (Hz)
	MaxBufferFrames = 8192   // Maximum frames per buffer (power of 2)
)

// Config holds all runtime configuration options. It is built from
// defaults, an optional YAML file, SPOTMETER_* environment variables and
// finally command line flags.
type Config struct {
	LogLevel  string          `yaml:"log_level" validate:"oneof=debug info warn warning error fatal"`
	TUIMode   bool            `yaml:"tui"`
	Audio     AudioConfig     `yaml:"audio"`
	Recording RecordingConfig `yaml:"recording"`
	Volume    VolumeConfig    `yaml:"volume"`
	Transport TransportConfig `yaml:"transport"`
	Metrics   MetricsConfig   `yaml:"metrics"`

	// Command is a one-off command selected on the command line (e.g. "list").
	Command string `yaml:"-"`
}

// AudioConfig holds capture settings.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device" validate:"min=-1"`             // PortAudio device index (-1 for default).
	SampleRate      float64 `yaml:"sample_rate" validate:"gte=8000,lte=192000"` // Sample rate in Hz.
	FramesPerBuffer int     `yaml:"frames_per_buffer" validate:"gt=0,lte=8192"` // Frames per quantum.
	LowLatency      bool    `yaml:"low_latency"`                                // Request the device's low input latency.
	InputChannels   int     `yaml:"input_channels" validate:"min=1,max=2"`      // Captured channels, reduced to one scalar.
	QueueSize       int     `yaml:"queue_size" validate:"gte=0"`                // Pending level changes before dropping.
}

// RecordingConfig holds settings for recording the captured input.
type RecordingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	OutputFile string `yaml:"output_file"`
	BitDepth   int    `yaml:"bit_depth" validate:"oneof=16 24"`
}

// VolumeConfig holds the playback volume regulation settings.
type VolumeConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Endpoint      string        `yaml:"endpoint" validate:"omitempty,url"`
	Token         string        `yaml:"token"` // OAuth token with user-modify-playback-state scope.
	InitialVolume int           `yaml:"initial_volume" validate:"min=0,max=100"`
	MinNoiseLevel float64       `yaml:"min_noise_level" validate:"min=0,max=100"`
	MaxNoiseLevel float64       `yaml:"max_noise_level" validate:"min=0,max=100,gtefield=MinNoiseLevel"`
	Delta         float64       `yaml:"delta" validate:"min=0,max=100"` // Tolerance before the volume is stepped.
	Timeout       time.Duration `yaml:"timeout" validate:"gt=0"`
}

// TransportConfig holds settings for publishing levels to other processes.
type TransportConfig struct {
	WebSocketEnabled bool          `yaml:"websocket_enabled"`
	WebSocketAddress string        `yaml:"websocket_address"`
	UDPEnabled       bool          `yaml:"udp_enabled"`
	UDPTargetAddress string        `yaml:"udp_target_address" validate:"omitempty,hostname_port"`
	UDPSendInterval  time.Duration `yaml:"udp_send_interval" validate:"gte=0"`
}

// MetricsConfig holds the Prometheus scrape endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// NewConfig creates a new Config instance with default values.
// This is the base configuration before a config file, the environment
// or command line flags are applied.
func NewConfig() *Config {
	return &Config{
		LogLevel: DefaultLogLevel,
		Command:  DefaultCommand,
		Audio: AudioConfig{
			InputDevice:     DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			LowLatency:      DefaultLowLatency,
			InputChannels:   DefaultChannels,
			QueueSize:       DefaultQueueSize,
		},
		Recording: RecordingConfig{
			Enabled:    DefaultRecordInputStream,
			OutputFile: DefaultOutputFile,
			BitDepth:   DefaultBitDepth,
		},
		Volume: VolumeConfig{
			Endpoint:      DefaultVolumeEndpoint,
			InitialVolume: DefaultInitialVolume,
			MinNoiseLevel: DefaultMinNoiseLevel,
			MaxNoiseLevel: DefaultMaxNoiseLevel,
			Delta:         DefaultDelta,
			Timeout:       DefaultVolumeTimeout,
		},
		Transport: TransportConfig{
			WebSocketAddress: DefaultWebSocketAddress,
			UDPTargetAddress: DefaultUDPTargetAddress,
			UDPSendInterval:  DefaultUDPSendInterval,
		},
		Metrics: MetricsConfig{
			Address: DefaultMetricsAddress,
		},
	}
}

// QuantumMs returns the duration of one full capture buffer in milliseconds.
func (c *Config) QuantumMs() float64 {
	if c.Audio.SampleRate <= 0 {
		return 0
	}
	return float64(c.Audio.FramesPerBuffer) * 1000 / c.Audio.SampleRate
}

// BufferSamples returns the number of interleaved samples in one buffer.
func (c *Config) BufferSamples() int {
	return c.Audio.FramesPerBuffer * c.Audio.InputChannels
}
