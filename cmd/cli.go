// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"spotmeter/internal/config"
	"spotmeter/pkg/build"
)

// flagValues holds the raw flag values. A value is only applied to the
// configuration when its flag was given on the command line.
type flagValues struct {
	configPath string
	logLevel   string
	verbose    bool
	headless   bool

	device          int
	channels        int
	sampleRate      float64
	framesPerBuffer int
	lowLatency      bool
	queueSize       int

	record     bool
	outputFile string
	bitDepth   int

	volume        bool
	token         string
	initialVolume int
	minNoise      float64
	maxNoise      float64
	delta         float64

	websocket   string
	udpTarget   string
	udpInterval time.Duration
	metrics     string
}

// ParseArgs builds the configuration from the config file, the environment
// and args. It returns a nil config when cobra handled the invocation itself
// (--help, --version).
func ParseArgs(args []string, out io.Writer) (*config.Config, error) {
	info := build.Get()
	var (
		f   flagValues
		cfg *config.Config
	)

	load := func(cmd *cobra.Command, command string) error {
		c, err := config.LoadConfig(f.configPath)
		if err != nil {
			return err
		}
		applyFlags(cmd, c, &f)
		c.Command = command
		c.TUIMode = command == "" && !f.headless
		if c.Recording.Enabled && c.Recording.OutputFile == "" {
			c.Recording.OutputFile = "recording-" +
				time.Now().UTC().Format("02-01-2006-150405") + ".wav"
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg = c
		return nil
	}

	rootCmd := &cobra.Command{
		Use:           info.Name,
		Short:         build.Description,
		Version:       info.Version,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return load(cmd, config.DefaultCommand)
		},
	}
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})
	rootCmd.SetArgs(args)
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)

	// List command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return load(cmd, "list")
		},
	})

	pf := rootCmd.PersistentFlags()

	pf.StringVarP(&f.configPath, "config", "f", "",
		"Path to a YAML config file (default: ./spotmeter.yaml or ./config.yaml)")
	pf.StringVar(&f.logLevel, "log-level", config.DefaultLogLevel,
		"Log level: debug, info, warn, error")
	pf.BoolVarP(&f.verbose, "verbose", "v", false,
		"Show verbose output (same as --log-level=debug)")
	pf.BoolVar(&f.headless, "headless", false,
		"Run without the terminal meter")

	// Audio Device Configuration
	pf.IntVarP(&f.device, "device", "d", config.DefaultDeviceID,
		"Specify input device ID. Use 'list' command to see available devices.")
	pf.IntVarP(&f.channels, "channels", "c", config.DefaultChannels,
		"Number of channels to capture (1=mono, 2=stereo)")
	pf.Float64VarP(&f.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	pf.IntVarP(&f.framesPerBuffer, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per buffer (affects latency)")
	pf.BoolVarP(&f.lowLatency, "low-latency", "l", config.DefaultLowLatency,
		"Use low latency mode for real-time processing")
	pf.IntVar(&f.queueSize, "queue-size", config.DefaultQueueSize,
		"Pending level changes buffered before new ones are dropped")

	// Recording Configuration
	pf.BoolVarP(&f.record, "record", "r", config.DefaultRecordInputStream,
		"Record audio from the specified input device")
	pf.StringVarP(&f.outputFile, "output", "o", config.DefaultOutputFile,
		"Output file name. Default is recording-DD-MM-YYYY-HHMMSS.wav")
	pf.IntVar(&f.bitDepth, "bit-depth", config.DefaultBitDepth,
		"Recording bit depth (16 or 24)")

	// Volume Configuration
	pf.BoolVar(&f.volume, "volume", false,
		"Adjust the playback volume to the room noise")
	pf.StringVar(&f.token, "token", "",
		"OAuth access token for the volume endpoint (prefer SPOTMETER_VOLUME_TOKEN)")
	pf.IntVar(&f.initialVolume, "initial-volume", config.DefaultInitialVolume,
		"Starting playback volume percent")
	pf.Float64Var(&f.minNoise, "min-noise", config.DefaultMinNoiseLevel,
		"Lower bound of the noise range")
	pf.Float64Var(&f.maxNoise, "max-noise", config.DefaultMaxNoiseLevel,
		"Upper bound of the noise range")
	pf.Float64Var(&f.delta, "delta", config.DefaultDelta,
		"Noise/volume difference tolerated before the volume is stepped")

	// Transport Configuration
	pf.StringVar(&f.websocket, "websocket", "",
		"Serve level events over WebSocket on this address (e.g. :8080)")
	pf.StringVar(&f.udpTarget, "udp", "",
		"Send level packets to this host:port")
	pf.DurationVar(&f.udpInterval, "udp-interval", config.DefaultUDPSendInterval,
		"Interval between UDP level packets")
	pf.StringVar(&f.metrics, "metrics", "",
		"Serve Prometheus metrics on this address (e.g. :9464)")

	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags copies the flags that were set on the command line into cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config, f *flagValues) {
	changed := cmd.Flags().Changed

	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if f.verbose {
		cfg.LogLevel = "debug"
	}

	if changed("device") {
		cfg.Audio.InputDevice = f.device
	}
	if changed("channels") {
		cfg.Audio.InputChannels = f.channels
	}
	if changed("sample-rate") {
		cfg.Audio.SampleRate = f.sampleRate
	}
	if changed("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = f.framesPerBuffer
	}
	if changed("low-latency") {
		cfg.Audio.LowLatency = f.lowLatency
	}
	if changed("queue-size") {
		cfg.Audio.QueueSize = f.queueSize
	}

	if changed("record") {
		cfg.Recording.Enabled = f.record
	}
	if changed("output") {
		cfg.Recording.OutputFile = f.outputFile
	}
	if changed("bit-depth") {
		cfg.Recording.BitDepth = f.bitDepth
	}

	if changed("volume") {
		cfg.Volume.Enabled = f.volume
	}
	if changed("token") {
		cfg.Volume.Token = f.token
	}
	if changed("initial-volume") {
		cfg.Volume.InitialVolume = f.initialVolume
	}
	if changed("min-noise") {
		cfg.Volume.MinNoiseLevel = f.minNoise
	}
	if changed("max-noise") {
		cfg.Volume.MaxNoiseLevel = f.maxNoise
	}
	if changed("delta") {
		cfg.Volume.Delta = f.delta
	}

	if changed("websocket") {
		cfg.Transport.WebSocketEnabled = f.websocket != ""
		cfg.Transport.WebSocketAddress = f.websocket
	}
	if changed("udp") {
		cfg.Transport.UDPEnabled = f.udpTarget != ""
		cfg.Transport.UDPTargetAddress = f.udpTarget
	}
	if changed("udp-interval") {
		cfg.Transport.UDPSendInterval = f.udpInterval
	}
	if changed("metrics") {
		cfg.Metrics.Enabled = f.metrics != ""
		cfg.Metrics.Address = f.metrics
	}
}
