// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"spotmeter/cmd"
	"spotmeter/internal/audio"
	"spotmeter/internal/level"
	applog "spotmeter/internal/log"
	"spotmeter/internal/observe"
	"spotmeter/internal/transport"
	"spotmeter/internal/transport/udp"
	"spotmeter/internal/tui"
	"spotmeter/internal/volume"
	"spotmeter/pkg/build"
)

// tuiLogFile receives log output while the terminal meter owns the screen.
const tuiLogFile = "spotmeter.log"

// main is the entry point for the level monitor.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and configuration
//   - Initialize PortAudio
//   - Execute one-off commands if requested
//   - Build the monitor, sinks and servers
//
// 2. Concurrent Phase (Hot Path):
//   - Start the input stream; every buffer is folded by the monitor
//   - Deliver level changes to the volume regulator, transports and TUI
//   - Serve WebSocket, UDP and metrics endpoints
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals or TUI exit
//   - Stop the input stream, then drain the monitor
//   - Stop recording and release every resource
func main() {
	if err := run(); err != nil {
		applog.Fatalf("%v", err)
	}
}

func run() error {
	// ==================== STARTUP PHASE (Cold Path) ====================

	buildErr := build.Initialize()

	cfg, err := cmd.ParseArgs(os.Args[1:], os.Stdout)
	if err != nil {
		return err
	}
	if cfg == nil {
		return nil
	}

	if lvl, ok := applog.ParseLevel(cfg.LogLevel); ok {
		applog.SetLevel(lvl)
	}
	if buildErr != nil {
		applog.Debugf("Build: %v", buildErr)
	}
	applog.Debugf("Build: %s", build.Get())

	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()

	// Handle one-off commands (e.g., device listing) that don't require
	// the audio engine to be running
	if cfg.Command != "" {
		return executeCommand(cfg.Command)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The monitor is only built once capture initialisation has succeeded.
	engine, err := audio.NewEngine(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	monitor := level.NewMonitor(
		level.WithNotifier(applog.Notifier("Monitor")),
		level.WithQueueSize(cfg.Audio.QueueSize),
	)
	defer monitor.Close()

	var metrics *observe.Metrics
	var provider *observe.Provider
	if cfg.Metrics.Enabled {
		if provider, err = observe.NewProvider(build.Get().Version); err != nil {
			return fmt.Errorf("failed to create metrics provider: %w", err)
		}
		defer provider.Shutdown(context.Background())

		metrics, err = observe.NewMetrics(provider.MeterProvider, observe.Sources{
			Pipeline: monitor,
			Capture:  engine,
		})
		if err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		defer metrics.Close()
	}

	// Listeners run in registration order: the regulator first so the
	// transports and the meter see the volume it settled on.
	var regulator *volume.Regulator
	if cfg.Volume.Enabled {
		var opts []volume.ControllerOption
		if metrics != nil {
			opts = append(opts, volume.WithResultHook(metrics.RecordVolumeResult))
		}
		controller, err := volume.NewController(cfg.Volume.Endpoint, cfg.Volume.Token, cfg.Volume.Timeout, opts...)
		if err != nil {
			return err
		}
		regulator = volume.NewRegulator(controller, volume.RegulatorConfig{
			InitialVolume: cfg.Volume.InitialVolume,
			MinNoiseLevel: cfg.Volume.MinNoiseLevel,
			MaxNoiseLevel: cfg.Volume.MaxNoiseLevel,
			Delta:         cfg.Volume.Delta,
		})
		monitor.OnLevelChanged(regulator.HandleLevel)
	}

	var websocket *transport.WebSocketTransport
	sinks := []transport.Transport{transport.NewLoggingTransport()}
	if cfg.Transport.WebSocketEnabled {
		websocket = transport.NewWebSocketTransport()
		sinks = append(sinks, websocket)
	}
	fanout := transport.NewFanout(sinks...)
	defer fanout.Close()
	monitor.OnLevelChanged(fanout.HandleLevel)

	var publisher *udp.Publisher
	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			return err
		}
		defer sender.Close()
		if publisher, err = udp.NewPublisher(cfg.Transport.UDPSendInterval, sender, monitor); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	var meter *tui.Meter
	if cfg.TUIMode {
		logFile, err := os.OpenFile(tuiLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer logFile.Close()
		applog.SetOutput(logFile)
		defer applog.SetOutput(os.Stderr)

		opts := tui.Options{
			Device:           engine.Device().Name,
			SamplesPerBuffer: cfg.Audio.FramesPerBuffer,
		}
		if regulator != nil {
			opts.Volume = regulator
		}
		meter = tui.NewMeter(gctx, opts)
		monitor.OnLevelChanged(meter.HandleLevel)
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	// The monitor drains queued levels after Close, so it must not stop on
	// the signal itself.
	g.Go(func() error {
		return monitor.Run(context.WithoutCancel(gctx))
	})

	if websocket != nil {
		g.Go(func() error {
			return websocket.Serve(gctx, cfg.Transport.WebSocketAddress)
		})
	}
	if provider != nil {
		g.Go(func() error {
			return provider.Serve(gctx, cfg.Metrics.Address)
		})
	}
	if publisher != nil {
		publisher.Start()
		defer publisher.Stop()
	}
	if meter != nil {
		g.Go(func() error {
			err := meter.Run()
			stop()
			return err
		})
	}

	engine.AddProcessor(monitor)

	// CRITICAL: Start of real-time audio processing
	// The first call to StartInputStream triggers PortAudio to begin
	// calling the callback function, marking the start of the hot path
	if err := engine.StartInputStream(); err != nil {
		stop()
		monitor.Close()
		return errors.Join(err, g.Wait())
	}

	recording := false
	if cfg.Recording.Enabled {
		if err := engine.StartRecording(cfg.Recording.OutputFile); err != nil {
			applog.Errorf("Audio: %v", err)
		} else {
			recording = true
		}
	}

	if meter == nil {
		applog.Infof("%s running, press Ctrl+C to stop", build.Get().Name)
	}

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	g.Go(func() error {
		<-gctx.Done()
		applog.Infof("Shutting down")

		// No buffer reaches the monitor once the stream is stopped.
		err := engine.Close()
		if recording && err == nil {
			applog.Infof("Recording saved to: %s", cfg.Recording.OutputFile)
		}
		return errors.Join(err, monitor.Close())
	})

	if err := g.Wait(); err != nil {
		return err
	}

	stats := monitor.Stats()
	applog.Infof("Monitor: %d frames, %d windows, %d levels emitted, %d dropped",
		stats.Frames, stats.Windows, stats.Emitted, monitor.Dropped())
	return nil
}

// executeCommand handles one-off commands that don't require the audio engine
// to be running, such as listing available audio devices.
func executeCommand(command string) error {
	switch command {
	case "list":
		return audio.ListDevices(os.Stdout)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}
