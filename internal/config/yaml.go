// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	applog "spotmeter/internal/log"
	"spotmeter/pkg/bitint"
)

// validate is the shared validator instance for configuration structs.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Report YAML keys in error messages instead of Go field names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
}

// defaultCandidates are searched, in order, when no config path is given.
var defaultCandidates = []string{
	"spotmeter.yaml",
	"config.yaml",
}

// LoadConfig loads configuration from the YAML file at path. If path is
// empty, it searches the default locations and falls back to built-in
// defaults when none exists. Environment overrides are applied after the
// file, then the result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		for _, candidate := range defaultCandidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		applog.Debugf("configuration: Loaded %s", path)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks field ranges with struct tags and then the rules that
// span several fields.
func (c *Config) Validate() error {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, formatFieldError(fe))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	if !bitint.IsPowerOfTwo(c.Audio.FramesPerBuffer) {
		return fmt.Errorf("audio.frames_per_buffer must be a power of two, got %d (try %d)",
			c.Audio.FramesPerBuffer, bitint.NearestPowerOfTwo(c.Audio.FramesPerBuffer))
	}

	if c.Volume.Enabled && c.Volume.Token == "" {
		return errors.New("volume.token is required when volume regulation is enabled")
	}
	if c.Volume.Enabled && c.Volume.Endpoint == "" {
		return errors.New("volume.endpoint is required when volume regulation is enabled")
	}

	if c.Transport.WebSocketEnabled && c.Transport.WebSocketAddress == "" {
		return errors.New("transport.websocket_address must be set when the WebSocket transport is enabled")
	}
	if c.Transport.UDPEnabled {
		if c.Transport.UDPTargetAddress == "" {
			return errors.New("transport.udp_target_address must be set when UDP is enabled")
		}
		if c.Transport.UDPSendInterval <= 0 {
			return errors.New("transport.udp_send_interval must be positive when UDP is enabled")
		}
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return errors.New("metrics.address must be set when metrics are enabled")
	}

	return nil
}

// formatFieldError turns a validator error into "namespace: reason".
func formatFieldError(fe validator.FieldError) string {
	// Drop the root struct name from the namespace ("Config.audio.sample_rate").
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}

	switch fe.Tag() {
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s, got %v", field, fe.Param(), fe.Value())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s, got %v", field, fe.Param(), fe.Value())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s, got %v", field, fe.Param(), fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", field, fe.Param(), fe.Value())
	case "gtefield":
		return fmt.Sprintf("%s must not be below %s", field, fe.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL, got %q", field, fe.Value())
	case "hostname_port":
		return fmt.Sprintf("%s must be host:port, got %q", field, fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// applyEnvOverrides applies SPOTMETER_* environment variables on top of the
// file configuration. Secrets such as the volume token should come from here
// rather than from the YAML file.
func (c *Config) applyEnvOverrides() {
	if val, ok := os.LookupEnv("SPOTMETER_LOG_LEVEL"); ok {
		c.LogLevel = val
		applog.Debugf("configuration: Overriding log_level from env: %s", val)
	}

	// SPOTMETER_AUDIO_{...}

	if val, ok := os.LookupEnv("SPOTMETER_AUDIO_DEVICE"); ok {
		if n, err := strconv.Atoi(val); err == nil {
			c.Audio.InputDevice = n
			applog.Debugf("configuration: Overriding audio.input_device from env: %d", n)
		}
	}

	// SPOTMETER_VOLUME_{...}

	if val, ok := os.LookupEnv("SPOTMETER_VOLUME_ENABLED"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Volume.Enabled = b
			applog.Debugf("configuration: Overriding volume.enabled from env: %v", b)
		}
	}
	if val, ok := os.LookupEnv("SPOTMETER_VOLUME_TOKEN"); ok {
		c.Volume.Token = val
		applog.Debugf("configuration: Overriding volume.token from env")
	}
	if val, ok := os.LookupEnv("SPOTMETER_VOLUME_ENDPOINT"); ok {
		c.Volume.Endpoint = val
		applog.Debugf("configuration: Overriding volume.endpoint from env: %s", val)
	}

	// SPOTMETER_UDP_{...}

	if val, ok := os.LookupEnv("SPOTMETER_UDP_ENABLED"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Transport.UDPEnabled = b
			applog.Debugf("configuration: Overriding transport.udp_enabled from env: %v", b)
		}
	}
	if val, ok := os.LookupEnv("SPOTMETER_UDP_TARGET_ADDRESS"); ok {
		c.Transport.UDPTargetAddress = val
		applog.Debugf("configuration: Overriding transport.udp_target_address from env: %s", val)
	}
	if val, ok := os.LookupEnv("SPOTMETER_UDP_SEND_INTERVAL"); ok {
		if d, err := time.ParseDuration(val); err == nil {
			c.Transport.UDPSendInterval = d
			applog.Debugf("configuration: Overriding transport.udp_send_interval from env: %s", d)
		}
	}

	// SPOTMETER_METRICS_{...}

	if val, ok := os.LookupEnv("SPOTMETER_METRICS_ADDRESS"); ok {
		c.Metrics.Address = val
		c.Metrics.Enabled = val != ""
		applog.Debugf("configuration: Overriding metrics.address from env: %s", val)
	}
}
