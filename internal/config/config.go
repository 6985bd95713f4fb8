// Package config loads and validates the R2P2 engine's runtime configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config is the top-level configuration for an r2p2d process.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (R2P2_*) (highest priority)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
//
// The only CLI flag involved is --config, which selects the file.
type Config struct {
	// Listen is the UDP address the engine binds to, e.g. ":4433".
	Listen string `mapstructure:"listen" validate:"required" yaml:"listen"`

	// Workers is the number of per-thread shared-nothing workers. Zero means
	// one worker per available CPU.
	Workers int `mapstructure:"workers" validate:"gte=0" yaml:"workers"`

	// Protocol contains the wire-level tunables shared by every worker.
	Protocol ProtocolConfig `mapstructure:"protocol" yaml:"protocol"`

	// Pools controls the per-worker pending-pair pool capacities.
	Pools PoolConfig `mapstructure:"pools" yaml:"pools"`

	// RequestTimeout is the default time a client pair waits for a response
	// before its timer fires and timeout_cb is invoked.
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"required,gt=0" yaml:"request_timeout"`

	// AckTimeout is the time a client pair in W_ACK waits for the server's
	// ACK before its timer fires and timeout_cb is invoked; the first packet
	// is not resent.
	AckTimeout time.Duration `mapstructure:"ack_timeout" validate:"required,gt=0" yaml:"ack_timeout"`

	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Metrics contains Prometheus metrics server configuration.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// ProtocolConfig holds the wire-format tunables. These must match across
// every peer on the same R2P2 network; they are config, not protocol
// constants, because PAYLOAD_SIZE is a deployment-wide tuning knob in the
// original design notes.
type ProtocolConfig struct {
	// PayloadSize is the maximum payload capacity of a single packet.
	PayloadSize int `mapstructure:"payload_size" validate:"required,gt=0" yaml:"payload_size"`

	// MinPayloadSize is the payload capacity of the first packet of a
	// multi-packet message; every later packet carries up to PayloadSize.
	MinPayloadSize int `mapstructure:"min_payload_size" validate:"required,gt=0,ltefield=PayloadSize" yaml:"min_payload_size"`
}

// PoolConfig controls the fixed capacities of the per-worker pending-pair
// pools. These are sized up front; exhaustion is a runtime error
// (ErrPoolExhausted), not a growable allocation, matching the engine's
// shared-nothing, alloc-free-in-steady-state design.
type PoolConfig struct {
	// ClientPairs is the number of in-flight client pairs a worker can track.
	ClientPairs int `mapstructure:"client_pairs" validate:"required,gt=0" yaml:"client_pairs"`

	// ServerPairs is the number of in-flight server pairs a worker can track.
	ServerPairs int `mapstructure:"server_pairs" validate:"required,gt=0" yaml:"server_pairs"`

	// BufferSlots is the number of fragment buffers in each worker's
	// single-size buffer pool.
	BufferSlots int `mapstructure:"buffer_slots" validate:"required,gt=0" yaml:"buffer_slots"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP server are active.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Listen is the HTTP listen address for the metrics endpoint.
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (R2P2_*)
//  2. Configuration file
//  3. Default values
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	// AutomaticEnv only resolves keys viper already knows about, so every key
	// is bound explicitly for R2P2_* overrides to reach Unmarshal.
	for _, key := range []string{
		"listen", "workers", "request_timeout", "ack_timeout",
		"protocol.payload_size", "protocol.min_payload_size",
		"pools.client_pairs", "pools.server_pairs", "pools.buffer_slots",
		"logging.level", "logging.format", "logging.output",
		"metrics.enabled", "metrics.listen",
	} {
		_ = v.BindEnv(key)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration, returning a user-friendly error if the
// explicitly requested config file does not exist. It is named MustLoad to
// match the call convention used at the CLI boundary; it still returns an
// error rather than panicking so `main` controls the exit path.
func MustLoad(configPath string) (*Config, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s", configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a Config populated with the engine's defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:  ":4433",
		Workers: 0,
		Protocol: ProtocolConfig{
			PayloadSize:    1400,
			MinPayloadSize: 512,
		},
		Pools: PoolConfig{
			ClientPairs: 1024,
			ServerPairs: 1024,
			BufferSlots: 2048,
		},
		RequestTimeout: 5 * time.Second,
		AckTimeout:     200 * time.Millisecond,
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  ":9090",
		},
	}
}

var validate = validator.New()

// Validate runs struct-tag validation over cfg.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	if cfg.Protocol.MinPayloadSize > cfg.Protocol.PayloadSize {
		return fmt.Errorf("protocol.min_payload_size (%d) must not exceed protocol.payload_size (%d)",
			cfg.Protocol.MinPayloadSize, cfg.Protocol.PayloadSize)
	}
	return nil
}

// setupViper configures viper with environment variable and config file
// search settings.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("R2P2")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. Returns
// (fileFound, error).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// durationDecodeHook converts strings like "30s", "5m" to time.Duration via
// mapstructure, the same way the engine's ancestor config package does.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch val := data.(type) {
		case string:
			return time.ParseDuration(val)
		case int:
			return time.Duration(val), nil
		case int64:
			return time.Duration(val), nil
		case float64:
			return time.Duration(val), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory, honoring XDG_CONFIG_HOME.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "r2p2d")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "r2p2d")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the default
// location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
