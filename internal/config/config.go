package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "MONITOR"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Sampler   SamplerConfig   `mapstructure:"sampler"`
	Health    HealthConfig    `mapstructure:"health"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Host      string          `mapstructure:"host"`
	Port      int             `mapstructure:"port"`
	Endpoint  string          `mapstructure:"endpoint"`
	TLS       TLSConfig       `mapstructure:"tls"`
	Websocket WebsocketConfig `mapstructure:"websocket"`
}

// TLSConfig enables the secure listener when both files are present.
type TLSConfig struct {
	Port     int    `mapstructure:"port"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

type WebsocketConfig struct {
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

// SamplerConfig controls the per-client cycle. MeasureWindow is the gap
// between the two CPU snapshots of one cycle and must fit in CycleInterval.
type SamplerConfig struct {
	CycleInterval time.Duration `mapstructure:"cycle_interval"`
	MeasureWindow time.Duration `mapstructure:"measure_window"`
}

type HealthConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type TelemetryConfig struct {
	Enabled       bool                `mapstructure:"enabled"`
	ServiceName   string              `mapstructure:"service_name"`
	OTELCollector OTELCollectorConfig `mapstructure:"otel_collector"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
}

type OTELCollectorConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type MetricsConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.endpoint", "/")
	v.SetDefault("server.tls.port", 3443)
	v.SetDefault("server.tls.cert_file", "")
	v.SetDefault("server.tls.key_file", "")
	v.SetDefault("server.websocket.write_wait", 10*time.Second)
	v.SetDefault("server.websocket.max_message_size", 512)

	v.SetDefault("sampler.cycle_interval", 2*time.Second)
	v.SetDefault("sampler.measure_window", time.Second)

	v.SetDefault("health.interval", 30*time.Second)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "parity-monitor")
	v.SetDefault("telemetry.otel_collector.host", "localhost")
	v.SetDefault("telemetry.otel_collector.port", 4317)
	v.SetDefault("telemetry.metrics.interval", 15*time.Second)
}

// LoadConfig reads the config file at path, if any, and applies MONITOR_*
// environment overrides (MONITOR_SERVER_PORT, MONITOR_SAMPLER_CYCLE_INTERVAL, ...).
// A missing file is not an error; defaults are used instead.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the invariants the sampling loop relies on.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Server.TLS.Port < 0 || c.Server.TLS.Port > 65535 {
		return fmt.Errorf("invalid server.tls.port %d", c.Server.TLS.Port)
	}
	if !strings.HasPrefix(c.Server.Endpoint, "/") {
		return fmt.Errorf("server.endpoint must start with '/', got %q", c.Server.Endpoint)
	}
	if c.Sampler.CycleInterval <= 0 {
		return fmt.Errorf("sampler.cycle_interval must be positive, got %s", c.Sampler.CycleInterval)
	}
	if c.Sampler.MeasureWindow <= 0 {
		return fmt.Errorf("sampler.measure_window must be positive, got %s", c.Sampler.MeasureWindow)
	}
	if c.Sampler.MeasureWindow > c.Sampler.CycleInterval {
		return fmt.Errorf("sampler.measure_window (%s) exceeds sampler.cycle_interval (%s)",
			c.Sampler.MeasureWindow, c.Sampler.CycleInterval)
	}
	if c.Health.Interval <= 0 {
		return fmt.Errorf("health.interval must be positive, got %s", c.Health.Interval)
	}
	return nil
}
