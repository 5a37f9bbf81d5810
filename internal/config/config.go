package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration of the backend.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Fleet     FleetConfig     `yaml:"fleet"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Commands  CommandsConfig  `yaml:"commands"`
	Relay     RelayConfig     `yaml:"relay"`
	Log       LogConfig       `yaml:"log"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// FleetConfig controls the generated node fleet.
type FleetConfig struct {
	Count      int     `yaml:"count"`
	ScatterDeg float64 `yaml:"scatter_deg"`
	Seed       uint64  `yaml:"seed"` // 0 seeds from the clock
	RealNodeID string  `yaml:"real_node_id"`
}

// TelemetryConfig selects the durable store for the real node.
type TelemetryConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type CommandsConfig struct {
	BadgerPath string `yaml:"badger_path"` // empty keeps commands in memory
}

// RelayConfig configures the NATS relay. An empty URL disables relaying.
type RelayConfig struct {
	URL           string `yaml:"url"`
	Name          string `yaml:"name"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
	File        string `yaml:"file"`
	MaxSizeMB   int    `yaml:"max_size_mb"`
	MaxBackups  int    `yaml:"max_backups"`
	MaxAgeDays  int    `yaml:"max_age_days"`
}

type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTP:    HTTPConfig{Addr: ":8000"},
		Metrics: MetricsConfig{Enabled: true, Addr: ":9090"},
		Fleet: FleetConfig{
			Count:      25,
			ScatterDeg: 0.015,
			RealNodeID: "ND-001",
		},
		Telemetry: TelemetryConfig{Driver: "sqlite", DSN: "file:feederbalancer.db"},
		Relay:     RelayConfig{Name: "feederbalancer", SubjectPrefix: "feederbalancer.commands"},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load loads defaults, then path (if non-empty), then environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) error {
	str := map[string]*string{
		"FEEDER_HTTP_ADDR":    &cfg.HTTP.Addr,
		"FEEDER_METRICS_ADDR": &cfg.Metrics.Addr,
		"FEEDER_REAL_NODE_ID": &cfg.Fleet.RealNodeID,
		"FEEDER_DB_DRIVER":    &cfg.Telemetry.Driver,
		"FEEDER_DB_DSN":       &cfg.Telemetry.DSN,
		"FEEDER_BADGER_PATH":  &cfg.Commands.BadgerPath,
		"NATS_URL":            &cfg.Relay.URL,
		"FEEDER_LOG_LEVEL":    &cfg.Log.Level,
		"FEEDER_LOG_FILE":     &cfg.Log.File,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("FEEDER_TRACING"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("FEEDER_TRACING: %w", err)
		}
		cfg.Tracing.Enabled = b
	}
	if v := os.Getenv("FEEDER_FLEET_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("FEEDER_FLEET_SEED: %w", err)
		}
		cfg.Fleet.Seed = seed
	}
	return nil
}

// Validate checks the configuration for values the process cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, errors.New("metrics.addr is required when metrics are enabled"))
	}
	if c.Fleet.Count <= 0 {
		errs = append(errs, fmt.Errorf("fleet.count must be positive, got %d", c.Fleet.Count))
	}
	if c.Fleet.ScatterDeg < 0 {
		errs = append(errs, fmt.Errorf("fleet.scatter_deg must be non-negative, got %v", c.Fleet.ScatterDeg))
	}
	if c.Fleet.RealNodeID == "" {
		errs = append(errs, errors.New("fleet.real_node_id is required"))
	}
	switch c.Telemetry.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("telemetry.driver must be sqlite or postgres, got %q", c.Telemetry.Driver))
	}
	if c.Telemetry.DSN == "" {
		errs = append(errs, errors.New("telemetry.dsn is required"))
	}
	if c.Relay.SubjectPrefix == "" {
		errs = append(errs, errors.New("relay.subject_prefix is required"))
	}
	return errors.Join(errs...)
}
