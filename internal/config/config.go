// YAML config loader with CUE validation integration
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultDriftInterval is the period between drift ticks.
const DefaultDriftInterval = 30 * time.Second

// Drift controls the periodic KPI perturbation.
type Drift struct {
	Interval time.Duration `yaml:"interval"`
	Seed     int64         `yaml:"seed"`
	Paused   bool          `yaml:"paused"`
}

// Admin controls the HTTP admin panel.
type Admin struct {
	Enabled *bool  `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Output selects where committed snapshots are written.
type Output struct {
	Mode    string `yaml:"mode"`
	LogFile string `yaml:"log_file"`
}

// Greptime holds the GreptimeDB sink settings.
type Greptime struct {
	Endpoint     string `yaml:"endpoint"`
	Port         int    `yaml:"port"`
	Database     string `yaml:"database"`
	KPITable     string `yaml:"kpi_table"`
	BreakerTable string `yaml:"breaker_table"`
}

// Audit configures the rotating audit log.
type Audit struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Log configures the process logger.
type Log struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// Config is the root configuration of the simulator.
type Config struct {
	Fixture  string   `yaml:"fixture"`
	Drift    Drift    `yaml:"drift"`
	Admin    Admin    `yaml:"admin"`
	Output   Output   `yaml:"output"`
	Greptime Greptime `yaml:"greptime"`
	Audit    Audit    `yaml:"audit"`
	Log      Log      `yaml:"log"`
}

// AdminEnabled reports whether the admin panel should run (default true).
func (c *Config) AdminEnabled() bool {
	return c.Admin.Enabled == nil || *c.Admin.Enabled
}

// Load validates the YAML file at configPath against the CUE schema (the
// embedded one when cueSchemaPath is empty), decodes it and applies defaults
// and environment overrides.
func Load(configPath, cueSchemaPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read YAML config: %w", err)
	}
	schema := defaultSchema
	if cueSchemaPath != "" {
		schema, err = os.ReadFile(cueSchemaPath)
		if err != nil {
			return nil, fmt.Errorf("cannot read CUE schema: %w", err)
		}
	}
	if err := Validate(configPath, data, schema); err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot unmarshal YAML config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with defaults and environment overrides
// applied, for commands that run without a config file.
func Default() (*Config, error) {
	var cfg Config
	cfg.applyDefaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Drift.Interval <= 0 {
		c.Drift.Interval = DefaultDriftInterval
	}
	if c.Admin.Addr == "" {
		c.Admin.Addr = ":8080"
	}
	if c.Output.Mode == "" {
		c.Output.Mode = "auto"
	}
	if c.Greptime.Port == 0 {
		c.Greptime.Port = 4001
	}
	if c.Greptime.Database == "" {
		c.Greptime.Database = "public"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("GREPTIMEDB_ENDPOINT"); v != "" {
		c.Greptime.Endpoint = v
	}
	if v := os.Getenv("GREPTIMEDB_DATABASE"); v != "" {
		c.Greptime.Database = v
	}
	if v := os.Getenv("KPI_TABLE"); v != "" {
		c.Greptime.KPITable = v
	}
	if v := os.Getenv("BREAKER_TABLE"); v != "" {
		c.Greptime.BreakerTable = v
	}
	if v := os.Getenv("TICK_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid TICK_INTERVAL: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid TICK_INTERVAL: must be positive, got %s", d)
		}
		c.Drift.Interval = d
	}
	return nil
}
