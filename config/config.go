package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"
)

// SelectAll selects every registered scanner or every discovered region.
const SelectAll = "all"

// Config represents the scan run configuration
type Config struct {
	Profile          string   `yaml:"profile"`
	OrganizationRole string   `yaml:"organization_role"`
	RunnerRole       string   `yaml:"runner_role"`
	Accounts         []string `yaml:"accounts,omitempty"`
	Regions          []string `yaml:"regions,omitempty"`
	AllRegions       bool     `yaml:"all_regions"`
	Scanners         []string `yaml:"scanners,omitempty"`
	MaxWorkers       int      `yaml:"max_workers"`
	DaysThreshold    int      `yaml:"days_threshold"`
	Output           Output   `yaml:"output,omitempty"`
	Log              Log      `yaml:"log,omitempty"`
	OTEL             OTEL     `yaml:"otel,omitempty"`
}

// Output controls where the report artifact is written
type Output struct {
	Format string `yaml:"format"` // json or csv
	Dir    string `yaml:"dir"`
}

// Log holds logging settings
type Log struct {
	Level string `yaml:"level"`
}

// OTEL holds trace export settings
type OTEL struct {
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// ApplyDefaults fills unset fields, consulting the environment the way
// the CLI documents (CS_DAYS_THRESHOLD overrides the lookback window).
func (c *Config) ApplyDefaults() {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = DefaultWorkers()
	}
	if c.DaysThreshold <= 0 {
		c.DaysThreshold = 90
		if env := os.Getenv("CS_DAYS_THRESHOLD"); env != "" {
			if days, err := strconv.Atoi(env); err == nil && days > 0 {
				c.DaysThreshold = days
			}
		}
	}
	if c.Output.Format == "" {
		c.Output.Format = "json"
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "."
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate ensures the configuration can drive a run.
func (c *Config) Validate() error {
	if c.RunnerRole == "" {
		return fmt.Errorf("runner_role is required")
	}
	if c.MaxWorkers < 1 {
		return fmt.Errorf("max_workers must be at least 1")
	}
	switch c.Output.Format {
	case "json", "csv":
	default:
		return fmt.Errorf("unsupported output format: %s", c.Output.Format)
	}
	return nil
}

// ScanAllScanners reports whether every registered scanner is selected.
func (c *Config) ScanAllScanners() bool {
	if len(c.Scanners) == 0 {
		return true
	}
	return len(c.Scanners) == 1 && c.Scanners[0] == SelectAll
}

// ScanAllRegions reports whether the exhaustive region catalog is requested.
func (c *Config) ScanAllRegions() bool {
	if c.AllRegions {
		return true
	}
	return len(c.Regions) == 1 && c.Regions[0] == SelectAll
}

// DefaultWorkers is one less than the number of CPUs, floored at 1.
func DefaultWorkers() int {
	workers := runtime.NumCPU() - 1
	if workers < 1 {
		workers = 1
	}
	return workers
}
