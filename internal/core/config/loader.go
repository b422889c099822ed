package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// EmulatorHostEnv points the client at a local Bigtable emulator.
const EmulatorHostEnv = "BIGTABLE_EMULATOR_HOST"

// Load reads configuration from a YAML file. An empty path yields defaults
// plus environment overrides.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand environment variables in the YAML content
		expandedData := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *AppConfig) {
	if v := os.Getenv("BIGTABLE_PROJECT"); v != "" && cfg.Bigtable.Project == "" {
		cfg.Bigtable.Project = v
	}
	if v := os.Getenv("BIGTABLE_INSTANCE"); v != "" && cfg.Bigtable.Instance == "" {
		cfg.Bigtable.Instance = v
	}
	if v := os.Getenv(EmulatorHostEnv); v != "" {
		cfg.Bigtable.Endpoint = v
		cfg.Bigtable.Emulator = true
	}
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Bigtable.Endpoint == "" {
		cfg.Bigtable.Endpoint = "bigtableadmin.googleapis.com:443"
	}
	if cfg.Bigtable.DialTimeout == 0 {
		cfg.Bigtable.DialTimeout = 10 * time.Second
	}

	if cfg.Retry.Policy == "" {
		cfg.Retry.Policy = PolicyLimitedTime
	}
	if cfg.Retry.MaxDuration == 0 {
		cfg.Retry.MaxDuration = 10 * time.Minute
	}
	if cfg.Retry.MaxFailures == 0 {
		cfg.Retry.MaxFailures = 5
	}

	defaultBackoff(&cfg.Backoff)
	defaultBackoff(&cfg.Polling)

	if cfg.Queue.MaxInflight == 0 {
		cfg.Queue.MaxInflight = 64
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

func defaultBackoff(b *BackoffConfig) {
	if b.Initial == 0 {
		b.Initial = 10 * time.Millisecond
	}
	if b.Maximum == 0 {
		b.Maximum = 5 * time.Minute
	}
	if b.Multiplier == 0 {
		b.Multiplier = 2
	}
}
