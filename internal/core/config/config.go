package config

import (
	"time"

	redisclient "github.com/vietddude/tableadmin/internal/infra/redis"
	"github.com/vietddude/tableadmin/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Bigtable BigtableConfig     `yaml:"bigtable"`
	Retry    RetryConfig        `yaml:"retry"`
	Backoff  BackoffConfig      `yaml:"backoff"`
	Polling  BackoffConfig      `yaml:"polling"`
	Queue    QueueConfig        `yaml:"queue"`
	Server   ServerConfig       `yaml:"server"`
	Logging  LoggingConfig      `yaml:"logging"`
	Redis    redisclient.Config `yaml:"redis"`
	Database postgres.Config    `yaml:"database"`
}

// BigtableConfig selects the instance and how to reach the admin endpoint.
type BigtableConfig struct {
	Project     string        `yaml:"project"`
	Instance    string        `yaml:"instance"`
	Endpoint    string        `yaml:"endpoint"`
	Emulator    bool          `yaml:"emulator"` // plaintext, no credentials
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// Retry policy kinds.
const (
	PolicyLimitedTime  = "limited_time"
	PolicyLimitedCount = "limited_count"
	PolicyNone         = "none"
)

// RetryConfig selects the retry policy prototype.
type RetryConfig struct {
	Policy         string        `yaml:"policy"`          // limited_time, limited_count, none
	MaxFailures    int           `yaml:"max_failures"`    // limited_count
	MaxDuration    time.Duration `yaml:"max_duration"`    // limited_time
	TransientCodes []string      `yaml:"transient_codes"` // e.g. UNAVAILABLE; empty = default set
}

// BackoffConfig describes an exponential backoff.
type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial"`
	Maximum    time.Duration `yaml:"maximum"`
	Multiplier float64       `yaml:"multiplier"`
	Jitter     bool          `yaml:"jitter"`
}

// QueueConfig sizes the completion queue.
type QueueConfig struct {
	MaxInflight int64 `yaml:"max_inflight"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"` // 0 disables the health server
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}
