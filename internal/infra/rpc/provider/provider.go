// Package provider dials the table admin endpoint and tracks the health of
// the connection.
//
// This package contains:
//   - GRPCProvider: the admin connection, TLS with Google credentials or
//     plaintext for the emulator
//   - ConnMonitor: per-RPC latency and failure tracking fed by a unary
//     client interceptor
package provider

import "time"

// Default admin endpoint and OAuth scope.
const (
	DefaultEndpoint = "bigtableadmin.googleapis.com:443"
	AdminScope      = "https://www.googleapis.com/auth/bigtable.admin.table"
)

// DialConfig describes how to reach the admin API.
type DialConfig struct {
	Endpoint    string
	Emulator    bool
	DialTimeout time.Duration
	UserAgent   string
}

// HealthStatus represents the health state of a connection.
type HealthStatus struct {
	Status         ProviderStatus
	AverageLatency time.Duration
	ErrorRate      float64
	LastSuccessAt  time.Time
	LastFailureAt  time.Time
	LastError      string
}
