package provider

import (
	"context"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ProviderStatus represents the health state of a provider.
type ProviderStatus int

const (
	StatusHealthy   ProviderStatus = iota // Provider is working normally
	StatusDegraded                        // Provider is slow or failing often
	StatusThrottled                       // Provider is returning RESOURCE_EXHAUSTED
	StatusBlocked                         // Credentials are rejected
)

func (s ProviderStatus) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusThrottled:
		return "throttled"
	case StatusBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

type sample struct {
	at      time.Time
	latency time.Duration
	code    codes.Code
}

// ConnMonitor tracks recent RPC outcomes on one connection. Every attempt is
// recorded, so a retried operation contributes one sample per attempt.
type ConnMonitor struct {
	mu sync.RWMutex

	samples    []sample
	maxSamples int

	lastSuccess time.Time
	lastFailure time.Time
	lastError   string

	// Thresholds
	slowResponseThreshold time.Duration
	degradedThreshold     float64
	throttleWindow        time.Duration

	now func() time.Time
}

// NewConnMonitor creates a new monitor with default settings.
func NewConnMonitor() *ConnMonitor {
	return &ConnMonitor{
		maxSamples:            100,
		slowResponseThreshold: 3 * time.Second,
		degradedThreshold:     0.3, // 30% error rate
		throttleWindow:        time.Minute,
		now:                   time.Now,
	}
}

// Record stores the outcome of one RPC attempt.
func (m *ConnMonitor) Record(latency time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	code := status.Code(err)
	m.samples = append(m.samples, sample{at: now, latency: latency, code: code})
	if len(m.samples) > m.maxSamples {
		m.samples = m.samples[1:]
	}
	if err == nil {
		m.lastSuccess = now
		return
	}
	m.lastFailure = now
	m.lastError = err.Error()
}

// UnaryClientInterceptor feeds every unary call on the connection into m.
func (m *ConnMonitor) UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		start := m.now()
		err := invoker(ctx, method, req, reply, cc, opts...)
		// Client-side cancellation says nothing about the endpoint.
		if status.Code(err) != codes.Canceled {
			m.Record(m.now().Sub(start), err)
		}
		return err
	}
}

// Status classifies the connection from its recent samples.
func (m *ConnMonitor) Status() ProviderStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statusLocked()
}

func (m *ConnMonitor) statusLocked() ProviderStatus {
	if len(m.samples) == 0 {
		return StatusHealthy
	}
	last := m.samples[len(m.samples)-1]
	switch last.code {
	case codes.Unauthenticated, codes.PermissionDenied:
		return StatusBlocked
	}

	cutoff := m.now().Add(-m.throttleWindow)
	var throttled, failed int
	var total time.Duration
	for _, s := range m.samples {
		total += s.latency
		if isEndpointFailure(s.code) {
			failed++
		}
		if s.code == codes.ResourceExhausted && s.at.After(cutoff) {
			throttled++
		}
	}
	if throttled > 5 {
		return StatusThrottled
	}
	if len(m.samples) > 10 && total/time.Duration(len(m.samples)) > m.slowResponseThreshold {
		return StatusDegraded
	}
	if float64(failed)/float64(len(m.samples)) > m.degradedThreshold {
		return StatusDegraded
	}
	return StatusHealthy
}

// Health returns a snapshot of the monitor.
func (m *ConnMonitor) Health() HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h := HealthStatus{
		Status:        m.statusLocked(),
		LastSuccessAt: m.lastSuccess,
		LastFailureAt: m.lastFailure,
		LastError:     m.lastError,
	}
	if len(m.samples) == 0 {
		return h
	}
	var total time.Duration
	var failed int
	for _, s := range m.samples {
		total += s.latency
		if isEndpointFailure(s.code) {
			failed++
		}
	}
	h.AverageLatency = total / time.Duration(len(m.samples))
	h.ErrorRate = float64(failed) / float64(len(m.samples))
	return h
}

// isEndpointFailure reports codes that point at the server or the network
// rather than at the request.
func isEndpointFailure(c codes.Code) bool {
	switch c {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted,
		codes.Internal, codes.Unknown, codes.Aborted:
		return true
	}
	return false
}
