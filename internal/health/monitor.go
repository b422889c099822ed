package health

import (
	"context"
	"sync"
	"time"
)

// Checker checks that the admin endpoint answers.
type Checker interface {
	Check(ctx context.Context) error
}

// QueueSizer reports pending completion queue items.
type QueueSizer interface {
	Size() int
}

// FailureCounter counts failed operations recorded since a point in time.
type FailureCounter interface {
	CountFailures(ctx context.Context, since time.Time) (int, error)
}

// Thresholds decide when a component is degraded or critical.
type Thresholds struct {
	QueueDegraded    int
	QueueCritical    int
	FailuresDegraded int
	FailuresCritical int
	FailureWindow    time.Duration
	CacheFor         time.Duration
}

// DefaultThresholds are used for zero fields.
var DefaultThresholds = Thresholds{
	QueueDegraded:    256,
	QueueCritical:    4096,
	FailuresDegraded: 1,
	FailuresCritical: 50,
	FailureWindow:    5 * time.Minute,
	CacheFor:         10 * time.Second,
}

type dependency struct {
	name    string
	checker Checker
}

// Monitor aggregates health status from the endpoint, queue and journal.
type Monitor struct {
	checker    Checker
	queue      QueueSizer
	failures   FailureCounter
	thresholds Thresholds
	now        func() time.Time

	deps []dependency

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport map[string]ComponentHealth
}

// NewMonitor creates a new health monitor. Any source may be nil.
func NewMonitor(checker Checker, queue QueueSizer, failures FailureCounter, t Thresholds) *Monitor {
	if t.QueueDegraded == 0 {
		t.QueueDegraded = DefaultThresholds.QueueDegraded
	}
	if t.QueueCritical == 0 {
		t.QueueCritical = DefaultThresholds.QueueCritical
	}
	if t.FailuresDegraded == 0 {
		t.FailuresDegraded = DefaultThresholds.FailuresDegraded
	}
	if t.FailuresCritical == 0 {
		t.FailuresCritical = DefaultThresholds.FailuresCritical
	}
	if t.FailureWindow == 0 {
		t.FailureWindow = DefaultThresholds.FailureWindow
	}
	if t.CacheFor == 0 {
		t.CacheFor = DefaultThresholds.CacheFor
	}
	return &Monitor{
		checker:    checker,
		queue:      queue,
		failures:   failures,
		thresholds: t,
		now:        time.Now,
	}
}

// CheckHealth checks every configured component.
func (m *Monitor) CheckHealth(ctx context.Context) map[string]ComponentHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Rate limit checks so the endpoint RPC is not issued on every scrape.
	now := m.now()
	if now.Sub(m.lastCheck) < m.thresholds.CacheFor && len(m.lastReport) > 0 {
		return m.lastReport
	}

	report := make(map[string]ComponentHealth)

	if m.checker != nil {
		h := ComponentHealth{Name: "bigtable", Status: StatusHealthy}
		if err := m.checker.Check(ctx); err != nil {
			h.Status = StatusCritical
			h.Error = err.Error()
		}
		report[h.Name] = h
	}

	if m.queue != nil {
		h := ComponentHealth{Name: "queue", Status: StatusHealthy, QueueDepth: m.queue.Size()}
		switch {
		case h.QueueDepth >= m.thresholds.QueueCritical:
			h.Status = StatusCritical
		case h.QueueDepth >= m.thresholds.QueueDegraded:
			h.Status = StatusDegraded
		}
		report[h.Name] = h
	}

	if m.failures != nil {
		h := ComponentHealth{Name: "operations", Status: StatusHealthy}
		n, err := m.failures.CountFailures(ctx, now.Add(-m.thresholds.FailureWindow))
		if err != nil {
			h.Status = StatusDegraded
			h.Error = err.Error()
		} else {
			h.RecentFailures = n
			switch {
			case n >= m.thresholds.FailuresCritical:
				h.Status = StatusCritical
			case n >= m.thresholds.FailuresDegraded:
				h.Status = StatusDegraded
			}
		}
		report[h.Name] = h
	}

	// Journal and token cache failures degrade but never stop admin calls.
	for _, d := range m.deps {
		h := ComponentHealth{Name: d.name, Status: StatusHealthy}
		if err := d.checker.Check(ctx); err != nil {
			h.Status = StatusDegraded
			h.Error = err.Error()
		}
		report[h.Name] = h
	}

	m.lastCheck = now
	m.lastReport = report
	return report
}

// AddDependency reports p under name. A failing dependency is degraded, not critical.
// Call it before the monitor is shared.
func (m *Monitor) AddDependency(name string, p Checker) {
	m.deps = append(m.deps, dependency{name: name, checker: p})
}

// CheckerFunc adapts a plain function to Checker.
type CheckerFunc func(ctx context.Context) error

// Check calls f(ctx).
func (f CheckerFunc) Check(ctx context.Context) error {
	return f(ctx)
}
