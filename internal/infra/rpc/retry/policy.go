package retry

import (
	"fmt"
	"time"
)

// Policy decides whether another attempt is permitted after a failure.
type Policy interface {
	// Clone returns a fresh policy with the same configuration and an unused budget.
	Clone() Policy

	// OnFailure records a failed attempt and reports whether a retry is allowed.
	// Permanent errors return false without consuming budget.
	OnFailure(err error) bool

	// IsExhausted reports whether the budget is spent.
	IsExhausted() bool

	// IsPermanentFailure reports whether err can never succeed on retry.
	IsPermanentFailure(err error) bool
}

// LimitedErrorCountPolicy tolerates up to MaxFailures transient failures,
// so it permits MaxFailures+1 attempts in total.
type LimitedErrorCountPolicy struct {
	maxFailures int
	failures    int
	classifier  Classifier
}

// NewLimitedErrorCountPolicy creates a count-based policy using DefaultClassifier.
func NewLimitedErrorCountPolicy(maxFailures int) *LimitedErrorCountPolicy {
	return NewLimitedErrorCountPolicyWithClassifier(maxFailures, DefaultClassifier)
}

// NewLimitedErrorCountPolicyWithClassifier creates a count-based policy with a custom classifier.
func NewLimitedErrorCountPolicyWithClassifier(maxFailures int, c Classifier) *LimitedErrorCountPolicy {
	if maxFailures < 0 {
		maxFailures = 0
	}
	if c == nil {
		c = DefaultClassifier
	}
	return &LimitedErrorCountPolicy{maxFailures: maxFailures, classifier: c}
}

func (p *LimitedErrorCountPolicy) Clone() Policy {
	return &LimitedErrorCountPolicy{maxFailures: p.maxFailures, classifier: p.classifier}
}

func (p *LimitedErrorCountPolicy) OnFailure(err error) bool {
	if p.IsPermanentFailure(err) {
		return false
	}
	p.failures++
	return p.failures <= p.maxFailures
}

func (p *LimitedErrorCountPolicy) IsExhausted() bool {
	return p.failures > p.maxFailures
}

func (p *LimitedErrorCountPolicy) IsPermanentFailure(err error) bool {
	return !p.classifier.IsTransient(err)
}

// MaxFailures returns the configured number of tolerated transient failures.
func (p *LimitedErrorCountPolicy) MaxFailures() int {
	return p.maxFailures
}

func (p *LimitedErrorCountPolicy) String() string {
	return fmt.Sprintf("limited_error_count(%d)", p.maxFailures)
}

// Clock returns the current time. Tests replace it to control deadlines.
type Clock func() time.Time

// LimitedTimePolicy retries transient failures until a deadline measured from Clone.
type LimitedTimePolicy struct {
	maxDuration time.Duration
	deadline    time.Time
	now         Clock
	classifier  Classifier
}

// NewLimitedTimePolicy creates a time-based policy. The deadline starts now; clones restart it.
func NewLimitedTimePolicy(maxDuration time.Duration) *LimitedTimePolicy {
	return NewLimitedTimePolicyWithClock(maxDuration, time.Now, DefaultClassifier)
}

// NewLimitedTimePolicyWithClock creates a time-based policy with an injected clock and classifier.
func NewLimitedTimePolicyWithClock(maxDuration time.Duration, now Clock, c Classifier) *LimitedTimePolicy {
	if now == nil {
		now = time.Now
	}
	if c == nil {
		c = DefaultClassifier
	}
	return &LimitedTimePolicy{
		maxDuration: maxDuration,
		deadline:    now().Add(maxDuration),
		now:         now,
		classifier:  c,
	}
}

func (p *LimitedTimePolicy) Clone() Policy {
	return NewLimitedTimePolicyWithClock(p.maxDuration, p.now, p.classifier)
}

func (p *LimitedTimePolicy) OnFailure(err error) bool {
	if p.IsPermanentFailure(err) {
		return false
	}
	return !p.IsExhausted()
}

func (p *LimitedTimePolicy) IsExhausted() bool {
	return !p.now().Before(p.deadline)
}

func (p *LimitedTimePolicy) IsPermanentFailure(err error) bool {
	return !p.classifier.IsTransient(err)
}

// Deadline returns the instant after which transient failures are no longer retried.
func (p *LimitedTimePolicy) Deadline() time.Time {
	return p.deadline
}

func (p *LimitedTimePolicy) String() string {
	return fmt.Sprintf("limited_time(%s)", p.maxDuration)
}

// NoRetryPolicy permits a single attempt.
type NoRetryPolicy struct {
	failed bool
}

func (p *NoRetryPolicy) Clone() Policy { return &NoRetryPolicy{} }

func (p *NoRetryPolicy) OnFailure(err error) bool {
	p.failed = true
	return false
}

func (p *NoRetryPolicy) IsExhausted() bool { return p.failed }

func (p *NoRetryPolicy) IsPermanentFailure(err error) bool { return true }
