package retry

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// BackoffPolicy computes the delay before the next attempt.
type BackoffPolicy interface {
	// Clone returns a fresh policy that starts again from its initial delay.
	Clone() BackoffPolicy

	// OnCompletion returns the delay to wait now and advances the internal state.
	OnCompletion() time.Duration
}

// ExponentialBackoffConfig defines an exponential backoff.
type ExponentialBackoffConfig struct {
	Initial    time.Duration
	Maximum    time.Duration
	Multiplier float64
	Jitter     bool
}

// DefaultBackoffConfig mirrors the admin API recommendation.
var DefaultBackoffConfig = ExponentialBackoffConfig{
	Initial:    10 * time.Millisecond,
	Maximum:    5 * time.Minute,
	Multiplier: 2.0,
}

// ExponentialBackoffPolicy grows the delay geometrically up to a ceiling.
//
// Without jitter the sequence is Initial, Initial*m, Initial*m^2, ... capped at Maximum.
// With jitter each value is drawn from [current, next] so the sequence stays
// non-decreasing and bounded by Maximum.
type ExponentialBackoffPolicy struct {
	cfg     ExponentialBackoffConfig
	current time.Duration
	random  func() float64
}

var errInvalidBackoff = errors.New("invalid backoff")

// NewExponentialBackoffPolicy validates cfg and returns a policy positioned before its first delay.
func NewExponentialBackoffPolicy(cfg ExponentialBackoffConfig) (*ExponentialBackoffPolicy, error) {
	if cfg.Multiplier == 0 {
		cfg.Multiplier = 2.0
	}
	switch {
	case cfg.Initial <= 0:
		return nil, fmt.Errorf("%w: initial delay must be positive, got %s", errInvalidBackoff, cfg.Initial)
	case cfg.Maximum < cfg.Initial:
		return nil, fmt.Errorf("%w: maximum %s is below initial %s", errInvalidBackoff, cfg.Maximum, cfg.Initial)
	case cfg.Multiplier < 1:
		return nil, fmt.Errorf("%w: multiplier must be >= 1, got %v", errInvalidBackoff, cfg.Multiplier)
	}
	return &ExponentialBackoffPolicy{cfg: cfg, random: rand.Float64}, nil
}

// MustExponentialBackoff is NewExponentialBackoffPolicy for static configurations.
func MustExponentialBackoff(initial, maximum time.Duration) *ExponentialBackoffPolicy {
	p, err := NewExponentialBackoffPolicy(ExponentialBackoffConfig{Initial: initial, Maximum: maximum})
	if err != nil {
		panic(err)
	}
	return p
}

func (p *ExponentialBackoffPolicy) Clone() BackoffPolicy {
	return &ExponentialBackoffPolicy{cfg: p.cfg, random: p.random}
}

func (p *ExponentialBackoffPolicy) OnCompletion() time.Duration {
	if p.current == 0 {
		p.current = p.cfg.Initial
	} else {
		p.current = p.grow(p.current)
	}
	if !p.cfg.Jitter {
		return p.current
	}
	next := p.grow(p.current)
	return p.current + time.Duration(p.random()*float64(next-p.current))
}

func (p *ExponentialBackoffPolicy) grow(d time.Duration) time.Duration {
	next := float64(d) * p.cfg.Multiplier
	if next > float64(p.cfg.Maximum) {
		return p.cfg.Maximum
	}
	return time.Duration(next)
}

// Config returns the policy configuration.
func (p *ExponentialBackoffPolicy) Config() ExponentialBackoffConfig {
	return p.cfg
}

// ConstantBackoffPolicy always waits the same delay.
type ConstantBackoffPolicy struct {
	Delay time.Duration
}

func (p ConstantBackoffPolicy) Clone() BackoffPolicy { return p }

func (p ConstantBackoffPolicy) OnCompletion() time.Duration { return p.Delay }
