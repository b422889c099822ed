package config

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"

	"github.com/vietddude/tableadmin/internal/infra/rpc/retry"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Validate checks the loaded configuration.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Bigtable.Project == "" {
		errs = append(errs, fmt.Errorf("bigtable.project is required"))
	}
	if c.Bigtable.Instance == "" {
		errs = append(errs, fmt.Errorf("bigtable.instance is required"))
	}
	if c.Bigtable.DialTimeout < 0 {
		errs = append(errs, fmt.Errorf("bigtable.dial_timeout must not be negative"))
	}

	switch c.Retry.Policy {
	case PolicyLimitedTime:
		if c.Retry.MaxDuration <= 0 {
			errs = append(errs, fmt.Errorf("retry.max_duration must be positive"))
		}
	case PolicyLimitedCount:
		if c.Retry.MaxFailures < 0 {
			errs = append(errs, fmt.Errorf("retry.max_failures must not be negative"))
		}
	case PolicyNone:
	default:
		errs = append(errs, fmt.Errorf("retry.policy %q is not one of %s, %s, %s",
			c.Retry.Policy, PolicyLimitedTime, PolicyLimitedCount, PolicyNone))
	}
	if _, err := c.Retry.classifier(); err != nil {
		errs = append(errs, err)
	}

	if _, err := c.Backoff.Build(); err != nil {
		errs = append(errs, fmt.Errorf("backoff: %w", err))
	}
	if _, err := c.Polling.Build(); err != nil {
		errs = append(errs, fmt.Errorf("polling: %w", err))
	}
	if c.Queue.MaxInflight < 0 {
		errs = append(errs, fmt.Errorf("queue.max_inflight must not be negative"))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

func (r RetryConfig) classifier() (retry.Classifier, error) {
	if len(r.TransientCodes) == 0 {
		return retry.DefaultClassifier, nil
	}
	cc := retry.CodeClassifier{}
	for _, name := range r.TransientCodes {
		var c codes.Code
		if err := c.UnmarshalJSON([]byte(`"` + strings.ToUpper(name) + `"`)); err != nil {
			return nil, fmt.Errorf("retry.transient_codes: unknown code %q", name)
		}
		cc.Transient = append(cc.Transient, c)
	}
	return cc, nil
}

// Build returns the retry policy prototype described by r.
func (r RetryConfig) Build() (retry.Policy, error) {
	c, err := r.classifier()
	if err != nil {
		return nil, err
	}
	switch r.Policy {
	case PolicyLimitedTime, "":
		return retry.NewLimitedTimePolicyWithClock(r.MaxDuration, nil, c), nil
	case PolicyLimitedCount:
		return retry.NewLimitedErrorCountPolicyWithClassifier(r.MaxFailures, c), nil
	case PolicyNone:
		return &retry.NoRetryPolicy{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown retry policy %q", ErrInvalidConfig, r.Policy)
	}
}

// Build returns the backoff policy prototype described by b.
func (b BackoffConfig) Build() (retry.BackoffPolicy, error) {
	return retry.NewExponentialBackoffPolicy(retry.ExponentialBackoffConfig{
		Initial:    b.Initial,
		Maximum:    b.Maximum,
		Multiplier: b.Multiplier,
		Jitter:     b.Jitter,
	})
}
