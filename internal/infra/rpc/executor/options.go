// Package executor drives single-attempt RPC closures through the retry and
// backoff policies, either blocking the caller (Call, ListAll) or scheduling
// every step on a completion queue (CallAsync, ListAllAsync).
package executor

import (
	"context"
	"time"

	gax "github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vietddude/tableadmin/internal/infra/rpc/retry"
)

// Idempotency tells the executor whether repeating an attempt is safe.
type Idempotency int

const (
	// Idempotent operations go through the retry loop.
	Idempotent Idempotency = iota
	// NonIdempotent operations get exactly one attempt.
	NonIdempotent
)

func (i Idempotency) String() string {
	if i == NonIdempotent {
		return "non-idempotent"
	}
	return "idempotent"
}

// Options configures one logical operation. Retry and Backoff are prototypes
// cloned at the start of every operation.
type Options struct {
	Retry       retry.Policy
	Backoff     retry.BackoffPolicy
	Idempotency Idempotency

	// Resource names the target of the operation in outcomes.
	Resource string

	// Sleep waits between synchronous attempts. Defaults to gax.Sleep.
	Sleep func(ctx context.Context, d time.Duration) error

	Recorders []Recorder
}

// DefaultRetryPolicy retries transient failures for up to ten minutes.
func DefaultRetryPolicy() retry.Policy {
	return retry.NewLimitedTimePolicy(10 * time.Minute)
}

// DefaultBackoffPolicy returns the default exponential backoff.
func DefaultBackoffPolicy() retry.BackoffPolicy {
	p, _ := retry.NewExponentialBackoffPolicy(retry.DefaultBackoffConfig)
	return p
}

// WithIdempotency returns a copy of o using i.
func (o Options) WithIdempotency(i Idempotency) Options {
	o.Idempotency = i
	return o
}

func (o Options) withDefaults() Options {
	if o.Retry == nil {
		o.Retry = DefaultRetryPolicy()
	}
	if o.Backoff == nil {
		o.Backoff = DefaultBackoffPolicy()
	}
	if o.Sleep == nil {
		o.Sleep = gax.Sleep
	}
	return o
}

// Outcome summarizes a finished logical operation.
type Outcome struct {
	Method       string
	Resource     string
	Idempotency  Idempotency
	Attempts     int
	AttemptCodes []codes.Code
	Err          error
	Start        time.Time
	Elapsed      time.Duration
}

// Code returns the status code of the terminal result.
func (o Outcome) Code() codes.Code {
	return status.Code(o.Err)
}

// Recorder observes retries and terminal outcomes.
type Recorder interface {
	OnRetry(ctx context.Context, method string, attempt int, err error, delay time.Duration)
	OnOutcome(ctx context.Context, o Outcome)
}

// operation holds the per-operation policy clones and bookkeeping.
type operation struct {
	opts    Options
	retry   retry.Policy
	backoff retry.BackoffPolicy
	outcome Outcome
}

func newOperation(opts Options, method string) *operation {
	opts = opts.withDefaults()
	return &operation{
		opts:    opts,
		retry:   opts.Retry.Clone(),
		backoff: opts.Backoff.Clone(),
		outcome: Outcome{
			Method:      method,
			Resource:    opts.Resource,
			Idempotency: opts.Idempotency,
			Start:       time.Now(),
		},
	}
}

// nextCycle gives the next call within the same operation, such as the next
// page of a list, a fresh retry budget and backoff. Attempts keep accumulating.
func (op *operation) nextCycle() {
	op.retry = op.opts.Retry.Clone()
	op.backoff = op.opts.Backoff.Clone()
}

// beginAttempt counts an attempt about to be issued.
func (op *operation) beginAttempt() {
	op.outcome.Attempts++
}

// onFailure records err and returns the delay before the next attempt, or false
// if the operation must stop with err.
func (op *operation) onFailure(ctx context.Context, err error) (time.Duration, bool) {
	op.outcome.AttemptCodes = append(op.outcome.AttemptCodes, status.Code(err))
	if op.opts.Idempotency == NonIdempotent {
		return 0, false
	}
	if !op.retry.OnFailure(err) {
		return 0, false
	}
	delay := op.backoff.OnCompletion()
	for _, r := range op.opts.Recorders {
		r.OnRetry(ctx, op.outcome.Method, op.outcome.Attempts, err, delay)
	}
	return delay, true
}

func (op *operation) finish(ctx context.Context, err error) {
	op.outcome.Err = err
	op.outcome.Elapsed = time.Since(op.outcome.Start)
	for _, r := range op.opts.Recorders {
		r.OnOutcome(ctx, op.outcome)
	}
}
