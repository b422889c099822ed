// Package retry implements the retry and backoff policies used by the RPC executors.
//
// Policies are prototypes. Executors call Clone at the start of every logical
// operation so that concurrent operations never share attempt counters or delays.
package retry

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Classifier decides whether a failed attempt may succeed if repeated.
type Classifier interface {
	IsTransient(err error) bool
}

// CodeClassifier treats the listed status codes as transient and everything else as permanent.
type CodeClassifier struct {
	Transient []codes.Code
}

// IsTransient reports whether err carries one of the transient codes.
func (c CodeClassifier) IsTransient(err error) bool {
	if err == nil {
		return false
	}
	code := status.Code(err)
	for _, t := range c.Transient {
		if code == t {
			return true
		}
	}
	return false
}

// DefaultClassifier matches the codes the admin API documents as safe to retry.
var DefaultClassifier Classifier = CodeClassifier{
	Transient: []codes.Code{
		codes.Unavailable,
		codes.Aborted,
		codes.ResourceExhausted,
		codes.DeadlineExceeded,
	},
}

// ClassifierFunc adapts a plain function to Classifier.
type ClassifierFunc func(err error) bool

// IsTransient calls f(err).
func (f ClassifierFunc) IsTransient(err error) bool {
	return f(err)
}
