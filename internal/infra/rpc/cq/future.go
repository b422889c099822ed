package cq

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type state[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	resolved  bool
	value     T
	err       error
	callbacks []func(T, error)

	cancelled atomic.Bool
	onCancel  []func()
}

// Promise is the producer side of a one-shot result.
type Promise[T any] struct {
	s *state[T]
}

// Future is the consumer side of a one-shot result.
type Future[T any] struct {
	s *state[T]
}

// NewPromise returns an unresolved promise.
func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{s: &state[T]{done: make(chan struct{})}}
}

// MakeReadyFuture returns a future that is already resolved.
func MakeReadyFuture[T any](v T, err error) *Future[T] {
	p := NewPromise[T]()
	p.Set(v, err)
	return p.Future()
}

// Future returns the consumer handle. All handles observe the same result.
func (p *Promise[T]) Future() *Future[T] {
	return &Future[T]{s: p.s}
}

// SetValue resolves the promise with v. It returns false if already resolved.
func (p *Promise[T]) SetValue(v T) bool {
	return p.s.resolve(v, nil)
}

// SetError resolves the promise with err. It returns false if already resolved.
func (p *Promise[T]) SetError(err error) bool {
	var zero T
	return p.s.resolve(zero, err)
}

// Set resolves the promise with (v, err). A non-nil err discards v.
func (p *Promise[T]) Set(v T, err error) bool {
	if err != nil {
		return p.SetError(err)
	}
	return p.SetValue(v)
}

// Cancelled reports whether the consumer asked to stop further work.
func (p *Promise[T]) Cancelled() bool {
	return p.s.cancelled.Load()
}

// OnCancel registers fn to run when the consumer cancels. If cancellation already
// happened fn runs immediately.
func (p *Promise[T]) OnCancel(fn func()) {
	p.s.mu.Lock()
	if p.s.cancelled.Load() {
		p.s.mu.Unlock()
		fn()
		return
	}
	p.s.onCancel = append(p.s.onCancel, fn)
	p.s.mu.Unlock()
}

func (s *state[T]) resolve(v T, err error) bool {
	s.mu.Lock()
	if s.resolved {
		s.mu.Unlock()
		return false
	}
	s.resolved = true
	s.value = v
	s.err = err
	cbs := s.callbacks
	s.callbacks = nil
	s.onCancel = nil
	close(s.done)
	s.mu.Unlock()

	for _, cb := range cbs {
		cb(v, err)
	}
	return true
}

// Ready reports whether the future has a result.
func (f *Future[T]) Ready() bool {
	select {
	case <-f.s.done:
		return true
	default:
		return false
	}
}

// WaitFor blocks up to d and reports whether the future is ready.
func (f *Future[T]) WaitFor(d time.Duration) bool {
	if d <= 0 {
		return f.Ready()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-f.s.done:
		return true
	case <-t.C:
		return f.Ready()
	}
}

// Get blocks until the future is resolved. Repeated calls return the same result.
func (f *Future[T]) Get() (T, error) {
	<-f.s.done
	return f.s.value, f.s.err
}

// Wait is Get bounded by ctx. Returning early does not cancel the operation.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.s.done:
		return f.s.value, f.s.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done returns a channel closed on resolution.
func (f *Future[T]) Done() <-chan struct{} {
	return f.s.done
}

// Then runs fn with the result. It runs inline on the resolving goroutine, or
// immediately when the future is already resolved.
func (f *Future[T]) Then(fn func(T, error)) {
	f.s.mu.Lock()
	if f.s.resolved {
		v, err := f.s.value, f.s.err
		f.s.mu.Unlock()
		fn(v, err)
		return
	}
	f.s.callbacks = append(f.s.callbacks, fn)
	f.s.mu.Unlock()
}

// Cancel asks the producer to stop scheduling work. Work already dispatched is
// not interrupted. It returns false when the future is already resolved.
func (f *Future[T]) Cancel() bool {
	f.s.mu.Lock()
	if f.s.resolved || f.s.cancelled.Load() {
		resolved := f.s.resolved
		f.s.mu.Unlock()
		return !resolved
	}
	f.s.cancelled.Store(true)
	hooks := f.s.onCancel
	f.s.onCancel = nil
	f.s.mu.Unlock()

	for _, h := range hooks {
		h()
	}
	return true
}

// Canceller forwards one cancellation to whichever step of a multi-step
// operation is current. Register Cancel once with Promise.OnCancel and call
// Track for every new step.
type Canceller struct {
	mu        sync.Mutex
	cancelled bool
	current   func() bool
}

// Track makes cancel the current step. If Cancel already ran, cancel runs now.
func (c *Canceller) Track(cancel func() bool) {
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		cancel()
		return
	}
	c.current = cancel
	c.mu.Unlock()
}

// Cancel cancels the current step and every step tracked afterwards.
func (c *Canceller) Cancel() {
	c.mu.Lock()
	c.cancelled = true
	cancel := c.current
	c.current = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
