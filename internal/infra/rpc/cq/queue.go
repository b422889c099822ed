// Package cq provides the completion queue that schedules asynchronous RPC
// attempts and timers, and the one-shot futures those operations resolve.
package cq

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrShutdown is the cancellation cause for work dispatched after Shutdown.
var ErrShutdown = errors.New("completion queue shut down")

// CompletionQueue schedules asynchronous work. Every item fires exactly once.
type CompletionQueue interface {
	// RunAsync runs call off the caller's goroutine.
	RunAsync(ctx context.Context, call func(ctx context.Context))

	// MakeRelativeTimer fires done after d. ok is false when ctx ended or the
	// queue shut down before the delay elapsed.
	MakeRelativeTimer(ctx context.Context, d time.Duration, done func(ok bool))
}

// Kind identifies a pending item.
type Kind int

const (
	KindCall Kind = iota
	KindTimer
)

func (k Kind) String() string {
	if k == KindTimer {
		return "timer"
	}
	return "call"
}

type item struct {
	kind Kind
	ctx  context.Context
	call func(context.Context)
	done func(bool)
	ok   bool
}

type timerItem struct {
	t    *time.Timer
	done func(bool)
	stop func() bool
}

// Queue is the production completion queue. Run drives it from a background goroutine.
type Queue struct {
	sem *semaphore.Weighted

	mu     sync.Mutex
	ready  []item
	timers map[*timerItem]struct{}
	closed bool

	wake     chan struct{}
	running  atomic.Int64
	inflight sync.WaitGroup
	stopped  chan struct{}
}

// NewQueue creates a queue allowing at most maxInflight concurrent calls.
func NewQueue(maxInflight int64) *Queue {
	if maxInflight <= 0 {
		maxInflight = 64
	}
	return &Queue{
		sem:     semaphore.NewWeighted(maxInflight),
		timers:  make(map[*timerItem]struct{}),
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
}

func (q *Queue) RunAsync(ctx context.Context, call func(ctx context.Context)) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		go call(shutdownContext(ctx))
		return
	}
	q.ready = append(q.ready, item{kind: KindCall, ctx: ctx, call: call})
	q.mu.Unlock()
	q.signal()
}

func (q *Queue) MakeRelativeTimer(ctx context.Context, d time.Duration, done func(ok bool)) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		go done(false)
		return
	}
	tm := &timerItem{done: done}
	q.timers[tm] = struct{}{}
	tm.t = time.AfterFunc(d, func() { q.fireTimer(tm, true) })
	tm.stop = context.AfterFunc(ctx, func() {
		if tm.t.Stop() {
			q.fireTimer(tm, false)
		}
	})
	q.mu.Unlock()
}

func (q *Queue) fireTimer(tm *timerItem, ok bool) {
	q.mu.Lock()
	if _, armed := q.timers[tm]; !armed {
		q.mu.Unlock()
		return
	}
	delete(q.timers, tm)
	q.ready = append(q.ready, item{kind: KindTimer, done: tm.done, ok: ok})
	q.mu.Unlock()
	if ok && tm.stop != nil {
		tm.stop()
	}
	q.signal()
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Size reports items that have not fired yet: armed timers, ready items and running calls.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready) + len(q.timers) + int(q.running.Load())
}

// Run drives the queue until Shutdown is called or ctx ends. Timer callbacks
// run on this goroutine; calls run on their own goroutines.
func (q *Queue) Run(ctx context.Context) {
	defer close(q.stopped)
	for {
		q.mu.Lock()
		batch := q.ready
		q.ready = nil
		closed := q.closed
		q.mu.Unlock()

		for _, it := range batch {
			q.dispatch(it, closed)
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			q.inflight.Wait()
			return
		}

		select {
		case <-q.wake:
		case <-ctx.Done():
			q.Shutdown()
		}
	}
}

func (q *Queue) dispatch(it item, closed bool) {
	if it.kind == KindTimer {
		it.done(it.ok)
		return
	}
	ctx := it.ctx
	if closed {
		ctx = shutdownContext(ctx)
	}
	q.inflight.Add(1)
	q.running.Add(1)
	go func() {
		defer q.inflight.Done()
		defer q.running.Add(-1)
		if err := q.sem.Acquire(ctx, 1); err != nil {
			it.call(ctx)
			return
		}
		defer q.sem.Release(1)
		it.call(ctx)
	}()
}

// Shutdown stops accepting work. Armed timers fire with ok=false and calls not
// yet started run with a cancelled context.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	for tm := range q.timers {
		tm.t.Stop()
		if tm.stop != nil {
			tm.stop()
		}
		q.ready = append(q.ready, item{kind: KindTimer, done: tm.done, ok: false})
	}
	clear(q.timers)
	q.mu.Unlock()
	q.signal()
}

// Stopped is closed when Run has drained the queue after Shutdown.
func (q *Queue) Stopped() <-chan struct{} {
	return q.stopped
}

func shutdownContext(parent context.Context) context.Context {
	ctx, cancel := context.WithCancelCause(parent)
	cancel(ErrShutdown)
	return ctx
}
