package cq

import (
	"context"
	"sync"
	"time"
)

// ManualQueue holds items until they are fired explicitly. It makes
// asynchronous flows deterministic: each SimulateCompletion advances one step.
type ManualQueue struct {
	mu     sync.Mutex
	items  []item
	delays []time.Duration
}

// NewManualQueue returns an empty manual queue.
func NewManualQueue() *ManualQueue {
	return &ManualQueue{}
}

func (q *ManualQueue) RunAsync(ctx context.Context, call func(ctx context.Context)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item{kind: KindCall, ctx: ctx, call: call})
}

func (q *ManualQueue) MakeRelativeTimer(ctx context.Context, d time.Duration, done func(ok bool)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item{kind: KindTimer, ctx: ctx, done: done})
	q.delays = append(q.delays, d)
}

// SimulateCompletion fires the oldest pending item and reports whether there was one.
// With ok=false a call runs with a cancelled context and a timer reports ok=false.
func (q *ManualQueue) SimulateCompletion(ok bool) bool {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return false
	}
	it := q.items[0]
	q.items = q.items[1:]
	q.mu.Unlock()

	switch it.kind {
	case KindTimer:
		it.done(ok && it.ctx.Err() == nil)
	default:
		ctx := it.ctx
		if !ok {
			ctx = shutdownContext(ctx)
		}
		it.call(ctx)
	}
	return true
}

// Drain fires items until the queue is empty or limit items fired. It returns the number fired.
func (q *ManualQueue) Drain(ok bool, limit int) int {
	n := 0
	for n < limit && q.SimulateCompletion(ok) {
		n++
	}
	return n
}

// Size reports pending items.
func (q *ManualQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pending returns the kinds of pending items, oldest first.
func (q *ManualQueue) Pending() []Kind {
	q.mu.Lock()
	defer q.mu.Unlock()
	kinds := make([]Kind, len(q.items))
	for i, it := range q.items {
		kinds[i] = it.kind
	}
	return kinds
}

// Delays returns every timer delay requested so far, in scheduling order.
func (q *ManualQueue) Delays() []time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]time.Duration, len(q.delays))
	copy(out, q.delays)
	return out
}
