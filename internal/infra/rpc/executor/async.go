package executor

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vietddude/tableadmin/internal/infra/rpc/cq"
)

type asyncCall[Resp any] struct {
	ctx      context.Context
	timerCtx context.Context
	queue    cq.CompletionQueue
	op       *operation
	attempt  func(ctx context.Context) (Resp, error)
	promise  *cq.Promise[Resp]
	report   bool // call op.finish on resolution
}

// CallAsync schedules the same retry loop as Call on q and returns at once.
// Attempts and backoff timers are queue items; the future resolves exactly
// once. Cancelling the future stops pending timers, but an attempt already
// running is left to finish.
func CallAsync[Resp any](
	ctx context.Context,
	q cq.CompletionQueue,
	opts Options,
	method string,
	attempt func(ctx context.Context) (Resp, error),
) *cq.Future[Resp] {
	return startAsync(ctx, q, newOperation(opts, method), attempt, true)
}

// startAsync runs one retry cycle of op on q. With report false the caller
// owns op and finishes it.
func startAsync[Resp any](
	ctx context.Context,
	q cq.CompletionQueue,
	op *operation,
	attempt func(ctx context.Context) (Resp, error),
	report bool,
) *cq.Future[Resp] {
	p := cq.NewPromise[Resp]()
	timerCtx, cancel := context.WithCancel(ctx)
	c := &asyncCall[Resp]{
		ctx:      ctx,
		timerCtx: timerCtx,
		queue:    q,
		op:       op,
		attempt:  attempt,
		promise:  p,
		report:   report,
	}
	p.OnCancel(cancel)
	p.Future().Then(func(Resp, error) { cancel() })

	c.start()
	return p.Future()
}

func (c *asyncCall[Resp]) start() {
	c.op.beginAttempt()
	c.queue.RunAsync(c.ctx, func(ctx context.Context) {
		resp, err := c.attempt(ctx)
		c.onAttempt(resp, err)
	})
}

func (c *asyncCall[Resp]) onAttempt(resp Resp, err error) {
	if err == nil {
		c.resolve(resp, nil)
		return
	}

	delay, ok := c.op.onFailure(c.ctx, err)
	if !ok {
		c.resolve(resp, err)
		return
	}
	if c.promise.Cancelled() {
		c.resolve(resp, cancelledAfter(err))
		return
	}

	c.queue.MakeRelativeTimer(c.timerCtx, delay, func(fired bool) {
		if c.promise.Cancelled() {
			c.resolve(resp, cancelledAfter(err))
			return
		}
		if !fired {
			c.resolve(resp, err)
			return
		}
		c.start()
	})
}

func (c *asyncCall[Resp]) resolve(resp Resp, err error) {
	if c.report {
		c.op.finish(c.ctx, err)
	}
	c.promise.Set(resp, err)
}

// cancelledAfter is the result of an operation the caller cancelled while it
// was waiting to retry err.
func cancelledAfter(err error) error {
	return status.Errorf(codes.Canceled, "operation cancelled; last attempt: %s", status.Convert(err).Message())
}

// ListAllAsync is the asynchronous form of ListAll. Pages are fetched one
// after another and each page runs its own retry cycle. Recorders see one
// outcome for the whole list.
func ListAllAsync[Item any](
	ctx context.Context,
	q cq.CompletionQueue,
	opts Options,
	method string,
	fetch PageFetcher[Item],
) *cq.Future[[]Item] {
	p := cq.NewPromise[[]Item]()
	op := newOperation(opts, method)
	var current cq.Canceller
	p.OnCancel(current.Cancel)

	done := func(items []Item, err error) {
		op.finish(ctx, err)
		p.Set(items, err)
	}

	var all []Item
	var next func(token string)
	next = func(token string) {
		f := startAsync(ctx, q, op, func(ctx context.Context) (page[Item], error) {
			items, next, err := fetch(ctx, token)
			return page[Item]{items: items, next: next}, err
		}, false)
		current.Track(f.Cancel)
		f.Then(func(pg page[Item], err error) {
			if err != nil {
				done(nil, err)
				return
			}
			all = append(all, pg.items...)
			if pg.next == "" {
				done(all, nil)
				return
			}
			if p.Cancelled() {
				done(nil, status.Error(codes.Canceled, "operation cancelled between pages"))
				return
			}
			op.nextCycle()
			next(pg.next)
		})
	}
	next("")
	return p.Future()
}
