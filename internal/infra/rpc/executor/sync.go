package executor

import (
	"context"
)

// Call runs attempt until it succeeds, fails permanently, or the retry policy
// gives up. The returned error is always the last attempt's error.
func Call[Resp any](
	ctx context.Context,
	opts Options,
	method string,
	attempt func(ctx context.Context) (Resp, error),
) (Resp, error) {
	op := newOperation(opts, method)
	resp, err := retryLoop(ctx, op, attempt)
	op.finish(ctx, err)
	return resp, err
}

// retryLoop runs one retry cycle of op without reporting its outcome.
func retryLoop[Resp any](ctx context.Context, op *operation, attempt func(ctx context.Context) (Resp, error)) (Resp, error) {
	var zero Resp
	for {
		op.beginAttempt()
		resp, err := attempt(ctx)
		if err == nil {
			return resp, nil
		}

		delay, ok := op.onFailure(ctx, err)
		if !ok {
			return zero, err
		}

		// A cancelled wait still reports the attempt's error, not ctx.Err().
		if serr := op.opts.Sleep(ctx, delay); serr != nil {
			return zero, err
		}
	}
}

// PageFetcher fetches one page starting at pageToken. An empty next token marks the last page.
type PageFetcher[Item any] func(ctx context.Context, pageToken string) (items []Item, nextPageToken string, err error)

type page[Item any] struct {
	items []Item
	next  string
}

// ListAll fetches every page in order. Each page is a full retry cycle with
// its own budget, and a failed page is retried with the token that produced
// it. If any page fails the items gathered so far are discarded. Recorders see
// one outcome for the whole list.
func ListAll[Item any](
	ctx context.Context,
	opts Options,
	method string,
	fetch PageFetcher[Item],
) ([]Item, error) {
	op := newOperation(opts, method)
	var all []Item
	token := ""
	for {
		p, err := retryLoop(ctx, op, func(ctx context.Context) (page[Item], error) {
			items, next, err := fetch(ctx, token)
			return page[Item]{items: items, next: next}, err
		})
		if err != nil {
			op.finish(ctx, err)
			return nil, err
		}
		all = append(all, p.items...)
		if p.next == "" {
			op.finish(ctx, nil)
			return all, nil
		}
		token = p.next
		op.nextCycle()
	}
}
