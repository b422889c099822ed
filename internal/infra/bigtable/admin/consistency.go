package admin

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/bigtable/admin/apiv2/adminpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vietddude/tableadmin/internal/infra/rpc/cq"
	"github.com/vietddude/tableadmin/internal/infra/rpc/retry"
)

// Consistency is the replication state reported for a token.
type Consistency int

const (
	Inconsistent Consistency = iota
	Consistent
)

func (c Consistency) String() string {
	if c == Consistent {
		return "consistent"
	}
	return "inconsistent"
}

// PollObserver is told about every consistency check the poller completes.
type PollObserver interface {
	OnPoll(tableID string, round int, result Consistency, err error)
}

func (a TableAdmin) generateToken(tableID string) rpc[string] {
	req := &adminpb.GenerateConsistencyTokenRequest{Name: a.TableName(tableID)}
	return rpc[string]{
		method: "GenerateConsistencyToken",
		opts:   a.singleAttempt(req.Name),
		attempt: func(ctx context.Context) (string, error) {
			resp, err := a.stub.GenerateConsistencyToken(withResource(ctx, "name", req.Name), req)
			if err != nil {
				return "", err
			}
			return resp.GetConsistencyToken(), nil
		},
	}
}

// GenerateConsistencyToken returns a token covering every write accepted so far.
func (a TableAdmin) GenerateConsistencyToken(ctx context.Context, tableID string) (string, error) {
	return a.generateToken(tableID).run(ctx)
}

func (a TableAdmin) AsyncGenerateConsistencyToken(ctx context.Context, q cq.CompletionQueue, tableID string) *cq.Future[string] {
	return a.generateToken(tableID).async(ctx, q)
}

func (a TableAdmin) checkConsistency(tableID, token string) rpc[Consistency] {
	req := &adminpb.CheckConsistencyRequest{Name: a.TableName(tableID), ConsistencyToken: token}
	return rpc[Consistency]{
		method: "CheckConsistency",
		opts:   a.idempotent(req.Name),
		attempt: func(ctx context.Context) (Consistency, error) {
			resp, err := a.stub.CheckConsistency(withResource(ctx, "name", req.Name), req)
			if err != nil {
				return Inconsistent, err
			}
			if resp.GetConsistent() {
				return Consistent, nil
			}
			return Inconsistent, nil
		},
	}
}

// CheckConsistency reports once whether the writes covered by token have replicated.
func (a TableAdmin) CheckConsistency(ctx context.Context, tableID, token string) (Consistency, error) {
	return a.checkConsistency(tableID, token).run(ctx)
}

func (a TableAdmin) AsyncCheckConsistency(ctx context.Context, q cq.CompletionQueue, tableID, token string) *cq.Future[Consistency] {
	return a.checkConsistency(tableID, token).async(ctx, q)
}

type consistencyWait struct {
	admin    TableAdmin
	ctx      context.Context
	timerCtx context.Context
	queue    cq.CompletionQueue
	tableID  string
	token    string
	polling  retry.BackoffPolicy
	observer PollObserver
	promise  *cq.Promise[Consistency]
	current  cq.Canceller
	round    int
}

// AsyncWaitForConsistency polls CheckConsistency on q until the table reports
// Consistent. Each check runs its own retry loop; between checks the poller
// waits on the polling backoff. A check that fails after its retries resolves
// the future with that error. The only other limits are ctx and Cancel.
func (a TableAdmin) AsyncWaitForConsistency(ctx context.Context, q cq.CompletionQueue, tableID, token string) *cq.Future[Consistency] {
	return a.asyncWaitForConsistency(ctx, q, tableID, token, nil)
}

// AsyncWaitForConsistencyObserved is AsyncWaitForConsistency reporting every round to obs.
func (a TableAdmin) AsyncWaitForConsistencyObserved(ctx context.Context, q cq.CompletionQueue, tableID, token string, obs PollObserver) *cq.Future[Consistency] {
	return a.asyncWaitForConsistency(ctx, q, tableID, token, obs)
}

func (a TableAdmin) asyncWaitForConsistency(ctx context.Context, q cq.CompletionQueue, tableID, token string, obs PollObserver) *cq.Future[Consistency] {
	p := cq.NewPromise[Consistency]()
	timerCtx, cancel := context.WithCancel(ctx)
	p.OnCancel(cancel)
	p.Future().Then(func(Consistency, error) { cancel() })

	w := &consistencyWait{
		admin:    a,
		ctx:      ctx,
		timerCtx: timerCtx,
		queue:    q,
		tableID:  tableID,
		token:    token,
		polling:  a.polling.Clone(),
		observer: obs,
		promise:  p,
	}
	p.OnCancel(w.current.Cancel)
	w.check()
	return p.Future()
}

func (w *consistencyWait) check() {
	w.round++
	round := w.round
	f := w.admin.checkConsistency(w.tableID, w.token).async(w.ctx, w.queue)
	w.current.Track(f.Cancel)

	f.Then(func(c Consistency, err error) {
		if w.observer != nil {
			w.observer.OnPoll(w.tableID, round, c, err)
		}
		if err != nil {
			w.promise.SetError(err)
			return
		}
		if c == Consistent {
			w.promise.SetValue(Consistent)
			return
		}
		if w.promise.Cancelled() {
			w.promise.SetError(status.Error(codes.Canceled, "consistency wait cancelled"))
			return
		}

		delay := w.polling.OnCompletion()
		slog.Debug("Table not yet consistent",
			"table", w.tableID,
			"round", round,
			"next_poll", delay,
		)
		w.queue.MakeRelativeTimer(w.timerCtx, delay, func(ok bool) {
			if !ok {
				w.promise.SetError(status.Error(codes.Canceled, "consistency wait stopped before the next check"))
				return
			}
			w.check()
		})
	})
}

// WaitForConsistency blocks until token is consistent on tableID, running the
// poller on the client's own queue. If ctx ends first the wait is cancelled.
func (a TableAdmin) WaitForConsistency(ctx context.Context, tableID, token string) (Consistency, error) {
	if a.queue == nil {
		return Inconsistent, fmt.Errorf("admin: no completion queue configured")
	}
	f := a.AsyncWaitForConsistency(ctx, a.queue, tableID, token)
	c, err := f.Wait(ctx)
	if err != nil && ctx.Err() != nil {
		f.Cancel()
		return Inconsistent, status.FromContextError(ctx.Err()).Err()
	}
	return c, err
}

// GenerateAndWait generates a fresh token, caches it when a token store is
// configured, and waits for it to become consistent.
func (a TableAdmin) GenerateAndWait(ctx context.Context, q cq.CompletionQueue, tableID string) *cq.Future[Consistency] {
	p := cq.NewPromise[Consistency]()
	var current cq.Canceller
	p.OnCancel(current.Cancel)
	gen := a.AsyncGenerateConsistencyToken(ctx, q, tableID)
	current.Track(gen.Cancel)

	gen.Then(func(token string, err error) {
		if err != nil {
			p.SetError(err)
			return
		}
		if a.tokens != nil {
			if perr := a.tokens.PutToken(ctx, a.TableName(tableID), token); perr != nil {
				slog.Warn("Failed to cache consistency token", "table", tableID, "error", perr)
			}
		}
		if p.Cancelled() {
			p.SetError(status.Error(codes.Canceled, "consistency wait cancelled"))
			return
		}
		wait := a.AsyncWaitForConsistency(ctx, q, tableID, token)
		current.Track(wait.Cancel)
		wait.Then(func(c Consistency, err error) { p.Set(c, err) })
	})
	return p.Future()
}

// CachedToken returns the last token cached for tableID by GenerateAndWait.
func (a TableAdmin) CachedToken(ctx context.Context, tableID string) (string, bool, error) {
	if a.tokens == nil {
		return "", false, nil
	}
	return a.tokens.Token(ctx, a.TableName(tableID))
}
