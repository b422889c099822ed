package executor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vietddude/tableadmin/internal/infra/rpc/cq"
	"github.com/vietddude/tableadmin/internal/infra/rpc/retry"
)

type recordedSleeps struct {
	delays []time.Duration
}

func (r *recordedSleeps) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

type outcomeLog struct {
	retries  int
	outcomes []Outcome
}

func (l *outcomeLog) OnRetry(context.Context, string, int, error, time.Duration) { l.retries++ }
func (l *outcomeLog) OnOutcome(_ context.Context, o Outcome)                     { l.outcomes = append(l.outcomes, o) }

func testOptions(maxFailures int, s *recordedSleeps, rec Recorder) Options {
	opts := Options{
		Retry:   retry.NewLimitedErrorCountPolicy(maxFailures),
		Backoff: retry.MustExponentialBackoff(10*time.Millisecond, 50*time.Millisecond),
		Sleep:   s.sleep,
	}
	if rec != nil {
		opts.Recorders = []Recorder{rec}
	}
	return opts
}

// failing returns an attempt that fails with errs[i] on call i and succeeds afterwards.
func failing(out *int, errs ...error) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		i := *out
		*out++
		if i < len(errs) {
			return "", errs[i]
		}
		return "ok", nil
	}
}

func unavailable(n int) []error {
	errs := make([]error, n)
	for i := range errs {
		errs[i] = status.Errorf(codes.Unavailable, "try-again-%d", i+1)
	}
	return errs
}

func TestCall_RetriesTransientUntilSuccess(t *testing.T) {
	s := &recordedSleeps{}
	log := &outcomeLog{}
	calls := 0

	resp, err := Call(context.Background(), testOptions(5, s, log), "GetTable", failing(&calls, unavailable(2)...))
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, s.delays)

	require.Len(t, log.outcomes, 1)
	assert.Equal(t, 3, log.outcomes[0].Attempts)
	assert.Equal(t, []codes.Code{codes.Unavailable, codes.Unavailable}, log.outcomes[0].AttemptCodes)
	assert.Equal(t, codes.OK, log.outcomes[0].Code())
	assert.Equal(t, 2, log.retries)
}

func TestCall_ExhaustionReturnsLastAttemptStatus(t *testing.T) {
	s := &recordedSleeps{}
	calls := 0

	_, err := Call(context.Background(), testOptions(2, s, nil), "ListTables", failing(&calls, unavailable(10)...))
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, codes.Unavailable, status.Code(err))
	assert.Equal(t, "try-again-3", status.Convert(err).Message())
}

func TestCall_PermanentErrorStopsImmediately(t *testing.T) {
	s := &recordedSleeps{}
	calls := 0

	_, err := Call(context.Background(), testOptions(5, s, nil), "GetTable",
		failing(&calls, status.Error(codes.PermissionDenied, "uh oh")))
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
	assert.Equal(t, 1, calls)
	assert.Empty(t, s.delays)
}

func TestCall_NonIdempotentRunsOnce(t *testing.T) {
	s := &recordedSleeps{}
	log := &outcomeLog{}
	calls := 0

	opts := testOptions(5, s, log).WithIdempotency(NonIdempotent)
	_, err := Call(context.Background(), opts, "CreateTable", failing(&calls, unavailable(1)...))
	assert.Equal(t, codes.Unavailable, status.Code(err))
	assert.Equal(t, 1, calls)
	assert.Empty(t, s.delays)
	require.Len(t, log.outcomes, 1)
	assert.Equal(t, NonIdempotent, log.outcomes[0].Idempotency)
}

func TestCall_CancelledWaitReturnsLastError(t *testing.T) {
	s := &recordedSleeps{}
	calls := 0
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Call(ctx, testOptions(5, s, nil), "GetTable", failing(&calls, unavailable(3)...))
	assert.Equal(t, codes.Unavailable, status.Code(err))
	assert.Equal(t, "try-again-1", status.Convert(err).Message())
	assert.Equal(t, 1, calls)
}

type fakePages struct {
	pages  map[string][]string
	next   map[string]string
	fail   map[string][]error
	tokens []string
}

func (f *fakePages) fetch(_ context.Context, token string) ([]string, string, error) {
	f.tokens = append(f.tokens, token)
	if errs := f.fail[token]; len(errs) > 0 {
		f.fail[token] = errs[1:]
		return nil, "", errs[0]
	}
	return f.pages[token], f.next[token], nil
}

func threePages() *fakePages {
	return &fakePages{
		pages: map[string][]string{"": {"t0", "t1"}, "p1": {"t2"}, "p2": {"t3", "t4"}},
		next:  map[string]string{"": "p1", "p1": "p2"},
		fail:  map[string][]error{},
	}
}

func TestListAll_ConcatenatesPagesAndRetriesSameToken(t *testing.T) {
	s := &recordedSleeps{}
	f := threePages()
	f.fail["p1"] = unavailable(1)

	items, err := ListAll(context.Background(), testOptions(3, s, nil), "ListTables", f.fetch)
	require.NoError(t, err)
	assert.Equal(t, []string{"t0", "t1", "t2", "t3", "t4"}, items)
	assert.Equal(t, []string{"", "p1", "p1", "p2"}, f.tokens)
}

func TestListAll_FailureDiscardsPartialResults(t *testing.T) {
	s := &recordedSleeps{}
	f := threePages()
	f.fail["p2"] = []error{status.Error(codes.PermissionDenied, "denied")}

	items, err := ListAll(context.Background(), testOptions(3, s, nil), "ListTables", f.fetch)
	assert.Nil(t, items)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestListAll_ReportsOneOutcomeForAllPages(t *testing.T) {
	s := &recordedSleeps{}
	log := &outcomeLog{}
	f := threePages()
	f.fail["p1"] = unavailable(1)

	_, err := ListAll(context.Background(), testOptions(3, s, log), "ListTables", f.fetch)
	require.NoError(t, err)

	require.Len(t, log.outcomes, 1)
	assert.Equal(t, "ListTables", log.outcomes[0].Method)
	assert.Equal(t, 4, log.outcomes[0].Attempts)
	assert.Equal(t, []codes.Code{codes.Unavailable}, log.outcomes[0].AttemptCodes)
	assert.Equal(t, codes.OK, log.outcomes[0].Code())
	assert.Equal(t, 1, log.retries)
}

func TestListAll_ExhaustedPageDiscardsEarlierPages(t *testing.T) {
	s := &recordedSleeps{}
	log := &outcomeLog{}
	f := threePages()
	f.fail["p1"] = unavailable(4)

	items, err := ListAll(context.Background(), testOptions(3, s, log), "ListTables", f.fetch)
	assert.Nil(t, items)
	assert.Equal(t, codes.Unavailable, status.Code(err))
	assert.Equal(t, "try-again-4", status.Convert(err).Message())
	assert.Equal(t, []string{"", "p1", "p1", "p1", "p1"}, f.tokens)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}, s.delays)

	require.Len(t, log.outcomes, 1)
	assert.Equal(t, 5, log.outcomes[0].Attempts)
	assert.Equal(t, codes.Unavailable, log.outcomes[0].Code())
}

func TestListAll_EachPageHasItsOwnBudget(t *testing.T) {
	s := &recordedSleeps{}
	f := threePages()
	f.fail["p1"] = unavailable(3)
	f.fail["p2"] = unavailable(3)

	items, err := ListAll(context.Background(), testOptions(3, s, nil), "ListTables", f.fetch)
	require.NoError(t, err)
	assert.Equal(t, []string{"t0", "t1", "t2", "t3", "t4"}, items)
	// Backoff restarts from the initial delay on every page.
	assert.Equal(t, []time.Duration{
		10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond,
		10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond,
	}, s.delays)
}

func TestCallAsync_RetriesThroughQueue(t *testing.T) {
	q := cq.NewManualQueue()
	log := &outcomeLog{}
	calls := 0

	f := CallAsync(context.Background(), q, testOptions(5, &recordedSleeps{}, log), "GetTable",
		failing(&calls, unavailable(1)...))

	assert.Equal(t, []cq.Kind{cq.KindCall}, q.Pending())
	require.True(t, q.SimulateCompletion(true))
	assert.Equal(t, []cq.Kind{cq.KindTimer}, q.Pending())
	require.True(t, q.SimulateCompletion(true))
	assert.Equal(t, []cq.Kind{cq.KindCall}, q.Pending())
	assert.False(t, f.Ready())
	require.True(t, q.SimulateCompletion(true))

	require.True(t, f.Ready())
	v, err := f.Get()
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{10 * time.Millisecond}, q.Delays())
	require.Len(t, log.outcomes, 1)
	assert.Equal(t, 2, log.outcomes[0].Attempts)
}

func TestCallAsync_CancelDuringBackoff(t *testing.T) {
	q := cq.NewManualQueue()
	calls := 0

	f := CallAsync(context.Background(), q, testOptions(5, &recordedSleeps{}, nil), "GetTable",
		failing(&calls, unavailable(5)...))
	require.True(t, q.SimulateCompletion(true))
	require.Equal(t, []cq.Kind{cq.KindTimer}, q.Pending())

	assert.True(t, f.Cancel())
	require.True(t, q.SimulateCompletion(true))
	require.True(t, f.Ready())

	_, err := f.Get()
	assert.Equal(t, codes.Canceled, status.Code(err))
	assert.Equal(t, 1, calls)
	assert.Zero(t, q.Size())
}

func TestCallAsync_QueueShutdownSurfacesLastError(t *testing.T) {
	q := cq.NewManualQueue()
	calls := 0

	f := CallAsync(context.Background(), q, testOptions(5, &recordedSleeps{}, nil), "GetTable",
		failing(&calls, unavailable(5)...))
	require.True(t, q.SimulateCompletion(true))
	require.True(t, q.SimulateCompletion(false))

	_, err := f.Get()
	assert.Equal(t, codes.Unavailable, status.Code(err))
	assert.Equal(t, "try-again-1", status.Convert(err).Message())
}

func TestCallAsync_PermanentFailureResolvesWithoutTimer(t *testing.T) {
	q := cq.NewManualQueue()
	calls := 0

	f := CallAsync(context.Background(), q, testOptions(5, &recordedSleeps{}, nil), "DeleteTable",
		failing(&calls, status.Error(codes.NotFound, "gone")))
	require.True(t, q.SimulateCompletion(true))
	assert.Zero(t, q.Size())

	_, err := f.Get()
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestListAllAsync_FetchesPagesInOrder(t *testing.T) {
	q := cq.NewManualQueue()
	f := threePages()
	f.fail["p2"] = unavailable(1)

	fut := ListAllAsync(context.Background(), q, testOptions(3, &recordedSleeps{}, nil), "ListTables", f.fetch)
	// page 0, page 1, page 2 (fails), backoff timer, page 2.
	assert.Equal(t, 5, q.Drain(true, 100))

	items, err := fut.Get()
	require.NoError(t, err)
	assert.Equal(t, []string{"t0", "t1", "t2", "t3", "t4"}, items)
	assert.Equal(t, []string{"", "p1", "p2", "p2"}, f.tokens)
}

func TestListAllAsync_CancelStopsBetweenPages(t *testing.T) {
	q := cq.NewManualQueue()
	f := threePages()

	fut := ListAllAsync(context.Background(), q, testOptions(3, &recordedSleeps{}, nil), "ListTables", f.fetch)
	assert.True(t, fut.Cancel())
	q.Drain(true, 100)

	_, err := fut.Get()
	assert.Equal(t, codes.Canceled, status.Code(err))
	assert.Equal(t, []string{""}, f.tokens)
}

func TestListAllAsync_ReportsOneOutcomeForAllPages(t *testing.T) {
	q := cq.NewManualQueue()
	log := &outcomeLog{}
	f := threePages()
	f.fail["p2"] = unavailable(1)

	fut := ListAllAsync(context.Background(), q, testOptions(3, &recordedSleeps{}, log), "ListTables", f.fetch)
	q.Drain(true, 100)

	_, err := fut.Get()
	require.NoError(t, err)
	require.Len(t, log.outcomes, 1)
	assert.Equal(t, 4, log.outcomes[0].Attempts)
	assert.Equal(t, []codes.Code{codes.Unavailable}, log.outcomes[0].AttemptCodes)
}

func TestListAllAsync_ExhaustedPageDiscardsEarlierPages(t *testing.T) {
	q := cq.NewManualQueue()
	log := &outcomeLog{}
	f := threePages()
	f.fail["p1"] = unavailable(4)

	fut := ListAllAsync(context.Background(), q, testOptions(3, &recordedSleeps{}, log), "ListTables", f.fetch)
	// page 0, then four attempts at p1 with three backoff timers between them.
	assert.Equal(t, 8, q.Drain(true, 100))

	items, err := fut.Get()
	assert.Nil(t, items)
	assert.Equal(t, codes.Unavailable, status.Code(err))
	assert.Equal(t, "try-again-4", status.Convert(err).Message())
	assert.Equal(t, []string{"", "p1", "p1", "p1", "p1"}, f.tokens)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}, q.Delays())

	require.Len(t, log.outcomes, 1)
	assert.Equal(t, 5, log.outcomes[0].Attempts)
	assert.Equal(t, codes.Unavailable, log.outcomes[0].Code())
}

func TestListAllAsync_CancelDuringPageBackoff(t *testing.T) {
	q := cq.NewManualQueue()
	log := &outcomeLog{}
	f := threePages()
	f.fail["p1"] = unavailable(4)

	fut := ListAllAsync(context.Background(), q, testOptions(3, &recordedSleeps{}, log), "ListTables", f.fetch)
	require.True(t, q.SimulateCompletion(true)) // page 0
	require.True(t, q.SimulateCompletion(true)) // p1 fails
	require.Equal(t, []cq.Kind{cq.KindTimer}, q.Pending())

	assert.True(t, fut.Cancel())
	q.Drain(true, 100)

	_, err := fut.Get()
	assert.Equal(t, codes.Canceled, status.Code(err))
	assert.Equal(t, []string{"", "p1"}, f.tokens)
	require.Len(t, log.outcomes, 1)
	assert.Equal(t, codes.Canceled, log.outcomes[0].Code())
}

func TestRecorderFunc(t *testing.T) {
	var got []string
	rec := RecorderFunc(func(_ context.Context, o Outcome) {
		got = append(got, fmt.Sprintf("%s:%d:%s", o.Method, o.Attempts, o.Code()))
	})
	calls := 0
	opts := testOptions(1, &recordedSleeps{}, rec)
	_, _ = Call(context.Background(), opts, "GetIamPolicy", failing(&calls, unavailable(5)...))
	assert.Equal(t, []string{"GetIamPolicy:2:Unavailable"}, got)
}
