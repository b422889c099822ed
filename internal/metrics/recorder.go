package metrics

import (
	"context"
	"time"

	"google.golang.org/grpc/status"

	"github.com/vietddude/tableadmin/internal/infra/bigtable/admin"
	"github.com/vietddude/tableadmin/internal/infra/rpc/executor"
)

// Recorder feeds executor outcomes and consistency polls into the package metrics.
type Recorder struct{}

var (
	_ executor.Recorder  = Recorder{}
	_ admin.PollObserver = Recorder{}
)

func (Recorder) OnRetry(_ context.Context, method string, _ int, err error, delay time.Duration) {
	RetriesTotal.WithLabelValues(method, status.Code(err).String()).Inc()
	BackoffSeconds.WithLabelValues(method).Observe(delay.Seconds())
}

func (Recorder) OnOutcome(_ context.Context, o executor.Outcome) {
	OperationsTotal.WithLabelValues(o.Method, o.Code().String()).Inc()
	AttemptsTotal.WithLabelValues(o.Method).Add(float64(o.Attempts))
	OperationLatency.WithLabelValues(o.Method).Observe(o.Elapsed.Seconds())
}

func (Recorder) OnPoll(tableID string, _ int, result admin.Consistency, err error) {
	label := result.String()
	if err != nil {
		label = "error"
	}
	ConsistencyPolls.WithLabelValues(tableID, label).Inc()
}

// Sizer reports a queue depth.
type Sizer interface {
	Size() int
}

// WatchQueue samples q into QueueDepth every interval until ctx ends.
func WatchQueue(ctx context.Context, q Sizer, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		QueueDepth.Set(float64(q.Size()))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
