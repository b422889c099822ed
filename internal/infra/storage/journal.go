package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	"github.com/vietddude/tableadmin/internal/infra/rpc/executor"
)

const (
	journalWriteTimeout = 5 * time.Second
	journalBuffer       = 256
)

type journalItem struct {
	rec     *OperationRecord
	flushed chan struct{}
}

// Journal records every finished operation into a repository. Records are
// written by a background writer so a slow repository never holds up the
// goroutine that finished the operation, which may be the queue driver.
// When the buffer is full new records are dropped with a warning.
type Journal struct {
	repo   OperationRepository
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	items  chan journalItem
	done   chan struct{}
}

var _ executor.Recorder = (*Journal)(nil)

// NewJournal creates a journal writing to repo and starts its writer.
// Call Close to drain it.
func NewJournal(repo OperationRepository) *Journal {
	return newJournal(repo, journalBuffer)
}

func newJournal(repo OperationRepository, buffer int) *Journal {
	j := &Journal{
		repo:   repo,
		logger: slog.Default().With("component", "journal"),
		items:  make(chan journalItem, buffer),
		done:   make(chan struct{}),
	}
	go j.run()
	return j
}

// Repository returns the underlying repository.
func (j *Journal) Repository() OperationRepository {
	return j.repo
}

func (j *Journal) OnRetry(context.Context, string, int, error, time.Duration) {}

// OnOutcome queues o for writing. Write failures are logged, never returned
// to the caller. After Close records are written inline.
func (j *Journal) OnOutcome(_ context.Context, o executor.Outcome) {
	rec, err := NewRecord(o)
	if err != nil {
		j.logger.Warn("Failed to encode operation", "method", o.Method, "error", err)
		return
	}

	j.mu.RLock()
	if j.closed {
		j.mu.RUnlock()
		j.save(rec)
		return
	}
	select {
	case j.items <- journalItem{rec: rec}:
	default:
		j.logger.Warn("Journal buffer full, dropping operation", "method", o.Method, "id", rec.ID)
	}
	j.mu.RUnlock()
}

// Flush waits until every record queued before the call has been written.
func (j *Journal) Flush(ctx context.Context) error {
	flushed := make(chan struct{})
	j.mu.RLock()
	if j.closed {
		j.mu.RUnlock()
		return nil
	}
	select {
	case j.items <- journalItem{flushed: flushed}:
		j.mu.RUnlock()
	case <-ctx.Done():
		j.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting queued records and waits for the writer to drain.
func (j *Journal) Close(ctx context.Context) error {
	j.mu.Lock()
	if !j.closed {
		j.closed = true
		close(j.items)
	}
	j.mu.Unlock()

	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("journal did not drain: %w", ctx.Err())
	}
}

func (j *Journal) run() {
	defer close(j.done)
	for it := range j.items {
		if it.flushed != nil {
			close(it.flushed)
			continue
		}
		j.save(it.rec)
	}
}

func (j *Journal) save(rec *OperationRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
	defer cancel()
	if err := j.repo.Save(ctx, rec); err != nil {
		j.logger.Warn("Failed to journal operation", "method", rec.Method, "id", rec.ID, "error", err)
	}
}

// NewRecord converts an executor outcome into a record with a fresh id.
func NewRecord(o executor.Outcome) (*OperationRecord, error) {
	st := status.Convert(o.Err)
	raw, err := proto.Marshal(st.Proto())
	if err != nil {
		return nil, err
	}
	codes := make([]string, len(o.AttemptCodes))
	for i, c := range o.AttemptCodes {
		codes[i] = c.String()
	}
	return &OperationRecord{
		ID:           uuid.NewString(),
		Method:       o.Method,
		Resource:     o.Resource,
		Idempotent:   o.Idempotency == executor.Idempotent,
		Attempts:     o.Attempts,
		AttemptCodes: codes,
		Code:         st.Code().String(),
		Message:      st.Message(),
		Status:       raw,
		StartedAt:    o.Start,
		Elapsed:      o.Elapsed,
	}, nil
}
