package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/tableadmin/internal/infra/storage"
)

// OperationRepo keeps the journal in memory. Oldest records are dropped past capacity.
type OperationRepo struct {
	mu       sync.RWMutex
	records  []*storage.OperationRecord
	byID     map[string]*storage.OperationRecord
	capacity int
}

// NewOperationRepo creates a repository holding at most capacity records (0 = unbounded).
func NewOperationRepo(capacity int) *OperationRepo {
	return &OperationRepo{
		byID:     make(map[string]*storage.OperationRecord),
		capacity: capacity,
	}
}

func (r *OperationRepo) Save(ctx context.Context, rec *storage.OperationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	r.records = append(r.records, &cp)
	r.byID[cp.ID] = &cp
	if r.capacity > 0 && len(r.records) > r.capacity {
		drop := r.records[0]
		r.records = r.records[1:]
		delete(r.byID, drop.ID)
	}
	return nil
}

func (r *OperationRepo) Get(ctx context.Context, id string) (*storage.OperationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *OperationRepo) List(ctx context.Context, f storage.ListFilter) ([]*storage.OperationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*storage.OperationRecord
	for _, rec := range r.records {
		if f.Method != "" && rec.Method != f.Method {
			continue
		}
		if f.Resource != "" && rec.Resource != f.Resource {
			continue
		}
		if f.FailedOnly && !rec.Failed() {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *OperationRepo) CountFailures(ctx context.Context, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, rec := range r.records {
		if rec.Failed() && !rec.StartedAt.Before(since) {
			n++
		}
	}
	return n, nil
}
