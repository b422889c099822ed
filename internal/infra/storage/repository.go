package storage

import (
	"context"
	"errors"
	"time"

	spb "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

var (
	// ErrNotFound is returned when an operation record doesn't exist
	ErrNotFound = errors.New("operation record not found")
)

// OperationRecord is one finished logical admin operation.
type OperationRecord struct {
	ID           string        `db:"id"`
	Method       string        `db:"method"`
	Resource     string        `db:"resource"`
	Idempotent   bool          `db:"idempotent"`
	Attempts     int           `db:"attempts"`
	AttemptCodes []string      `db:"-"`
	Code         string        `db:"code"`
	Message      string        `db:"message"`
	Status       []byte        `db:"status"`
	StartedAt    time.Time     `db:"started_at"`
	Elapsed      time.Duration `db:"-"`
}

// Failed reports whether the operation ended with a non-OK status.
func (r *OperationRecord) Failed() bool {
	return r.Code != "" && r.Code != "OK"
}

// GRPCStatus decodes the stored final status.
func (r *OperationRecord) GRPCStatus() (*status.Status, error) {
	if len(r.Status) == 0 {
		return status.New(codes.OK, ""), nil
	}
	var p spb.Status
	if err := proto.Unmarshal(r.Status, &p); err != nil {
		return nil, err
	}
	return status.FromProto(&p), nil
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	Method     string
	Resource   string
	FailedOnly bool
	Limit      int
}

// OperationRepository persists the operation journal
type OperationRepository interface {
	// Save stores a finished operation
	Save(ctx context.Context, rec *OperationRecord) error

	// Get retrieves a record by id
	Get(ctx context.Context, id string) (*OperationRecord, error)

	// List returns records, newest first
	List(ctx context.Context, filter ListFilter) ([]*OperationRecord, error)

	// CountFailures counts failed operations started at or after since
	CountFailures(ctx context.Context, since time.Time) (int, error)
}
