package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/vietddude/tableadmin/internal/infra/storage"
)

// OperationRepo implements storage.OperationRepository using PostgreSQL.
type OperationRepo struct {
	db *DB
}

// NewOperationRepo creates a new PostgreSQL operation repository.
func NewOperationRepo(db *DB) *OperationRepo {
	return &OperationRepo{db: db}
}

type operationRow struct {
	ID           string         `db:"id"`
	Method       string         `db:"method"`
	Resource     string         `db:"resource"`
	Idempotent   bool           `db:"idempotent"`
	Attempts     int            `db:"attempts"`
	AttemptCodes pq.StringArray `db:"attempt_codes"`
	Code         string         `db:"code"`
	Message      string         `db:"message"`
	Status       []byte         `db:"status"`
	StartedAt    time.Time      `db:"started_at"`
	ElapsedMs    int64          `db:"elapsed_ms"`
}

func (r operationRow) record() *storage.OperationRecord {
	return &storage.OperationRecord{
		ID:           r.ID,
		Method:       r.Method,
		Resource:     r.Resource,
		Idempotent:   r.Idempotent,
		Attempts:     r.Attempts,
		AttemptCodes: []string(r.AttemptCodes),
		Code:         r.Code,
		Message:      r.Message,
		Status:       r.Status,
		StartedAt:    r.StartedAt,
		Elapsed:      time.Duration(r.ElapsedMs) * time.Millisecond,
	}
}

const selectOperation = `
	SELECT id, method, resource, idempotent, attempts, attempt_codes, code, message, status, started_at, elapsed_ms
	FROM operations
`

// Save inserts rec.
func (r *OperationRepo) Save(ctx context.Context, rec *storage.OperationRecord) error {
	query := `
		INSERT INTO operations (id, method, resource, idempotent, attempts, attempt_codes, code, message, status, started_at, elapsed_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(
		ctx,
		query,
		rec.ID,
		rec.Method,
		rec.Resource,
		rec.Idempotent,
		rec.Attempts,
		pq.Array(rec.AttemptCodes),
		rec.Code,
		rec.Message,
		rec.Status,
		rec.StartedAt,
		rec.Elapsed.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to save operation: %w", err)
	}
	return nil
}

// Get returns the record with id.
func (r *OperationRepo) Get(ctx context.Context, id string) (*storage.OperationRecord, error) {
	var row operationRow
	err := r.db.GetContext(ctx, &row, selectOperation+` WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}
	return row.record(), nil
}

// List returns records matching f, newest first.
func (r *OperationRepo) List(ctx context.Context, f storage.ListFilter) ([]*storage.OperationRecord, error) {
	query, args := buildListQuery(f)
	var rows []operationRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	out := make([]*storage.OperationRecord, len(rows))
	for i, row := range rows {
		out[i] = row.record()
	}
	return out, nil
}

func buildListQuery(f storage.ListFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if f.Method != "" {
		args = append(args, f.Method)
		where = append(where, fmt.Sprintf("method = $%d", len(args)))
	}
	if f.Resource != "" {
		args = append(args, f.Resource)
		where = append(where, fmt.Sprintf("resource = $%d", len(args)))
	}
	if f.FailedOnly {
		where = append(where, "code <> 'OK'")
	}

	query := selectOperation
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args
}

// CountFailures counts non-OK operations started at or after since.
func (r *OperationRepo) CountFailures(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM operations WHERE code <> 'OK' AND started_at >= $1`, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count failed operations: %w", err)
	}
	return n, nil
}
