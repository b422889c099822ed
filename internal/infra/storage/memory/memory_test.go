package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/tableadmin/internal/infra/storage"
)

func rec(id, method, code string, at time.Time) *storage.OperationRecord {
	return &storage.OperationRecord{ID: id, Method: method, Code: code, StartedAt: at}
}

func TestOperationRepo_SaveGetList(t *testing.T) {
	ctx := context.Background()
	repo := NewOperationRepo(0)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Save(ctx, rec("a", "GetTable", "OK", base)))
	require.NoError(t, repo.Save(ctx, rec("b", "CreateTable", "Unavailable", base.Add(time.Second))))
	require.NoError(t, repo.Save(ctx, rec("c", "GetTable", "NotFound", base.Add(2*time.Second))))

	got, err := repo.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "CreateTable", got.Method)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	all, err := repo.List(ctx, storage.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID, "newest first")

	failed, err := repo.List(ctx, storage.ListFilter{FailedOnly: true, Method: "GetTable"})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "c", failed[0].ID)

	limited, err := repo.List(ctx, storage.ListFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	n, err := repo.CountFailures(ctx, base.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestOperationRepo_Capacity(t *testing.T) {
	ctx := context.Background()
	repo := NewOperationRepo(2)
	now := time.Now()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Save(ctx, rec(id, "GetTable", "OK", now)))
	}
	_, err := repo.Get(ctx, "a")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	all, _ := repo.List(ctx, storage.ListFilter{})
	assert.Len(t, all, 2)
}
