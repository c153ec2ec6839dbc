package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"contractdesk/internal/types"
)

func TestJobLockRepository_Acquire(t *testing.T) {
	tests := []struct {
		name string
		tag  string
		want bool
	}{
		{"new or reclaimed lock", "INSERT 0 1", true},
		{"held by another worker", "INSERT 0 0", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := new(mockDBTX)
			repo := NewJobLockRepository(db)
			db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
				Return(pgconn.NewCommandTag(tt.tag), nil)

			got, err := repo.Acquire(context.Background(), "purge_deleted_drafts:2026-02-06T03", "worker-1", 15*time.Minute)

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJobLockRepository_Acquire_ExpiryFromTTL(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobLockRepository(db)
	repo.now = func() time.Time { return testNow }

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"),
		[]any{"lock", "worker-1", testNow, testNow.Add(10 * time.Minute)}).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	_, err := repo.Acquire(context.Background(), "lock", "worker-1", 10*time.Minute)

	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestJobLockRepository_Acquire_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobLockRepository(db)
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	_, err := repo.Acquire(context.Background(), "lock", "worker-1", time.Minute)

	assert.True(t, types.HasCode(err, types.ErrCodeInternalDB))
}

func TestJobHistoryRepository_Start(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobHistoryRepository(db)
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{"cleanup_idempotency_keys"}).
		Return(&mockRow{scanFn: func(dest ...any) error {
			*dest[0].(*int64) = 42
			return nil
		}})

	id, err := repo.Start(context.Background(), "cleanup_idempotency_keys")

	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestJobHistoryRepository_Finish_StoresErrorText(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobHistoryRepository(db)
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.MatchedBy(func(args []any) bool {
		msg, ok := args[3].(*string)
		return ok && msg != nil && *msg == "timeout"
	})).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.Finish(context.Background(), 42, "failed", 0, errors.New("timeout"))

	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestJobHistoryRepository_Finish_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewJobHistoryRepository(db)
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.Finish(context.Background(), 7, "success", 3, nil)

	assert.True(t, types.HasCode(err, types.ErrCodeInternalUnexpected))
}
