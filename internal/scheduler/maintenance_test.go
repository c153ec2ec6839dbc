package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDraftPurger struct{ mock.Mock }

func (m *mockDraftPurger) PurgeDeleted(ctx context.Context, before time.Time, limit int) (int64, error) {
	args := m.Called(ctx, before, limit)
	return args.Get(0).(int64), args.Error(1)
}

type mockExpiryPurger struct{ mock.Mock }

func (m *mockExpiryPurger) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

var testNow = time.Date(2026, 2, 6, 3, 0, 0, 0, time.UTC)

func newTestCleanup() (*CleanupService, *mockDraftPurger, *mockExpiryPurger, *mockExpiryPurger) {
	drafts := new(mockDraftPurger)
	keys := new(mockExpiryPurger)
	windows := new(mockExpiryPurger)
	svc := NewCleanupService(drafts, keys, windows, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return svc, drafts, keys, windows
}

func TestPurgeDeletedDrafts_StopsOnShortBatch(t *testing.T) {
	svc, drafts, _, _ := newTestCleanup()
	cutoff := testNow.Add(-DeletedDraftRetention)
	drafts.On("PurgeDeleted", mock.Anything, cutoff, purgeBatchLimit).Return(int64(purgeBatchLimit), nil).Once()
	drafts.On("PurgeDeleted", mock.Anything, cutoff, purgeBatchLimit).Return(int64(12), nil).Once()

	n, err := svc.PurgeDeletedDrafts(context.Background(), testNow, DeletedDraftRetention)

	require.NoError(t, err)
	assert.Equal(t, purgeBatchLimit+12, n)
	drafts.AssertNumberOfCalls(t, "PurgeDeleted", 2)
}

func TestPurgeDeletedDrafts_BatchBudget(t *testing.T) {
	svc, drafts, _, _ := newTestCleanup()
	drafts.On("PurgeDeleted", mock.Anything, mock.Anything, purgeBatchLimit).Return(int64(purgeBatchLimit), nil)

	n, err := svc.PurgeDeletedDrafts(context.Background(), testNow, DeletedDraftRetention)

	require.NoError(t, err)
	assert.Equal(t, purgeBatchLimit*maxPurgeBatches, n)
	drafts.AssertNumberOfCalls(t, "PurgeDeleted", maxPurgeBatches)
}

func TestPurgeDeletedDrafts_ReportsPartialProgress(t *testing.T) {
	svc, drafts, _, _ := newTestCleanup()
	drafts.On("PurgeDeleted", mock.Anything, mock.Anything, mock.Anything).Return(int64(purgeBatchLimit), nil).Once()
	drafts.On("PurgeDeleted", mock.Anything, mock.Anything, mock.Anything).Return(int64(0), errors.New("timeout")).Once()

	n, err := svc.PurgeDeletedDrafts(context.Background(), testNow, DeletedDraftRetention)

	require.Error(t, err)
	assert.Equal(t, purgeBatchLimit, n)
}

func TestPurgeExpired(t *testing.T) {
	svc, _, keys, windows := newTestCleanup()
	keys.On("PurgeExpired", mock.Anything, testNow).Return(int64(9), nil)
	windows.On("PurgeExpired", mock.Anything, testNow).Return(int64(0), errors.New("db down"))

	n, err := svc.PurgeExpiredIdempotencyKeys(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 9, n)

	_, err = svc.PurgeRateLimitWindows(context.Background(), testNow)
	assert.ErrorContains(t, err, "rate limit windows")
}
