package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DeletedDraftRetention is how long a soft-deleted draft stays recoverable
// before it is purged.
const DeletedDraftRetention = 30 * 24 * time.Hour

// purgeBatchLimit bounds the drafts removed per batch.
const purgeBatchLimit = 500

// maxPurgeBatches bounds one run so it finishes inside the Lambda timeout.
// Leftovers are picked up by the next run.
const maxPurgeBatches = 20

// DraftPurger hard-deletes soft-deleted drafts.
type DraftPurger interface {
	PurgeDeleted(ctx context.Context, before time.Time, limit int) (int64, error)
}

// ExpiryPurger deletes rows whose expiry is before a cutoff.
type ExpiryPurger interface {
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// CleanupService removes data that no longer serves a request.
type CleanupService struct {
	drafts      DraftPurger
	idempotency ExpiryPurger
	rateLimits  ExpiryPurger
	logger      *slog.Logger
}

func NewCleanupService(drafts DraftPurger, idempotency, rateLimits ExpiryPurger, logger *slog.Logger) *CleanupService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupService{
		drafts:      drafts,
		idempotency: idempotency,
		rateLimits:  rateLimits,
		logger:      logger,
	}
}

// PurgeDeletedDrafts removes drafts deleted more than retention before now,
// in batches, until a batch comes back short or the batch budget is spent.
func (s *CleanupService) PurgeDeletedDrafts(ctx context.Context, now time.Time, retention time.Duration) (int, error) {
	cutoff := now.Add(-retention)
	total := 0
	for range maxPurgeBatches {
		n, err := s.drafts.PurgeDeleted(ctx, cutoff, purgeBatchLimit)
		if err != nil {
			return total, fmt.Errorf("purging deleted drafts: %w", err)
		}
		total += int(n)
		if n < purgeBatchLimit {
			return total, nil
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
	s.logger.WarnContext(ctx, "deleted draft purge hit its batch budget",
		"purged", total,
		"cutoff", cutoff.Format(time.RFC3339),
	)
	return total, nil
}

// PurgeExpiredIdempotencyKeys deletes keys past their retention.
func (s *CleanupService) PurgeExpiredIdempotencyKeys(ctx context.Context, now time.Time) (int, error) {
	n, err := s.idempotency.PurgeExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("purging idempotency keys: %w", err)
	}
	return int(n), nil
}

// PurgeRateLimitWindows deletes closed rate limit windows.
func (s *CleanupService) PurgeRateLimitWindows(ctx context.Context, now time.Time) (int, error) {
	n, err := s.rateLimits.PurgeExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("purging rate limit windows: %w", err)
	}
	return int(n), nil
}
