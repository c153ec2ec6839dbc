package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/klauspost/compress/zstd"

	"contractdesk/internal/core"
	"contractdesk/internal/types"
)

// ============================================================
// RateLimitRepository
// ============================================================

// RateLimitRepository implements core.RateLimitStore with fixed windows in
// the rate_limit_windows table. Each (key, window_start) row is a counter
// bumped by an atomic upsert, so concurrent API instances share one budget.
type RateLimitRepository struct {
	db  DBTX
	now func() time.Time
}

// NewRateLimitRepository creates a new RateLimitRepository.
func NewRateLimitRepository(db DBTX) *RateLimitRepository {
	return &RateLimitRepository{db: db, now: time.Now}
}

// IncrementAndCheck counts the request against the current window.
func (r *RateLimitRepository) IncrementAndCheck(ctx context.Context, key string, limit int, window time.Duration) (core.RateLimitResult, error) {
	start := r.now().UTC().Truncate(window)
	resetAt := start.Add(window)

	var count int
	err := r.db.QueryRow(ctx,
		`INSERT INTO rate_limit_windows (key, window_start, expires_at, request_count)
		 VALUES ($1, $2, $3, 1)
		 ON CONFLICT (key, window_start) DO UPDATE
		   SET request_count = rate_limit_windows.request_count + 1
		 RETURNING request_count`,
		key, start, resetAt,
	).Scan(&count)
	if err != nil {
		return core.RateLimitResult{}, types.NewAppError(types.ErrCodeInternalDB, "failed to update rate limit window", err)
	}

	return core.RateLimitResult{
		Allowed:   count <= limit,
		Remaining: max(limit-count, 0),
		ResetAt:   resetAt,
	}, nil
}

// PurgeExpired deletes windows that ended before the cutoff.
func (r *RateLimitRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM rate_limit_windows WHERE expires_at < $1`, before)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to purge rate limit windows", err)
	}
	return tag.RowsAffected(), nil
}

// ============================================================
// IdempotencyRepository
// ============================================================

// Shared zstd coders; EncodeAll and DecodeAll are safe for concurrent use.
var (
	bodyEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	bodyDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
)

// IdempotencyRepository implements core.IdempotencyStore on the
// idempotency_keys table. Stored response bodies are zstd-compressed; a full
// draft with many currencies compresses well.
type IdempotencyRepository struct {
	db  DBTX
	ttl time.Duration
	now func() time.Time
}

// NewIdempotencyRepository creates a repository whose keys expire after ttl.
func NewIdempotencyRepository(db DBTX, ttl time.Duration) *IdempotencyRepository {
	return &IdempotencyRepository{db: db, ttl: ttl, now: time.Now}
}

// Get returns the live record for key, or nil when none exists.
func (r *IdempotencyRepository) Get(ctx context.Context, key, orgID string) (*core.IdempotencyRecord, error) {
	rec := core.IdempotencyRecord{Key: key, OrganizationID: orgID}
	var (
		code       *int
		compressed []byte
	)
	err := r.db.QueryRow(ctx,
		`SELECT request_path, status, response_code, response_body, created_at
		 FROM idempotency_keys
		 WHERE organization_id = $1 AND key = $2 AND expires_at > $3`,
		orgID, key, r.now().UTC(),
	).Scan(&rec.RequestPath, &rec.Status, &code, &compressed, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read idempotency key", err)
	}

	if code != nil {
		rec.ResponseCode = *code
	}
	if len(compressed) > 0 {
		body, err := bodyDecoder.DecodeAll(compressed, nil)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
				fmt.Sprintf("failed to decompress stored response for key %s", key), err)
		}
		rec.ResponseBody = body
	}
	return &rec, nil
}

// Create claims key for a new request. A failed or expired record is
// reclaimed; a live one yields conflict_request_in_flight.
func (r *IdempotencyRepository) Create(ctx context.Context, key, orgID, path string) error {
	now := r.now().UTC()
	tag, err := r.db.Exec(ctx,
		`INSERT INTO idempotency_keys (organization_id, key, request_path, status, created_at, expires_at)
		 VALUES ($1, $2, $3, 'processing', $4, $5)
		 ON CONFLICT (organization_id, key) DO UPDATE
		   SET request_path = EXCLUDED.request_path,
		       status = 'processing',
		       response_code = NULL,
		       response_body = NULL,
		       created_at = EXCLUDED.created_at,
		       expires_at = EXCLUDED.expires_at
		   WHERE idempotency_keys.status = 'failed' OR idempotency_keys.expires_at < $4`,
		orgID, key, path, now, now.Add(r.ttl),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to claim idempotency key", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictInFlight,
			"a request with this Idempotency-Key is still being processed", nil)
	}
	return nil
}

// Complete stores the response of a finished request.
func (r *IdempotencyRepository) Complete(ctx context.Context, key, orgID string, status int, body []byte) error {
	_, err := r.db.Exec(ctx,
		`UPDATE idempotency_keys
		 SET status = 'completed', response_code = $3, response_body = $4
		 WHERE organization_id = $1 AND key = $2`,
		orgID, key, status, bodyEncoder.EncodeAll(body, nil),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to complete idempotency key", err)
	}
	return nil
}

// Fail marks the key retryable.
func (r *IdempotencyRepository) Fail(ctx context.Context, key, orgID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE idempotency_keys SET status = 'failed'
		 WHERE organization_id = $1 AND key = $2`,
		orgID, key,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark idempotency key failed", err)
	}
	return nil
}

// PurgeExpired deletes keys whose retention ended before the cutoff.
func (r *IdempotencyRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE expires_at < $1`, before)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to purge idempotency keys", err)
	}
	return tag.RowsAffected(), nil
}

var (
	_ core.RateLimitStore   = (*RateLimitRepository)(nil)
	_ core.IdempotencyStore = (*IdempotencyRepository)(nil)
)
