package core

import (
	"context"
	"time"
)

// MetricsCollector records API request telemetry.
type MetricsCollector interface {
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// RateLimitStore is the backing counter store for per-organization rate
// limiting. Production uses a PostgreSQL fixed-window table.
type RateLimitStore interface {
	// IncrementAndCheck atomically increments the counter for key and reports
	// whether the request is within limit for the current window.
	IncrementAndCheck(ctx context.Context, key string, limit int, window time.Duration) (RateLimitResult, error)
}

// RateLimitResult contains the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// IdempotencyStatus is the lifecycle state of an idempotency key.
type IdempotencyStatus string

const (
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	IdempotencyStatusCompleted  IdempotencyStatus = "completed"
	IdempotencyStatusFailed     IdempotencyStatus = "failed"
)

// IdempotencyRecord is the stored state of one idempotency key.
type IdempotencyRecord struct {
	Key            string
	OrganizationID string
	RequestPath    string
	Status         IdempotencyStatus
	ResponseCode   int
	ResponseBody   []byte
	CreatedAt      time.Time
}

// IdempotencyStore persists idempotency keys scoped to an organization.
type IdempotencyStore interface {
	// Get returns nil, nil when the key is unknown or expired.
	Get(ctx context.Context, key, orgID string) (*IdempotencyRecord, error)
	// Create claims the key in the processing state. It fails if another
	// request holds the key.
	Create(ctx context.Context, key, orgID, path string) error
	Complete(ctx context.Context, key, orgID string, status int, body []byte) error
	Fail(ctx context.Context, key, orgID string) error
}
