package core

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contractdesk/internal/types"
)

func TestRateLimit_DeniesAfterLimit(t *testing.T) {
	store := newMockRateLimitStore()
	ts := newTestServer(t, func(s *Server) {
		s.RateLimitStore = store
		s.Config.Server.RateLimitPerMinute = 2
	})

	for i := 0; i < 2; i++ {
		rec := ts.do(http.MethodGet, "/v1/whoami", "org_1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := ts.do(http.MethodGet, "/v1/whoami", "org_1", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, string(types.ErrCodeRateLimited), decodeError(t, rec).Code)

	// Budgets are per organization.
	rec = ts.do(http.MethodGet, "/v1/whoami", "org_2", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, store.keys, "org:org_2")
}

func TestRateLimit_FailsOpenOnStoreError(t *testing.T) {
	store := newMockRateLimitStore()
	store.err = errors.New("connection reset")
	ts := newTestServer(t, func(s *Server) { s.RateLimitStore = store })

	rec := ts.do(http.MethodGet, "/v1/whoami", "org_1", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimit_DisabledWhenZero(t *testing.T) {
	store := newMockRateLimitStore()
	ts := newTestServer(t, func(s *Server) {
		s.RateLimitStore = store
		s.Config.Server.RateLimitPerMinute = 0
	})

	ts.do(http.MethodGet, "/v1/whoami", "org_1", nil)

	assert.Empty(t, store.keys)
}

func TestIdempotency_ReplaysCompletedResponse(t *testing.T) {
	store := newMemoryIdempotencyStore()
	ts := newTestServer(t, func(s *Server) { s.IdempotencyStore = store })
	hdr := map[string]string{"Idempotency-Key": "add-tier-1"}

	first := ts.do(http.MethodPost, "/v1/rows", "org_1", hdr)
	second := ts.do(http.MethodPost, "/v1/rows", "org_1", hdr)

	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, int32(1), ts.rowsCreated.Load())

	// Same key from another organization is a different request.
	third := ts.do(http.MethodPost, "/v1/rows", "org_2", hdr)
	assert.Equal(t, http.StatusCreated, third.Code)
	assert.Equal(t, int32(2), ts.rowsCreated.Load())
}

func TestIdempotency_WithoutKeyRunsEveryTime(t *testing.T) {
	ts := newTestServer(t, func(s *Server) { s.IdempotencyStore = newMemoryIdempotencyStore() })

	ts.do(http.MethodPost, "/v1/rows", "org_1", nil)
	ts.do(http.MethodPost, "/v1/rows", "org_1", nil)

	assert.Equal(t, int32(2), ts.rowsCreated.Load())
}

func TestIdempotency_InFlightConflict(t *testing.T) {
	store := newMemoryIdempotencyStore()
	store.records["org_1/k1"] = &IdempotencyRecord{Key: "k1", RequestPath: "/v1/rows", Status: IdempotencyStatusProcessing}
	ts := newTestServer(t, func(s *Server) { s.IdempotencyStore = store })

	rec := ts.do(http.MethodPost, "/v1/rows", "org_1", map[string]string{"Idempotency-Key": "k1"})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(types.ErrCodeConflictInFlight), decodeError(t, rec).Code)
	assert.Equal(t, int32(0), ts.rowsCreated.Load())
}

func TestIdempotency_ServerErrorIsRetryable(t *testing.T) {
	store := newMemoryIdempotencyStore()
	ts := newTestServer(t, func(s *Server) { s.IdempotencyStore = store })
	hdr := map[string]string{"Idempotency-Key": "k2"}

	rec := ts.do(http.MethodPost, "/v1/broken", "org_1", hdr)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1, store.fails)
	assert.Equal(t, IdempotencyStatusFailed, store.records["org_1/k2"].Status)

	rec = ts.do(http.MethodPost, "/v1/broken", "org_1", hdr)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 2, store.fails)
}

func TestIdempotency_KeyReusedOnDifferentPath(t *testing.T) {
	store := newMemoryIdempotencyStore()
	ts := newTestServer(t, func(s *Server) { s.IdempotencyStore = store })
	hdr := map[string]string{"Idempotency-Key": "k3"}

	ts.do(http.MethodPost, "/v1/rows", "org_1", hdr)
	rec := ts.do(http.MethodPost, "/v1/broken", "org_1", hdr)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationIdempotencyKey), decodeError(t, rec).Code)
}

func TestIdempotency_StoreErrorFailsOpen(t *testing.T) {
	store := newMemoryIdempotencyStore()
	store.getErr = errors.New("timeout")
	ts := newTestServer(t, func(s *Server) { s.IdempotencyStore = store })

	rec := ts.do(http.MethodPost, "/v1/rows", "org_1", map[string]string{"Idempotency-Key": "k4"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 0, store.completes)
}
