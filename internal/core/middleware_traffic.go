package core

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"contractdesk/internal/types"
)

// RateLimit enforces the per-organization request budget. It runs after
// TenantMiddleware and fails open when the store errors, so a counter outage
// never blocks plan editing.
func (s *Server) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := s.rateLimitPerWindow()
		orgID, ok := types.GetOrgID(r.Context())
		if s.RateLimitStore == nil || limit <= 0 || !ok {
			next.ServeHTTP(w, r)
			return
		}

		result, err := s.RateLimitStore.IncrementAndCheck(r.Context(), "org:"+orgID, limit, defaultRateLimitWindow)
		if err != nil {
			s.Logger.ErrorContext(r.Context(), "rate limit store error",
				slog.String("org_id", orgID),
				slog.String("error", err.Error()),
			)
			next.ServeHTTP(w, r)
			return
		}

		setRateLimitHeaders(w, limit, result)

		if !result.Allowed {
			s.Logger.WarnContext(r.Context(), "rate limit exceeded",
				slog.String("org_id", orgID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			retryAfter := max(int(time.Until(result.ResetAt).Seconds()), 1)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			Error(w, r, types.NewAppError(types.ErrCodeRateLimited,
				"rate limit exceeded, retry after the reset time", nil))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func setRateLimitHeaders(w http.ResponseWriter, limit int, result RateLimitResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

// bufferedResponse holds a response in memory until Flush so the idempotency
// middleware can persist it before the client sees it.
type bufferedResponse struct {
	underlying http.ResponseWriter
	statusCode int
	body       bytes.Buffer
	headers    http.Header
	written    bool
}

func newBufferedResponse(w http.ResponseWriter) *bufferedResponse {
	return &bufferedResponse{
		underlying: w,
		statusCode: http.StatusOK,
		headers:    make(http.Header),
	}
}

func (b *bufferedResponse) Header() http.Header { return b.headers }

func (b *bufferedResponse) WriteHeader(code int) {
	if !b.written {
		b.statusCode = code
		b.written = true
	}
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	b.written = true
	return b.body.Write(p)
}

// Flush copies the buffered headers, status and body to the client.
func (b *bufferedResponse) Flush() {
	dst := b.underlying.Header()
	for key, values := range b.headers {
		for _, v := range values {
			dst.Add(key, v)
		}
	}
	b.underlying.WriteHeader(b.statusCode)
	_, _ = b.underlying.Write(b.body.Bytes())
}

const maxIdempotencyKeyLength = 255

// IdempotencyMiddleware makes POST requests carrying an Idempotency-Key
// header execute at most once per organization. Adding a feature, tier or
// notification row is not naturally idempotent, so a client retrying after a
// timeout would otherwise append a second row.
//
//   - completed key: the stored response is replayed.
//   - key in flight: 409 conflict_request_in_flight.
//   - failed key (5xx): the request runs again.
//
// Store errors fail open.
func (s *Server) IdempotencyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("Idempotency-Key")
		orgID, ok := types.GetOrgID(r.Context())
		if s.IdempotencyStore == nil || r.Method != http.MethodPost || key == "" || !ok {
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > maxIdempotencyKeyLength {
			Error(w, r, types.NewAppError(types.ErrCodeValidationIdempotencyKey,
				"Idempotency-Key must be at most 255 characters", nil))
			return
		}

		ctx := r.Context()
		logger := s.Logger.With(slog.String("idempotency_key", key), slog.String("org_id", orgID))

		record, err := s.IdempotencyStore.Get(ctx, key, orgID)
		if err != nil {
			logger.ErrorContext(ctx, "idempotency lookup failed", slog.String("error", err.Error()))
			next.ServeHTTP(w, r)
			return
		}

		if record != nil {
			switch record.Status {
			case IdempotencyStatusCompleted:
				if record.RequestPath != r.URL.Path {
					Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationIdempotencyKey,
						"Idempotency-Key was already used for a different request", nil,
						map[string]any{"original_path": record.RequestPath}))
					return
				}
				logger.InfoContext(ctx, "replaying stored response", slog.Int("status", record.ResponseCode))
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(record.ResponseCode)
				_, _ = w.Write(record.ResponseBody)
				return
			case IdempotencyStatusProcessing:
				Error(w, r, types.NewAppError(types.ErrCodeConflictInFlight,
					"a request with this Idempotency-Key is still being processed", nil))
				return
			case IdempotencyStatusFailed:
				logger.InfoContext(ctx, "retrying previously failed request")
			}
		}

		if err := s.IdempotencyStore.Create(ctx, key, orgID, r.URL.Path); err != nil {
			if types.HasCode(err, types.ErrCodeConflictInFlight) {
				Error(w, r, err)
				return
			}
			logger.ErrorContext(ctx, "idempotency claim failed", slog.String("error", err.Error()))
			next.ServeHTTP(w, r)
			return
		}

		buf := newBufferedResponse(w)
		next.ServeHTTP(buf, r)

		// Client errors are stored too: the same request must see the same
		// validation failure on retry.
		if buf.statusCode < http.StatusInternalServerError {
			err = s.IdempotencyStore.Complete(ctx, key, orgID, buf.statusCode, buf.body.Bytes())
		} else {
			err = s.IdempotencyStore.Fail(ctx, key, orgID)
		}
		if err != nil {
			logger.ErrorContext(ctx, "idempotency finalize failed", slog.String("error", err.Error()))
		}

		buf.Flush()
	})
}
