package types

import "context"

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	orgIDKey     contextKey = "organization_id"
)

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithOrgID stores the tenant organization ID in the context. The tenant is
// resolved by the HTTP chassis before any plan handler runs.
func WithOrgID(ctx context.Context, orgID string) context.Context {
	return context.WithValue(ctx, orgIDKey, orgID)
}

// GetOrgID retrieves the tenant organization ID from the context.
func GetOrgID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(orgIDKey).(string)
	return id, ok && id != ""
}
