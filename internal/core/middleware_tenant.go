package core

import (
	"net/http"
	"regexp"

	"contractdesk/internal/types"
)

// OrganizationHeader carries the tenant of a request. Authentication happens
// upstream at the gateway, which sets this header for verified callers.
const OrganizationHeader = "X-Organization-Id"

var orgIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// TenantMiddleware resolves the organization of the request into the
// context. Requests without a well-formed organization are rejected with 401.
func TenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orgID := r.Header.Get(OrganizationHeader)
		if !orgIDPattern.MatchString(orgID) {
			Error(w, r, types.NewAppError(types.ErrCodeAuthOrgMissing,
				"a valid "+OrganizationHeader+" header is required", nil))
			return
		}
		next.ServeHTTP(w, r.WithContext(types.WithOrgID(r.Context(), orgID)))
	})
}
