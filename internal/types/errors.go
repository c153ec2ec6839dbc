package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All handlers MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationMissingField      ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidCurrency   ErrorCode = "validation_invalid_currency"
	ErrCodeValidationInvalidPrice      ErrorCode = "validation_invalid_price"
	ErrCodeValidationInvalidRange      ErrorCode = "validation_invalid_tier_range"
	ErrCodeValidationInvalidStep       ErrorCode = "validation_invalid_pricing_step"
	ErrCodeValidationInvalidPlanType   ErrorCode = "validation_invalid_plan_type"
	ErrCodeValidationInvalidCategory   ErrorCode = "validation_invalid_notification_category"
	ErrCodeValidationInvalidCursor     ErrorCode = "validation_invalid_cursor"
	ErrCodeValidationRowOutOfRange     ErrorCode = "validation_row_out_of_range"
	ErrCodeValidationDuplicateNotif    ErrorCode = "validation_duplicate_notification"
	ErrCodeValidationNoCombination     ErrorCode = "validation_no_available_combination"
	ErrCodeValidationDuplicateFeature  ErrorCode = "validation_duplicate_feature"
	ErrCodeValidationUnknownFeature    ErrorCode = "validation_unknown_feature"
	ErrCodeValidationUnknownMethod     ErrorCode = "validation_unknown_notification_method"
	ErrCodeValidationLastRow           ErrorCode = "validation_last_row_required"
	ErrCodeValidationIncompletePricing ErrorCode = "validation_incomplete_pricing"
	ErrCodeValidationInvalidJSON       ErrorCode = "validation_invalid_json"
	ErrCodeValidationFailed            ErrorCode = "validation_failed"
	ErrCodeValidationIdempotencyKey    ErrorCode = "validation_invalid_idempotency_key"

	// Auth (401)
	ErrCodeAuthOrgMissing ErrorCode = "auth_organization_missing"

	// Not Found (404)
	ErrCodeNotFoundDraft   ErrorCode = "not_found_plan_draft"
	ErrCodeNotFoundFeature ErrorCode = "not_found_feature"

	// Conflict (409)
	ErrCodeConflictConcurrent ErrorCode = "conflict_concurrent_modification"
	ErrCodeConflictPublished  ErrorCode = "conflict_draft_already_published"
	ErrCodeConflictInFlight   ErrorCode = "conflict_request_in_flight"

	// Too Many Requests (429)
	ErrCodeRateLimited ErrorCode = "rate_limited"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB          ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected  ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamStripe      ErrorCode = "upstream_stripe_unavailable"
	ErrCodeUpstreamQueue       ErrorCode = "upstream_queue_unavailable"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized error codes.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict
	case c == ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case s == string(ErrCodeUpstreamRateLimited):
		return http.StatusServiceUnavailable
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the standard application error type used throughout the service.
// Pricing rejections (duplicate notification pair, no available combination)
// are AppErrors with validation codes so they surface as 400 responses.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// Is reports whether target is an AppError with the same code. This lets
// callers compare against sentinel-style values with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError carrying structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// HasCode reports whether err is (or wraps) an AppError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}
