package core

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contractdesk/internal/types"
)

type decodeTarget struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "valid", body: `{"name":"Growth","value":12.5}`},
		{name: "empty body", body: ``, wantErr: "must not be empty"},
		{name: "syntax error", body: `{"name":`, wantErr: "malformed JSON"},
		{name: "unknown field", body: `{"nme":"x"}`, wantErr: `unknown field in request body: "nme"`},
		{name: "wrong type", body: `{"value":"ten"}`, wantErr: "invalid value for field"},
		{name: "trailing value", body: `{"name":"a"}{"name":"b"}`, wantErr: "single JSON object"},
		{name: "too large", body: `{"name":"` + strings.Repeat("x", maxRequestBodySize) + `"}`, wantErr: "must not exceed 1MB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst decodeTarget

			err := DecodeJSON(httptest.NewRecorder(), req, &dst)

			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, decodeTarget{Name: "Growth", Value: 12.5}, dst)
				return
			}
			require.Error(t, err)
			assert.True(t, types.HasCode(err, types.ErrCodeValidationInvalidJSON))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestError_AppErrorKeepsCodeAndDetails(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(types.WithRequestID(req.Context(), "req_1"))
	rec := httptest.NewRecorder()

	Error(rec, req, types.NewAppErrorWithDetails(types.ErrCodeConflictConcurrent, "draft changed", nil,
		map[string]any{"current_version": 4}))

	assert.Equal(t, http.StatusConflict, rec.Code)
	detail := decodeError(t, rec)
	assert.Equal(t, string(types.ErrCodeConflictConcurrent), detail.Code)
	assert.Equal(t, "draft changed", detail.Message)
	assert.Equal(t, float64(4), detail.Details["current_version"])
	assert.Equal(t, "req_1", detail.RequestID)
}

func TestError_GenericErrorIsOpaque(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	Error(rec, req, errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestJSON_MarshalFailure(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	JSON(rec, req, http.StatusOK, map[string]any{"bad": make(chan int)})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
