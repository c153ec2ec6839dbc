package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contractdesk/internal/pricing"
	"contractdesk/internal/types"
)

type stubCatalog struct {
	features []types.FeatureCatalogEntry
	methods  pricing.MethodCatalog
	err      error
}

func (s stubCatalog) Features(context.Context) ([]types.FeatureCatalogEntry, error) {
	return s.features, s.err
}

func (s stubCatalog) Methods(context.Context) (pricing.MethodCatalog, error) {
	return s.methods, s.err
}

func newCatalogRouter(c CatalogReader) http.Handler {
	r := chi.NewRouter()
	NewCatalogHandler(c, nil).RegisterRoutes(r)
	return r
}

func TestCatalogHandler_ListFeatures(t *testing.T) {
	h := newCatalogRouter(stubCatalog{features: []types.FeatureCatalogEntry{{ID: "sso", Name: "Single sign-on", IsSpecialFeature: true}}})

	rec := doJSON(h, http.MethodGet, "/catalog/features", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"sso"`)
}

func TestCatalogHandler_ListMethods_Empty(t *testing.T) {
	rec := doJSON(newCatalogRouter(stubCatalog{}), http.MethodGet, "/catalog/notification-methods", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[]}`, rec.Body.String())
}

func TestCatalogHandler_Error(t *testing.T) {
	h := newCatalogRouter(stubCatalog{err: types.NewAppError(types.ErrCodeInternalDB, "db", errors.New("down"))})

	rec := doJSON(h, http.MethodGet, "/catalog/features", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
