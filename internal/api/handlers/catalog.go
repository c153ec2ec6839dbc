package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"contractdesk/internal/core"
	"contractdesk/internal/pricing"
	"contractdesk/internal/types"
)

// CatalogReader lists the read-only catalog the plan builder picks from.
type CatalogReader interface {
	Features(ctx context.Context) ([]types.FeatureCatalogEntry, error)
	Methods(ctx context.Context) (pricing.MethodCatalog, error)
}

// CatalogHandler serves /v1/catalog.
type CatalogHandler struct {
	catalog CatalogReader
	logger  *slog.Logger
}

func NewCatalogHandler(c CatalogReader, l *slog.Logger) *CatalogHandler {
	if l == nil {
		l = slog.Default()
	}
	return &CatalogHandler{catalog: c, logger: l}
}

func (h *CatalogHandler) RegisterRoutes(r chi.Router) {
	r.Route("/catalog", func(r chi.Router) {
		r.Get("/features", h.ListFeatures)
		r.Get("/notification-methods", h.ListMethods)
	})
}

// ListFeatures handles GET /v1/catalog/features.
func (h *CatalogHandler) ListFeatures(w http.ResponseWriter, r *http.Request) {
	features, err := h.catalog.Features(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if features == nil {
		features = []types.FeatureCatalogEntry{}
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: features})
}

// ListMethods handles GET /v1/catalog/notification-methods.
func (h *CatalogHandler) ListMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := h.catalog.Methods(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if methods == nil {
		methods = pricing.MethodCatalog{}
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: methods})
}
