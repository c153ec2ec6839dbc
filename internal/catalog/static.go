// Package catalog provides the built-in feature and notification-method
// catalog used when the service runs without a database catalog.
package catalog

import (
	"context"
	"slices"
	"strings"

	"contractdesk/internal/pricing"
	"contractdesk/internal/types"
)

// Static is an in-memory catalog. It satisfies the same contract as
// db.CatalogRepository.
type Static struct {
	features []types.FeatureCatalogEntry
	methods  pricing.MethodCatalog
}

// NewStatic creates a catalog over the given entries. Features are listed by
// name; methods keep the given order.
func NewStatic(features []types.FeatureCatalogEntry, methods pricing.MethodCatalog) *Static {
	sorted := slices.Clone(features)
	slices.SortStableFunc(sorted, func(a, b types.FeatureCatalogEntry) int {
		return strings.Compare(a.Name, b.Name)
	})
	return &Static{features: sorted, methods: slices.Clone(methods)}
}

// Default returns the catalog shipped for local development.
func Default() *Static {
	return NewStatic(
		[]types.FeatureCatalogEntry{
			{ID: "contracts", Name: "Contract Storage", DefaultLimit: 500, TrialLimit: 25},
			{ID: "templates", Name: "Templates", DefaultLimit: 50, TrialLimit: 5},
			{ID: "e_signature", Name: "E-Signature", DefaultLimit: 200, TrialLimit: 10, IsSpecialFeature: true},
			{ID: "sso", Name: "Single Sign-On", DefaultLimit: 1, TrialLimit: 0, IsSpecialFeature: true},
			{ID: "audit_trail", Name: "Audit Trail", DefaultLimit: 1, TrialLimit: 1},
		},
		pricing.MethodCatalog{
			{Method: "Email", DefaultBaseCredits: 1, UnitPrice: 0.01},
			{Method: "SMS", DefaultBaseCredits: 5, UnitPrice: 0.08},
			{Method: "WhatsApp", DefaultBaseCredits: 3, UnitPrice: 0.05},
		},
	)
}

// Feature returns one catalog feature or not_found_feature.
func (c *Static) Feature(_ context.Context, id string) (*types.FeatureCatalogEntry, error) {
	for _, f := range c.features {
		if f.ID == id {
			return &f, nil
		}
	}
	return nil, types.NewAppErrorWithDetails(types.ErrCodeNotFoundFeature, "feature not found", nil,
		map[string]any{"feature_id": id})
}

func (c *Static) Features(context.Context) ([]types.FeatureCatalogEntry, error) {
	return slices.Clone(c.features), nil
}

func (c *Static) Methods(context.Context) (pricing.MethodCatalog, error) {
	return slices.Clone(c.methods), nil
}
