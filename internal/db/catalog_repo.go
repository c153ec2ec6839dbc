package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"contractdesk/internal/pricing"
	"contractdesk/internal/types"
)

// CatalogRepository reads the feature and notification-method catalog.
// Both tables are maintained by operators; the service never writes them.
type CatalogRepository struct {
	db DBTX
}

// NewCatalogRepository creates a new CatalogRepository.
func NewCatalogRepository(db DBTX) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// Feature returns one active catalog feature.
func (r *CatalogRepository) Feature(ctx context.Context, id string) (*types.FeatureCatalogEntry, error) {
	var f types.FeatureCatalogEntry
	err := r.db.QueryRow(ctx,
		`SELECT id, name, default_limit, trial_limit, is_special_feature
		 FROM feature_catalog
		 WHERE id = $1 AND active = TRUE`,
		id,
	).Scan(&f.ID, &f.Name, &f.DefaultLimit, &f.TrialLimit, &f.IsSpecialFeature)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeNotFoundFeature, "feature not found", nil,
				map[string]any{"feature_id": id})
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve catalog feature", err)
	}
	return &f, nil
}

// Features lists the active catalog features by name.
func (r *CatalogRepository) Features(ctx context.Context) ([]types.FeatureCatalogEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, default_limit, trial_limit, is_special_feature
		 FROM feature_catalog
		 WHERE active = TRUE
		 ORDER BY name`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list catalog features", err)
	}
	defer rows.Close()

	var out []types.FeatureCatalogEntry
	for rows.Next() {
		var f types.FeatureCatalogEntry
		if err := rows.Scan(&f.ID, &f.Name, &f.DefaultLimit, &f.TrialLimit, &f.IsSpecialFeature); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan catalog feature", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating catalog features", err)
	}
	return out, nil
}

// Methods lists the notification delivery methods in catalog order. The
// order drives which method/category pair a new notification row gets.
func (r *CatalogRepository) Methods(ctx context.Context) (pricing.MethodCatalog, error) {
	rows, err := r.db.Query(ctx,
		`SELECT method, default_base_credits, unit_price
		 FROM notification_methods
		 ORDER BY sort_order, method`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list notification methods", err)
	}
	defer rows.Close()

	var out pricing.MethodCatalog
	for rows.Next() {
		var m types.NotificationMethodEntry
		if err := rows.Scan(&m.Method, &m.DefaultBaseCredits, &m.UnitPrice); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan notification method", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating notification methods", err)
	}
	return out, nil
}
