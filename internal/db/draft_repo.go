package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"contractdesk/internal/pricing"
	"contractdesk/internal/types"
)

// DraftRepository provides data access for the plan_drafts table. It is the
// FormWriter behind the plan-builder form bridge: every field write is
// guarded by the draft's version column.
//
// Row collections are JSONB columns. They are decoded through the pricing
// normalizer so that drafts saved before multi-currency pricing have their
// single legacy price folded into the prices map on load.
type DraftRepository struct {
	db DBTX
}

// NewDraftRepository creates a new DraftRepository backed by the given
// database connection (pool or transaction).
func NewDraftRepository(db DBTX) *DraftRepository {
	return &DraftRepository{db: db}
}

const draftColumns = `d.id, d.organization_id, d.name, d.plan_type,
	d.supported_currencies, d.default_currency,
	d.features, d.notifications, d.tiers, d.selected_currencies,
	d.status, d.dirty, d.version,
	d.created_at, d.updated_at, d.published_at`

// scanDraft scans a plan_drafts row in draftColumns order.
func scanDraft(row pgx.Row) (*types.PlanDraft, error) {
	var (
		d             types.PlanDraft
		supported     []string
		defaultCode   string
		features      []byte
		notifications []byte
		tiers         []byte
	)
	err := row.Scan(
		&d.ID,
		&d.OrganizationID,
		&d.Name,
		&d.PlanType,
		&supported,
		&defaultCode,
		&features,
		&notifications,
		&tiers,
		&d.Selected,
		&d.Status,
		&d.Dirty,
		&d.Version,
		&d.CreatedAt,
		&d.UpdatedAt,
		&d.PublishedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Currencies = types.CurrencySet{
		Supported: make([]types.CurrencyCode, len(supported)),
		Default:   types.CurrencyCode(defaultCode),
	}
	for i, c := range supported {
		d.Currencies.Supported[i] = types.CurrencyCode(c)
	}
	def := d.Currencies.EffectiveDefault()

	if d.Features, err = pricing.DecodeFeatures(features, def); err != nil {
		return nil, fmt.Errorf("decoding features: %w", err)
	}
	if d.Notifications, err = pricing.DecodeNotifications(notifications, def); err != nil {
		return nil, fmt.Errorf("decoding notifications: %w", err)
	}
	if d.Tiers, err = pricing.DecodeTiers(tiers, def); err != nil {
		return nil, fmt.Errorf("decoding tiers: %w", err)
	}
	return &d, nil
}

func currencyStrings(codes []types.CurrencyCode) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = string(c)
	}
	return out
}

// Create inserts a new draft. The caller must pre-populate the ID.
func (r *DraftRepository) Create(ctx context.Context, d *types.PlanDraft) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO plan_drafts (
			id, organization_id, name, plan_type,
			supported_currencies, default_currency,
			features, notifications, tiers, selected_currencies,
			status, dirty, version, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14, $15
		)`,
		d.ID,
		d.OrganizationID,
		d.Name,
		d.PlanType,
		currencyStrings(d.Currencies.Supported),
		string(d.Currencies.Default),
		d.Features,
		d.Notifications,
		d.Tiers,
		d.Selected,
		d.Status,
		d.Dirty,
		d.Version,
		d.CreatedAt,
		d.UpdatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create plan draft", err)
	}
	return nil
}

// Get retrieves a draft scoped to the given organization. Soft-deleted
// drafts are not returned.
func (r *DraftRepository) Get(ctx context.Context, orgID, id string) (*types.PlanDraft, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+draftColumns+`
		 FROM plan_drafts d
		 WHERE d.id = $1 AND d.organization_id = $2 AND d.deleted_at IS NULL`,
		id, orgID,
	)
	d, err := scanDraft(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundDraft, "plan draft not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve plan draft", err)
	}
	return d, nil
}

// List returns drafts for an organization, newest first, using the
// limit+1 strategy to determine HasMore.
func (r *DraftRepository) List(ctx context.Context, orgID string, params types.ListDraftsParams) ([]*types.PlanDraft, types.PageInfo, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	conditions := []string{"d.organization_id = $1", "d.deleted_at IS NULL"}
	args := []any{orgID}

	if params.Cursor != "" {
		cursorTime, err := time.Parse(time.RFC3339Nano, params.Cursor)
		if err != nil {
			return nil, types.PageInfo{}, types.NewAppError(
				types.ErrCodeValidationInvalidCursor,
				"invalid cursor format; expected RFC3339 timestamp",
				err,
			)
		}
		args = append(args, cursorTime)
		conditions = append(conditions, fmt.Sprintf("d.created_at < $%d", len(args)))
	}
	args = append(args, limit+1)

	query := fmt.Sprintf(
		`SELECT %s
		 FROM plan_drafts d
		 WHERE %s
		 ORDER BY d.created_at DESC
		 LIMIT $%d`,
		draftColumns,
		strings.Join(conditions, " AND "),
		len(args),
	)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "failed to list plan drafts", err)
	}
	defer rows.Close()

	var results []*types.PlanDraft
	for rows.Next() {
		d, scanErr := scanDraft(rows)
		if scanErr != nil {
			return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "failed to scan plan draft row", scanErr)
		}
		results = append(results, d)
	}
	if err := rows.Err(); err != nil {
		return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "error iterating plan draft rows", err)
	}

	pageInfo := types.PageInfo{}
	if len(results) > limit {
		pageInfo.HasMore = true
		pageInfo.NextCursor = results[limit-1].CreatedAt.Format(time.RFC3339Nano)
		results = results[:limit]
	}
	return results, pageInfo, nil
}

// Delete soft-deletes a draft.
func (r *DraftRepository) Delete(ctx context.Context, orgID, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE plan_drafts SET deleted_at = NOW()
		 WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL`,
		id, orgID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete plan draft", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundDraft, "plan draft not found", nil)
	}
	return nil
}

// fieldAssignments maps a form field to its SET clauses and values.
func fieldAssignments(d *types.PlanDraft, field types.FormField) ([]string, []any, error) {
	switch field {
	case types.FieldName:
		return []string{"name"}, []any{d.Name}, nil
	case types.FieldPlanType:
		return []string{"plan_type"}, []any{d.PlanType}, nil
	case types.FieldFeatures:
		return []string{"features"}, []any{d.Features}, nil
	case types.FieldNotifications:
		return []string{"notifications"}, []any{d.Notifications}, nil
	case types.FieldTiers:
		return []string{"tiers"}, []any{d.Tiers}, nil
	case types.FieldCurrencies:
		return []string{"supported_currencies", "default_currency"},
			[]any{currencyStrings(d.Currencies.Supported), string(d.Currencies.Default)}, nil
	case types.FieldSelected:
		return []string{"selected_currencies"}, []any{d.Selected}, nil
	default:
		return nil, nil, fmt.Errorf("unknown form field %q", field)
	}
}

// WriteFields persists the listed fields of d together with its dirty flag
// and updated_at. The write only applies while the stored version equals
// d.Version and the draft is still being edited; the stored version is
// incremented.
func (r *DraftRepository) WriteFields(ctx context.Context, d *types.PlanDraft, fields []types.FormField) error {
	var (
		sets []string
		args []any
	)
	written := make(map[types.FormField]bool, len(fields))
	for _, field := range fields {
		if written[field] {
			continue
		}
		written[field] = true
		cols, vals, err := fieldAssignments(d, field)
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalUnexpected, "cannot write plan draft field", err)
		}
		for i, col := range cols {
			args = append(args, vals[i])
			sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
		}
	}

	args = append(args, d.Dirty)
	sets = append(sets, fmt.Sprintf("dirty = $%d", len(args)))
	args = append(args, d.UpdatedAt)
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))
	sets = append(sets, "version = version + 1")

	args = append(args, d.ID, d.OrganizationID, d.Version)
	n := len(args)
	query := fmt.Sprintf(
		`UPDATE plan_drafts SET %s
		 WHERE id = $%d AND organization_id = $%d AND version = $%d
		   AND status = 'editing' AND deleted_at IS NULL`,
		strings.Join(sets, ", "), n-2, n-1, n,
	)

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to write plan draft", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missedWrite(ctx, d)
	}
	return nil
}

// MarkPublished moves an editing draft to published at the given version.
func (r *DraftRepository) MarkPublished(ctx context.Context, d *types.PlanDraft, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE plan_drafts
		 SET status = 'published', dirty = FALSE, published_at = $1, updated_at = $1,
		     version = version + 1
		 WHERE id = $2 AND organization_id = $3 AND version = $4
		   AND status = 'editing' AND deleted_at IS NULL`,
		at, d.ID, d.OrganizationID, d.Version,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to publish plan draft", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missedWrite(ctx, d)
	}
	return nil
}

// RecordSync stores the billing product a published draft was synced to.
func (r *DraftRepository) RecordSync(ctx context.Context, orgID, id, productID string, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE plan_drafts SET stripe_product_id = $1, synced_at = $2
		 WHERE id = $3 AND organization_id = $4 AND deleted_at IS NULL`,
		productID, at, id, orgID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record plan sync", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundDraft, "plan draft not found", nil)
	}
	return nil
}

// PurgeDeleted hard-deletes up to limit drafts soft-deleted before the
// cutoff, oldest first.
func (r *DraftRepository) PurgeDeleted(ctx context.Context, before time.Time, limit int) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM plan_drafts WHERE id IN (
		   SELECT id FROM plan_drafts
		   WHERE deleted_at IS NOT NULL AND deleted_at < $1
		   ORDER BY deleted_at
		   LIMIT $2)`,
		before, limit,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to purge deleted plan drafts", err)
	}
	return tag.RowsAffected(), nil
}

// missedWrite explains a guarded update that matched no row: the draft is
// gone, already published, or was changed by another request.
func (r *DraftRepository) missedWrite(ctx context.Context, d *types.PlanDraft) error {
	var (
		status  types.DraftStatus
		version int
	)
	err := r.db.QueryRow(ctx,
		`SELECT status, version FROM plan_drafts
		 WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL`,
		d.ID, d.OrganizationID,
	).Scan(&status, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.NewAppError(types.ErrCodeNotFoundDraft, "plan draft not found", nil)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to check plan draft version", err)
	}
	if status == types.DraftStatusPublished {
		return types.NewAppError(types.ErrCodeConflictPublished, "plan draft has already been published", nil)
	}
	return types.NewAppErrorWithDetails(types.ErrCodeConflictConcurrent,
		"plan draft was modified by another request", nil,
		map[string]any{"expected_version": d.Version, "current_version": version})
}
