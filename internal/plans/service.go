// Package plans hosts plan-builder sessions. A session is a persisted plan
// draft; every operation loads it, applies one pricing mutation and writes
// the changed fields back through the FormBridge.
package plans

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"contractdesk/internal/pricing"
	"contractdesk/internal/types"
)

// newID generates draft and event identifiers. Tests may replace it.
var newID = uuid.NewString

// DraftStore provides data access for plan drafts.
type DraftStore interface {
	FormWriter
	Create(ctx context.Context, draft *types.PlanDraft) error
	Get(ctx context.Context, orgID, id string) (*types.PlanDraft, error)
	List(ctx context.Context, orgID string, params types.ListDraftsParams) ([]*types.PlanDraft, types.PageInfo, error)
	Delete(ctx context.Context, orgID, id string) error
	MarkPublished(ctx context.Context, draft *types.PlanDraft, at time.Time) error
}

// Catalog provides the read-only feature and notification-method catalog.
type Catalog interface {
	Feature(ctx context.Context, id string) (*types.FeatureCatalogEntry, error)
	Features(ctx context.Context) ([]types.FeatureCatalogEntry, error)
	Methods(ctx context.Context) (pricing.MethodCatalog, error)
}

// EventPublisher announces draft lifecycle changes.
type EventPublisher interface {
	PublishPlanEvent(ctx context.Context, event types.PlanEvent) error
}

// MutationMetrics records the outcome of draft mutations.
type MutationMetrics interface {
	RecordMutation(ctx context.Context, operation string)
	RecordRejection(ctx context.Context, operation string, code types.ErrorCode)
}

// Result is a draft together with the issues that currently block publishing.
type Result struct {
	Draft  *types.PlanDraft `json:"draft"`
	Issues []pricing.Issue  `json:"issues"`
}

// CreateDraftInput holds the fields needed to start a plan-builder session.
type CreateDraftInput struct {
	Name       string
	PlanType   types.PlanType
	Currencies types.CurrencySet
}

// DraftInfo carries optional changes to a draft's descriptive fields.
type DraftInfo struct {
	Name     *string
	PlanType *types.PlanType
}

// Service implements the plan-builder operations.
type Service struct {
	store     DraftStore
	bridge    *FormBridge
	catalog   Catalog
	publisher EventPublisher
	metrics   MutationMetrics
	logger    *slog.Logger
	clock     types.Clock
}

// NewService creates a Service. The FormBridge is built over store.
func NewService(
	store DraftStore,
	catalog Catalog,
	publisher EventPublisher,
	metrics MutationMetrics,
	logger *slog.Logger,
	clock types.Clock,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Service{
		store:     store,
		bridge:    NewFormBridge(store, clock),
		catalog:   catalog,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		clock:     clock,
	}
}

type noopMetrics struct{}

func (noopMetrics) RecordMutation(context.Context, string)                   {}
func (noopMetrics) RecordRejection(context.Context, string, types.ErrorCode) {}

// CreateDraft starts a session. The draft begins with one tier starting at
// zero, one notification row for the first unused method/category pair, and
// every step's currency tab on the default currency.
func (s *Service) CreateDraft(ctx context.Context, orgID string, in CreateDraftInput) (*Result, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "name is required", nil)
	}
	if !in.PlanType.Valid() {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidPlanType,
			"plan_type must be one of \"Per User\" or \"Per Contract\"", nil,
			map[string]any{"plan_type": string(in.PlanType)})
	}

	methods, err := s.catalog.Methods(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	set := pricing.NormalizeCurrencySet(in.Currencies)
	draft := &types.PlanDraft{
		ID:             newID(),
		OrganizationID: orgID,
		Name:           name,
		PlanType:       in.PlanType,
		Currencies:     set,
		Features:       types.FeatureRows{},
		Tiers:          pricing.AddTier(nil, in.PlanType, set.Supported),
		Selected:       types.SelectedCurrencies{},
		Status:         types.DraftStatusEditing,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	draft.Notifications, err = pricing.AddNotification(types.NotificationRows{}, methods, set.Supported)
	if err != nil {
		s.logger.WarnContext(ctx, "draft created without an initial notification",
			"org_id", orgID,
			"error", err,
		)
		draft.Notifications = types.NotificationRows{}
	}

	for _, step := range types.Steps {
		view := pricing.NewCurrencyView("")
		view.Init(set)
		if code := view.Active(); code != "" {
			draft.Selected[step] = code
		}
	}

	if err := s.store.Create(ctx, draft); err != nil {
		return nil, err
	}
	s.metrics.RecordMutation(ctx, "create_draft")
	s.logger.InfoContext(ctx, "plan draft created",
		"draft_id", draft.ID,
		"org_id", orgID,
		"plan_type", string(draft.PlanType),
		"currencies", len(set.Supported),
	)
	return &Result{Draft: draft, Issues: pricing.CheckComplete(draft)}, nil
}

// GetDraft returns a draft and its current publish issues.
func (s *Service) GetDraft(ctx context.Context, orgID, draftID string) (*Result, error) {
	draft, err := s.store.Get(ctx, orgID, draftID)
	if err != nil {
		return nil, err
	}
	return &Result{Draft: draft, Issues: pricing.CheckComplete(draft)}, nil
}

// ListDrafts returns one page of the organization's drafts, newest first.
func (s *Service) ListDrafts(ctx context.Context, orgID string, params types.ListDraftsParams) ([]*types.PlanDraft, types.PageInfo, error) {
	return s.store.List(ctx, orgID, params)
}

// DeleteDraft removes a draft and announces the deletion. A failed
// announcement is logged; the deletion stands.
func (s *Service) DeleteDraft(ctx context.Context, orgID, draftID string) error {
	draft, err := s.store.Get(ctx, orgID, draftID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, orgID, draftID); err != nil {
		return err
	}
	s.metrics.RecordMutation(ctx, "delete_draft")

	if pubErr := s.publish(ctx, draft, types.PlanEventDeleted); pubErr != nil {
		s.logger.WarnContext(ctx, "failed to publish plan deletion event",
			"draft_id", draftID,
			"error", pubErr,
		)
	}
	return nil
}

// UpdateDraftInfo renames the draft or changes its plan type. Changing the
// plan type regenerates every tier label.
func (s *Service) UpdateDraftInfo(ctx context.Context, orgID, draftID string, info DraftInfo) (*Result, error) {
	return s.mutate(ctx, orgID, draftID, "update_info", func(d *types.PlanDraft) ([]types.FormField, error) {
		var fields []types.FormField
		if info.Name != nil {
			name := strings.TrimSpace(*info.Name)
			if name == "" {
				return nil, types.NewAppError(types.ErrCodeValidationMissingField, "name must not be empty", nil)
			}
			if name != d.Name {
				d.Name = name
				fields = append(fields, types.FieldName)
			}
		}
		if info.PlanType != nil && *info.PlanType != d.PlanType {
			if !info.PlanType.Valid() {
				return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidPlanType,
					"unknown plan type", nil, map[string]any{"plan_type": string(*info.PlanType)})
			}
			d.PlanType = *info.PlanType
			fields = append(fields, types.FieldPlanType)
			if tiers := pricing.RelabelTiers(d.Tiers, d.PlanType); !sameRows(tiers, d.Tiers) {
				d.Tiers = tiers
				fields = append(fields, types.FieldTiers)
			}
		}
		return fields, nil
	})
}

// PublishDraft marks a complete draft as published and enqueues a
// plan.published event for billing sync. An incomplete draft is rejected
// with the list of issues in the error details.
func (s *Service) PublishDraft(ctx context.Context, orgID, draftID string) (*Result, error) {
	const op = "publish"
	draft, err := s.load(ctx, orgID, draftID)
	if err != nil {
		s.reject(ctx, op, err)
		return nil, err
	}

	if issues := pricing.CheckComplete(draft); len(issues) > 0 {
		err := types.NewAppErrorWithDetails(
			types.ErrCodeValidationIncompletePricing,
			"plan draft is not ready to publish",
			nil,
			map[string]any{"issues": issues},
		)
		s.reject(ctx, op, err)
		return nil, err
	}

	now := s.clock.Now()
	if err := s.store.MarkPublished(ctx, draft, now); err != nil {
		return nil, err
	}
	draft.Status = types.DraftStatusPublished
	draft.Dirty = false
	draft.PublishedAt = &now
	draft.UpdatedAt = now
	draft.Version++
	s.metrics.RecordMutation(ctx, op)

	if err := s.publish(ctx, draft, types.PlanEventPublished); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamQueue, "plan published but sync event could not be queued", err)
	}

	s.logger.InfoContext(ctx, "plan draft published",
		"draft_id", draft.ID,
		"org_id", orgID,
		"version", draft.Version,
	)
	return &Result{Draft: draft}, nil
}

func (s *Service) publish(ctx context.Context, draft *types.PlanDraft, eventType types.PlanEventType) error {
	if s.publisher == nil {
		return nil
	}
	return s.publisher.PublishPlanEvent(ctx, types.PlanEvent{
		ID:             newID(),
		Type:           eventType,
		DraftID:        draft.ID,
		OrganizationID: draft.OrganizationID,
		Version:        draft.Version,
		OccurredAt:     s.clock.Now(),
	})
}

// load fetches a draft that can still be edited.
func (s *Service) load(ctx context.Context, orgID, draftID string) (*types.PlanDraft, error) {
	draft, err := s.store.Get(ctx, orgID, draftID)
	if err != nil {
		return nil, err
	}
	if draft.Status == types.DraftStatusPublished {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeConflictPublished,
			"plan draft has already been published", nil,
			map[string]any{"draft_id": draftID})
	}
	return draft, nil
}

// mutate runs one edit against a fresh copy of the draft. fn changes the
// draft in place and returns the form fields it touched; a rejected edit
// leaves the stored draft untouched, and an edit that touches nothing is not
// written.
func (s *Service) mutate(ctx context.Context, orgID, draftID, op string, fn func(*types.PlanDraft) ([]types.FormField, error)) (*Result, error) {
	draft, err := s.load(ctx, orgID, draftID)
	if err != nil {
		s.reject(ctx, op, err)
		return nil, err
	}

	fields, err := fn(draft)
	if err != nil {
		s.reject(ctx, op, err)
		return nil, err
	}
	if len(fields) == 0 {
		return &Result{Draft: draft, Issues: pricing.CheckComplete(draft)}, nil
	}

	issues, err := s.bridge.Write(ctx, draft, fields, WriteOptions{ShouldDirty: true, ShouldValidate: true})
	if err != nil {
		s.reject(ctx, op, err)
		return nil, err
	}
	s.metrics.RecordMutation(ctx, op)
	s.logger.DebugContext(ctx, "plan draft updated",
		"draft_id", draftID,
		"operation", op,
		"fields", fields,
		"version", draft.Version,
	)
	return &Result{Draft: draft, Issues: issues}, nil
}

func (s *Service) reject(ctx context.Context, op string, err error) {
	code := types.ErrCodeInternalUnexpected
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		code = appErr.Code
	}
	s.metrics.RecordRejection(ctx, op, code)
}

// sameRows reports whether a and b are the same slice, which is how the
// pricing mutators signal that nothing changed.
func sameRows[T any](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	return len(a) == 0 || &a[0] == &b[0]
}
