// Package handlers contains the HTTP handlers of the ContractDesk API.
//
// plans.go exposes the plan-builder session: draft lifecycle, the currency
// set, per-step currency tabs, and the feature, notification and tier rows.
// Every mutation answers with the full draft plus its publish issues so the
// client can re-render the whole matrix from one response.
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"contractdesk/internal/core"
	"contractdesk/internal/plans"
	"contractdesk/internal/pricing"
	"contractdesk/internal/types"
)

// PlanService is the plan-builder contract used by PlanHandler.
type PlanService interface {
	CreateDraft(ctx context.Context, orgID string, in plans.CreateDraftInput) (*plans.Result, error)
	GetDraft(ctx context.Context, orgID, draftID string) (*plans.Result, error)
	ListDrafts(ctx context.Context, orgID string, params types.ListDraftsParams) ([]*types.PlanDraft, types.PageInfo, error)
	DeleteDraft(ctx context.Context, orgID, draftID string) error
	UpdateDraftInfo(ctx context.Context, orgID, draftID string, info plans.DraftInfo) (*plans.Result, error)
	PublishDraft(ctx context.Context, orgID, draftID string) (*plans.Result, error)

	SetCurrencies(ctx context.Context, orgID, draftID string, set types.CurrencySet) (*plans.Result, error)
	SelectCurrency(ctx context.Context, orgID, draftID string, step types.Step, code types.CurrencyCode) (*plans.Result, error)
	SetPrice(ctx context.Context, orgID, draftID string, step types.Step, index int, value float64) (*plans.Result, error)

	AddFeature(ctx context.Context, orgID, draftID string) (*plans.Result, error)
	SelectFeature(ctx context.Context, orgID, draftID string, index int, featureID string) (*plans.Result, error)
	UpdateFeature(ctx context.Context, orgID, draftID string, index int, patch pricing.FeaturePatch) (*plans.Result, error)
	RemoveFeature(ctx context.Context, orgID, draftID string, index int) (*plans.Result, error)

	AddNotification(ctx context.Context, orgID, draftID string) (*plans.Result, error)
	SelectMethod(ctx context.Context, orgID, draftID string, index int, method string) (*plans.Result, error)
	SelectCategory(ctx context.Context, orgID, draftID string, index int, category types.NotificationCategory) (*plans.Result, error)
	UpdateNotification(ctx context.Context, orgID, draftID string, index int, patch plans.NotificationPatch) (*plans.Result, error)
	RemoveNotification(ctx context.Context, orgID, draftID string, index int) (*plans.Result, error)

	AddTier(ctx context.Context, orgID, draftID string) (*plans.Result, error)
	SetTierRange(ctx context.Context, orgID, draftID string, index int, minValue int64, maxValue *int64) (*plans.Result, error)
	SetTierUnitPrice(ctx context.Context, orgID, draftID string, index int, value float64) (*plans.Result, error)
	RemoveTier(ctx context.Context, orgID, draftID string, index int) (*plans.Result, error)
}

// --- Request models ---

// CreateDraftRequest is the body of POST /v1/plan-drafts.
type CreateDraftRequest struct {
	Name                string   `json:"name" validate:"required,max=120"`
	PlanType            string   `json:"plan_type" validate:"required,plan_type"`
	SupportedCurrencies []string `json:"supported_currencies" validate:"max=20,dive,iso4217"`
	DefaultCurrency     string   `json:"default_currency" validate:"omitempty,iso4217"`
}

// UpdateDraftRequest is the body of PATCH /v1/plan-drafts/{draftID}.
type UpdateDraftRequest struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,max=120"`
	PlanType *string `json:"plan_type,omitempty" validate:"omitempty,plan_type"`
}

// CurrenciesRequest is the body of PUT /v1/plan-drafts/{draftID}/currencies.
type CurrenciesRequest struct {
	SupportedCurrencies []string `json:"supported_currencies" validate:"max=20,dive,iso4217"`
	DefaultCurrency     string   `json:"default_currency" validate:"omitempty,iso4217"`
}

// SelectCurrencyRequest switches the currency tab of one pricing step.
type SelectCurrencyRequest struct {
	Currency string `json:"currency" validate:"required,iso4217"`
}

// PriceRequest carries one price in the step's active currency.
type PriceRequest struct {
	Value float64 `json:"value"`
}

// Warnings flags prices that will lose precision when converted to minor
// units for billing.
func (r PriceRequest) Warnings() []string {
	if d := decimal.NewFromFloat(r.Value); !d.Round(2).Equal(d) {
		return []string{fmt.Sprintf("price %v has more than two decimals and will be rounded when synced to billing", r.Value)}
	}
	return nil
}

// SelectFeatureRequest fills a feature row from the catalog.
type SelectFeatureRequest struct {
	FeatureID string `json:"feature_id" validate:"required,max=64"`
}

// UpdateFeatureRequest patches the limits and flags of a feature row.
type UpdateFeatureRequest struct {
	Enabled       *bool   `json:"enabled,omitempty"`
	Limit         *int64  `json:"limit,omitempty" validate:"omitempty,gte=0"`
	TrialLimit    *int64  `json:"trial_limit,omitempty" validate:"omitempty,gte=0"`
	TrialEnabled  *bool   `json:"trial_enabled,omitempty"`
	TestEnvLimit  *int64  `json:"test_env_limit,omitempty" validate:"omitempty,gte=0"`
	PricingPeriod *string `json:"pricing_period,omitempty" validate:"omitempty,oneof=monthly yearly one_time"`
}

// SelectMethodRequest sets the delivery method of a notification row.
type SelectMethodRequest struct {
	Method string `json:"method" validate:"required,max=64"`
}

// SelectCategoryRequest sets the category of a notification row.
type SelectCategoryRequest struct {
	Category string `json:"category" validate:"required,notification_category"`
}

// UpdateNotificationRequest patches credits and the enabled flag.
type UpdateNotificationRequest struct {
	CreditsPerUnit *float64 `json:"credits_per_unit,omitempty" validate:"omitempty,gte=0"`
	Enabled        *bool    `json:"enabled,omitempty"`
}

// TierRangeRequest sets a tier's bounds. A null max_value makes the tier
// unbounded.
type TierRangeRequest struct {
	MinValue *int64 `json:"min_value" validate:"required,gte=0"`
	MaxValue *int64 `json:"max_value"`
}

// --- Handler ---

// PlanHandler serves /v1/plan-drafts.
type PlanHandler struct {
	svc       PlanService
	validator *core.Validator
	logger    *slog.Logger
}

// NewPlanHandler creates a PlanHandler.
func NewPlanHandler(svc PlanService, v *core.Validator, l *slog.Logger) *PlanHandler {
	if l == nil {
		l = slog.Default()
	}
	return &PlanHandler{svc: svc, validator: v, logger: l}
}

// RegisterRoutes mounts the plan-draft routes.
func (h *PlanHandler) RegisterRoutes(r chi.Router) {
	r.Route("/plan-drafts", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)

		r.Route("/{draftID}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Patch("/", h.Update)
			r.Delete("/", h.Delete)
			r.Post("/publish", h.Publish)

			r.Put("/currencies", h.SetCurrencies)
			r.Put("/steps/{step}/currency", h.SelectCurrency)
			r.Put("/steps/{step}/rows/{index}/price", h.SetPrice)

			r.Route("/features", func(r chi.Router) {
				r.Post("/", h.AddFeature)
				r.Put("/{index}/selection", h.SelectFeature)
				r.Patch("/{index}", h.UpdateFeature)
				r.Delete("/{index}", h.RemoveFeature)
			})
			r.Route("/notifications", func(r chi.Router) {
				r.Post("/", h.AddNotification)
				r.Put("/{index}/method", h.SelectMethod)
				r.Put("/{index}/category", h.SelectCategory)
				r.Patch("/{index}", h.UpdateNotification)
				r.Delete("/{index}", h.RemoveNotification)
			})
			r.Route("/tiers", func(r chi.Router) {
				r.Post("/", h.AddTier)
				r.Put("/{index}/range", h.SetTierRange)
				r.Put("/{index}/unit-price", h.SetTierUnitPrice)
				r.Delete("/{index}", h.RemoveTier)
			})
		})
	})
}

// --- Draft lifecycle ---

// Create handles POST /v1/plan-drafts.
func (h *PlanHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateDraftRequest
	if !h.bind(w, r, &req, func() {
		req.SupportedCurrencies = upperAll(req.SupportedCurrencies)
		req.DefaultCurrency = upper(req.DefaultCurrency)
	}) {
		return
	}

	res, err := h.svc.CreateDraft(r.Context(), orgID(r), plans.CreateDraftInput{
		Name:       req.Name,
		PlanType:   types.PlanType(req.PlanType),
		Currencies: currencySet(req.SupportedCurrencies, req.DefaultCurrency),
	})
	h.respond(w, r, http.StatusCreated, res, nil, err)
}

// List handles GET /v1/plan-drafts?limit=&cursor=.
func (h *PlanHandler) List(w http.ResponseWriter, r *http.Request) {
	params := types.ListDraftsParams{Cursor: r.URL.Query().Get("cursor")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationFailed,
				"limit must be a positive integer", nil, map[string]any{"limit": raw}))
			return
		}
		params.Limit = limit
	}

	drafts, page, err := h.svc.ListDrafts(r.Context(), orgID(r), params)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if drafts == nil {
		drafts = []*types.PlanDraft{}
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: drafts,
		Meta: &types.ResponseMeta{Pagination: &page},
	})
}

// Get handles GET /v1/plan-drafts/{draftID}.
func (h *PlanHandler) Get(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.GetDraft(r.Context(), orgID(r), draftID(r))
	h.respond(w, r, http.StatusOK, res, nil, err)
}

// Update handles PATCH /v1/plan-drafts/{draftID}.
func (h *PlanHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateDraftRequest
	if !h.bind(w, r, &req, nil) {
		return
	}

	info := plans.DraftInfo{Name: req.Name}
	if req.PlanType != nil {
		pt := types.PlanType(*req.PlanType)
		info.PlanType = &pt
	}
	res, err := h.svc.UpdateDraftInfo(r.Context(), orgID(r), draftID(r), info)
	h.respond(w, r, http.StatusOK, res, nil, err)
}

// Delete handles DELETE /v1/plan-drafts/{draftID}.
func (h *PlanHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteDraft(r.Context(), orgID(r), draftID(r)); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Publish handles POST /v1/plan-drafts/{draftID}/publish. The response is
// 202 because billing sync runs asynchronously.
func (h *PlanHandler) Publish(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.PublishDraft(r.Context(), orgID(r), draftID(r))
	h.respond(w, r, http.StatusAccepted, res, nil, err)
}

// --- Currencies and prices ---

// SetCurrencies handles PUT /v1/plan-drafts/{draftID}/currencies.
func (h *PlanHandler) SetCurrencies(w http.ResponseWriter, r *http.Request) {
	var req CurrenciesRequest
	if !h.bind(w, r, &req, func() {
		req.SupportedCurrencies = upperAll(req.SupportedCurrencies)
		req.DefaultCurrency = upper(req.DefaultCurrency)
	}) {
		return
	}

	res, err := h.svc.SetCurrencies(r.Context(), orgID(r), draftID(r),
		currencySet(req.SupportedCurrencies, req.DefaultCurrency))
	h.respond(w, r, http.StatusOK, res, nil, err)
}

// SelectCurrency handles PUT /v1/plan-drafts/{draftID}/steps/{step}/currency.
func (h *PlanHandler) SelectCurrency(w http.ResponseWriter, r *http.Request) {
	step, ok := stepParam(w, r)
	if !ok {
		return
	}
	var req SelectCurrencyRequest
	if !h.bind(w, r, &req, func() { req.Currency = upper(req.Currency) }) {
		return
	}

	res, err := h.svc.SelectCurrency(r.Context(), orgID(r), draftID(r), step, types.CurrencyCode(req.Currency))
	h.respond(w, r, http.StatusOK, res, nil, err)
}

// SetPrice handles PUT /v1/plan-drafts/{draftID}/steps/{step}/rows/{index}/price.
// The price is written in the step's active currency.
func (h *PlanHandler) SetPrice(w http.ResponseWriter, r *http.Request) {
	step, ok := stepParam(w, r)
	if !ok {
		return
	}
	index, ok := indexParam(w, r)
	if !ok {
		return
	}
	var req PriceRequest
	if !h.bind(w, r, &req, nil) {
		return
	}

	res, err := h.svc.SetPrice(r.Context(), orgID(r), draftID(r), step, index, req.Value)
	h.respond(w, r, http.StatusOK, res, req.Warnings(), err)
}

// --- Features ---

func (h *PlanHandler) AddFeature(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.AddFeature(r.Context(), orgID(r), draftID(r))
	h.respond(w, r, http.StatusCreated, res, nil, err)
}

func (h *PlanHandler) SelectFeature(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(w, r)
	if !ok {
		return
	}
	var req SelectFeatureRequest
	if !h.bind(w, r, &req, nil) {
		return
	}
	res, err := h.svc.SelectFeature(r.Context(), orgID(r), draftID(r), index, req.FeatureID)
	h.respond(w, r, http.StatusOK, res, nil, err)
}

func (h *PlanHandler) UpdateFeature(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(w, r)
	if !ok {
		return
	}
	var req UpdateFeatureRequest
	if !h.bind(w, r, &req, nil) {
		return
	}

	patch := pricing.FeaturePatch{
		Enabled:      req.Enabled,
		Limit:        req.Limit,
		TrialLimit:   req.TrialLimit,
		TrialEnabled: req.TrialEnabled,
		TestEnvLimit: req.TestEnvLimit,
	}
	if req.PricingPeriod != nil {
		period := types.PricingPeriod(*req.PricingPeriod)
		patch.PricingPeriod = &period
	}
	res, err := h.svc.UpdateFeature(r.Context(), orgID(r), draftID(r), index, patch)
	h.respond(w, r, http.StatusOK, res, nil, err)
}

func (h *PlanHandler) RemoveFeature(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(w, r)
	if !ok {
		return
	}
	res, err := h.svc.RemoveFeature(r.Context(), orgID(r), draftID(r), index)
	h.respond(w, r, http.StatusOK, res, nil, err)
}

// --- Notifications ---

func (h *PlanHandler) AddNotification(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.AddNotification(r.Context(), orgID(r), draftID(r))
	h.respond(w, r, http.StatusCreated, res, nil, err)
}

func (h *PlanHandler) SelectMethod(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(w, r)
	if !ok {
		return
	}
	var req SelectMethodRequest
	if !h.bind(w, r, &req, nil) {
		return
	}
	res, err := h.svc.SelectMethod(r.Context(), orgID(r), draftID(r), index, req.Method)
	h.respond(w, r, http.StatusOK, res, nil, err)
}

func (h *PlanHandler) SelectCategory(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(w, r)
	if !ok {
		return
	}
	var req SelectCategoryRequest
	if !h.bind(w, r, &req, nil) {
		return
	}
	res, err := h.svc.SelectCategory(r.Context(), orgID(r), draftID(r), index, types.NotificationCategory(req.Category))
	h.respond(w, r, http.StatusOK, res, nil, err)
}

func (h *PlanHandler) UpdateNotification(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(w, r)
	if !ok {
		return
	}
	var req UpdateNotificationRequest
	if !h.bind(w, r, &req, nil) {
		return
	}
	res, err := h.svc.UpdateNotification(r.Context(), orgID(r), draftID(r), index, plans.NotificationPatch{
		CreditsPerUnit: req.CreditsPerUnit,
		Enabled:        req.Enabled,
	})
	h.respond(w, r, http.StatusOK, res, nil, err)
}

func (h *PlanHandler) RemoveNotification(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(w, r)
	if !ok {
		return
	}
	res, err := h.svc.RemoveNotification(r.Context(), orgID(r), draftID(r), index)
	h.respond(w, r, http.StatusOK, res, nil, err)
}

// --- Tiers ---

func (h *PlanHandler) AddTier(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.AddTier(r.Context(), orgID(r), draftID(r))
	h.respond(w, r, http.StatusCreated, res, nil, err)
}

func (h *PlanHandler) SetTierRange(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(w, r)
	if !ok {
		return
	}
	var req TierRangeRequest
	if !h.bind(w, r, &req, nil) {
		return
	}
	res, err := h.svc.SetTierRange(r.Context(), orgID(r), draftID(r), index, *req.MinValue, req.MaxValue)
	h.respond(w, r, http.StatusOK, res, nil, err)
}

func (h *PlanHandler) SetTierUnitPrice(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(w, r)
	if !ok {
		return
	}
	var req PriceRequest
	if !h.bind(w, r, &req, nil) {
		return
	}
	res, err := h.svc.SetTierUnitPrice(r.Context(), orgID(r), draftID(r), index, req.Value)
	h.respond(w, r, http.StatusOK, res, req.Warnings(), err)
}

func (h *PlanHandler) RemoveTier(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(w, r)
	if !ok {
		return
	}
	res, err := h.svc.RemoveTier(r.Context(), orgID(r), draftID(r), index)
	h.respond(w, r, http.StatusOK, res, nil, err)
}

// --- Helpers ---

// bind decodes and validates the body into dst. normalize, when non-nil,
// runs between decoding and validation. It writes the error response and
// returns false on failure.
func (h *PlanHandler) bind(w http.ResponseWriter, r *http.Request, dst any, normalize func()) bool {
	if err := core.DecodeJSON(w, r, dst); err != nil {
		core.Error(w, r, err)
		return false
	}
	if normalize != nil {
		normalize()
	}
	if err := h.validator.ValidateStruct(dst); err != nil {
		core.Error(w, r, err)
		return false
	}
	return true
}

func (h *PlanHandler) respond(w http.ResponseWriter, r *http.Request, status int, res *plans.Result, warnings []string, err error) {
	if err != nil {
		if types.HasCode(err, types.ErrCodeConflictConcurrent) {
			h.logger.InfoContext(r.Context(), "draft edit lost optimistic lock",
				"draft_id", draftID(r),
				"org_id", orgID(r),
			)
		}
		core.Error(w, r, err)
		return
	}

	body := core.APIResponse{Data: res}
	if len(warnings) > 0 {
		body.Meta = &types.ResponseMeta{Warnings: warnings}
	}
	core.JSON(w, r, status, body)
}

// orgID reads the organization set by core.TenantMiddleware.
func orgID(r *http.Request) string {
	id, _ := types.GetOrgID(r.Context())
	return id
}

func draftID(r *http.Request) string {
	return chi.URLParam(r, "draftID")
}

func stepParam(w http.ResponseWriter, r *http.Request) (types.Step, bool) {
	step := types.Step(chi.URLParam(r, "step"))
	if !step.Valid() {
		core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidStep,
			"step must be one of: features, notifications, tiers", nil,
			map[string]any{"step": string(step)}))
		return "", false
	}
	return step, true
}

func indexParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "index")
	index, err := strconv.Atoi(raw)
	if err != nil || index < 0 {
		core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationRowOutOfRange,
			"row index must be a non-negative integer", nil, map[string]any{"index": raw}))
		return 0, false
	}
	return index, true
}

func upper(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func upperAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = upper(s)
	}
	return out
}

func currencySet(supported []string, def string) types.CurrencySet {
	set := types.CurrencySet{Default: types.CurrencyCode(def)}
	for _, c := range supported {
		set.Supported = append(set.Supported, types.CurrencyCode(c))
	}
	return set
}
