package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	stripe "github.com/stripe/stripe-go/v82"
	"golang.org/x/sync/errgroup"

	"contractdesk/internal/types"
)

const stripeAPIBase = "https://api.stripe.com"

// maxConcurrentPrices caps parallel price creation per plan. Stripe allows
// roughly 25 writes per second in live mode.
const maxConcurrentPrices = 4

// StripeConfig configures a StripePriceSync.
type StripeConfig struct {
	SecretKey string
	BaseURL   string
	Logger    *slog.Logger
}

// SyncResult lists what SyncPlan created in Stripe.
type SyncResult struct {
	ProductID string
	PriceIDs  []string
}

// StripePriceSync publishes a plan draft to Stripe as one Product plus one
// Price per priced row. Non-default currencies ride on the Price as
// currency_options. Requests carry idempotency keys derived from the draft
// version, so a redelivered publish event converges on the same objects.
type StripePriceSync struct {
	base      *BaseClient
	secretKey string
	baseURL   string
	logger    *slog.Logger
}

// NewStripePriceSync creates a StripePriceSync over its own BaseClient.
func NewStripePriceSync(httpClient *http.Client, cfg StripeConfig, opts ...BaseClientOption) *StripePriceSync {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opts = append([]BaseClientOption{WithLogger(logger)}, opts...)
	base := NewBaseClient(httpClient, "stripe", RetryPolicy{
		MaxRetries: 2,
		MinWait:    500 * time.Millisecond,
		MaxWait:    5 * time.Second,
	}, "ContractDesk/1.0", opts...)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}
	return &StripePriceSync{
		base:      base,
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
	}
}

// priceSpec is one Stripe Price to create.
type priceSpec struct {
	key      string
	nickname string
	interval string
	prices   types.PriceMap
	metadata map[string]string
}

// SyncPlan creates the product and its prices. It fails on the first price
// error; prices created before the failure are reused on retry through
// their idempotency keys.
func (s *StripePriceSync) SyncPlan(ctx context.Context, draft *types.PlanDraft) (*SyncResult, error) {
	if draft.Currencies.EffectiveDefault() == "" {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidCurrency, "plan has no default currency", nil)
	}

	productID, err := s.createProduct(ctx, draft)
	if err != nil {
		return nil, err
	}

	specs := priceSpecs(draft)
	priceIDs := make([]string, len(specs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentPrices)
	for i, spec := range specs {
		g.Go(func() error {
			id, err := s.createPrice(gctx, draft, productID, spec)
			if err != nil {
				return err
			}
			priceIDs[i] = id
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "plan synced to stripe",
		"draft_id", draft.ID,
		"product_id", productID,
		"prices", len(priceIDs),
	)
	return &SyncResult{ProductID: productID, PriceIDs: priceIDs}, nil
}

func (s *StripePriceSync) createProduct(ctx context.Context, draft *types.PlanDraft) (string, error) {
	form := url.Values{}
	form.Set("name", draft.Name)
	form.Set("metadata[draft_id]", draft.ID)
	form.Set("metadata[organization_id]", draft.OrganizationID)
	form.Set("metadata[plan_type]", string(draft.PlanType))

	var out stripeObject
	key := fmt.Sprintf("plan-%s-v%d-product", draft.ID, draft.Version)
	if err := s.post(ctx, "/v1/products", key, form, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (s *StripePriceSync) createPrice(ctx context.Context, draft *types.PlanDraft, productID string, spec priceSpec) (string, error) {
	def := draft.Currencies.EffectiveDefault()
	form := url.Values{}
	form.Set("product", productID)
	form.Set("currency", strings.ToLower(string(def)))
	form.Set("unit_amount", strconv.FormatInt(MinorUnits(def, spec.prices[def]), 10))
	form.Set("nickname", spec.nickname)
	if spec.interval != "" {
		form.Set("recurring[interval]", spec.interval)
	}
	for _, code := range draft.Currencies.Supported {
		if code == def {
			continue
		}
		amount, ok := spec.prices[code]
		if !ok {
			continue
		}
		form.Set(fmt.Sprintf("currency_options[%s][unit_amount]", strings.ToLower(string(code))),
			strconv.FormatInt(MinorUnits(code, amount), 10))
	}
	for k, v := range spec.metadata {
		form.Set("metadata["+k+"]", v)
	}

	var out stripeObject
	key := fmt.Sprintf("plan-%s-v%d-%s", draft.ID, draft.Version, spec.key)
	if err := s.post(ctx, "/v1/prices", key, form, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// priceSpecs lists the priced rows of a draft: enabled special features,
// enabled notifications and every tier.
func priceSpecs(draft *types.PlanDraft) []priceSpec {
	var specs []priceSpec
	for _, f := range draft.Features {
		if !f.IsSpecialFeature || !f.Enabled || len(f.Prices) == 0 {
			continue
		}
		specs = append(specs, priceSpec{
			key:      "feature-" + f.FeatureID,
			nickname: f.Name,
			interval: stripeInterval(f.PricingPeriod),
			prices:   f.Prices,
			metadata: map[string]string{"row_kind": "feature", "feature_id": f.FeatureID},
		})
	}
	for _, n := range draft.Notifications {
		if !n.Enabled {
			continue
		}
		specs = append(specs, priceSpec{
			key:      "notification-" + strings.ToLower(n.Method+"-"+string(n.Category)),
			nickname: n.Method + " " + string(n.Category),
			interval: "month",
			prices:   n.Prices,
			metadata: map[string]string{"row_kind": "notification", "method": n.Method, "category": string(n.Category)},
		})
	}
	for _, t := range draft.Tiers {
		specs = append(specs, priceSpec{
			key:      "tier-" + t.ID,
			nickname: t.Label,
			interval: "month",
			prices:   t.Prices,
			metadata: map[string]string{"row_kind": "tier", "tier_id": t.ID},
		})
	}
	return specs
}

func stripeInterval(p *types.PricingPeriod) string {
	if p == nil {
		return "month"
	}
	switch *p {
	case types.PeriodYearly:
		return "year"
	case types.PeriodOneTime:
		return ""
	default:
		return "month"
	}
}

// zeroDecimal lists the currencies Stripe charges in whole units.
var zeroDecimal = map[types.CurrencyCode]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "JPY": true,
	"KMF": true, "KRW": true, "MGA": true, "PYG": true, "RWF": true,
	"UGX": true, "VND": true, "VUV": true, "XAF": true, "XOF": true,
	"XPF": true,
}

// MinorUnits converts amount to the smallest unit of code, rounding half
// away from zero on the shortest decimal form of amount, so 1.005 USD is
// 101 cents.
func MinorUnits(code types.CurrencyCode, amount float64) int64 {
	d := decimal.NewFromFloat(amount)
	if !zeroDecimal[code] {
		d = d.Shift(2)
	}
	return d.Round(0).IntPart()
}

// --- HTTP helpers ---

func (s *StripePriceSync) post(ctx context.Context, path, idempotencyKey string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build stripe request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", stripe.APIVersion)
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := s.base.Do(req)
	if err != nil {
		return wrapStripeError(path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return stripeErrorFromResponse(resp, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamStripe, "failed to decode stripe response", err)
	}
	return nil
}

type stripeObject struct {
	ID string `json:"id"`
}

type stripeErrorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
		Param   string `json:"param"`
	} `json:"error"`
}

func stripeErrorFromResponse(resp *http.Response, path string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var env stripeErrorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: stripe returned %d with non-JSON body", path, resp.StatusCode), err)
	}

	details := map[string]any{"stripe_type": env.Error.Type}
	if env.Error.Code != "" {
		details["stripe_code"] = env.Error.Code
	}
	if env.Error.Param != "" {
		details["param"] = env.Error.Param
	}
	return types.NewAppErrorWithDetails(types.ErrCodeUpstreamStripe,
		fmt.Sprintf("%s: stripe error (%d): %s", path, resp.StatusCode, env.Error.Message), nil, details)
}

func wrapStripeError(path string, err error) error {
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(types.ErrCodeUpstreamStripe, path+": stripe request failed", err)
}
