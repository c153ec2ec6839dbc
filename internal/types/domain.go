package types

import (
	"slices"
	"time"
)

// CurrencyCode is an ISO-4217 currency code such as "USD".
type CurrencyCode string

// PriceMap holds one non-negative price per currency.
type PriceMap map[CurrencyCode]float64

// Clone returns an independent copy of the map. A nil map clones to nil.
func (p PriceMap) Clone() PriceMap {
	if p == nil {
		return nil
	}
	out := make(PriceMap, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// CurrencySet is the plan's ordered list of supported currencies plus its
// default. The owning draft keeps Default inside Supported whenever Supported
// is non-empty.
type CurrencySet struct {
	Supported []CurrencyCode `json:"supported_currencies"`
	Default   CurrencyCode   `json:"default_currency_code"`
}

// Contains reports whether code is a supported currency.
func (s CurrencySet) Contains(code CurrencyCode) bool {
	return slices.Contains(s.Supported, code)
}

// EffectiveDefault returns Default when it is supported, otherwise the first
// supported currency. It returns "" for an empty set.
func (s CurrencySet) EffectiveDefault() CurrencyCode {
	if s.Contains(s.Default) {
		return s.Default
	}
	if len(s.Supported) > 0 {
		return s.Supported[0]
	}
	return ""
}

// FeatureRow is a plan feature. Only special features carry a price map;
// included features are covered by the plan's base price.
type FeatureRow struct {
	FeatureID        string         `json:"feature_id"`
	Name             string         `json:"name"`
	Enabled          bool           `json:"enabled"`
	Limit            int64          `json:"limit"`
	TrialLimit       int64          `json:"trial_limit"`
	TrialEnabled     bool           `json:"trial_enabled"`
	TestEnvLimit     int64          `json:"test_env_limit"`
	IsSpecialFeature bool           `json:"is_special_feature"`
	PricingPeriod    *PricingPeriod `json:"pricing_period,omitempty"`
	Prices           PriceMap       `json:"prices,omitempty"`
}

// NotificationRow prices one notification delivery method for one category.
// The (Method, Category) pair identifies the row within a plan.
type NotificationRow struct {
	Method         string               `json:"method"`
	Category       NotificationCategory `json:"category"`
	Enabled        bool                 `json:"enabled"`
	CreditsPerUnit float64              `json:"credits_per_unit"`
	Prices         PriceMap             `json:"prices"`
}

// TierRow is a usage band. MaxValue nil means the band is unbounded.
// BasePrice mirrors the default-currency price for older consumers.
type TierRow struct {
	ID        string   `json:"id"`
	MinValue  int64    `json:"min_value"`
	MaxValue  *int64   `json:"max_value"`
	BasePrice float64  `json:"base_price"`
	UnitPrice float64  `json:"unit_price"`
	Label     string   `json:"label"`
	Enabled   bool     `json:"enabled"`
	Prices    PriceMap `json:"prices"`
}

// FeatureCatalogEntry is a read-only catalog feature offered to plans.
type FeatureCatalogEntry struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	DefaultLimit     int64  `json:"default_limit"`
	TrialLimit       int64  `json:"trial_limit"`
	IsSpecialFeature bool   `json:"is_special_feature"`
}

// NotificationMethodEntry is a read-only catalog delivery method.
type NotificationMethodEntry struct {
	Method             string  `json:"method"`
	DefaultBaseCredits float64 `json:"default_base_credits"`
	UnitPrice          float64 `json:"unit_price"`
}

// PlanDraft is the persisted state of one plan-builder session. It plays the
// role of the enclosing form: every pricing mutation is written back into it.
type PlanDraft struct {
	ID             string             `json:"id"`
	OrganizationID string             `json:"organization_id"`
	Name           string             `json:"name"`
	PlanType       PlanType           `json:"plan_type"`
	Currencies     CurrencySet        `json:"currencies"`
	Features       FeatureRows        `json:"features"`
	Notifications  NotificationRows   `json:"notifications"`
	Tiers          TierRows           `json:"tiers"`
	Selected       SelectedCurrencies `json:"selected_currencies"`
	Status         DraftStatus        `json:"status"`
	Dirty          bool               `json:"dirty"`
	Version        int                `json:"version"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
	PublishedAt    *time.Time         `json:"published_at,omitempty"`
}

// FeatureRows is the ordered feature collection of a draft.
type FeatureRows []FeatureRow

// NotificationRows is the ordered notification collection of a draft.
type NotificationRows []NotificationRow

// TierRows is the ordered tier collection of a draft.
type TierRows []TierRow

// SelectedCurrencies records the active currency tab of each pricing step.
type SelectedCurrencies map[Step]CurrencyCode

// PlanEvent is the message published when a draft changes lifecycle state.
type PlanEvent struct {
	ID             string        `json:"id"`
	Type           PlanEventType `json:"type"`
	DraftID        string        `json:"draft_id"`
	OrganizationID string        `json:"organization_id"`
	Version        int           `json:"version"`
	OccurredAt     time.Time     `json:"occurred_at"`
}
