package pricing

import "contractdesk/internal/types"

// CurrencyView tracks the active currency tab of one pricing step. The views
// of the features, notifications and tiers steps are independent.
type CurrencyView struct {
	active types.CurrencyCode
}

// NewCurrencyView returns a view with the given currency already selected.
// An empty code yields an uninitialised view.
func NewCurrencyView(active types.CurrencyCode) *CurrencyView {
	return &CurrencyView{active: active}
}

// Active returns the selected currency, or "" before initialisation.
func (v *CurrencyView) Active() types.CurrencyCode {
	return v.active
}

// Init selects the set's default (or its first currency when the default is
// not supported) if nothing is selected yet. It reports whether the
// selection changed.
func (v *CurrencyView) Init(set types.CurrencySet) bool {
	if v.active != "" || len(set.Supported) == 0 {
		return false
	}
	v.active = set.EffectiveDefault()
	return true
}

// Retarget clears a selection that is no longer supported and initialises
// the view again. It reports whether the selection changed.
func (v *CurrencyView) Retarget(set types.CurrencySet) bool {
	if v.active == "" || set.Contains(v.active) {
		return v.Init(set)
	}
	v.active = ""
	v.Init(set)
	return true
}

// Select makes code the active currency. Membership in the supported set is
// not checked; callers only offer supported codes as choices.
func (v *CurrencyView) Select(code types.CurrencyCode) {
	v.active = code
}

// Price returns the price for the active currency, or 0 when absent.
func (v *CurrencyView) Price(prices types.PriceMap) float64 {
	return prices[v.active]
}

// SetPrice returns a copy of prices with the active currency set to value.
func (v *CurrencyView) SetPrice(prices types.PriceMap, value float64) types.PriceMap {
	out := prices.Clone()
	if out == nil {
		out = make(types.PriceMap, 1)
	}
	out[v.active] = value
	return out
}

// SetTierPrice writes value into the tier's active-currency price. When the
// active currency is the plan default the legacy BasePrice is mirrored too.
func (v *CurrencyView) SetTierPrice(tier types.TierRow, defaultCode types.CurrencyCode, value float64) types.TierRow {
	tier.Prices = v.SetPrice(tier.Prices, value)
	if v.active == defaultCode {
		tier.BasePrice = value
	}
	return tier
}
