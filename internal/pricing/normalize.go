package pricing

import (
	"encoding/json"
	"fmt"

	"contractdesk/internal/types"
)

// Drafts saved by older clients stored a single price per row under one of
// several names. The decoders below fold those fields into the price map
// once, keyed by the plan default currency, so nothing downstream has to
// try alternative field names.

type legacyFeature struct {
	types.FeatureRow
	Price *float64 `json:"price"`
}

type legacyNotification struct {
	types.NotificationRow
	Price     *float64 `json:"price"`
	UnitPrice *float64 `json:"unitPrice"`
}

type legacyTier struct {
	types.TierRow
	Price        *float64 `json:"price"`
	BasePriceAlt *float64 `json:"basePrice"`
	MinValueAlt  *int64   `json:"minValue"`
	MaxValueAlt  *int64   `json:"maxValue"`
	UnitPriceAlt *float64 `json:"unitPrice"`
}

// firstSet returns the first non-nil value.
func firstSet(vals ...*float64) (float64, bool) {
	for _, v := range vals {
		if v != nil {
			return *v, true
		}
	}
	return 0, false
}

// foldLegacy returns prices with def set to the legacy value when the map
// has no entry for def.
func foldLegacy(prices types.PriceMap, def types.CurrencyCode, legacy float64, ok bool) types.PriceMap {
	if !ok || def == "" {
		return prices
	}
	if _, present := prices[def]; present {
		return prices
	}
	out := prices.Clone()
	if out == nil {
		out = make(types.PriceMap, 1)
	}
	out[def] = legacy
	return out
}

// DecodeFeatures reads a stored feature collection.
func DecodeFeatures(raw []byte, def types.CurrencyCode) (types.FeatureRows, error) {
	if len(raw) == 0 {
		return types.FeatureRows{}, nil
	}
	var stored []legacyFeature
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decoding features: %w", err)
	}
	out := make(types.FeatureRows, len(stored))
	for i, s := range stored {
		row := s.FeatureRow
		if row.IsSpecialFeature {
			v, ok := firstSet(s.Price)
			row.Prices = foldLegacy(row.Prices, def, v, ok)
		}
		out[i] = row
	}
	return out, nil
}

// DecodeNotifications reads a stored notification collection.
func DecodeNotifications(raw []byte, def types.CurrencyCode) (types.NotificationRows, error) {
	if len(raw) == 0 {
		return types.NotificationRows{}, nil
	}
	var stored []legacyNotification
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decoding notifications: %w", err)
	}
	out := make(types.NotificationRows, len(stored))
	for i, s := range stored {
		row := s.NotificationRow
		v, ok := firstSet(s.Price, s.UnitPrice)
		row.Prices = foldLegacy(row.Prices, def, v, ok)
		out[i] = row
	}
	return out, nil
}

// DecodeTiers reads a stored tier collection. BasePrice is kept in step
// with the default-currency price it mirrors.
func DecodeTiers(raw []byte, def types.CurrencyCode) (types.TierRows, error) {
	if len(raw) == 0 {
		return types.TierRows{}, nil
	}
	var stored []legacyTier
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decoding tiers: %w", err)
	}
	out := make(types.TierRows, len(stored))
	for i, s := range stored {
		row := s.TierRow
		if s.MinValueAlt != nil && row.MinValue == 0 {
			row.MinValue = *s.MinValueAlt
		}
		if s.MaxValueAlt != nil && row.MaxValue == nil {
			m := *s.MaxValueAlt
			row.MaxValue = &m
		}
		if s.UnitPriceAlt != nil && row.UnitPrice == 0 {
			row.UnitPrice = *s.UnitPriceAlt
		}
		if s.BasePriceAlt != nil && row.BasePrice == 0 {
			row.BasePrice = *s.BasePriceAlt
		}

		var legacy *float64
		if row.BasePrice != 0 {
			bp := row.BasePrice
			legacy = &bp
		}
		v, ok := firstSet(legacy, s.Price)
		row.Prices = foldLegacy(row.Prices, def, v, ok)
		if p, present := row.Prices[def]; present {
			row.BasePrice = p
		}
		out[i] = row
	}
	return out, nil
}
