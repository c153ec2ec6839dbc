package pricing

import (
	"slices"

	"contractdesk/internal/types"
)

func errNoActiveCurrency() *types.AppError {
	return types.NewAppError(types.ErrCodeValidationInvalidCurrency, "no currency is selected for this step", nil)
}

// checkPriceWrite validates a write through view into a row collection.
func checkPriceWrite(view *CurrencyView, index, length int, value float64) error {
	if err := checkIndex(index, length); err != nil {
		return err
	}
	if view.Active() == "" {
		return errNoActiveCurrency()
	}
	return ValidatePrice(value)
}

// unchanged reports whether prices already holds value for code.
func unchanged(prices types.PriceMap, code types.CurrencyCode, value float64) bool {
	current, ok := prices[code]
	return ok && current == value
}

// SetFeaturePrice writes value into the active-currency price of feature
// index. Only special features are priced separately.
func SetFeaturePrice(rows types.FeatureRows, index int, view *CurrencyView, value float64) (types.FeatureRows, error) {
	if err := checkPriceWrite(view, index, len(rows), value); err != nil {
		return rows, err
	}
	if !rows[index].IsSpecialFeature {
		return rows, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidPrice,
			"feature is included in the plan and has no separate price", nil,
			map[string]any{"index": index})
	}
	if unchanged(rows[index].Prices, view.Active(), value) {
		return rows, nil
	}
	out := slices.Clone(rows)
	out[index].Prices = view.SetPrice(out[index].Prices, value)
	return out, nil
}

// SetNotificationPrice writes value into the active-currency price of
// notification index.
func SetNotificationPrice(rows types.NotificationRows, index int, view *CurrencyView, value float64) (types.NotificationRows, error) {
	if err := checkPriceWrite(view, index, len(rows), value); err != nil {
		return rows, err
	}
	if unchanged(rows[index].Prices, view.Active(), value) {
		return rows, nil
	}
	out := slices.Clone(rows)
	out[index].Prices = view.SetPrice(out[index].Prices, value)
	return out, nil
}

// SetTierPrice writes value into the active-currency price of tier index,
// mirroring BasePrice when the active currency is def.
func SetTierPrice(rows types.TierRows, index int, view *CurrencyView, def types.CurrencyCode, value float64) (types.TierRows, error) {
	if err := checkPriceWrite(view, index, len(rows), value); err != nil {
		return rows, err
	}
	if unchanged(rows[index].Prices, view.Active(), value) && (view.Active() != def || rows[index].BasePrice == value) {
		return rows, nil
	}
	out := slices.Clone(rows)
	out[index] = view.SetTierPrice(out[index], def, value)
	return out, nil
}
