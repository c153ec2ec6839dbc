package pricing

import (
	"fmt"
	"slices"

	"github.com/google/uuid"

	"contractdesk/internal/types"
)

// newTierID generates tier identifiers. Tests may replace it.
var newTierID = uuid.NewString

const (
	// tierSpan is the width of a new bounded tier: [min, min+9].
	tierSpan = 9
	// unboundedStep is how far past an unbounded tier's minimum a new tier starts.
	unboundedStep = 10
)

// TierLabel renders the display label of a usage band, for example
// "0 - 9 Users" or "100+ Contracts".
func TierLabel(minValue int64, maxValue *int64, planType types.PlanType) string {
	unit := planType.TierUnit()
	if maxValue == nil {
		return fmt.Sprintf("%d+ %s", minValue, unit)
	}
	return fmt.Sprintf("%d - %d %s", minValue, *maxValue, unit)
}

// NextTierRange derives the range of a tier added after prev. A bounded
// previous tier is continued at max+1; an unbounded one is followed at
// min+10. The first tier of a plan starts at 0.
func NextTierRange(prev *types.TierRow) (int64, int64) {
	var minValue int64
	switch {
	case prev == nil:
		minValue = 0
	case prev.MaxValue != nil:
		minValue = *prev.MaxValue + 1
	default:
		minValue = prev.MinValue + unboundedStep
	}
	return minValue, minValue + tierSpan
}

// NewTier builds an enabled tier following prev with a zero price for every
// supported currency.
func NewTier(prev *types.TierRow, planType types.PlanType, supported []types.CurrencyCode) types.TierRow {
	minValue, maxValue := NextTierRange(prev)
	return types.TierRow{
		ID:       newTierID(),
		MinValue: minValue,
		MaxValue: &maxValue,
		Label:    TierLabel(minValue, &maxValue, planType),
		Enabled:  true,
		Prices:   seedPrices(supported, 0),
	}
}

// AddTier appends a tier following the last one.
func AddTier(rows types.TierRows, planType types.PlanType, supported []types.CurrencyCode) types.TierRows {
	var prev *types.TierRow
	if len(rows) > 0 {
		prev = &rows[len(rows)-1]
	}
	out := slices.Clone(rows)
	return append(out, NewTier(prev, planType, supported))
}

// SetTierRange updates the bounds of row index and regenerates its label.
// A nil maxValue makes the tier unbounded.
func SetTierRange(rows types.TierRows, index int, minValue int64, maxValue *int64, planType types.PlanType) (types.TierRows, error) {
	if err := checkIndex(index, len(rows)); err != nil {
		return rows, err
	}
	if minValue < 0 || (maxValue != nil && *maxValue < minValue) {
		return rows, types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidRange,
			"tier maximum must not be below its minimum",
			nil,
			map[string]any{"min_value": minValue, "max_value": maxValue},
		)
	}
	out := slices.Clone(rows)
	row := &out[index]
	row.MinValue = minValue
	if maxValue != nil {
		m := *maxValue
		row.MaxValue = &m
	} else {
		row.MaxValue = nil
	}
	row.Label = TierLabel(row.MinValue, row.MaxValue, planType)
	return out, nil
}

// SetTierUnitPrice sets the per-unit overage price of row index.
func SetTierUnitPrice(rows types.TierRows, index int, value float64) (types.TierRows, error) {
	if err := checkIndex(index, len(rows)); err != nil {
		return rows, err
	}
	if err := ValidatePrice(value); err != nil {
		return rows, err
	}
	out := slices.Clone(rows)
	out[index].UnitPrice = value
	return out, nil
}

// RelabelTiers regenerates every label, for example after the plan type
// changed. The input is returned unchanged when all labels already match.
func RelabelTiers(rows types.TierRows, planType types.PlanType) types.TierRows {
	var out types.TierRows
	for i, r := range rows {
		label := TierLabel(r.MinValue, r.MaxValue, planType)
		if label == r.Label {
			continue
		}
		if out == nil {
			out = slices.Clone(rows)
		}
		out[i].Label = label
	}
	if out == nil {
		return rows
	}
	return out
}

// SyncBasePrices copies each tier's price in def into BasePrice, for
// example after the default currency changed. The input is returned
// unchanged when every BasePrice already matches.
func SyncBasePrices(rows types.TierRows, def types.CurrencyCode) types.TierRows {
	if def == "" {
		return rows
	}
	var out types.TierRows
	for i, r := range rows {
		price := r.Prices[def]
		if price == r.BasePrice {
			continue
		}
		if out == nil {
			out = slices.Clone(rows)
		}
		out[i].BasePrice = price
	}
	if out == nil {
		return rows
	}
	return out
}

// RemoveTier deletes row index. Keeping at least one tier is a policy of
// the caller, not of the collection.
func RemoveTier(rows types.TierRows, index int) (types.TierRows, error) {
	if err := checkIndex(index, len(rows)); err != nil {
		return rows, err
	}
	return slices.Delete(slices.Clone(rows), index, index+1), nil
}
