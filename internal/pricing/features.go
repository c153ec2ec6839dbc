package pricing

import (
	"slices"

	"contractdesk/internal/types"
)

// FeaturePatch carries optional per-field updates for a feature row.
type FeaturePatch struct {
	Enabled       *bool
	Limit         *int64
	TrialLimit    *int64
	TrialEnabled  *bool
	TestEnvLimit  *int64
	PricingPeriod *types.PricingPeriod
}

// AddFeature appends an empty, enabled feature row with zeroed limits. The
// row becomes meaningful once a catalog feature is selected for it.
func AddFeature(rows types.FeatureRows) types.FeatureRows {
	out := slices.Clone(rows)
	return append(out, types.FeatureRow{Enabled: true})
}

// SelectFeature fills row index from a catalog entry. Special features are
// seeded with a zero price for every supported currency; included features
// carry no prices. A feature may appear at most once in a plan.
func SelectFeature(rows types.FeatureRows, index int, entry types.FeatureCatalogEntry, supported []types.CurrencyCode) (types.FeatureRows, error) {
	if err := checkIndex(index, len(rows)); err != nil {
		return rows, err
	}
	for i, r := range rows {
		if i != index && r.FeatureID != "" && r.FeatureID == entry.ID {
			return rows, ErrDuplicateFeature(entry.ID)
		}
	}

	out := slices.Clone(rows)
	row := out[index]
	row.FeatureID = entry.ID
	row.Name = entry.Name
	row.Limit = entry.DefaultLimit
	row.TrialLimit = entry.TrialLimit
	row.IsSpecialFeature = entry.IsSpecialFeature
	if entry.IsSpecialFeature {
		row.Prices = seedPrices(supported, 0)
		if row.PricingPeriod == nil {
			period := types.PeriodMonthly
			row.PricingPeriod = &period
		}
	} else {
		row.Prices = nil
		row.PricingPeriod = nil
	}
	out[index] = row
	return out, nil
}

// UpdateFeature applies the non-nil fields of patch to row index.
func UpdateFeature(rows types.FeatureRows, index int, patch FeaturePatch) (types.FeatureRows, error) {
	if err := checkIndex(index, len(rows)); err != nil {
		return rows, err
	}
	out := slices.Clone(rows)
	row := &out[index]
	if patch.Enabled != nil {
		row.Enabled = *patch.Enabled
	}
	if patch.Limit != nil {
		row.Limit = *patch.Limit
	}
	if patch.TrialLimit != nil {
		row.TrialLimit = *patch.TrialLimit
	}
	if patch.TrialEnabled != nil {
		row.TrialEnabled = *patch.TrialEnabled
	}
	if patch.TestEnvLimit != nil {
		row.TestEnvLimit = *patch.TestEnvLimit
	}
	if patch.PricingPeriod != nil && row.IsSpecialFeature {
		p := *patch.PricingPeriod
		row.PricingPeriod = &p
	}
	return out, nil
}

// RemoveFeature deletes row index.
func RemoveFeature(rows types.FeatureRows, index int) (types.FeatureRows, error) {
	if err := checkIndex(index, len(rows)); err != nil {
		return rows, err
	}
	return slices.Delete(slices.Clone(rows), index, index+1), nil
}
