// Package pricing implements the plan pricing matrix: the rules that keep the
// features, notifications and tiers of a plan carrying exactly one price per
// supported currency, plus the factories and mutators that create and edit
// those rows.
//
// Every function in this package is pure. Collections passed in are never
// modified; callers receive a new collection, or the very same one when
// nothing changed, and are responsible for persisting it.
package pricing

import "contractdesk/internal/types"

// SeedFunc returns the initial price for a currency that a row is missing.
type SeedFunc[T any] func(row T, code types.CurrencyCode) float64

// Accessor adapts a row type to the generic synchronizer.
type Accessor[T any] struct {
	// Prices returns the row's current price map.
	Prices func(T) types.PriceMap
	// WithPrices returns a copy of the row carrying the given map.
	WithPrices func(T, types.PriceMap) T
	// Seed provides the value for newly supported currencies.
	Seed SeedFunc[T]
	// Skip excludes rows that carry no price map at all.
	Skip func(T) bool
}

// zeroSeed is the seed used for features and tiers. A new currency never
// inherits a value from another currency.
func zeroSeed[T any](T, types.CurrencyCode) float64 { return 0 }

// Reconcile aligns the price map of every row with supported: missing
// currencies are inserted using acc.Seed and currencies that are no longer
// supported are deleted. When no row needs a change the input slice itself
// is returned with changed == false.
func Reconcile[T any](rows []T, supported []types.CurrencyCode, acc Accessor[T]) ([]T, bool) {
	var out []T
	for i, row := range rows {
		if acc.Skip != nil && acc.Skip(row) {
			continue
		}
		seed := func(code types.CurrencyCode) float64 {
			if acc.Seed == nil {
				return 0
			}
			return acc.Seed(row, code)
		}
		prices, changed := reconcilePrices(acc.Prices(row), supported, seed)
		if !changed {
			continue
		}
		if out == nil {
			out = make([]T, len(rows))
			copy(out, rows)
		}
		out[i] = acc.WithPrices(row, prices)
	}
	if out == nil {
		return rows, false
	}
	return out, true
}

// reconcilePrices returns a map keyed by exactly the supported currencies.
// Existing values are kept, missing ones come from seed.
func reconcilePrices(prices types.PriceMap, supported []types.CurrencyCode, seed func(types.CurrencyCode) float64) (types.PriceMap, bool) {
	want := make(map[types.CurrencyCode]struct{}, len(supported))
	missing := false
	for _, code := range supported {
		want[code] = struct{}{}
		if _, ok := prices[code]; !ok {
			missing = true
		}
	}
	stale := false
	for code := range prices {
		if _, ok := want[code]; !ok {
			stale = true
			break
		}
	}
	if !missing && !stale {
		return prices, false
	}

	out := make(types.PriceMap, len(want))
	for _, code := range supported {
		if v, ok := prices[code]; ok {
			out[code] = v
			continue
		}
		if _, done := out[code]; !done {
			out[code] = seed(code)
		}
	}
	return out, true
}

// seedPrices builds a fresh map with value for every supported currency.
func seedPrices(supported []types.CurrencyCode, value float64) types.PriceMap {
	out := make(types.PriceMap, len(supported))
	for _, code := range supported {
		out[code] = value
	}
	return out
}

var featureAccessor = Accessor[types.FeatureRow]{
	Prices: func(r types.FeatureRow) types.PriceMap { return r.Prices },
	WithPrices: func(r types.FeatureRow, p types.PriceMap) types.FeatureRow {
		r.Prices = p
		return r
	},
	Seed: zeroSeed[types.FeatureRow],
	Skip: func(r types.FeatureRow) bool { return !r.IsSpecialFeature },
}

var tierAccessor = Accessor[types.TierRow]{
	Prices: func(r types.TierRow) types.PriceMap { return r.Prices },
	WithPrices: func(r types.TierRow, p types.PriceMap) types.TierRow {
		r.Prices = p
		return r
	},
	Seed: zeroSeed[types.TierRow],
}

// ReconcileFeatures synchronizes the price maps of special features. Included
// features carry no prices and are left untouched.
func ReconcileFeatures(rows types.FeatureRows, supported []types.CurrencyCode) (types.FeatureRows, bool) {
	return Reconcile(rows, supported, featureAccessor)
}

// ReconcileTiers synchronizes the price maps of all tiers.
func ReconcileTiers(rows types.TierRows, supported []types.CurrencyCode) (types.TierRows, bool) {
	return Reconcile(rows, supported, tierAccessor)
}

// ReconcileNotifications synchronizes the price maps of all notification
// rows. A newly supported currency is seeded from the catalog unit price of
// the row's method, never from another currency of the same row.
func ReconcileNotifications(rows types.NotificationRows, supported []types.CurrencyCode, catalog MethodCatalog) (types.NotificationRows, bool) {
	return Reconcile(rows, supported, Accessor[types.NotificationRow]{
		Prices: func(r types.NotificationRow) types.PriceMap { return r.Prices },
		WithPrices: func(r types.NotificationRow, p types.PriceMap) types.NotificationRow {
			r.Prices = p
			return r
		},
		Seed: func(r types.NotificationRow, _ types.CurrencyCode) float64 {
			return catalog.UnitPrice(r.Method)
		},
	})
}
