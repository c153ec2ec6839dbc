package pricing

import (
	"slices"

	"contractdesk/internal/types"
)

// MethodCatalog is the ordered notification-method catalog. Its order is the
// order in which unused pairs are searched.
type MethodCatalog []types.NotificationMethodEntry

// Lookup returns the catalog entry for method.
func (c MethodCatalog) Lookup(method string) (types.NotificationMethodEntry, bool) {
	for _, e := range c {
		if e.Method == method {
			return e, true
		}
	}
	return types.NotificationMethodEntry{}, false
}

// UnitPrice returns the catalog unit price of method, or 0 when unknown.
func (c MethodCatalog) UnitPrice(method string) float64 {
	e, _ := c.Lookup(method)
	return e.UnitPrice
}

// pairInUse reports whether a row other than skip uses (method, category).
func pairInUse(rows types.NotificationRows, skip int, method string, category types.NotificationCategory) bool {
	for i, r := range rows {
		if i != skip && r.Method == method && r.Category == category {
			return true
		}
	}
	return false
}

// NextAvailablePair returns the first (method, category) pair that no row
// uses. Methods are tried in catalog order and, for each method, categories
// in NotificationCategories order. This single search is used both when a
// draft is initialised and when a row is added.
func NextAvailablePair(rows types.NotificationRows, catalog MethodCatalog) (string, types.NotificationCategory, bool) {
	for _, entry := range catalog {
		for _, category := range types.NotificationCategories {
			if !pairInUse(rows, -1, entry.Method, category) {
				return entry.Method, category, true
			}
		}
	}
	return "", "", false
}

// AddNotification appends a row for the first unused pair. Its prices start
// at the method's catalog unit price in every supported currency, and its
// credits at the method's default base credits.
func AddNotification(rows types.NotificationRows, catalog MethodCatalog, supported []types.CurrencyCode) (types.NotificationRows, error) {
	method, category, ok := NextAvailablePair(rows, catalog)
	if !ok {
		return rows, ErrNoAvailableCombination()
	}
	entry, _ := catalog.Lookup(method)
	out := slices.Clone(rows)
	return append(out, types.NotificationRow{
		Method:         method,
		Category:       category,
		Enabled:        true,
		CreditsPerUnit: entry.DefaultBaseCredits,
		Prices:         seedPrices(supported, entry.UnitPrice),
	}), nil
}

// SelectMethod changes the method of row index. The change is rejected when
// another row already has the resulting pair. On success the row's prices
// are reset to the new method's unit price in every supported currency.
func SelectMethod(rows types.NotificationRows, index int, method string, catalog MethodCatalog, supported []types.CurrencyCode) (types.NotificationRows, error) {
	if err := checkIndex(index, len(rows)); err != nil {
		return rows, err
	}
	entry, ok := catalog.Lookup(method)
	if !ok {
		return rows, types.NewAppErrorWithDetails(
			types.ErrCodeValidationUnknownMethod,
			"unknown notification method",
			nil,
			map[string]any{"method": method},
		)
	}
	category := rows[index].Category
	if pairInUse(rows, index, method, category) {
		return rows, ErrDuplicateNotificationPair(method, category)
	}
	if rows[index].Method == method {
		return rows, nil
	}

	out := slices.Clone(rows)
	out[index].Method = method
	out[index].Prices = seedPrices(supported, entry.UnitPrice)
	return out, nil
}

// SelectCategory changes the category of row index, keeping its prices. The
// change is rejected when another row already has the resulting pair.
func SelectCategory(rows types.NotificationRows, index int, category types.NotificationCategory) (types.NotificationRows, error) {
	if err := checkIndex(index, len(rows)); err != nil {
		return rows, err
	}
	if !category.Valid() {
		return rows, types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidCategory,
			"unknown notification category",
			nil,
			map[string]any{"category": string(category)},
		)
	}
	method := rows[index].Method
	if pairInUse(rows, index, method, category) {
		return rows, ErrDuplicateNotificationPair(method, category)
	}
	if rows[index].Category == category {
		return rows, nil
	}

	out := slices.Clone(rows)
	out[index].Category = category
	return out, nil
}

// SetCredits sets the credits charged per unit for row index.
func SetCredits(rows types.NotificationRows, index int, credits float64) (types.NotificationRows, error) {
	if err := checkIndex(index, len(rows)); err != nil {
		return rows, err
	}
	if err := ValidatePrice(credits); err != nil {
		return rows, err
	}
	out := slices.Clone(rows)
	out[index].CreditsPerUnit = credits
	return out, nil
}

// SetNotificationEnabled toggles row index.
func SetNotificationEnabled(rows types.NotificationRows, index int, enabled bool) (types.NotificationRows, error) {
	if err := checkIndex(index, len(rows)); err != nil {
		return rows, err
	}
	out := slices.Clone(rows)
	out[index].Enabled = enabled
	return out, nil
}

// RemoveNotification deletes row index. Keeping at least one row is a policy
// of the caller, not of the collection.
func RemoveNotification(rows types.NotificationRows, index int) (types.NotificationRows, error) {
	if err := checkIndex(index, len(rows)); err != nil {
		return rows, err
	}
	return slices.Delete(slices.Clone(rows), index, index+1), nil
}
