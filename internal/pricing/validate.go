package pricing

import (
	"fmt"
	"math"
	"slices"

	"contractdesk/internal/types"
)

// ValidatePrice rejects negative and non-finite amounts.
func ValidatePrice(value float64) error {
	if value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidPrice,
			"price must be a non-negative number",
			nil,
			map[string]any{"value": fmt.Sprint(value)},
		)
	}
	return nil
}

// Issue describes one reason a draft cannot be published.
type Issue struct {
	Step    types.Step `json:"step"`
	Index   int        `json:"index"`
	Message string     `json:"message"`
}

// CheckComplete verifies a draft is ready to publish: a default currency is
// set, there is at least one tier, catalog features are chosen, notification
// pairs are unique, and every priced row has a price for exactly the
// supported currencies. It returns nil when nothing is wrong.
func CheckComplete(draft *types.PlanDraft) []Issue {
	var issues []Issue
	set := draft.Currencies
	if len(set.Supported) == 0 || !set.Contains(set.Default) {
		issues = append(issues, Issue{Step: "", Index: -1, Message: "a default currency must be selected"})
	}
	if len(draft.Tiers) == 0 {
		issues = append(issues, Issue{Step: types.StepTiers, Index: -1, Message: "at least one tier is required"})
	}

	for i, f := range draft.Features {
		if f.FeatureID == "" {
			issues = append(issues, Issue{Step: types.StepFeatures, Index: i, Message: "feature is not selected"})
			continue
		}
		if f.IsSpecialFeature && !pricesMatch(f.Prices, set.Supported) {
			issues = append(issues, Issue{Step: types.StepFeatures, Index: i, Message: "prices do not cover the supported currencies"})
		}
	}

	seen := make(map[string]struct{}, len(draft.Notifications))
	for i, n := range draft.Notifications {
		key := n.Method + "/" + string(n.Category)
		if _, dup := seen[key]; dup {
			issues = append(issues, Issue{Step: types.StepNotifications, Index: i, Message: "duplicate method and category"})
		}
		seen[key] = struct{}{}
		if !pricesMatch(n.Prices, set.Supported) {
			issues = append(issues, Issue{Step: types.StepNotifications, Index: i, Message: "prices do not cover the supported currencies"})
		}
	}

	for i, t := range draft.Tiers {
		if !pricesMatch(t.Prices, set.Supported) {
			issues = append(issues, Issue{Step: types.StepTiers, Index: i, Message: "prices do not cover the supported currencies"})
		}
		if t.Label != TierLabel(t.MinValue, t.MaxValue, draft.PlanType) {
			issues = append(issues, Issue{Step: types.StepTiers, Index: i, Message: "label does not match range"})
		}
	}
	return issues
}

// pricesMatch reports whether the keys of prices are exactly supported.
func pricesMatch(prices types.PriceMap, supported []types.CurrencyCode) bool {
	if len(prices) != len(supported) {
		return false
	}
	for code := range prices {
		if !slices.Contains(supported, code) {
			return false
		}
	}
	return true
}
