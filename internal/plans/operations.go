package plans

import (
	"context"
	"maps"
	"slices"
	"strings"

	"contractdesk/internal/pricing"
	"contractdesk/internal/types"
)

// NotificationPatch carries optional updates for a notification row.
type NotificationPatch struct {
	CreditsPerUnit *float64
	Enabled        *bool
}

func errLastRow(step types.Step) *types.AppError {
	return types.NewAppErrorWithDetails(types.ErrCodeValidationLastRow,
		"at least one row must remain", nil,
		map[string]any{"step": string(step)})
}

func errInvalidStep(step types.Step) *types.AppError {
	return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidStep,
		"unknown pricing step", nil,
		map[string]any{"step": string(step)})
}

// view returns the currency view of step as stored on the draft.
func view(d *types.PlanDraft, step types.Step) *pricing.CurrencyView {
	return pricing.NewCurrencyView(d.Selected[step])
}

// SetCurrencies replaces the draft's currency set. The set is normalized,
// every row collection is reconciled against it, tier base prices follow
// the default currency, and step tabs on a removed currency move back to the
// default.
func (s *Service) SetCurrencies(ctx context.Context, orgID, draftID string, set types.CurrencySet) (*Result, error) {
	methods, err := s.catalog.Methods(ctx)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, orgID, draftID, "set_currencies", func(d *types.PlanDraft) ([]types.FormField, error) {
		next := pricing.NormalizeCurrencySet(set)
		var fields []types.FormField

		if next.Default != d.Currencies.Default || !slices.Equal(next.Supported, d.Currencies.Supported) {
			added := pricing.AddedCurrencies(d.Currencies, next)
			removed := pricing.RemovedCurrencies(d.Currencies, next)
			d.Currencies = next
			fields = append(fields, types.FieldCurrencies)
			s.logger.InfoContext(ctx, "plan currencies changed",
				"draft_id", d.ID,
				"added", added,
				"removed", removed,
				"default", string(next.Default),
			)
		}

		if features, changed := pricing.ReconcileFeatures(d.Features, next.Supported); changed {
			d.Features = features
			fields = append(fields, types.FieldFeatures)
		}
		if notifications, changed := pricing.ReconcileNotifications(d.Notifications, next.Supported, methods); changed {
			d.Notifications = notifications
			fields = append(fields, types.FieldNotifications)
		}
		tiers, _ := pricing.ReconcileTiers(d.Tiers, next.Supported)
		tiers = pricing.SyncBasePrices(tiers, next.EffectiveDefault())
		if !sameRows(tiers, d.Tiers) {
			d.Tiers = tiers
			fields = append(fields, types.FieldTiers)
		}

		var selected types.SelectedCurrencies
		for _, step := range types.Steps {
			v := view(d, step)
			if !v.Retarget(next) {
				continue
			}
			if selected == nil {
				selected = maps.Clone(d.Selected)
				if selected == nil {
					selected = types.SelectedCurrencies{}
				}
			}
			if v.Active() == "" {
				delete(selected, step)
			} else {
				selected[step] = v.Active()
			}
		}
		if selected != nil {
			d.Selected = selected
			fields = append(fields, types.FieldSelected)
		}
		return fields, nil
	})
}

// SelectCurrency switches the currency tab of one step. The code is not
// checked against the supported set.
func (s *Service) SelectCurrency(ctx context.Context, orgID, draftID string, step types.Step, code types.CurrencyCode) (*Result, error) {
	return s.mutate(ctx, orgID, draftID, "select_currency", func(d *types.PlanDraft) ([]types.FormField, error) {
		if !step.Valid() {
			return nil, errInvalidStep(step)
		}
		v := view(d, step)
		v.Select(types.CurrencyCode(strings.ToUpper(strings.TrimSpace(string(code)))))
		if v.Active() == d.Selected[step] {
			return nil, nil
		}
		selected := maps.Clone(d.Selected)
		if selected == nil {
			selected = types.SelectedCurrencies{}
		}
		selected[step] = v.Active()
		d.Selected = selected
		return []types.FormField{types.FieldSelected}, nil
	})
}

// SetPrice writes value into the price of row index of step, in the
// currency selected for that step.
func (s *Service) SetPrice(ctx context.Context, orgID, draftID string, step types.Step, index int, value float64) (*Result, error) {
	return s.mutate(ctx, orgID, draftID, "set_price", func(d *types.PlanDraft) ([]types.FormField, error) {
		v := view(d, step)
		switch step {
		case types.StepFeatures:
			rows, err := pricing.SetFeaturePrice(d.Features, index, v, value)
			if err != nil || sameRows(rows, d.Features) {
				return nil, err
			}
			d.Features = rows
		case types.StepNotifications:
			rows, err := pricing.SetNotificationPrice(d.Notifications, index, v, value)
			if err != nil || sameRows(rows, d.Notifications) {
				return nil, err
			}
			d.Notifications = rows
		case types.StepTiers:
			rows, err := pricing.SetTierPrice(d.Tiers, index, v, d.Currencies.EffectiveDefault(), value)
			if err != nil || sameRows(rows, d.Tiers) {
				return nil, err
			}
			d.Tiers = rows
		default:
			return nil, errInvalidStep(step)
		}
		return []types.FormField{types.StepField(step)}, nil
	})
}

// AddFeature appends an empty feature row.
func (s *Service) AddFeature(ctx context.Context, orgID, draftID string) (*Result, error) {
	return s.mutate(ctx, orgID, draftID, "add_feature", func(d *types.PlanDraft) ([]types.FormField, error) {
		d.Features = pricing.AddFeature(d.Features)
		return []types.FormField{types.FieldFeatures}, nil
	})
}

// SelectFeature binds feature row index to a catalog feature.
func (s *Service) SelectFeature(ctx context.Context, orgID, draftID string, index int, featureID string) (*Result, error) {
	return s.mutate(ctx, orgID, draftID, "select_feature", func(d *types.PlanDraft) ([]types.FormField, error) {
		entry, err := s.catalog.Feature(ctx, featureID)
		if err != nil {
			return nil, err
		}
		rows, err := pricing.SelectFeature(d.Features, index, *entry, d.Currencies.Supported)
		if err != nil {
			return nil, err
		}
		d.Features = rows
		return []types.FormField{types.FieldFeatures}, nil
	})
}

// UpdateFeature applies patch to feature row index.
func (s *Service) UpdateFeature(ctx context.Context, orgID, draftID string, index int, patch pricing.FeaturePatch) (*Result, error) {
	return s.mutate(ctx, orgID, draftID, "update_feature", func(d *types.PlanDraft) ([]types.FormField, error) {
		rows, err := pricing.UpdateFeature(d.Features, index, patch)
		if err != nil {
			return nil, err
		}
		d.Features = rows
		return []types.FormField{types.FieldFeatures}, nil
	})
}

// RemoveFeature deletes feature row index. A plan may have no features.
func (s *Service) RemoveFeature(ctx context.Context, orgID, draftID string, index int) (*Result, error) {
	return s.mutate(ctx, orgID, draftID, "remove_feature", func(d *types.PlanDraft) ([]types.FormField, error) {
		rows, err := pricing.RemoveFeature(d.Features, index)
		if err != nil {
			return nil, err
		}
		d.Features = rows
		return []types.FormField{types.FieldFeatures}, nil
	})
}

// AddNotification appends a row for the first unused method/category pair.
func (s *Service) AddNotification(ctx context.Context, orgID, draftID string) (*Result, error) {
	methods, err := s.catalog.Methods(ctx)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, orgID, draftID, "add_notification", func(d *types.PlanDraft) ([]types.FormField, error) {
		rows, err := pricing.AddNotification(d.Notifications, methods, d.Currencies.Supported)
		if err != nil {
			return nil, err
		}
		d.Notifications = rows
		return []types.FormField{types.FieldNotifications}, nil
	})
}

// SelectMethod changes the delivery method of notification row index.
func (s *Service) SelectMethod(ctx context.Context, orgID, draftID string, index int, method string) (*Result, error) {
	methods, err := s.catalog.Methods(ctx)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, orgID, draftID, "select_method", func(d *types.PlanDraft) ([]types.FormField, error) {
		rows, err := pricing.SelectMethod(d.Notifications, index, method, methods, d.Currencies.Supported)
		if err != nil || sameRows(rows, d.Notifications) {
			return nil, err
		}
		d.Notifications = rows
		return []types.FormField{types.FieldNotifications}, nil
	})
}

// SelectCategory changes the category of notification row index.
func (s *Service) SelectCategory(ctx context.Context, orgID, draftID string, index int, category types.NotificationCategory) (*Result, error) {
	return s.mutate(ctx, orgID, draftID, "select_category", func(d *types.PlanDraft) ([]types.FormField, error) {
		rows, err := pricing.SelectCategory(d.Notifications, index, category)
		if err != nil || sameRows(rows, d.Notifications) {
			return nil, err
		}
		d.Notifications = rows
		return []types.FormField{types.FieldNotifications}, nil
	})
}

// UpdateNotification applies patch to notification row index.
func (s *Service) UpdateNotification(ctx context.Context, orgID, draftID string, index int, patch NotificationPatch) (*Result, error) {
	return s.mutate(ctx, orgID, draftID, "update_notification", func(d *types.PlanDraft) ([]types.FormField, error) {
		rows := d.Notifications
		var err error
		if patch.CreditsPerUnit != nil {
			if rows, err = pricing.SetCredits(rows, index, *patch.CreditsPerUnit); err != nil {
				return nil, err
			}
		}
		if patch.Enabled != nil {
			if rows, err = pricing.SetNotificationEnabled(rows, index, *patch.Enabled); err != nil {
				return nil, err
			}
		}
		if sameRows(rows, d.Notifications) {
			return nil, nil
		}
		d.Notifications = rows
		return []types.FormField{types.FieldNotifications}, nil
	})
}

// RemoveNotification deletes notification row index. The last row cannot be
// removed.
func (s *Service) RemoveNotification(ctx context.Context, orgID, draftID string, index int) (*Result, error) {
	return s.mutate(ctx, orgID, draftID, "remove_notification", func(d *types.PlanDraft) ([]types.FormField, error) {
		if len(d.Notifications) == 1 && index == 0 {
			return nil, errLastRow(types.StepNotifications)
		}
		rows, err := pricing.RemoveNotification(d.Notifications, index)
		if err != nil {
			return nil, err
		}
		d.Notifications = rows
		return []types.FormField{types.FieldNotifications}, nil
	})
}

// AddTier appends a tier continuing after the last one.
func (s *Service) AddTier(ctx context.Context, orgID, draftID string) (*Result, error) {
	return s.mutate(ctx, orgID, draftID, "add_tier", func(d *types.PlanDraft) ([]types.FormField, error) {
		d.Tiers = pricing.AddTier(d.Tiers, d.PlanType, d.Currencies.Supported)
		return []types.FormField{types.FieldTiers}, nil
	})
}

// SetTierRange changes the bounds of tier index. A nil maxValue makes the
// tier unbounded.
func (s *Service) SetTierRange(ctx context.Context, orgID, draftID string, index int, minValue int64, maxValue *int64) (*Result, error) {
	return s.mutate(ctx, orgID, draftID, "set_tier_range", func(d *types.PlanDraft) ([]types.FormField, error) {
		rows, err := pricing.SetTierRange(d.Tiers, index, minValue, maxValue, d.PlanType)
		if err != nil {
			return nil, err
		}
		d.Tiers = rows
		return []types.FormField{types.FieldTiers}, nil
	})
}

// SetTierUnitPrice sets the per-unit price of tier index.
func (s *Service) SetTierUnitPrice(ctx context.Context, orgID, draftID string, index int, value float64) (*Result, error) {
	return s.mutate(ctx, orgID, draftID, "set_tier_unit_price", func(d *types.PlanDraft) ([]types.FormField, error) {
		rows, err := pricing.SetTierUnitPrice(d.Tiers, index, value)
		if err != nil {
			return nil, err
		}
		d.Tiers = rows
		return []types.FormField{types.FieldTiers}, nil
	})
}

// RemoveTier deletes tier index. The last tier cannot be removed.
func (s *Service) RemoveTier(ctx context.Context, orgID, draftID string, index int) (*Result, error) {
	return s.mutate(ctx, orgID, draftID, "remove_tier", func(d *types.PlanDraft) ([]types.FormField, error) {
		if len(d.Tiers) == 1 && index == 0 {
			return nil, errLastRow(types.StepTiers)
		}
		rows, err := pricing.RemoveTier(d.Tiers, index)
		if err != nil {
			return nil, err
		}
		d.Tiers = rows
		return []types.FormField{types.FieldTiers}, nil
	})
}
