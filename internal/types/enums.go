package types

// PlanType identifies how a pricing plan meters usage. It drives the unit
// shown in tier labels.
type PlanType string

const (
	PlanTypePerUser     PlanType = "Per User"
	PlanTypePerContract PlanType = "Per Contract"
)

// Valid reports whether the plan type is one of the known values.
func (p PlanType) Valid() bool {
	return p == PlanTypePerUser || p == PlanTypePerContract
}

// TierUnit returns the unit noun used in tier labels.
func (p PlanType) TierUnit() string {
	if p == PlanTypePerUser {
		return "Users"
	}
	return "Contracts"
}

// NotificationCategory classifies notification traffic. Together with the
// delivery method it forms the unique key of a NotificationRow.
type NotificationCategory string

const (
	CategoryTransactional NotificationCategory = "Transactional"
	CategoryDirect        NotificationCategory = "Direct"
)

// NotificationCategories is the fixed search order used when picking the
// first unused (method, category) pair.
var NotificationCategories = []NotificationCategory{CategoryTransactional, CategoryDirect}

// Valid reports whether the category is one of the known values.
func (c NotificationCategory) Valid() bool {
	for _, known := range NotificationCategories {
		if c == known {
			return true
		}
	}
	return false
}

// PricingPeriod is the billing cadence of a separately priced feature.
type PricingPeriod string

const (
	PeriodMonthly PricingPeriod = "monthly"
	PeriodYearly  PricingPeriod = "yearly"
	PeriodOneTime PricingPeriod = "one_time"
)

// Step identifies one pricing step of the plan builder. Each step keeps its
// own selected currency.
type Step string

const (
	StepFeatures      Step = "features"
	StepNotifications Step = "notifications"
	StepTiers         Step = "tiers"
)

// Steps lists every pricing step in display order.
var Steps = []Step{StepFeatures, StepNotifications, StepTiers}

// Valid reports whether the step is known.
func (s Step) Valid() bool {
	return s == StepFeatures || s == StepNotifications || s == StepTiers
}

// DraftStatus represents the lifecycle state of a plan draft.
type DraftStatus string

const (
	DraftStatusEditing   DraftStatus = "editing"
	DraftStatusPublished DraftStatus = "published"
)

// FormField names a field of the draft form that the form bridge writes.
type FormField string

const (
	FieldName          FormField = "name"
	FieldPlanType      FormField = "plan_type"
	FieldFeatures      FormField = "features"
	FieldNotifications FormField = "notifications"
	FieldTiers         FormField = "tiers"
	FieldCurrencies    FormField = "currencies"
	FieldSelected      FormField = "selected_currencies"
)

// StepField maps a pricing step to the form field holding its rows.
func StepField(s Step) FormField {
	switch s {
	case StepFeatures:
		return FieldFeatures
	case StepNotifications:
		return FieldNotifications
	default:
		return FieldTiers
	}
}

// PlanEventType identifies the kind of plan lifecycle event published to SQS.
type PlanEventType string

const (
	PlanEventPublished PlanEventType = "plan.published"
	PlanEventDeleted   PlanEventType = "plan.deleted"
)
