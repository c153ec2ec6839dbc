package core

import (
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"contractdesk/internal/types"
)

// Validator wraps go-playground/validator with the plan-builder tags and
// maps failures to AppErrors.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// ValidationError is one field failure, reported under
// details.validation_errors.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult separates blocking errors from advisory warnings.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []string
}

func (r ValidationResult) IsValid() bool { return len(r.Errors) == 0 }

// Warner is implemented by request bodies that can flag accepted but
// suspicious input.
type Warner interface {
	Warnings() []string
}

// NewValidator registers the custom tags:
//
//	plan_type              - "Per User" or "Per Contract"
//	notification_category  - "Transactional" or "Direct"
//	pricing_step           - features, notifications or tiers
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	mustRegister(v, "plan_type", func(fl validator.FieldLevel) bool {
		return types.PlanType(fl.Field().String()).Valid()
	})
	mustRegister(v, "notification_category", func(fl validator.FieldLevel) bool {
		return types.NotificationCategory(fl.Field().String()).Valid()
	})
	mustRegister(v, "pricing_step", func(fl validator.FieldLevel) bool {
		return types.Step(fl.Field().String()).Valid()
	})

	return &Validator{validate: v, logger: logger}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("registering %s validation: %v", tag, err))
	}
}

// ValidateStruct returns nil or an AppError whose code is taken from the
// first failing field.
func (v *Validator) ValidateStruct(s any) error {
	result := v.ValidateStructWithWarnings(s)
	if result.IsValid() {
		return nil
	}
	return types.NewAppErrorWithDetails(
		types.ErrorCode(result.Errors[0].Code),
		result.Errors[0].Message,
		nil,
		map[string]any{"validation_errors": result.Errors},
	)
}

// ValidateStructWithWarnings validates s and collects Warner output when s
// is otherwise valid.
func (v *Validator) ValidateStructWithWarnings(s any) ValidationResult {
	var result ValidationResult

	err := v.validate.Struct(s)
	if err != nil {
		var fieldErrs validator.ValidationErrors
		if !asValidationErrors(err, &fieldErrs) {
			v.logger.Error("validator rejected input type", slog.String("error", err.Error()))
			result.Errors = append(result.Errors, ValidationError{
				Code:    string(types.ErrCodeValidationFailed),
				Message: "request could not be validated",
			})
			return result
		}
		for _, fe := range fieldErrs {
			result.Errors = append(result.Errors, ValidationError{
				Field:   fieldPath(fe),
				Code:    tagToErrorCode(fe.Tag()),
				Message: fieldMessage(fe),
			})
		}
		return result
	}

	if w, ok := s.(Warner); ok {
		result.Warnings = w.Warnings()
	}
	return result
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	ve, ok := err.(validator.ValidationErrors)
	if ok {
		*target = ve
	}
	return ok
}

// fieldPath drops the top-level struct name: "SetPriceRequest.value" -> "value".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func tagToErrorCode(tag string) string {
	switch tag {
	case "required", "required_without", "required_with":
		return string(types.ErrCodeValidationMissingField)
	case "iso4217":
		return string(types.ErrCodeValidationInvalidCurrency)
	case "pricing_step":
		return string(types.ErrCodeValidationInvalidStep)
	case "plan_type":
		return string(types.ErrCodeValidationInvalidPlanType)
	case "notification_category":
		return string(types.ErrCodeValidationInvalidCategory)
	default:
		return string(types.ErrCodeValidationFailed)
	}
}

func fieldMessage(fe validator.FieldError) string {
	field := fieldPath(fe)
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "iso4217":
		return field + " must be an ISO-4217 currency code"
	case "plan_type":
		return field + " must be one of: Per User, Per Contract"
	case "notification_category":
		return field + " must be one of: Transactional, Direct"
	case "pricing_step":
		return field + " must be one of: features, notifications, tiers"
	case "gte", "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte", "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
