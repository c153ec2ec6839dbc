package pricing

import (
	"fmt"

	"contractdesk/internal/types"
)

// ErrDuplicateNotificationPair reports that another row already uses the
// requested (method, category) pair.
func ErrDuplicateNotificationPair(method string, category types.NotificationCategory) *types.AppError {
	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationDuplicateNotif,
		fmt.Sprintf("a %s notification for %s already exists", category, method),
		nil,
		map[string]any{"method": method, "category": string(category)},
	)
}

// ErrNoAvailableCombination reports that every method/category pair is taken.
func ErrNoAvailableCombination() *types.AppError {
	return types.NewAppError(
		types.ErrCodeValidationNoCombination,
		"all notification method and category combinations are already in use",
		nil,
	)
}

// ErrDuplicateFeature reports that a catalog feature was already added.
func ErrDuplicateFeature(featureID string) *types.AppError {
	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationDuplicateFeature,
		fmt.Sprintf("feature %s is already part of the plan", featureID),
		nil,
		map[string]any{"feature_id": featureID},
	)
}

// ErrRowOutOfRange reports an index that does not address a row.
func ErrRowOutOfRange(index, length int) *types.AppError {
	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationRowOutOfRange,
		fmt.Sprintf("row %d does not exist", index),
		nil,
		map[string]any{"index": index, "rows": length},
	)
}

func checkIndex(index, length int) error {
	if index < 0 || index >= length {
		return ErrRowOutOfRange(index, length)
	}
	return nil
}
