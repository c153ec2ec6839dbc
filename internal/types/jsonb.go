package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Compile-time interface assertions. Scan is on pointer receivers; Value is
// on value receivers.
var (
	_ driver.Valuer = FeatureRows(nil)
	_ driver.Valuer = NotificationRows(nil)
	_ driver.Valuer = TierRows(nil)
	_ sql.Scanner   = (*SelectedCurrencies)(nil)
	_ driver.Valuer = SelectedCurrencies(nil)
)

// scanJSONB scans a JSONB database value into a Go pointer. It handles nil
// values, []byte, and string representations from different drivers.
func scanJSONB(dest any, value any) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("jsonb: unsupported scan type %T", value)
	}
	return json.Unmarshal(data, dest)
}

// valueJSONB marshals rows for a JSONB column. Nil collections are stored as
// an empty array so that readers never see SQL NULL for a row column.
func valueJSONB[T any](rows []T) (driver.Value, error) {
	if rows == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(rows)
}

// Value implements driver.Valuer. Row columns are read back through the
// pricing normalizer rather than a Scanner so legacy fields are folded once.
func (r FeatureRows) Value() (driver.Value, error) {
	return valueJSONB(r)
}

// Value implements driver.Valuer.
func (r NotificationRows) Value() (driver.Value, error) {
	return valueJSONB(r)
}

// Value implements driver.Valuer.
func (r TierRows) Value() (driver.Value, error) {
	return valueJSONB(r)
}

// Scan implements sql.Scanner.
func (s *SelectedCurrencies) Scan(value any) error {
	if value == nil {
		*s = nil
		return nil
	}
	return scanJSONB(s, value)
}

// Value implements driver.Valuer.
func (s SelectedCurrencies) Value() (driver.Value, error) {
	if s == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[Step]CurrencyCode(s))
}
