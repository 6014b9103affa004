package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// RawJSON holds a provider payload verbatim for audit in a jsonb column.
// Provider responses are not always objects (pawaPay status lookups return arrays),
// so the bytes are kept as-is instead of being decoded into a map.
type RawJSON json.RawMessage

// NewRawJSON wraps a payload. Bodies that are not valid JSON are stored as a JSON string.
func NewRawJSON(body []byte) RawJSON {
	if len(body) == 0 {
		return nil
	}
	if json.Valid(body) {
		return RawJSON(append([]byte(nil), body...))
	}
	quoted, _ := json.Marshal(string(body))
	return RawJSON(quoted)
}

// Value implements the driver.Valuer interface for RawJSON
func (j RawJSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return []byte(j), nil
}

// Scan implements the sql.Scanner interface for RawJSON
func (j *RawJSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = RawJSON(v)
	default:
		return errors.New("type assertion to []byte failed")
	}
	return nil
}

// MarshalJSON returns the stored payload, or null when empty.
func (j RawJSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON stores a copy of the payload.
func (j *RawJSON) UnmarshalJSON(data []byte) error {
	if j == nil {
		return errors.New("models.RawJSON: UnmarshalJSON on nil pointer")
	}
	*j = append((*j)[:0], data...)
	return nil
}
