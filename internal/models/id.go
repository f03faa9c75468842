package models

import (
	"fmt"
	"strconv"
)

// FlexID is a remote object identity that tolerates the provider's
// inconsistent wire typing: some endpoint versions return identities as
// JSON numbers, others as JSON strings. The value is always held in its
// canonical string form, so "123" and 123 decode to the same identity
// while "012345" keeps its leading zero and never equals 12345.
type FlexID string

// UnmarshalJSON accepts a JSON string or a JSON number. For numbers the
// raw token text is kept verbatim, so large identities never round-trip
// through float64 and lose precision.
func (f *FlexID) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		return fmt.Errorf("object id must not be empty")
	}

	if data[0] == '"' {
		s, err := strconv.Unquote(string(data))
		if err != nil {
			return fmt.Errorf("invalid object id %s: %w", data, err)
		}
		*f = FlexID(s)
		return nil
	}

	*f = FlexID(data)
	return nil
}

// MarshalJSON always emits the identity as a JSON string
func (f FlexID) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(f))), nil
}

func (f FlexID) String() string {
	return string(f)
}

// Equals compares this identity against another in canonical form
func (f FlexID) Equals(other string) bool {
	return string(f) == CanonicalID(other)
}

// CanonicalID converts any identity representation to its canonical string
// form. Strings pass through unchanged; numeric types are rendered as
// decimal digits. Every identity comparison in this codebase goes through
// canonical form on both sides.
func CanonicalID(id interface{}) string {
	switch v := id.(type) {
	case string:
		return v
	case FlexID:
		return string(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
