package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// FlexDate is a time that can be unmarshaled from either an RFC 3339 timestamp or a plain YYYY-MM-DD date.
// Plain dates are taken as midnight UTC.
type FlexDate time.Time

// UnmarshalJSON implements the json.Unmarshaler interface.
func (d *FlexDate) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("FlexDate: expected a string: %w", err)
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		*d = FlexDate(t.UTC())
		return nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, time.UTC)
	if err != nil {
		return fmt.Errorf("FlexDate: invalid date %q", s)
	}
	*d = FlexDate(t)
	return nil
}

// MarshalJSON implements the json.Marshaler interface.
func (d FlexDate) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(d).Format(time.RFC3339))
}

// TimePtr returns the date as a *time.Time, nil for a nil receiver
func (d *FlexDate) TimePtr() *time.Time {
	if d == nil {
		return nil
	}
	t := time.Time(*d)
	return &t
}
