package shared

import (
	"strings"
	"time"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// DateOf truncates t to its calendar date in loc. The result is midnight UTC
// so that date arithmetic never crosses a DST boundary.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole calendar days from a to b (negative when b precedes a).
func DaysBetween(a, b time.Time) int {
	a = DateOf(a, time.UTC)
	b = DateOf(b, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// ParseDate parses a YYYY-MM-DD value, reporting ErrInvalidInput on failure.
func ParseDate(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, Invalid("%s is required", field)
	}
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, Invalid("%s must be a YYYY-MM-DD date", field)
	}
	return t, nil
}

// Date is a calendar date that marshals as YYYY-MM-DD.
type Date time.Time

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	t := time.Time(d)
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.Format(DateLayout) + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Invalid("date %q must be YYYY-MM-DD", s)
	}
	*d = Date(t)
	return nil
}

// Time returns the underlying time value.
func (d Date) Time() time.Time {
	return time.Time(d)
}
