package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	// DateLayout is the ISO form used on the wire and in the UI.
	DateLayout = "2006-01-02"
	// BasicDateLayout is the 8-digit form used by iCalendar DATE values.
	BasicDateLayout = "20060102"
)

// Date is a wall-clock calendar day with no time or zone component.
// The zero value is not a valid date.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate builds a Date, normalizing out-of-range days the way time.Date does.
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// ParseBasicDate parses the leading YYYYMMDD of an iCalendar DATE or
// DATE-TIME value. Anything after the eighth digit is ignored.
func ParseBasicDate(v string) (Date, error) {
	if len(v) < 8 {
		return Date{}, fmt.Errorf("invalid ical date %q", v)
	}
	for i := 0; i < 8; i++ {
		if v[i] < '0' || v[i] > '9' {
			return Date{}, fmt.Errorf("invalid ical date %q", v)
		}
	}
	t, err := time.Parse(BasicDateLayout, v[:8])
	if err != nil {
		return Date{}, fmt.Errorf("invalid ical date %q: %w", v, err)
	}
	return DateOf(t), nil
}

// IsZero reports whether d is the unset Date{}.
func (d Date) IsZero() bool { return d == Date{} }

// Time returns midnight UTC of d.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// AddDays returns d shifted by n days; month and year roll over.
func (d Date) AddDays(n int) Date {
	return NewDate(d.Year, d.Month, d.Day+n)
}

// DaysUntil returns the number of days from d to o (negative if o is earlier).
func (d Date) DaysUntil(o Date) int {
	return int(o.Time().Sub(d.Time()).Hours() / 24)
}

// Compare orders dates lexicographically on (year, month, day).
func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return cmpInt(d.Year, o.Year)
	case d.Month != o.Month:
		return cmpInt(int(d.Month), int(o.Month))
	default:
		return cmpInt(d.Day, o.Day)
	}
}

// Before reports d < o.
func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }

// After reports d > o.
func (d Date) After(o Date) bool { return d.Compare(o) > 0 }

// String formats d as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// MarshalJSON writes "YYYY-MM-DD", or null for the zero Date.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts "YYYY-MM-DD" or null.
func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalText writes YYYY-MM-DD, so Date works as a map key and in YAML.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText parses YYYY-MM-DD.
func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// DateRange is a closed interval of days: both Start and End are occupied.
type DateRange struct {
	Start Date `json:"start"`
	End   Date `json:"end"`
}

// ErrInvertedRange is returned by NewDateRange when end < start.
var ErrInvertedRange = errors.New("range end is before start")

// NewDateRange validates start <= end.
func NewDateRange(start, end Date) (DateRange, error) {
	if end.Before(start) {
		return DateRange{}, fmt.Errorf("%w: %s..%s", ErrInvertedRange, start, end)
	}
	return DateRange{Start: start, End: end}, nil
}

// Contains reports start <= d <= end.
func (r DateRange) Contains(d Date) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

// Days is the number of occupied days in r.
func (r DateRange) Days() int {
	return r.Start.DaysUntil(r.End) + 1
}

func (r DateRange) String() string {
	return r.Start.String() + ".." + r.End.String()
}

// RawRange is a (start, endExclusive) pair exactly as the feed states it:
// End is the first day not covered, usually the guest's checkout day.
type RawRange struct {
	Start Date
	End   Date
}
