package calendar

import (
	"time"

	"farmstay/internal/model"
	"farmstay/internal/rangeset"
)

// Day is one cell of the month grid.
type Day struct {
	Date   model.Date `json:"date"`
	Booked bool       `json:"booked"`
	Past   bool       `json:"past"`
}

// Month is the data behind one calendar page.
type Month struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
	// Leading is the number of empty cells before the 1st.
	Leading   int      `json:"leading"`
	WeekStart string   `json:"week_start"`
	Weekdays  []string `json:"weekdays"`
	Days      []Day    `json:"days"`
	Prev      string   `json:"prev"`
	Next      string   `json:"next"`
}

var weekdayNames = []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// BuildMonth lays out year/month with booked flags from set. weekStart is
// "monday" or "sunday"; anything else means sunday.
func BuildMonth(year int, month time.Month, set rangeset.RangeSet, today model.Date, weekStart string) Month {
	first := model.NewDate(year, month, 1)
	offset := 0
	if weekStart == "monday" {
		offset = 1
	}

	leading := (int(first.Time().Weekday()) - offset + 7) % 7
	names := make([]string, 0, 7)
	for i := 0; i < 7; i++ {
		names = append(names, weekdayNames[(i+offset)%7])
	}

	// Normalized: year/month may be out of range on input (e.g. month 13).
	year, month = first.Year, first.Month
	n := daysIn(year, month)

	days := make([]Day, 0, n)
	for i := 0; i < n; i++ {
		day := first.AddDays(i)
		days = append(days, Day{
			Date:   day,
			Booked: set.Contains(day),
			Past:   day.Before(today),
		})
	}

	prev := first.AddDays(-1)
	next := first.AddDays(n)
	if weekStart != "monday" {
		weekStart = "sunday"
	}

	return Month{
		Year:      year,
		Month:     month,
		Leading:   leading,
		WeekStart: weekStart,
		Weekdays:  names,
		Days:      days,
		Prev:      monthKey(prev),
		Next:      monthKey(next),
	}
}

// ParseMonthKey parses "YYYY-MM".
func ParseMonthKey(s string) (int, time.Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return 0, 0, err
	}
	return t.Year(), t.Month(), nil
}

func monthKey(d model.Date) string {
	return d.Time().Format("2006-01")
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
