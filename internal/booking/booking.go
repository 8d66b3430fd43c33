// Package booking holds the guest-side selection state and builds deep
// links into the external booking site. Payment and reservation happen
// there; nothing here books anything.
package booking

import (
	"net/url"
	"strconv"
	"strings"

	"farmstay/internal/model"
	"farmstay/internal/rangeset"
)

const DefaultBaseURL = "https://www.airbnb.com/rooms/"

// Listing identifies the external listing and its pricing.
type Listing struct {
	ID          string
	BaseURL     string // defaults to DefaultBaseURL
	NightlyRate int
}

// URL is the bare listing page.
func (l Listing) URL() string {
	base := l.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + url.PathEscape(l.ID)
}

// BuildURL returns the listing URL with the stay encoded. Without both
// dates the bare listing URL is returned. Children, infants and pets are
// always zero.
func (l Listing) BuildURL(checkIn, checkOut model.Date, guests int) string {
	base := l.URL()
	if checkIn.IsZero() || checkOut.IsZero() {
		return base
	}
	if guests < 1 {
		guests = 1
	}
	q := url.Values{}
	q.Set("check_in", checkIn.String())
	q.Set("check_out", checkOut.String())
	q.Set("adults", strconv.Itoa(guests))
	q.Set("children", "0")
	q.Set("infants", "0")
	q.Set("pets", "0")
	return base + "?" + q.Encode()
}

// Selection is the calendar picker state owned by the UI. Zero Start or End
// means "not chosen yet".
type Selection struct {
	Start  model.Date `json:"start"`
	End    model.Date `json:"end"`
	Guests int        `json:"guests"`
}

// Select applies a click on day to s and returns the new state. Booked
// days are ignored. A first click (or a click after a complete range)
// starts a new selection; a second click closes it, swapping the ends
// when the second day is earlier.
func (s Selection) Select(day model.Date, booked rangeset.RangeSet) Selection {
	if booked.Contains(day) {
		return s
	}
	if s.Start.IsZero() || !s.End.IsZero() {
		s.Start = day
		s.End = model.Date{}
		return s
	}
	if day.Before(s.Start) {
		s.End = s.Start
		s.Start = day
		return s
	}
	s.End = day
	return s
}

// Complete reports whether both dates are set.
func (s Selection) Complete() bool {
	return !s.Start.IsZero() && !s.End.IsZero()
}

// Nights is the number of nights between Start and End, 0 when incomplete.
func (s Selection) Nights() int {
	if !s.Complete() {
		return 0
	}
	n := s.Start.DaysUntil(s.End)
	if n < 0 {
		return 0
	}
	return n
}

// Contains reports whether day lies within the selected range.
func (s Selection) Contains(day model.Date) bool {
	if !s.Complete() {
		return false
	}
	return !day.Before(s.Start) && !day.After(s.End)
}

// Conflicts reports whether any night of the stay is booked. The checkout
// day is not a night and may be booked by the next guest.
func (s Selection) Conflicts(booked rangeset.RangeSet) bool {
	if s.Nights() == 0 {
		return false
	}
	return booked.Overlaps(model.DateRange{Start: s.Start, End: s.End.AddDays(-1)})
}

// Quote summarizes a selection for display.
type Quote struct {
	Start    model.Date `json:"start"`
	End      model.Date `json:"end"`
	Guests   int        `json:"guests"`
	Nights   int        `json:"nights"`
	Lodging  int        `json:"lodging"`
	Conflict bool       `json:"conflict"`
	URL      string     `json:"url"`
}

// Quote prices s at the listing's nightly rate. Taxes and fees are shown
// by the booking site only.
func (l Listing) Quote(s Selection, booked rangeset.RangeSet) Quote {
	nights := s.Nights()
	return Quote{
		Start:    s.Start,
		End:      s.End,
		Guests:   s.Guests,
		Nights:   nights,
		Lodging:  nights * l.NightlyRate,
		Conflict: s.Conflicts(booked),
		URL:      l.BuildURL(s.Start, s.End, s.Guests),
	}
}
