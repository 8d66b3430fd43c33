package model

import (
	"time"
	_ "time/tzdata"
)

// DefaultTimezone is the property's zone when none is configured. "Today",
// past days and the refresh schedule are all computed in it.
const DefaultTimezone = "America/Denver"

// DefaultLocation loads DefaultTimezone. The embedded tzdata makes it
// available even on hosts without a zoneinfo database; UTC is returned only
// if that load still fails.
func DefaultLocation() *time.Location {
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
