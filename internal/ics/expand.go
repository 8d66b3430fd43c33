package ics

import (
	"errors"

	"github.com/teambition/rrule-go"

	appLog "farmstay/internal/log"
	"farmstay/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 1000
)

// ExpandConfig bounds recurrence expansion. Only events with an RRULE are
// affected by the window; plain events always pass through.
type ExpandConfig struct {
	// From / Until are the inclusive window for recurring occurrences.
	From  model.Date
	Until model.Date

	// MaxOccurrencesPerEvent caps a single RRULE. Zero means
	// defaultMaxOccurrencesPerEvent.
	MaxOccurrencesPerEvent int
}

// ExpandResult wraps the raw pairs and the UIDs that hit the cap.
type ExpandResult struct {
	Ranges          []model.RawRange
	TruncatedEvents []string
}

// Expand turns events into raw pairs, one per event, or one per occurrence
// for events carrying an RRULE. Occurrences keep the length in days of the
// original event and honor EXDATE.
func Expand(events []Event, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.Until.Before(cfg.From) {
		return result, errors.New("expand: Until is before From")
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	result.Ranges = make([]model.RawRange, 0, len(events))
	for _, ev := range events {
		if ev.RawRRule == "" {
			result.Ranges = append(result.Ranges, model.RawRange{Start: ev.Start, End: ev.End})
			continue
		}

		occ, hitCap := expandRecurring(ev, cfg)
		result.Ranges = append(result.Ranges, occ...)
		if hitCap {
			result.TruncatedEvents = append(result.TruncatedEvents, ev.UID)
			appLog.Warn("expand: truncated occurrences for UID due to cap",
				"uid", ev.UID,
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}
	}

	return result, nil
}

func expandRecurring(ev Event, cfg ExpandConfig) ([]model.RawRange, bool) {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		// Keep the first occurrence rather than lose a blocked stay.
		appLog.Warn("expand: failed to parse RRULE; keeping base event", "uid", ev.UID, "rrule", ev.RawRRule, "err", err)
		return []model.RawRange{{Start: ev.Start, End: ev.End}}, false
	}
	r.DTStart(ev.Start.Time())

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.Time())
	}

	length := ev.Start.DaysUntil(ev.End)

	// Occurrences that start before the window but reach into it count too.
	from := cfg.From
	if length > 0 {
		from = from.AddDays(-length)
	}
	times := set.Between(from.Time(), cfg.Until.Time(), true)

	hitCap := false
	if len(times) > cfg.MaxOccurrencesPerEvent {
		times = times[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	out := make([]model.RawRange, 0, len(times))
	for _, t := range times {
		start := model.DateOf(t)
		out = append(out, model.RawRange{Start: start, End: start.AddDays(length)})
	}
	return out, hitCap
}
