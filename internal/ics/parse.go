package ics

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	ical "github.com/arran4/golang-ical"

	appLog "farmstay/internal/log"
	"farmstay/internal/model"
)

// Event is the validated record for one VEVENT block. End is exclusive:
// it is the first day the event does not cover (the guest's checkout day).
type Event struct {
	UID     string
	Summary string
	Start   model.Date
	End     model.Date

	RawRRule string
	ExDates  []model.Date

	// Line is the logical line of the BEGIN:VEVENT marker.
	Line int
}

// ParseError describes a single event block that was dropped.
type ParseError struct {
	Line   int
	UID    string
	Reason string
}

func (e *ParseError) Error() string {
	if e.UID != "" {
		return fmt.Sprintf("vevent at line %d (uid %s): %s", e.Line, e.UID, e.Reason)
	}
	return fmt.Sprintf("vevent at line %d: %s", e.Line, e.Reason)
}

// ParseResult is the outcome of Parse. Skipped blocks never fail the feed.
type ParseResult struct {
	Events    []Event
	Cancelled int
	Skipped   []*ParseError
}

// block accumulates the fields of the VEVENT currently being read.
type block struct {
	line      int
	depth     int // nested components such as VALARM
	uid       string
	summary   string
	start     *model.Date
	end       *model.Date
	cancelled bool
	rrule     string
	exdates   []model.Date
	broken    string
}

func (b *block) fail(reason string) {
	if b.broken == "" {
		b.broken = reason
	}
}

// Parse reads raw calendar text into events. Continuation lines are
// unfolded by the golang-ical content-line reader; properties are split
// into name, parameters and value by ical.ParseProperty.
//
// Blocks that lack DTSTART or DTEND, carry an unreadable date, or are not
// terminated are skipped and reported in Skipped. Blocks with
// STATUS:CANCELLED are counted but produce no Event.
func Parse(body []byte) ParseResult {
	var res ParseResult
	if len(bytes.TrimSpace(body)) == 0 {
		return res
	}

	cs := ical.NewCalendarStream(bytes.NewReader(body))
	var cur *block

	for ln := 1; ; ln++ {
		l, err := cs.ReadLine()
		if l != nil && len(*l) > 0 {
			cur = consumeLine(&res, cur, ln, string(*l))
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				appLog.Warn("ics read stopped early", "line", ln, "err", err)
			}
			if cur != nil {
				res.skip(cur, "unterminated VEVENT")
			}
			break
		}
	}

	if len(res.Skipped) > 0 {
		appLog.Warn("ics parse skipped malformed events", "skipped", len(res.Skipped))
	}
	appLog.Debug("ics parse completed", "events", len(res.Events), "cancelled", res.Cancelled)
	return res
}

func consumeLine(res *ParseResult, cur *block, ln int, raw string) *block {
	prop, err := ical.ParseProperty(ical.ContentLine(strings.TrimRight(raw, "\r")))
	if err != nil || prop == nil {
		if cur != nil {
			cur.fail(fmt.Sprintf("unreadable content line %d", ln))
		}
		return cur
	}

	name := strings.ToUpper(prop.IANAToken)
	value := strings.TrimSpace(prop.Value)

	switch name {
	case "BEGIN":
		if !strings.EqualFold(value, string(ical.ComponentVEvent)) {
			if cur != nil {
				cur.depth++
			}
			return cur
		}
		if cur != nil {
			res.skip(cur, "VEVENT not terminated before next BEGIN:VEVENT")
		}
		return &block{line: ln}

	case "END":
		if cur == nil {
			return nil
		}
		if cur.depth > 0 {
			cur.depth--
			return cur
		}
		if strings.EqualFold(value, string(ical.ComponentVEvent)) {
			res.finish(cur)
			return nil
		}
		cur.fail("unexpected END:" + value)
		return cur
	}

	if cur == nil || cur.depth > 0 {
		return cur
	}

	switch ical.Property(name) {
	case ical.PropertyUid:
		cur.uid = value
	case ical.PropertySummary:
		cur.summary = value
	case ical.PropertyStatus:
		if strings.EqualFold(value, string(ical.ObjectStatusCancelled)) {
			cur.cancelled = true
		}
	case ical.PropertyDtstart:
		cur.start = readDate(cur, "DTSTART", cur.start, value)
	case ical.PropertyDtend:
		cur.end = readDate(cur, "DTEND", cur.end, value)
	case ical.PropertyRrule:
		cur.rrule = value
	case ical.PropertyExdate:
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			// A bad EXDATE only loses the exception, not the booking.
			if d, err := model.ParseBasicDate(part); err == nil {
				cur.exdates = append(cur.exdates, d)
			}
		}
	}
	return cur
}

func readDate(cur *block, field string, prev *model.Date, value string) *model.Date {
	if prev != nil {
		cur.fail("duplicate " + field)
		return prev
	}
	d, err := model.ParseBasicDate(value)
	if err != nil {
		cur.fail(field + ": " + err.Error())
		return nil
	}
	return &d
}

func (res *ParseResult) skip(b *block, reason string) {
	perr := &ParseError{Line: b.line, UID: b.uid, Reason: reason}
	res.Skipped = append(res.Skipped, perr)
	appLog.Warn("ics vevent dropped", "line", b.line, "uid", b.uid, "reason", reason)
}

func (res *ParseResult) finish(b *block) {
	if b.cancelled {
		res.Cancelled++
		return
	}
	switch {
	case b.broken != "":
		res.skip(b, b.broken)
		return
	case b.start == nil:
		res.skip(b, "missing DTSTART")
		return
	case b.end == nil:
		res.skip(b, "missing DTEND")
		return
	}
	res.Events = append(res.Events, Event{
		UID:      b.uid,
		Summary:  b.summary,
		Start:    *b.start,
		End:      *b.end,
		RawRRule: b.rrule,
		ExDates:  b.exdates,
		Line:     b.line,
	})
}
