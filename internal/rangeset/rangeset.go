// Package rangeset turns raw feed pairs into the canonical set of booked
// days: inclusive ranges, ascending, with at least one free day between
// any two of them.
package rangeset

import (
	"sort"

	"farmstay/internal/model"
)

// RangeSet is sorted by Start, and for consecutive a, b:
// b.Start > a.End + 1 day. Build it with Normalize or Merge only.
type RangeSet []model.DateRange

// Inclusive converts a (start, endExclusive) pair. A pair whose end is not
// after its start is kept as the single day start.
func Inclusive(p model.RawRange) model.DateRange {
	end := p.End.AddDays(-1)
	if end.Before(p.Start) {
		end = p.Start
	}
	return model.DateRange{Start: p.Start, End: end}
}

// Normalize converts raw pairs to inclusive ranges and merges them.
func Normalize(pairs []model.RawRange) RangeSet {
	ranges := make([]model.DateRange, 0, len(pairs))
	for _, p := range pairs {
		ranges = append(ranges, Inclusive(p))
	}
	return Merge(ranges)
}

// Merge sorts inclusive ranges by (start, end) and folds overlapping and
// touching ones together. The input slice is not modified. Ranges with
// End before Start are treated as the single day Start.
func Merge(ranges []model.DateRange) RangeSet {
	if len(ranges) == 0 {
		return RangeSet{}
	}

	sorted := make([]model.DateRange, len(ranges))
	copy(sorted, ranges)
	for i := range sorted {
		if sorted[i].End.Before(sorted[i].Start) {
			sorted[i].End = sorted[i].Start
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		if c := sorted[i].Start.Compare(sorted[j].Start); c != 0 {
			return c < 0
		}
		return sorted[i].End.Before(sorted[j].End)
	})

	out := make(RangeSet, 0, len(sorted))
	cur := sorted[0]
	for _, r := range sorted[1:] {
		// Touching ranges merge: the gap day between a checkout and a
		// check-in on consecutive days cannot be sold.
		if !r.Start.After(cur.End.AddDays(1)) {
			if r.End.After(cur.End) {
				cur.End = r.End
			}
			continue
		}
		out = append(out, cur)
		cur = r
	}
	return append(out, cur)
}

// Contains reports whether d falls inside any range of s.
func (s RangeSet) Contains(d model.Date) bool {
	_, ok := s.Find(d)
	return ok
}

// Find returns the range covering d.
func (s RangeSet) Find(d model.Date) (model.DateRange, bool) {
	// First range whose End is not before d.
	i := sort.Search(len(s), func(i int) bool {
		return !s[i].End.Before(d)
	})
	if i < len(s) && s[i].Contains(d) {
		return s[i], true
	}
	return model.DateRange{}, false
}

// Overlaps reports whether any day of r is in s.
func (s RangeSet) Overlaps(r model.DateRange) bool {
	i := sort.Search(len(s), func(i int) bool {
		return !s[i].End.Before(r.Start)
	})
	return i < len(s) && !s[i].Start.After(r.End)
}

// Valid checks the ordering and gap invariant.
func (s RangeSet) Valid() bool {
	for i, r := range s {
		if r.End.Before(r.Start) {
			return false
		}
		if i > 0 && !r.Start.After(s[i-1].End.AddDays(1)) {
			return false
		}
	}
	return true
}

// Days counts booked days in s.
func (s RangeSet) Days() int {
	n := 0
	for _, r := range s {
		n += r.Days()
	}
	return n
}
