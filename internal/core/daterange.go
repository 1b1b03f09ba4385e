package core

import "time"

// DateRange is an optional inclusive interval of calendar days. A zero bound is absent.
type DateRange struct {
	Start Date
	End   Date
}

// IsEmpty reports whether neither bound is set.
func (r DateRange) IsEmpty() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// Validate checks that a range with both bounds set is not crossed.
func (r DateRange) Validate() error {
	if !r.Start.IsZero() && !r.End.IsZero() && r.Start.After(r.End) {
		return &InvalidRangeError{Reason: ReasonStartAfterEnd, Start: r.Start, End: r.End}
	}
	return nil
}

// WithStart returns r with its start bound set to d, rejecting a start after the end.
func (r DateRange) WithStart(d Date) (DateRange, error) {
	if !r.End.IsZero() && d.After(r.End) {
		return r, &InvalidRangeError{Reason: ReasonStartAfterEnd, Start: d, End: r.End}
	}
	r.Start = d
	return r, nil
}

// WithEnd returns r with its end bound set to d, rejecting an end before the start.
func (r DateRange) WithEnd(d Date) (DateRange, error) {
	if !r.Start.IsZero() && d.Before(r.Start) {
		return r, &InvalidRangeError{Reason: ReasonEndBeforeStart, Start: r.Start, End: d}
	}
	r.End = d
	return r, nil
}

// Contains reports whether t falls inside the range, interpreting days in loc.
// A zero t is only contained by an empty range.
func (r DateRange) Contains(t time.Time, loc *time.Location) bool {
	if r.IsEmpty() {
		return true
	}
	if t.IsZero() {
		return false
	}
	if !r.Start.IsZero() && t.Before(r.Start.StartOfDay(loc)) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End.EndOfDay(loc)) {
		return false
	}
	return true
}

// ParseDateRange builds a range from two YYYY-MM-DD strings. Malformed bounds are absent.
func ParseDateRange(start, end string) DateRange {
	s, _ := ParseDate(start)
	e, _ := ParseDate(end)
	return DateRange{Start: s, End: e}
}
