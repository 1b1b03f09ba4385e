package core

import (
	"strings"
	"time"
)

// FilterState is the caller owned filter input: free text search plus an
// inclusive calendar date range. Location is the zone used to interpret
// calendar days; nil means time.Local.
type FilterState struct {
	SearchText string
	Range      DateRange
	Location   *time.Location
}

// NormalizedSearch returns the trimmed, lower-cased search text.
func (f FilterState) NormalizedSearch() string {
	return strings.ToLower(strings.TrimSpace(f.SearchText))
}

// IsEmpty reports whether the filter passes every record.
func (f FilterState) IsEmpty() bool {
	return f.NormalizedSearch() == "" && f.Range.IsEmpty()
}

// Key identifies the filter for memoization. Two states with equal keys filter identically.
func (f FilterState) Key() string {
	loc := locOrLocal(f.Location).String()
	return f.NormalizedSearch() + "\x00" + f.Range.Start.String() + "\x00" + f.Range.End.String() + "\x00" + loc
}

// Filter returns the records that pass both the text and the date predicate,
// preserving their relative order. The input slice is never modified and the
// result never aliases it.
func Filter(records []Record, state FilterState) []Record {
	q := state.NormalizedSearch()
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if !matchesText(r, q) {
			continue
		}
		if !MatchesRange(r, state.Range, state.Location) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// MatchesText reports whether the record contains the search text in its
// item, vendor or notes. An empty search matches everything.
func MatchesText(r Record, search string) bool {
	return matchesText(r, strings.ToLower(strings.TrimSpace(search)))
}

func matchesText(r Record, q string) bool {
	if q == "" {
		return true
	}
	hay := strings.ToLower(r.Item + " " + r.Vendor + " " + r.Notes)
	return strings.Contains(hay, q)
}

// MatchesRange reports whether the record's creation time lies inside the
// range. Records still waiting for a creation time only match an empty range.
func MatchesRange(r Record, rng DateRange, loc *time.Location) bool {
	return rng.Contains(r.CreatedAt, loc)
}
