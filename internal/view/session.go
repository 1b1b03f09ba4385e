// Package view holds the per-session filter and calendar state and derives
// the filtered list and its total from the live snapshot.
package view

import (
	"slices"
	"strconv"
	"sync"
	"time"

	"expenditures/internal/cache"
	"expenditures/internal/calendar"
	"expenditures/internal/core"
	"expenditures/internal/livesync"
	"expenditures/internal/log"
)

// SnapshotReader is satisfied by *livesync.Sync.
type SnapshotReader interface {
	Snapshot() livesync.Snapshot
}

// Projection is the filtered list plus its aggregate for one snapshot version.
type Projection struct {
	Version    uint64
	ReceivedAt time.Time
	Filter     core.FilterState
	Records    []core.Record
	Summary    core.Summary
	// Warnings is the number of coercion warnings in the source snapshot.
	Warnings int
}

// Options configures a Session.
type Options struct {
	// Location interprets calendar days. Nil means time.Local.
	Location *time.Location

	// Cache memoizes projections. Nil disables memoization.
	Cache *cache.LRUCache[Projection]

	Picker []calendar.Option
	Logger *log.Logger
}

// Session is the state of one viewer: the filter inputs and the date picker.
// It is safe for concurrent use.
type Session struct {
	reader SnapshotReader
	cache  *cache.LRUCache[Projection]
	logger *log.Logger

	mu     sync.Mutex
	filter core.FilterState
	picker *calendar.Picker
}

// NewSession creates a session with an empty filter and a closed picker.
func NewSession(reader SnapshotReader, opts Options) *Session {
	return &Session{
		reader: reader,
		cache:  opts.Cache,
		logger: log.OrDiscard(opts.Logger).WithComponent(log.ComponentView),
		filter: core.FilterState{Location: opts.Location},
		picker: calendar.NewPicker(opts.Picker...),
	}
}

// Filter returns the current filter.
func (s *Session) Filter() core.FilterState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// SetSearch replaces the search text. It is stored as typed and normalized on use.
func (s *Session) SetSearch(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter.SearchText = text
}

// SetRange replaces both bounds. A crossed range is rejected with
// *core.InvalidRangeError and the current range is kept.
func (s *Session) SetRange(r core.DateRange) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter.Range = r
	return nil
}

// ClearFilters resets search and range. The picker is left as it is.
func (s *Session) ClearFilters() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter.SearchText = ""
	s.filter.Range = core.DateRange{}
}

// OpenPicker opens the picker for one bound, showing the current month.
func (s *Session) OpenPicker(mode calendar.Mode) calendar.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.picker.Open(mode)
	return s.picker.State()
}

// NavigatePicker moves the displayed month.
func (s *Session) NavigatePicker(dir calendar.Direction) (calendar.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.picker.Navigate(dir)
	return s.picker.State(), err
}

// SelectDate writes d into the bound being edited and closes the picker. A
// date that would cross the other bound is rejected and the picker stays open.
func (s *Session) SelectDate(d core.Date) (calendar.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.picker.SelectDate(d, &s.filter.Range)
	if err != nil {
		s.logger.Debug("Date selection rejected",
			log.FieldMode, s.picker.State().Mode.String(), "date", d.String(), log.FieldError, err)
	}
	return s.picker.State(), err
}

// CancelPicker closes the picker without touching the range.
func (s *Session) CancelPicker() calendar.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.picker.Cancel()
	return s.picker.State()
}

// PickerState returns the picker state.
func (s *Session) PickerState() calendar.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.picker.State()
}

// PickerGrid returns the state together with the grid of the displayed month.
func (s *Session) PickerGrid() (calendar.State, [][]core.Date) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.picker.State(), s.picker.Grid()
}

// Projection filters the latest snapshot with the session filter.
func (s *Session) Projection() Projection {
	return s.ProjectionFor(s.Filter())
}

// ProjectionFor filters the latest snapshot with state instead of the session filter.
func (s *Session) ProjectionFor(state core.FilterState) Projection {
	snap := s.reader.Snapshot()
	key := strconv.FormatUint(snap.Version(), 10) + "\x00" + state.Key()

	if s.cache != nil {
		if p, ok := s.cache.Get(key); ok {
			return p.clone()
		}
	}

	records := snap.Filter(state)
	p := Projection{
		Version:    snap.Version(),
		ReceivedAt: snap.ReceivedAt(),
		Filter:     state,
		Records:    records,
		Summary:    core.Summarize(records),
		Warnings:   len(snap.Warnings()),
	}
	s.logger.Debug("Projection computed",
		log.FieldVersion, p.Version, log.FieldRecords, p.Summary.Count, log.FieldSearch, state.NormalizedSearch())

	if s.cache != nil {
		s.cache.Set(key, p)
	}
	return p.clone()
}

func (p Projection) clone() Projection {
	p.Records = slices.Clone(p.Records)
	return p
}

// WeekStart is the first weekday of the picker grid rows.
func (s *Session) WeekStart() time.Weekday {
	return s.picker.WeekStart()
}
