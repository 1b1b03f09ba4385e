// Package calendar implements the date-range picker: a two-state machine
// (closed, or open on a displayed month for one bound) that writes validated
// bounds into a caller owned core.DateRange, plus the month grid helper.
package calendar

import (
	"errors"
	"fmt"
	"time"

	"expenditures/internal/core"
)

// Mode names the range bound being edited.
type Mode int

const (
	ModeStart Mode = iota
	ModeEnd
)

func (m Mode) String() string {
	switch m {
	case ModeStart:
		return "start"
	case ModeEnd:
		return "end"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "start" or "end".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "start":
		return ModeStart, nil
	case "end":
		return ModeEnd, nil
	default:
		return 0, fmt.Errorf("invalid picker mode %q", s)
	}
}

// Direction is a month navigation step.
type Direction int

const (
	Prev Direction = -1
	Next Direction = 1
)

// ParseDirection parses "prev" or "next".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "prev":
		return Prev, nil
	case "next":
		return Next, nil
	default:
		return 0, fmt.Errorf("invalid direction %q", s)
	}
}

var (
	ErrClosed      = errors.New("picker is closed")
	ErrInvalidDate = errors.New("invalid date")
	ErrNilRange    = errors.New("nil date range")
)

// State is a read-only view of the picker.
type State struct {
	IsOpen         bool
	Mode           Mode
	DisplayedMonth Month
}

// Picker is the calendar state machine. It is not safe for concurrent use;
// callers that share a picker across goroutines must serialize access.
type Picker struct {
	open      bool
	mode      Mode
	month     Month
	now       func() time.Time
	weekStart time.Weekday
}

// Option configures a Picker.
type Option func(*Picker)

// WithClock sets the clock used to find the current month.
func WithClock(now func() time.Time) Option {
	return func(p *Picker) { p.now = now }
}

// WithWeekStart sets the weekday placed in the first grid column.
func WithWeekStart(d time.Weekday) Option {
	return func(p *Picker) { p.weekStart = d }
}

// NewPicker returns a closed picker.
func NewPicker(opts ...Option) *Picker {
	p := &Picker{now: time.Now, weekStart: time.Sunday}
	for _, opt := range opts {
		opt(p)
	}
	p.month = MonthOf(p.now())
	return p
}

// State returns the current picker state.
func (p *Picker) State() State {
	return State{IsOpen: p.open, Mode: p.mode, DisplayedMonth: p.month}
}

// Open starts editing the given bound on the current month. Opening an
// already open picker retargets it and resets the displayed month.
func (p *Picker) Open(mode Mode) {
	p.open = true
	p.mode = mode
	p.month = MonthOf(p.now())
}

// Navigate moves the displayed month one step back or forward.
func (p *Picker) Navigate(dir Direction) error {
	if !p.open {
		return ErrClosed
	}
	switch dir {
	case Prev:
		p.month = p.month.Prev()
	case Next:
		p.month = p.month.Next()
	default:
		return fmt.Errorf("invalid direction %d", int(dir))
	}
	return nil
}

// SelectDate writes d into the bound being edited and closes the picker.
// A selection that would cross the other bound is rejected with a
// *core.InvalidRangeError and leaves both the picker and rng untouched.
func (p *Picker) SelectDate(d core.Date, rng *core.DateRange) error {
	if !p.open {
		return ErrClosed
	}
	if rng == nil {
		return ErrNilRange
	}
	if !d.IsValid() {
		return fmt.Errorf("%w: %v", ErrInvalidDate, d)
	}

	var (
		next core.DateRange
		err  error
	)
	switch p.mode {
	case ModeStart:
		next, err = rng.WithStart(d)
	case ModeEnd:
		next, err = rng.WithEnd(d)
	default:
		return fmt.Errorf("invalid picker mode %v", p.mode)
	}
	if err != nil {
		return err
	}

	*rng = next
	p.open = false
	return nil
}

// Cancel closes the picker without touching any range.
func (p *Picker) Cancel() {
	p.open = false
}

// Grid returns the cells for the displayed month using the picker's week start.
func (p *Picker) Grid() [][]core.Date {
	return Grid(p.month, p.weekStart)
}

// WeekStart returns the weekday of the first grid column.
func (p *Picker) WeekStart() time.Weekday {
	return p.weekStart
}
