package calendar

import (
	"fmt"
	"time"

	"expenditures/internal/core"
)

// Month is a (year, month) pair.
type Month struct {
	Year  int
	Month time.Month
}

// MonthOf returns the month containing t.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// Next returns the following month, wrapping December into January.
func (m Month) Next() Month {
	if m.Month == time.December {
		return Month{Year: m.Year + 1, Month: time.January}
	}
	return Month{Year: m.Year, Month: m.Month + 1}
}

// Prev returns the preceding month, wrapping January into December.
func (m Month) Prev() Month {
	if m.Month == time.January {
		return Month{Year: m.Year - 1, Month: time.December}
	}
	return Month{Year: m.Year, Month: m.Month - 1}
}

// Days returns the number of days in the month.
func (m Month) Days() int {
	return core.DaysIn(m.Year, m.Month)
}

// String formats the month as YYYY-MM.
func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// ParseMonth parses YYYY-MM.
func ParseMonth(s string) (Month, error) {
	d, ok := core.ParseDate(s + "-01")
	if !ok {
		return Month{}, fmt.Errorf("invalid month %q", s)
	}
	return Month{Year: d.Year, Month: d.Month}, nil
}

// Grid lays out the month as rows of 7 cells. Day 1 sits in the column of its
// weekday counted from weekStart; cells before it and after the last day are
// zero core.Date placeholders.
func Grid(m Month, weekStart time.Weekday) [][]core.Date {
	first := core.NewDate(m.Year, m.Month, 1)
	offset := (int(first.Weekday()) - int(weekStart) + 7) % 7
	days := m.Days()

	rows := make([][]core.Date, 0, 6)
	cells := make([]core.Date, offset, 7)
	for d := 1; d <= days; d++ {
		cells = append(cells, core.NewDate(m.Year, m.Month, d))
		if len(cells) == 7 {
			rows = append(rows, cells)
			cells = make([]core.Date, 0, 7)
		}
	}
	if len(cells) > 0 {
		for len(cells) < 7 {
			cells = append(cells, core.Date{})
		}
		rows = append(rows, cells)
	}
	return rows
}
