package google

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"expenditures/internal/core"
)

const (
	colID = iota
	colItem
	colAmount
	colVendor
	colNotes
	colCreatedAt
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006",
}

type cellProblem struct {
	row, col int
	err      error
}

func (p cellProblem) ref(sheet string) string {
	return fmt.Sprintf("%s!%c%d", sheet, 'A'+rune(p.col), p.row+1)
}

// parseRows converts a values matrix (as returned by the Sheets API) into
// records. Blank rows are skipped, and so is a first row whose ID cell reads
// "id". Rows without an id get "row-<n>" from their sheet row number.
func parseRows(values [][]any, loc *time.Location) ([]core.Record, []cellProblem) {
	if loc == nil {
		loc = time.Local
	}
	var (
		out      []core.Record
		problems []cellProblem
	)
	for i, row := range values {
		cols := toStrings(row)
		if isBlank(cols) {
			continue
		}
		if i == 0 && strings.EqualFold(safeGet(cols, colID), "id") {
			continue
		}

		rec := core.Record{
			ID:     safeGet(cols, colID),
			Item:   safeGet(cols, colItem),
			Vendor: safeGet(cols, colVendor),
			Notes:  safeGet(cols, colNotes),
		}
		if rec.ID == "" {
			rec.ID = "row-" + strconv.Itoa(i+1)
		}

		var amount any
		if colAmount < len(row) {
			amount = row[colAmount]
		}
		d, err := core.CoerceAmount(amount)
		if err != nil {
			problems = append(problems, cellProblem{row: i, col: colAmount, err: err})
		}
		rec.Amount = d

		if raw := safeGet(cols, colCreatedAt); raw != "" {
			t, err := parseTime(raw, loc)
			if err != nil {
				problems = append(problems, cellProblem{row: i, col: colCreatedAt, err: err})
			}
			rec.CreatedAt = t
		}
		out = append(out, rec)
	}
	return out, problems
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func isBlank(cols []string) bool {
	for _, c := range cols {
		if c != "" {
			return false
		}
	}
	return true
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
