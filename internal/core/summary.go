package core

import "github.com/shopspring/decimal"

// Summary is the aggregate computed over a filtered list.
type Summary struct {
	Count int
	Total decimal.Decimal
}

// Sum adds the amounts of the records. Amounts are already coerced at the
// sync boundary, so missing or invalid ones contribute zero.
func Sum(records []Record) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.Amount)
	}
	return total
}

// Summarize returns the record count and amount total.
func Summarize(records []Record) Summary {
	return Summary{Count: len(records), Total: Sum(records)}
}
