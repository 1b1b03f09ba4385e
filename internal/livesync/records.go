package livesync

import (
	"sort"
	"strings"

	"expenditures/internal/core"
)

// ToDocument renders a record in the remote payload shape. A zero
// createdAt is sent as a missing value.
func ToDocument(r core.Record) Document {
	fields := map[string]any{
		FieldItem:   r.Item,
		FieldAmount: r.Amount,
	}
	if r.Vendor != "" {
		fields[FieldVendor] = r.Vendor
	}
	if r.Notes != "" {
		fields[FieldNotes] = r.Notes
	}
	if r.HasCreatedAt() {
		fields[FieldCreatedAt] = r.CreatedAt
	} else {
		fields[FieldCreatedAt] = nil
	}
	return Document{ID: r.ID, Fields: fields}
}

// ToDocuments renders records in order.
func ToDocuments(recs []core.Record) []Document {
	docs := make([]Document, len(recs))
	for i, r := range recs {
		docs[i] = ToDocument(r)
	}
	return docs
}

// SortRecords orders records by createdAt, amount or item. Unknown fields
// fall back to createdAt. Pending createdAt values sort first in descending
// order, as a server timestamp placeholder would. The sort is stable.
func SortRecords(recs []core.Record, field string, dir Direction) {
	compare := func(a, b core.Record) int {
		switch strings.ToLower(field) {
		case "amount":
			return a.Amount.Cmp(b.Amount)
		case "item":
			return strings.Compare(strings.ToLower(a.Item), strings.ToLower(b.Item))
		default:
			return compareCreated(a, b)
		}
	}
	sort.SliceStable(recs, func(i, j int) bool {
		c := compare(recs[i], recs[j])
		if dir == Descending {
			return c > 0
		}
		return c < 0
	})
}

func compareCreated(a, b core.Record) int {
	switch {
	case !a.HasCreatedAt() && !b.HasCreatedAt():
		return 0
	case !a.HasCreatedAt():
		return 1
	case !b.HasCreatedAt():
		return -1
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}
