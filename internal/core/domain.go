package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type (
	// Record is one expenditure as held in the local cache.
	Record struct {
		ID     string
		Item   string
		Amount decimal.Decimal
		Vendor string
		Notes  string
		// CreatedAt is zero while the store has not assigned it yet.
		CreatedAt time.Time
	}

	// NewRecord holds the user supplied fields of a record about to be created.
	NewRecord struct {
		Item   string
		Amount decimal.Decimal
		Vendor string
		Notes  string
	}

	// Patch lists the fields to change on an existing record. Nil fields are left untouched.
	Patch struct {
		Item   *string
		Amount *decimal.Decimal
		Vendor *string
		Notes  *string
	}
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrEmptyItem     = errors.New("empty item")
	ErrItemTooLong   = errors.New("item too long (max 200 characters)")
	ErrEmptyPatch    = errors.New("empty patch")
	ErrNotFound      = errors.New("record not found")
)

// HasCreatedAt reports whether the store has assigned a creation time.
func (r Record) HasCreatedAt() bool {
	return !r.CreatedAt.IsZero()
}

// Normalize trims the free text fields.
func (n NewRecord) Normalize() NewRecord {
	n.Item = strings.TrimSpace(n.Item)
	n.Vendor = strings.TrimSpace(n.Vendor)
	n.Notes = strings.TrimSpace(n.Notes)
	return n
}

// Validate applies the entry rules: an item label and a strictly positive amount.
func (n NewRecord) Validate() error {
	if strings.TrimSpace(n.Item) == "" {
		return ErrEmptyItem
	}
	if len(n.Item) > 200 {
		return ErrItemTooLong
	}
	if !n.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Item == nil && p.Amount == nil && p.Vendor == nil && p.Notes == nil
}

// Validate applies the entry rules to the fields present in the patch.
func (p Patch) Validate() error {
	if p.IsEmpty() {
		return ErrEmptyPatch
	}
	if p.Item != nil {
		item := strings.TrimSpace(*p.Item)
		if item == "" {
			return ErrEmptyItem
		}
		if len(item) > 200 {
			return ErrItemTooLong
		}
	}
	if p.Amount != nil && !p.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// Apply returns r with the patch fields written over it.
func (p Patch) Apply(r Record) Record {
	if p.Item != nil {
		r.Item = strings.TrimSpace(*p.Item)
	}
	if p.Amount != nil {
		r.Amount = *p.Amount
	}
	if p.Vendor != nil {
		r.Vendor = strings.TrimSpace(*p.Vendor)
	}
	if p.Notes != nil {
		r.Notes = strings.TrimSpace(*p.Notes)
	}
	return r
}
