// Package core provides the expenditure domain: records, calendar dates,
// date ranges, amount parsing, and the filter and aggregation functions
// computed over a cached snapshot.
//
// This file contains amount parsing and defensive amount coercion.
package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a user entered amount such as "12.34" or "12,34".
//
// Only strictly positive values are accepted; signs, exponents, thousands
// separators and zero are rejected with ErrInvalidAmount.
//
// Examples:
//
//	ParseAmount("500")    -> 500, nil
//	ParseAmount("12,50")  -> 12.5, nil
//	ParseAmount("0")      -> 0, ErrInvalidAmount
//	ParseAmount("-3")     -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range s {
		if r != '.' && !unicode.IsDigit(r) {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

var (
	errNotNumeric = errors.New("not a number")
	errNegative   = errors.New("negative amount")
)

// CoerceAmount converts an externally sourced amount to a decimal.
//
// Missing values (nil) become zero without an error. Values that are not
// numeric, not finite or negative become zero with an error describing why;
// callers report that as a CoercionWarning and keep the record.
func CoerceAmount(v any) (decimal.Decimal, error) {
	var d decimal.Decimal
	switch x := v.(type) {
	case nil:
		return decimal.Zero, nil
	case decimal.Decimal:
		d = x
	case *decimal.Decimal:
		if x == nil {
			return decimal.Zero, nil
		}
		d = *x
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Zero, errNotNumeric
		}
		d = decimal.NewFromFloat(x)
	case float32:
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Zero, errNotNumeric
		}
		d = decimal.NewFromFloat32(x)
	case int:
		d = decimal.NewFromInt(int64(x))
	case int32:
		d = decimal.NewFromInt32(x)
	case int64:
		d = decimal.NewFromInt(x)
	case uint32:
		d = decimal.NewFromInt(int64(x))
	case json.Number:
		parsed, err := decimal.NewFromString(x.String())
		if err != nil {
			return decimal.Zero, errNotNumeric
		}
		d = parsed
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return decimal.Zero, nil
		}
		parsed, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
		if err != nil {
			return decimal.Zero, errNotNumeric
		}
		d = parsed
	default:
		return decimal.Zero, fmt.Errorf("%w: unsupported type %T", errNotNumeric, v)
	}
	if d.IsNegative() {
		return decimal.Zero, errNegative
	}
	return d, nil
}
