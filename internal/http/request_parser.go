package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"expenditures/internal/calendar"
	"expenditures/internal/core"
)

const maxBodyBytes = 1 << 20

// errBadRequest marks malformed input; the handler answers 400.
var errBadRequest = errors.New("bad request")

type recordPayload struct {
	Item   string          `json:"item"`
	Amount json.RawMessage `json:"amount"`
	Vendor string          `json:"vendor"`
	Notes  string          `json:"notes"`
}

type patchPayload struct {
	Item   *string         `json:"item"`
	Amount json.RawMessage `json:"amount"`
	Vendor *string         `json:"vendor"`
	Notes  *string         `json:"notes"`
}

type filterPayload struct {
	Search string `json:"search"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

type openPayload struct {
	Mode string `json:"mode"`
}

type navigatePayload struct {
	Direction string `json:"direction"`
}

type selectPayload struct {
	Date string `json:"date"`
}

// decodeJSON reads a single JSON object from the body, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decode body: %v", errBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON object", errBadRequest)
	}
	return nil
}

// parseAmount accepts a JSON string ("12,50") or number (12.5) and applies
// the entry rule: a plain, strictly positive decimal.
func parseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return decimal.Zero, core.ErrInvalidAmount
	}
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero, core.ErrInvalidAmount
		}
	}
	return core.ParseAmount(s)
}

func (p recordPayload) toNewRecord() (core.NewRecord, error) {
	amount, err := parseAmount(p.Amount)
	if err != nil {
		return core.NewRecord{}, err
	}
	return core.NewRecord{
		Item:   sanitizeInput(p.Item),
		Amount: amount,
		Vendor: sanitizeInput(p.Vendor),
		Notes:  sanitizeInput(p.Notes),
	}, nil
}

func (p patchPayload) toPatch() (core.Patch, error) {
	var patch core.Patch
	if p.Item != nil {
		v := sanitizeInput(*p.Item)
		patch.Item = &v
	}
	if p.Vendor != nil {
		v := sanitizeInput(*p.Vendor)
		patch.Vendor = &v
	}
	if p.Notes != nil {
		v := sanitizeInput(*p.Notes)
		patch.Notes = &v
	}
	if len(p.Amount) > 0 {
		amount, err := parseAmount(p.Amount)
		if err != nil {
			return core.Patch{}, err
		}
		patch.Amount = &amount
	}
	return patch, nil
}

// parseBound reads an optional YYYY-MM-DD bound. Empty means absent; anything
// else that does not parse is a client error.
func parseBound(name, s string) (core.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return core.Date{}, nil
	}
	d, ok := core.ParseDate(s)
	if !ok {
		return core.Date{}, fmt.Errorf("%w: invalid %s date %q", errBadRequest, name, s)
	}
	return d, nil
}

func (p filterPayload) toRange() (core.DateRange, error) {
	start, err := parseBound("start", p.Start)
	if err != nil {
		return core.DateRange{}, err
	}
	end, err := parseBound("end", p.End)
	if err != nil {
		return core.DateRange{}, err
	}
	return core.DateRange{Start: start, End: end}, nil
}

// filterFromQuery overlays the q, start and end query parameters on base.
// A parameter that is present but empty clears that part of the filter.
func filterFromQuery(base core.FilterState, q url.Values) (core.FilterState, error) {
	if q.Has("q") {
		base.SearchText = q.Get("q")
	}
	if q.Has("start") {
		d, err := parseBound("start", q.Get("start"))
		if err != nil {
			return base, err
		}
		base.Range.Start = d
	}
	if q.Has("end") {
		d, err := parseBound("end", q.Get("end"))
		if err != nil {
			return base, err
		}
		base.Range.End = d
	}
	if err := base.Range.Validate(); err != nil {
		return base, err
	}
	return base, nil
}

func (p selectPayload) toDate() (core.Date, error) {
	d, ok := core.ParseDate(p.Date)
	if !ok {
		return core.Date{}, fmt.Errorf("%w: %q", calendar.ErrInvalidDate, p.Date)
	}
	return d, nil
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

func badRequest(err error) error {
	return fmt.Errorf("%w: %v", errBadRequest, err)
}
