package livesync

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"expenditures/internal/core"
)

// Field names of the remote payload.
const (
	FieldItem      = "item"
	FieldAmount    = "amount"
	FieldVendor    = "vendor"
	FieldNotes     = "notes"
	FieldCreatedAt = "createdAt"
	FieldID        = "id"
)

var (
	errNotString    = errors.New("not a string")
	errNotTimestamp = errors.New("not a timestamp")
	errMissingID    = errors.New("missing id")
	errDuplicateID  = errors.New("duplicate id")
)

// Coerce converts delivered documents into typed records, keeping their order.
//
// A field that cannot be converted is replaced by its zero value and reported
// as a *core.CoercionWarning; the record itself is kept. When an id repeats,
// the first occurrence wins and later ones are dropped with a warning.
func Coerce(docs []Document) ([]core.Record, []*core.CoercionWarning) {
	records := make([]core.Record, 0, len(docs))
	var warnings []*core.CoercionWarning
	seen := make(map[string]struct{}, len(docs))

	warn := func(id, field string, v any, err error) {
		warnings = append(warnings, &core.CoercionWarning{RecordID: id, Field: field, Value: v, Err: err})
	}

	for _, doc := range docs {
		id := doc.ID
		if id == "" {
			if s, ok := doc.Fields[FieldID].(string); ok {
				id = s
			}
		}
		if id == "" {
			warn("", FieldID, nil, errMissingID)
		} else {
			if _, dup := seen[id]; dup {
				warn(id, FieldID, id, errDuplicateID)
				continue
			}
			seen[id] = struct{}{}
		}

		rec := core.Record{ID: id}
		var err error
		if rec.Item, err = coerceString(doc.Fields[FieldItem]); err != nil {
			warn(id, FieldItem, doc.Fields[FieldItem], err)
		}
		if rec.Vendor, err = coerceString(doc.Fields[FieldVendor]); err != nil {
			warn(id, FieldVendor, doc.Fields[FieldVendor], err)
		}
		if rec.Notes, err = coerceString(doc.Fields[FieldNotes]); err != nil {
			warn(id, FieldNotes, doc.Fields[FieldNotes], err)
		}
		if rec.Amount, err = core.CoerceAmount(doc.Fields[FieldAmount]); err != nil {
			warn(id, FieldAmount, doc.Fields[FieldAmount], err)
		}
		if rec.CreatedAt, err = coerceTime(doc.Fields[FieldCreatedAt]); err != nil {
			warn(id, FieldCreatedAt, doc.Fields[FieldCreatedAt], err)
		}
		records = append(records, rec)
	}
	return records, warnings
}

func coerceString(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case *string:
		if x == nil {
			return "", nil
		}
		return *x, nil
	case []byte:
		return string(x), nil
	case fmt.Stringer:
		return x.String(), nil
	case bool, int, int32, int64, float32, float64:
		return fmt.Sprint(x), errNotString
	default:
		return "", errNotString
	}
}

// coerceTime accepts the timestamp shapes remote stores hand out. A missing
// value means the server has not assigned the time yet and is not an error.
func coerceTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return x, nil
	case *time.Time:
		if x == nil {
			return time.Time{}, nil
		}
		return *x, nil
	case int64:
		return time.UnixMilli(x), nil
	case int:
		return time.UnixMilli(int64(x)), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return time.Time{}, errNotTimestamp
		}
		return time.UnixMilli(int64(x)), nil
	case json.Number:
		ms, err := x.Int64()
		if err != nil {
			return time.Time{}, errNotTimestamp
		}
		return time.UnixMilli(ms), nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}, nil
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t, nil
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms), nil
		}
		return time.Time{}, errNotTimestamp
	case map[string]any:
		return coerceTimestampMap(x)
	default:
		return time.Time{}, errNotTimestamp
	}
}

// coerceTimestampMap reads {seconds, nanoseconds} objects, also accepting the
// underscore-prefixed keys some SDKs serialize.
func coerceTimestampMap(m map[string]any) (time.Time, error) {
	sec, ok := lookupNumber(m, "seconds", "_seconds")
	if !ok {
		return time.Time{}, errNotTimestamp
	}
	nsec, _ := lookupNumber(m, "nanoseconds", "_nanoseconds")
	return time.Unix(sec, nsec), nil
}

func lookupNumber(m map[string]any, keys ...string) (int64, bool) {
	for _, k := range keys {
		switch n := m[k].(type) {
		case int64:
			return n, true
		case int:
			return int64(n), true
		case float64:
			if math.IsNaN(n) || math.IsInf(n, 0) {
				return 0, false
			}
			return int64(n), true
		case json.Number:
			v, err := n.Int64()
			return v, err == nil
		}
	}
	return 0, false
}
