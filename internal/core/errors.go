package core

import "fmt"

// ConnectionError reports a failure to reach or keep listening to the remote collection.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return "connection error: " + e.Op
	}
	return fmt.Sprintf("connection error: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// InvalidRangeError reports a date selection that would cross the range bounds.
type InvalidRangeError struct {
	Reason string
	Start  Date
	End    Date
}

const (
	ReasonStartAfterEnd  = "start after end"
	ReasonEndBeforeStart = "end before start"
)

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid range: %s (start %s, end %s)", e.Reason, e.Start, e.End)
}

// CoercionWarning records a field that could not be converted to its expected type.
// The record is kept with a default value in place of the bad field.
type CoercionWarning struct {
	RecordID string
	Field    string
	Value    any
	Err      error
}

func (w *CoercionWarning) Error() string {
	return fmt.Sprintf("coerce %s of record %q (value %v): %v", w.Field, w.RecordID, w.Value, w.Err)
}

func (w *CoercionWarning) Unwrap() error { return w.Err }
