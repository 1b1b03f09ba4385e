package livesync

import (
	"time"

	"expenditures/internal/core"
)

// Snapshot is an immutable, ordered view of the collection as of one
// delivery. The zero Snapshot is empty with version 0.
type Snapshot struct {
	version    uint64
	receivedAt time.Time
	records    []core.Record
	warnings   []*core.CoercionWarning
}

// NewSnapshot builds a snapshot from already typed records. The slice is copied.
func NewSnapshot(version uint64, receivedAt time.Time, records []core.Record) Snapshot {
	return Snapshot{
		version:    version,
		receivedAt: receivedAt,
		records:    append([]core.Record(nil), records...),
	}
}

// Version increases by one with every delivery.
func (s Snapshot) Version() uint64 { return s.version }

// ReceivedAt is when the delivery was applied.
func (s Snapshot) ReceivedAt() time.Time { return s.receivedAt }

// Len returns the number of records.
func (s Snapshot) Len() int { return len(s.records) }

// At returns the i-th record in source order.
func (s Snapshot) At(i int) core.Record { return s.records[i] }

// Records returns a copy of the records in source order.
func (s Snapshot) Records() []core.Record {
	return append([]core.Record(nil), s.records...)
}

// Warnings returns the coercion warnings raised while building the snapshot.
func (s Snapshot) Warnings() []*core.CoercionWarning {
	return append([]*core.CoercionWarning(nil), s.warnings...)
}

// Filter applies core.Filter to the snapshot without copying it first.
func (s Snapshot) Filter(state core.FilterState) []core.Record {
	return core.Filter(s.records, state)
}
