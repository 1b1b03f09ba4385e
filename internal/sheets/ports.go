package sheets

import (
	"context"

	"expenditures/internal/core"
)

// Ports for outbound adapters.
type (
	// RecordReader reads every record of the collection in storage order.
	RecordReader interface {
		ReadAll(ctx context.Context) ([]core.Record, error)
	}
)
