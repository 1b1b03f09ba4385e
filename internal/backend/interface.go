// Package backend assembles the live source and the write path for the
// configured data backend.
package backend

import (
	"context"

	"expenditures/internal/livesync"
	"expenditures/internal/services"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// ReadyFunc reports whether the backend's connections are usable.
type ReadyFunc func(ctx context.Context) error

// BackendResult contains the wired components of one backend.
type BackendResult struct {
	Source livesync.Source
	// Mutator is nil for read-only backends.
	Mutator services.Mutator
	Ready   ReadyFunc
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	SheetsBackend BackendType = "sheets"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, SheetsBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
