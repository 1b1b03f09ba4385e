package services

import (
	"context"
	"errors"
	"fmt"

	"expenditures/internal/amqp"
	"expenditures/internal/core"
	"expenditures/internal/log"
)

// Mutator is the write side used by the HTTP boundary.
type Mutator interface {
	Create(ctx context.Context, n core.NewRecord) (string, error)
	Update(ctx context.Context, id string, p core.Patch) error
	Delete(ctx context.Context, id string) error
}

// RecordStore persists records. The store assigns ids and createdAt.
type RecordStore interface {
	Create(ctx context.Context, n core.NewRecord) (core.Record, error)
	Update(ctx context.Context, id string, p core.Patch) (core.Record, error)
	Delete(ctx context.Context, id string) error
}

// ChangePublisher announces a completed write to listening sources.
type ChangePublisher interface {
	PublishChange(ctx context.Context, msg *amqp.ChangeMessage) error
}

var _ Mutator = (*RecordService)(nil)

// RecordService validates writes, saves them in the store and publishes a
// change notification afterwards.
type RecordService struct {
	store      RecordStore
	publisher  ChangePublisher
	collection string
	logger     *log.Logger
	events     *log.StructuredLogger
}

// NewRecordService creates a service. publisher may be nil, in which case
// writes are saved but not announced.
func NewRecordService(store RecordStore, publisher ChangePublisher, collection string, logger *log.Logger) *RecordService {
	logger = log.OrDiscard(logger).WithComponent(log.ComponentService)
	return &RecordService{
		store:      store,
		publisher:  publisher,
		collection: collection,
		logger:     logger,
		events:     log.NewStructuredLogger(logger),
	}
}

// Create saves a new record and returns its id.
func (s *RecordService) Create(ctx context.Context, n core.NewRecord) (string, error) {
	n = n.Normalize()
	if err := n.Validate(); err != nil {
		return "", err
	}

	// Save first; a failed publish never fails the request.
	rec, err := s.store.Create(ctx, n)
	if err != nil {
		return "", fmt.Errorf("save record: %w", err)
	}
	s.events.LogRecordChanged(ctx, log.OpCreate, rec.ID, rec.Item, rec.Amount.StringFixed(2))
	s.publish(ctx, amqp.OpCreated, rec.ID)
	return rec.ID, nil
}

// Update applies p to the record with the given id.
func (s *RecordService) Update(ctx context.Context, id string, p core.Patch) error {
	if id == "" {
		return core.ErrNotFound
	}
	if err := p.Validate(); err != nil {
		return err
	}
	rec, err := s.store.Update(ctx, id, p)
	if err != nil {
		return fmt.Errorf("update record %s: %w", id, err)
	}
	s.events.LogRecordChanged(ctx, log.OpUpdate, rec.ID, rec.Item, rec.Amount.StringFixed(2))
	s.publish(ctx, amqp.OpUpdated, rec.ID)
	return nil
}

// Delete removes the record with the given id.
func (s *RecordService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return core.ErrNotFound
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	s.events.LogRecordChanged(ctx, log.OpDelete, id, "", "")
	s.publish(ctx, amqp.OpDeleted, id)
	return nil
}

func (s *RecordService) publish(ctx context.Context, op amqp.ChangeOp, id string) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "No change publisher, skipping notification", log.FieldRecordID, id)
		return
	}
	if err := s.publisher.PublishChange(ctx, amqp.NewChangeMessage(s.collection, op, id)); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish change",
			log.FieldRecordID, id, log.FieldOperation, log.OpPublish, "change", string(op), log.FieldError, err)
	}
}

// Close closes the store and the publisher when they hold resources.
func (s *RecordService) Close() error {
	var errs []error
	if c, ok := s.store.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if c, ok := s.publisher.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close record service: %w", err)
	}
	return nil
}
