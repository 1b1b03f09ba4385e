package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"expenditures/internal/amqp"
	"expenditures/internal/core"
	"expenditures/internal/source/memory"
)

type fakePublisher struct {
	msgs   []*amqp.ChangeMessage
	err    error
	closed bool
}

func (f *fakePublisher) PublishChange(_ context.Context, msg *amqp.ChangeMessage) error {
	f.msgs = append(f.msgs, msg)
	return f.err
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

type failingStore struct{ err error }

func (f failingStore) Create(context.Context, core.NewRecord) (core.Record, error) {
	return core.Record{}, f.err
}

func (f failingStore) Update(context.Context, string, core.Patch) (core.Record, error) {
	return core.Record{}, f.err
}

func (f failingStore) Delete(context.Context, string) error { return f.err }

func newService(pub ChangePublisher) (*RecordService, *memory.Store) {
	store := memory.New()
	return NewRecordService(store, pub, "expenditures", nil), store
}

func TestRecordService_Create(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	svc, store := newService(pub)

	id, err := svc.Create(ctx, core.NewRecord{Item: "  Paper ", Amount: decimal.NewFromInt(500), Vendor: " ABC "})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	rec, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Item != "Paper" || rec.Vendor != "ABC" {
		t.Errorf("fields not trimmed: %+v", rec)
	}
	if len(pub.msgs) != 1 {
		t.Fatalf("expected 1 published message, got %d", len(pub.msgs))
	}
	if got := pub.msgs[0]; got.Op != amqp.OpCreated || got.ID != id || got.Collection != "expenditures" {
		t.Errorf("unexpected message %+v", got)
	}
}

func TestRecordService_CreateValidation(t *testing.T) {
	tests := []struct {
		name string
		in   core.NewRecord
		want error
	}{
		{"empty item", core.NewRecord{Item: "   ", Amount: decimal.NewFromInt(1)}, core.ErrEmptyItem},
		{"zero amount", core.NewRecord{Item: "Paper"}, core.ErrInvalidAmount},
		{"negative amount", core.NewRecord{Item: "Paper", Amount: decimal.NewFromInt(-3)}, core.ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{}
			svc, _ := newService(pub)
			_, err := svc.Create(context.Background(), tt.in)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if len(pub.msgs) != 0 {
				t.Errorf("rejected write must not publish")
			}
		})
	}
}

func TestRecordService_PublishFailureDoesNotFailWrite(t *testing.T) {
	pub := &fakePublisher{err: errors.New("circuit breaker is open")}
	svc, store := newService(pub)

	id, err := svc.Create(context.Background(), core.NewRecord{Item: "Ink", Amount: decimal.NewFromInt(2)})
	if err != nil {
		t.Fatalf("Create should succeed when publishing fails: %v", err)
	}
	if _, err := store.Get(context.Background(), id); err != nil {
		t.Fatalf("record should be saved: %v", err)
	}
}

func TestRecordService_UpdateDelete(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	svc, store := newService(pub)

	id, err := svc.Create(ctx, core.NewRecord{Item: "Ink", Amount: decimal.NewFromInt(2)})
	if err != nil {
		t.Fatal(err)
	}

	notes := "black"
	if err := svc.Update(ctx, id, core.Patch{Notes: &notes}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	rec, _ := store.Get(ctx, id)
	if rec.Notes != "black" {
		t.Errorf("notes not updated: %+v", rec)
	}

	if err := svc.Update(ctx, id, core.Patch{}); !errors.Is(err, core.ErrEmptyPatch) {
		t.Errorf("expected ErrEmptyPatch, got %v", err)
	}

	if err := svc.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, id); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := svc.Delete(ctx, id); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}

	ops := make([]amqp.ChangeOp, 0, len(pub.msgs))
	for _, m := range pub.msgs {
		ops = append(ops, m.Op)
	}
	want := []amqp.ChangeOp{amqp.OpCreated, amqp.OpUpdated, amqp.OpDeleted}
	if len(ops) != len(want) {
		t.Fatalf("expected ops %v, got %v", want, ops)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Fatalf("expected ops %v, got %v", want, ops)
		}
	}
}

func TestRecordService_StoreErrorsAreWrapped(t *testing.T) {
	cause := errors.New("disk full")
	svc := NewRecordService(failingStore{err: cause}, nil, "expenditures", nil)

	_, err := svc.Create(context.Background(), core.NewRecord{Item: "Ink", Amount: decimal.NewFromInt(2)})
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	if err := svc.Delete(context.Background(), ""); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("empty id should be not found, got %v", err)
	}
}

func TestRecordService_Close(t *testing.T) {
	t.Run("nil publisher", func(t *testing.T) {
		svc, _ := newService(nil)
		if err := svc.Close(); err != nil {
			t.Fatalf("Close should not return error: %v", err)
		}
	})

	t.Run("closes publisher", func(t *testing.T) {
		pub := &fakePublisher{}
		svc, _ := newService(pub)
		if err := svc.Close(); err != nil {
			t.Fatal(err)
		}
		if !pub.closed {
			t.Error("publisher should be closed")
		}
	})
}
