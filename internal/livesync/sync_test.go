package livesync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"expenditures/internal/core"
)

type fakeSub struct {
	onSnapshot   func([]Document)
	onError      func(error)
	unsubscribed atomic.Int32
}

func (f *fakeSub) Unsubscribe() error {
	f.unsubscribed.Add(1)
	return nil
}

type fakeSource struct {
	mu    sync.Mutex
	subs  []*fakeSub
	query Query
	err   error
}

func (f *fakeSource) Subscribe(_ context.Context, q Query, onSnapshot func([]Document), onError func(error)) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.query = q
	if f.err != nil {
		return nil, f.err
	}
	s := &fakeSub{onSnapshot: onSnapshot, onError: onError}
	f.subs = append(f.subs, s)
	return s, nil
}

func (f *fakeSource) last() *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[len(f.subs)-1]
}

func docs(ids ...string) []Document {
	out := make([]Document, len(ids))
	for i, id := range ids {
		out[i] = Document{ID: id, Fields: map[string]any{
			FieldItem:      "item " + id,
			FieldAmount:    float64(i + 1),
			FieldCreatedAt: time.Date(2025, 3, 10-i, 12, 0, 0, 0, time.UTC),
		}}
	}
	return out
}

func recordIDs(s Snapshot) []string {
	out := make([]string, s.Len())
	for i := range out {
		out[i] = s.At(i).ID
	}
	return out
}

func TestSyncDeliversToAllObservers(t *testing.T) {
	src := &fakeSource{}
	s := New(src, Options{Collection: "expenditures"})

	var got1, got2 []Snapshot
	s.Register(func(_ context.Context, snap Snapshot) { got1 = append(got1, snap) }, nil)
	s.Register(func(_ context.Context, snap Snapshot) { got2 = append(got2, snap) }, nil)

	h := s.Start(context.Background(), "createdAt", Descending)
	if src.query != (Query{Collection: "expenditures", OrderField: "createdAt", Direction: Descending}) {
		t.Fatalf("unexpected query %+v", src.query)
	}
	if st := s.Status(); st.State != StateLive || st.Handle != h {
		t.Fatalf("unexpected status %+v", st)
	}

	sub := src.last()
	sub.onSnapshot(docs("a", "b"))
	if len(got1) != 1 || len(got2) != 1 {
		t.Fatalf("expected one notification each, got %d and %d", len(got1), len(got2))
	}
	if got1[0].Version() != got2[0].Version() || len(recordIDs(got1[0])) != 2 {
		t.Fatalf("observers saw different snapshots")
	}

	sub.onSnapshot(docs("c"))
	if len(got1) != 2 || len(got2) != 2 || got1[1].Version() != 2 {
		t.Fatalf("second delivery not propagated")
	}
	if ids := recordIDs(s.Snapshot()); len(ids) != 1 || ids[0] != "c" {
		t.Fatalf("snapshot not fully replaced: %v", ids)
	}

	if err := s.Stop(context.Background(), h); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if sub.unsubscribed.Load() != 1 {
		t.Fatalf("expected remote unsubscribe")
	}

	// Late event after stop.
	sub.onSnapshot(docs("d"))
	if len(got1) != 2 || len(got2) != 2 {
		t.Fatalf("late delivery reached observers")
	}
	if s.Snapshot().Version() != 2 {
		t.Fatalf("late delivery replaced the snapshot")
	}
	if s.Status().State != StateStopped {
		t.Fatalf("expected stopped state, got %v", s.Status().State)
	}

	// Idempotent.
	if err := s.Stop(context.Background(), h); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if sub.unsubscribed.Load() != 1 {
		t.Fatalf("second stop must not unsubscribe again")
	}
}

func TestSyncStopFromObserver(t *testing.T) {
	src := &fakeSource{}
	s := New(src, Options{})

	var h Handle
	var second int
	s.Register(func(ctx context.Context, _ Snapshot) {
		if err := s.Stop(ctx, h); err != nil {
			t.Errorf("stop: %v", err)
		}
	}, nil)
	s.Register(func(context.Context, Snapshot) { second++ }, nil)

	h = s.Start(context.Background(), "createdAt", Descending)

	done := make(chan struct{})
	go func() {
		src.last().onSnapshot(docs("a"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stop from observer deadlocked")
	}
	if second != 0 {
		t.Fatalf("observer after stop was notified %d times", second)
	}
}

func TestSyncStopWaitsForInFlightDelivery(t *testing.T) {
	src := &fakeSource{}
	s := New(src, Options{})

	entered := make(chan struct{})
	release := make(chan struct{})
	var after atomic.Int32
	s.Register(func(context.Context, Snapshot) {
		close(entered)
		<-release
	}, nil)
	s.Register(func(context.Context, Snapshot) { after.Add(1) }, nil)

	h := s.Start(context.Background(), "createdAt", Descending)
	go src.last().onSnapshot(docs("a"))
	<-entered

	stopped := make(chan struct{})
	go func() {
		_ = s.Stop(context.Background(), h)
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("stop returned while a delivery was in flight")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	<-stopped

	if after.Load() != 0 {
		t.Fatalf("observer notified after stop was requested")
	}
}

func TestSyncSubscribeFailure(t *testing.T) {
	cause := errors.New("host unreachable")
	src := &fakeSource{err: cause}
	s := New(src, Options{})

	var reported []error
	s.Register(nil, func(_ context.Context, err error) { reported = append(reported, err) })

	h := s.Start(context.Background(), "createdAt", Descending)
	if h == "" {
		t.Fatalf("expected a handle even on failure")
	}
	if len(reported) != 1 {
		t.Fatalf("expected one error callback, got %d", len(reported))
	}
	var connErr *core.ConnectionError
	if !errors.As(reported[0], &connErr) || connErr.Op != "subscribe" || !errors.Is(reported[0], cause) {
		t.Fatalf("unexpected error %v", reported[0])
	}
	st := s.Status()
	if st.State != StateFailed || !errors.Is(st.Err, cause) {
		t.Fatalf("unexpected status %+v", st)
	}
	if err := s.Stop(context.Background(), h); err != nil {
		t.Fatalf("stop after failed start: %v", err)
	}
}

func TestSyncStreamErrorKeepsLastSnapshot(t *testing.T) {
	src := &fakeSource{}
	s := New(src, Options{})

	var notified, errs int
	s.Register(func(context.Context, Snapshot) { notified++ }, func(context.Context, error) { errs++ })

	s.Start(context.Background(), "createdAt", Descending)
	sub := src.last()
	sub.onSnapshot(docs("a", "b"))

	sub.onError(errors.New("stream reset"))
	sub.onError(errors.New("stream reset again"))
	if errs != 1 {
		t.Fatalf("failure must be reported once, got %d", errs)
	}
	if s.Status().State != StateFailed {
		t.Fatalf("expected failed state")
	}
	if sub.unsubscribed.Load() != 1 {
		t.Fatalf("failed stream should be unsubscribed")
	}

	sub.onSnapshot(docs("c"))
	if notified != 1 {
		t.Fatalf("updates must halt after failure")
	}
	if ids := recordIDs(s.Snapshot()); len(ids) != 2 {
		t.Fatalf("last good snapshot lost: %v", ids)
	}

	// A fresh start resumes.
	s.Start(context.Background(), "createdAt", Descending)
	src.last().onSnapshot(docs("c"))
	if notified != 2 || s.Status().State != StateLive {
		t.Fatalf("restart did not resume updates")
	}
}

func TestSyncStartReplacesPreviousSubscription(t *testing.T) {
	src := &fakeSource{}
	s := New(src, Options{})
	var versions []uint64
	s.Register(func(_ context.Context, snap Snapshot) { versions = append(versions, snap.Version()) }, nil)

	s.Start(context.Background(), "createdAt", Descending)
	first := src.last()
	s.Start(context.Background(), "createdAt", Ascending)
	second := src.last()

	if first.unsubscribed.Load() != 1 {
		t.Fatalf("previous subscription not released")
	}
	first.onSnapshot(docs("old"))
	second.onSnapshot(docs("new"))
	if len(versions) != 1 || s.Snapshot().At(0).ID != "new" {
		t.Fatalf("unexpected deliveries %v", versions)
	}
}

func TestSyncDeregister(t *testing.T) {
	src := &fakeSource{}
	s := New(src, Options{})
	var a, b int
	ta := s.Register(func(context.Context, Snapshot) { a++ }, nil)
	s.Register(func(context.Context, Snapshot) { b++ }, nil)
	s.Deregister(ta)
	s.Deregister(Token(999))

	s.Start(context.Background(), "createdAt", Descending)
	src.last().onSnapshot(docs("a"))
	if a != 0 || b != 1 {
		t.Fatalf("a=%d b=%d", a, b)
	}
}

func TestSnapshotRecordsAreCopies(t *testing.T) {
	src := &fakeSource{}
	s := New(src, Options{})
	s.Start(context.Background(), "createdAt", Descending)
	src.last().onSnapshot(docs("a"))

	recs := s.Snapshot().Records()
	recs[0].Item = "mutated"
	if s.Snapshot().At(0).Item != "item a" {
		t.Fatalf("snapshot mutated through Records()")
	}
}

func TestSyncAttachesCoercionWarnings(t *testing.T) {
	src := &fakeSource{}
	s := New(src, Options{})
	s.Start(context.Background(), "createdAt", Descending)
	src.last().onSnapshot([]Document{
		{ID: "a", Fields: map[string]any{FieldItem: "ok", FieldAmount: "abc"}},
		{ID: "a", Fields: map[string]any{FieldItem: "dup"}},
	})
	snap := s.Snapshot()
	if snap.Len() != 1 || len(snap.Warnings()) != 2 {
		t.Fatalf("expected 1 record and 2 warnings, got %d and %d", snap.Len(), len(snap.Warnings()))
	}
	if !snap.At(0).Amount.IsZero() {
		t.Fatalf("bad amount should default to zero")
	}
}
