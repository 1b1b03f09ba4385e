package livesync

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"expenditures/internal/core"
	"expenditures/internal/log"
)

// State is the lifecycle state of a Sync.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateLive       State = "live"
	StateFailed     State = "failed"
	StateStopped    State = "stopped"
)

// Status is a point-in-time view of the sync.
type Status struct {
	State     State
	Handle    Handle
	Err       error
	Version   uint64
	UpdatedAt time.Time
}

// Handle identifies one Start call.
type Handle string

// Token identifies a registered observer.
type Token uint64

// SnapshotFunc is called with every new snapshot. The context carries the
// values of the Start context; passing it to Stop from inside the callback
// is allowed.
type SnapshotFunc func(ctx context.Context, snap Snapshot)

// ErrorFunc is called once per stream failure.
type ErrorFunc func(ctx context.Context, err error)

type observer struct {
	token      Token
	onSnapshot SnapshotFunc
	onError    ErrorFunc
}

type subscription struct {
	handle Handle
	ctx    context.Context
	active atomic.Bool
	sub    Subscription
}

type dispatchKey struct{}

// Options configures a Sync.
type Options struct {
	Collection string
	Logger     *log.Logger
	Now        func() time.Time
}

// Sync owns the local snapshot of one remote collection.
//
// Deliveries are serialized by dispatchMu: a snapshot replacement and the
// notification of every observer complete before the next delivery starts.
// mu guards the remaining state and is never held while observers run.
type Sync struct {
	source     Source
	collection string
	logger     *log.Logger
	now        func() time.Time

	dispatchMu sync.Mutex

	mu        sync.Mutex
	snapshot  Snapshot
	status    Status
	current   *subscription
	observers []observer
	nextToken Token
}

// New creates an idle Sync over source.
func New(source Source, opts Options) *Sync {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Sync{
		source:     source,
		collection: opts.Collection,
		logger:     log.OrDiscard(opts.Logger).WithComponent(log.ComponentSync),
		now:        now,
	}
	s.status = Status{State: StateIdle, UpdatedAt: now()}
	return s
}

// Register adds an observer. Either callback may be nil.
func (s *Sync) Register(onSnapshot SnapshotFunc, onError ErrorFunc) Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextToken++
	s.observers = append(s.observers, observer{token: s.nextToken, onSnapshot: onSnapshot, onError: onError})
	return s.nextToken
}

// Deregister removes an observer. Unknown tokens are ignored. A delivery
// already in progress may still reach the observer.
func (s *Sync) Deregister(t Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, o := range s.observers {
		if o.token == t {
			s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
			return
		}
	}
}

// Start subscribes to the collection ordered by orderField. Any previous
// subscription is stopped first. A subscribe failure is not returned: it is
// reported to the error observers as a *core.ConnectionError and recorded in
// Status, and the returned handle is already inactive.
func (s *Sync) Start(ctx context.Context, orderField string, dir Direction) Handle {
	s.mu.Lock()
	prev := s.current
	s.mu.Unlock()
	if prev != nil {
		_ = s.Stop(ctx, prev.handle)
	}

	sub := &subscription{
		handle: Handle(uuid.NewString()),
		ctx:    context.WithoutCancel(ctx),
	}
	sub.active.Store(true)

	s.mu.Lock()
	s.current = sub
	s.setStatusLocked(StateConnecting, sub.handle, nil)
	s.mu.Unlock()

	q := Query{Collection: s.collection, OrderField: orderField, Direction: dir}
	s.logger.InfoContext(ctx, "Subscribing",
		log.FieldCollection, q.Collection, log.FieldHandle, sub.handle,
		"order_field", q.OrderField, "direction", q.Direction)

	handle, err := s.source.Subscribe(ctx, q,
		func(docs []Document) { s.deliver(sub, docs) },
		func(err error) { s.fail(sub, "listen", err) },
	)
	if err != nil {
		// No delivery can exist for a handshake that failed, so the
		// dispatch lock is not needed and Start stays callable from observers.
		if sub.active.Swap(false) {
			s.reportFailure(sub, nil, log.OpSubscribe, err)
		}
		return sub.handle
	}

	s.mu.Lock()
	sub.sub = handle
	stopped := !sub.active.Load()
	if !stopped && s.status.State == StateConnecting && s.status.Handle == sub.handle {
		s.setStatusLocked(StateLive, sub.handle, nil)
	}
	s.mu.Unlock()

	if stopped {
		// Stopped while the handshake was in flight.
		if err := handle.Unsubscribe(); err != nil {
			s.logger.WarnContext(ctx, "Unsubscribe after early stop failed", log.FieldError, err)
		}
	}
	return sub.handle
}

// Stop ends the subscription identified by h. It is idempotent. After Stop
// returns no observer is notified for h, including deliveries that were
// already in flight. Called from inside an observer with the context it was
// given, Stop does not wait for the current delivery to finish.
func (s *Sync) Stop(ctx context.Context, h Handle) error {
	s.mu.Lock()
	sub := s.current
	if sub == nil || sub.handle != h || !sub.active.Load() {
		s.mu.Unlock()
		return nil
	}
	sub.active.Store(false)
	s.current = nil
	s.setStatusLocked(StateStopped, h, nil)
	remote := sub.sub
	s.mu.Unlock()

	var err error
	if remote != nil {
		if err = remote.Unsubscribe(); err != nil {
			err = fmt.Errorf("unsubscribe %s: %w", h, err)
		}
	}

	if !inDispatch(ctx) {
		// Wait out a delivery that passed its active check before we flipped it.
		s.dispatchMu.Lock()
		s.dispatchMu.Unlock()
	}

	s.logger.InfoContext(ctx, "Subscription stopped", log.FieldHandle, h)
	return err
}

// Snapshot returns the last delivered snapshot. After a failure it is the
// last good one.
func (s *Sync) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// Status returns the current lifecycle state.
func (s *Sync) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Sync) deliver(sub *subscription, docs []Document) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	if !sub.active.Load() {
		s.logger.Debug("Discarding late delivery", log.FieldHandle, sub.handle)
		return
	}

	records, warnings := Coerce(docs)
	for _, w := range warnings {
		s.logger.WarnContext(sub.ctx, "Coercion warning",
			log.FieldRecordID, w.RecordID, "field", w.Field, log.FieldError, w.Err)
	}

	s.mu.Lock()
	snap := Snapshot{
		version:    s.snapshot.version + 1,
		receivedAt: s.now(),
		records:    records,
		warnings:   warnings,
	}
	s.snapshot = snap
	s.status.Version = snap.version
	if s.current == sub {
		s.setStatusLocked(StateLive, sub.handle, nil)
	}
	observers := append([]observer(nil), s.observers...)
	s.mu.Unlock()

	s.logger.DebugContext(sub.ctx, "Snapshot replaced",
		log.NewFields().WithSnapshot(snap.version, len(records), len(warnings)).WithOperation(log.OpDeliver).ToSlice()...)

	ctx := context.WithValue(sub.ctx, dispatchKey{}, sub)
	for _, o := range observers {
		if !sub.active.Load() {
			return
		}
		if o.onSnapshot != nil {
			o.onSnapshot(ctx, snap)
		}
	}
}

func (s *Sync) fail(sub *subscription, op string, cause error) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	if !sub.active.Swap(false) {
		return
	}
	s.mu.Lock()
	remote := sub.sub
	s.mu.Unlock()
	s.reportFailure(sub, remote, op, cause)
}

// reportFailure moves the sync into StateFailed, releases the remote
// listener and notifies the error observers. sub must already be inactive.
func (s *Sync) reportFailure(sub *subscription, remote Subscription, op string, cause error) {
	err := &core.ConnectionError{Op: op, Err: cause}

	s.mu.Lock()
	if s.current == sub {
		s.current = nil
		s.setStatusLocked(StateFailed, sub.handle, err)
	}
	observers := append([]observer(nil), s.observers...)
	s.mu.Unlock()

	s.logger.ErrorContext(sub.ctx, "Collection stream failed",
		log.FieldHandle, sub.handle, log.FieldOperation, op, log.FieldError, cause)

	if remote != nil {
		if uerr := remote.Unsubscribe(); uerr != nil {
			s.logger.WarnContext(sub.ctx, "Unsubscribe after failure failed", log.FieldError, uerr)
		}
	}

	ctx := context.WithValue(sub.ctx, dispatchKey{}, sub)
	for _, o := range observers {
		if o.onError != nil {
			o.onError(ctx, err)
		}
	}
}

func (s *Sync) setStatusLocked(state State, h Handle, err error) {
	s.status.State = state
	s.status.Handle = h
	s.status.Err = err
	s.status.UpdatedAt = s.now()
}

func inDispatch(ctx context.Context) bool {
	return ctx != nil && ctx.Value(dispatchKey{}) != nil
}
