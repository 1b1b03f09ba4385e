// Package memory is an in-process ordered live collection. It serves as the
// default backend and as the remote store in tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"expenditures/internal/core"
	"expenditures/internal/livesync"
	"expenditures/internal/log"
)

// ErrUnreachable is returned by Subscribe while the store is marked unreachable.
var ErrUnreachable = errors.New("memory store unreachable")

type Store struct {
	mu          sync.Mutex
	items       []core.Record
	listeners   map[int]*listener
	nextID      int
	unreachable bool

	now    func() time.Time
	newID  func() string
	logger *log.Logger
	wg     sync.WaitGroup
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used to stamp createdAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator sets the record id generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func New(opts ...Option) *Store {
	s := &Store{
		listeners: make(map[int]*listener),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.OrDiscard(s.logger).WithComponent(log.ComponentMemory)
	return s
}

// Seed replaces the contents of the store and notifies listeners.
func (s *Store) Seed(records ...core.Record) {
	s.mu.Lock()
	s.items = append([]core.Record(nil), records...)
	s.mu.Unlock()
	s.broadcast()
}

// Create stores a new record stamped with the store clock.
func (s *Store) Create(_ context.Context, n core.NewRecord) (core.Record, error) {
	n = n.Normalize()
	if err := n.Validate(); err != nil {
		return core.Record{}, err
	}
	rec := core.Record{
		ID:        s.newID(),
		Item:      n.Item,
		Amount:    n.Amount,
		Vendor:    n.Vendor,
		Notes:     n.Notes,
		CreatedAt: s.now(),
	}
	s.mu.Lock()
	s.items = append(s.items, rec)
	s.mu.Unlock()
	s.broadcast()
	return rec, nil
}

// Update applies p to the record with the given id.
func (s *Store) Update(_ context.Context, id string, p core.Patch) (core.Record, error) {
	if err := p.Validate(); err != nil {
		return core.Record{}, err
	}
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return core.Record{}, fmt.Errorf("update %s: %w", id, core.ErrNotFound)
	}
	s.items[i] = p.Apply(s.items[i])
	rec := s.items[i]
	s.mu.Unlock()
	s.broadcast()
	return rec, nil
}

// Delete removes the record with the given id.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("delete %s: %w", id, core.ErrNotFound)
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	s.mu.Unlock()
	s.broadcast()
	return nil
}

// Get returns the record with the given id.
func (s *Store) Get(_ context.Context, id string) (core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return core.Record{}, fmt.Errorf("get %s: %w", id, core.ErrNotFound)
	}
	return s.items[i], nil
}

// ListOrdered returns all records ordered as a subscription with the same
// field and direction would see them.
func (s *Store) ListOrdered(_ context.Context, orderField string, dir livesync.Direction) ([]core.Record, error) {
	s.mu.Lock()
	out := append([]core.Record(nil), s.items...)
	s.mu.Unlock()
	livesync.SortRecords(out, orderField, dir)
	return out, nil
}

// SetUnreachable makes subsequent Subscribe calls fail.
func (s *Store) SetUnreachable(v bool) {
	s.mu.Lock()
	s.unreachable = v
	s.mu.Unlock()
}

// Fail reports err on every open subscription and ends them.
func (s *Store) Fail(err error) {
	s.mu.Lock()
	ls := make([]*listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	s.mu.Unlock()
	for _, l := range ls {
		select {
		case l.failc <- err:
		default:
		}
	}
}

// Subscribe implements livesync.Source. The current contents are delivered
// right after the handshake, then again after every change.
func (s *Store) Subscribe(_ context.Context, q livesync.Query, onSnapshot func([]livesync.Document), onError func(error)) (livesync.Subscription, error) {
	s.mu.Lock()
	if s.unreachable {
		s.mu.Unlock()
		return nil, ErrUnreachable
	}
	s.nextID++
	l := &listener{
		id:         s.nextID,
		query:      q,
		onSnapshot: onSnapshot,
		onError:    onError,
		notify:     make(chan struct{}, 1),
		failc:      make(chan error, 1),
		stop:       make(chan struct{}),
	}
	s.listeners[l.id] = l
	s.mu.Unlock()

	l.notify <- struct{}{}
	s.wg.Add(1)
	go s.run(l)

	s.logger.Debug("Listener added", log.FieldCollection, q.Collection, "listener", l.id)
	return livesync.SubscriptionFunc(func() error {
		l.close()
		s.mu.Lock()
		delete(s.listeners, l.id)
		s.mu.Unlock()
		return nil
	}), nil
}

// Close ends every subscription and waits for the delivery goroutines.
func (s *Store) Close() error {
	s.mu.Lock()
	for id, l := range s.listeners {
		l.close()
		delete(s.listeners, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

func (s *Store) run(l *listener) {
	defer s.wg.Done()
	for {
		select {
		case <-l.stop:
			return
		case err := <-l.failc:
			if l.onError != nil {
				l.onError(err)
			}
			return
		case <-l.notify:
			docs := s.documents(l.query)
			select {
			case <-l.stop:
				return
			default:
			}
			if l.onSnapshot != nil {
				l.onSnapshot(docs)
			}
		}
	}
}

func (s *Store) broadcast() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.listeners {
		select {
		case l.notify <- struct{}{}:
		default:
			// A delivery is already pending and will carry this change.
		}
	}
}

func (s *Store) documents(q livesync.Query) []livesync.Document {
	s.mu.Lock()
	recs := append([]core.Record(nil), s.items...)
	s.mu.Unlock()
	livesync.SortRecords(recs, q.OrderField, q.Direction)

	return livesync.ToDocuments(recs)
}

func (s *Store) indexLocked(id string) int {
	for i, r := range s.items {
		if r.ID == id {
			return i
		}
	}
	return -1
}

type listener struct {
	id         int
	query      livesync.Query
	onSnapshot func([]livesync.Document)
	onError    func(error)
	notify     chan struct{}
	failc      chan error
	stop       chan struct{}
	once       sync.Once
}

func (l *listener) close() {
	l.once.Do(func() { close(l.stop) })
}
