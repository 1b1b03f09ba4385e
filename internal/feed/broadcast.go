package feed

import (
	"context"
	"sync"

	"expenditures/internal/amqp"
)

// Broadcaster is an in-process change bus. It stands in for the AMQP
// exchange when a single process both writes and listens.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan *amqp.ChangeMessage
	nextID int
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan *amqp.ChangeMessage)}
}

// PublishChange hands msg to every consumer. Consumers that are behind drop
// the message; one pending notification is enough to trigger a reload.
func (b *Broadcaster) PublishChange(ctx context.Context, msg *amqp.ChangeMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

// ConsumeChanges blocks until ctx is done, passing each message to handler.
func (b *Broadcaster) ConsumeChanges(ctx context.Context, handler func(context.Context, *amqp.ChangeMessage) error) error {
	ch := make(chan *amqp.ChangeMessage, 16)
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-ch:
			if err := handler(ctx, msg); err != nil {
				return err
			}
		}
	}
}

// Consumers returns the number of active consumers.
func (b *Broadcaster) Consumers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
