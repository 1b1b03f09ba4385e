// Package feed turns pull-only stores into livesync sources: Source re-reads
// a Lister whenever a change notification arrives, PollingSource re-reads a
// Reader on a fixed interval.
package feed

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"expenditures/internal/amqp"
	"expenditures/internal/core"
	"expenditures/internal/livesync"
	"expenditures/internal/log"
)

// Lister reads the whole collection in the requested order.
type Lister interface {
	ListOrdered(ctx context.Context, orderField string, dir livesync.Direction) ([]core.Record, error)
}

// ChangeConsumer streams change notifications to handler until ctx is done
// or the stream breaks.
type ChangeConsumer interface {
	ConsumeChanges(ctx context.Context, handler func(context.Context, *amqp.ChangeMessage) error) error
}

// Source is a live source over a Lister and a ChangeConsumer.
type Source struct {
	lister  Lister
	changes ChangeConsumer
	logger  *log.Logger
}

func NewSource(lister Lister, changes ChangeConsumer, logger *log.Logger) *Source {
	return &Source{
		lister:  lister,
		changes: changes,
		logger:  log.OrDiscard(logger).WithComponent(log.ComponentFeed),
	}
}

// Subscribe loads the collection once as the handshake, then delivers that
// snapshot and a fresh one after every notification for q.Collection. A
// broken notification stream or a failed reload is reported through onError
// and ends the subscription.
func (s *Source) Subscribe(ctx context.Context, q livesync.Query, onSnapshot func([]livesync.Document), onError func(error)) (livesync.Subscription, error) {
	initial, err := s.lister.ListOrdered(ctx, q.OrderField, q.Direction)
	if err != nil {
		return nil, fmt.Errorf("initial load: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	trigger := make(chan struct{}, 1)

	go func() {
		g, gctx := errgroup.WithContext(runCtx)

		if s.changes != nil {
			g.Go(func() error {
				err := s.changes.ConsumeChanges(gctx, func(_ context.Context, msg *amqp.ChangeMessage) error {
					if msg.Collection != q.Collection {
						return nil
					}
					select {
					case trigger <- struct{}{}:
					default:
					}
					return nil
				})
				if err == nil {
					err = errors.New("change stream ended")
				}
				return fmt.Errorf("consume changes: %w", err)
			})
		}

		g.Go(func() error {
			onSnapshot(livesync.ToDocuments(initial))
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-trigger:
				}
				recs, err := s.lister.ListOrdered(gctx, q.OrderField, q.Direction)
				if err != nil {
					return fmt.Errorf("reload: %w", err)
				}
				if gctx.Err() != nil {
					return nil
				}
				onSnapshot(livesync.ToDocuments(recs))
			}
		})

		err := g.Wait()
		if runCtx.Err() != nil {
			// Unsubscribed; errors caused by the cancellation are expected.
			return
		}
		cancel()
		if err != nil && onError != nil {
			s.logger.Error("Feed stopped", log.FieldCollection, q.Collection, log.FieldError, err)
			onError(err)
		}
	}()

	s.logger.InfoContext(ctx, "Feed subscribed", log.FieldCollection, q.Collection, log.FieldRecords, len(initial))
	return livesync.SubscriptionFunc(func() error {
		cancel()
		return nil
	}), nil
}
