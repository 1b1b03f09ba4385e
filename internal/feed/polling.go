package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"expenditures/internal/core"
	"expenditures/internal/livesync"
	"expenditures/internal/log"
)

// Reader reads every record of a collection in storage order.
type Reader interface {
	ReadAll(ctx context.Context) ([]core.Record, error)
}

// PollingConfig holds configuration for the polling source
type PollingConfig struct {
	// Interval is how often the reader is polled (default: 30s)
	Interval time.Duration
}

// DefaultPollingConfig returns sensible defaults
func DefaultPollingConfig() PollingConfig {
	return PollingConfig{Interval: 30 * time.Second}
}

// PollingSource is a live source over a Reader that has no change stream.
// A snapshot is delivered after the first read and then only when the
// content changed.
type PollingSource struct {
	reader Reader
	config PollingConfig
	logger *log.Logger
}

func NewPollingSource(reader Reader, config PollingConfig, logger *log.Logger) *PollingSource {
	if config.Interval <= 0 {
		config.Interval = DefaultPollingConfig().Interval
	}
	return &PollingSource{
		reader: reader,
		config: config,
		logger: log.OrDiscard(logger).WithComponent(log.ComponentFeed),
	}
}

// Subscribe reads once as the handshake and starts the polling loop.
// A failed poll is reported through onError and ends the subscription.
func (p *PollingSource) Subscribe(ctx context.Context, q livesync.Query, onSnapshot func([]livesync.Document), onError func(error)) (livesync.Subscription, error) {
	initial, err := p.reader.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("initial read: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	go p.runLoop(runCtx, q, initial, onSnapshot, onError)

	p.logger.InfoContext(ctx, "Polling subscription started",
		log.FieldCollection, q.Collection, "poll_interval", p.config.Interval)

	return livesync.SubscriptionFunc(func() error {
		cancel()
		return nil
	}), nil
}

func (p *PollingSource) runLoop(ctx context.Context, q livesync.Query, initial []core.Record, onSnapshot func([]livesync.Document), onError func(error)) {
	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	last := p.deliver(q, initial, "", onSnapshot)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		recs, err := p.reader.ReadAll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("Poll failed", log.FieldCollection, q.Collection, log.FieldOperation, log.OpPoll, log.FieldError, err)
			if onError != nil {
				onError(fmt.Errorf("poll: %w", err))
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		last = p.deliver(q, recs, last, onSnapshot)
	}
}

// deliver sorts recs for q and hands them to onSnapshot unless their
// fingerprint equals prev. It returns the fingerprint of recs.
func (p *PollingSource) deliver(q livesync.Query, recs []core.Record, prev string, onSnapshot func([]livesync.Document)) string {
	livesync.SortRecords(recs, q.OrderField, q.Direction)
	fp := fingerprint(recs)
	if prev != "" && fp == prev {
		p.logger.Debug("Poll found no changes", log.FieldCollection, q.Collection)
		return fp
	}
	onSnapshot(livesync.ToDocuments(recs))
	return fp
}

func fingerprint(recs []core.Record) string {
	var b strings.Builder
	b.WriteString("v1")
	for _, r := range recs {
		fmt.Fprintf(&b, "\x1e%s\x1f%s\x1f%s\x1f%s\x1f%s\x1f%d",
			r.ID, r.Item, r.Amount.String(), r.Vendor, r.Notes, r.CreatedAt.UnixNano())
	}
	return b.String()
}
