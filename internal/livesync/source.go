// Package livesync bridges a push-based ordered remote collection into a
// locally readable snapshot that is replaced wholesale on every delivery.
package livesync

import (
	"context"
	"fmt"
	"strings"
)

// Direction is the ordering direction of a query.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// ParseDirection accepts asc|ascending|desc|descending, case-insensitive.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc", "ascending":
		return Ascending, nil
	case "desc", "descending":
		return Descending, nil
	default:
		return "", fmt.Errorf("invalid order direction %q", s)
	}
}

// Query names the collection and ordering a subscription listens to.
type Query struct {
	Collection string
	OrderField string
	Direction  Direction
}

// Document is a record as delivered by the remote store: an id plus an
// untrusted key-value payload.
type Document struct {
	ID     string
	Fields map[string]any
}

// Subscription is an active listener on a Source.
type Subscription interface {
	// Unsubscribe asks the source to stop delivering. It must be safe to call
	// more than once and from inside a delivery callback, so it must not wait
	// for an in-flight callback to return.
	Unsubscribe() error
}

// Source is an ordered live collection.
//
// Subscribe performs the handshake and returns once the listener is
// registered. Deliveries then arrive asynchronously: each call to onSnapshot
// carries the complete ordered collection, and calls for one subscription
// never overlap. onError reports a failure of the stream; the source stops
// delivering after it. Neither callback may be invoked from within Subscribe.
type Source interface {
	Subscribe(ctx context.Context, q Query, onSnapshot func([]Document), onError func(error)) (Subscription, error)
}

// SubscriptionFunc adapts a function to the Subscription interface.
type SubscriptionFunc func() error

func (f SubscriptionFunc) Unsubscribe() error { return f() }
