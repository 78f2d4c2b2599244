// Package events implements the four publishers of spec §4.6: per-product
// subscriber sets for current-market, last-sale, and ticker, plus the
// per-(product,user) fill/cancel stream with its implicit all-subscribers
// broadcast set for market-state messages. Grounded on the teacher's
// internal/net/server.go clientSessions map[string]ClientSession guarded by
// clientSessionsLock sync.Mutex: the same "locked map of recipients,
// snapshot under lock, dispatch outside" shape, generalized from one TCP
// session map to four topic-keyed subscriber maps.
package events

import (
	"sync"

	"github.com/rs/zerolog/log"

	"ironbook/internal/errs"
)

// registry is a per-product set of subscribers for a single topic kind.
// Subscribe/Unsubscribe/Publish all share the semantics spec §4.6 demands:
// double-subscribe is AlreadySubscribed, unsubscribe of a stranger is
// NotSubscribed, and unsubscribing from a topic nobody has ever subscribed
// to is InvalidStock.
type registry[T any] struct {
	mu     sync.Mutex
	topics map[string]map[string]func(T)
}

func newRegistry[T any]() *registry[T] {
	return &registry[T]{topics: make(map[string]map[string]func(T))}
}

func (r *registry[T]) Subscribe(product, subscriberID string, handler func(T)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.topics[product]
	if !ok {
		subs = make(map[string]func(T))
		r.topics[product] = subs
	}
	if _, exists := subs[subscriberID]; exists {
		return errs.ErrAlreadySubscribed
	}
	subs[subscriberID] = handler
	return nil
}

func (r *registry[T]) Unsubscribe(product, subscriberID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.topics[product]
	if !ok {
		return errs.ErrInvalidStock
	}
	if _, exists := subs[subscriberID]; !exists {
		return errs.ErrNotSubscribed
	}
	delete(subs, subscriberID)
	return nil
}

// Publish snapshots the subscriber set under lock, then dispatches outside
// it — spec §5: "subscriber callbacks must be non-blocking and must not
// re-enter the engine on the same thread... may snapshot the subscriber set
// under lock and dispatch outside."
func (r *registry[T]) Publish(product string, msg T) {
	r.mu.Lock()
	subs := r.topics[product]
	snapshot := make([]func(T), 0, len(subs))
	for _, h := range subs {
		snapshot = append(snapshot, h)
	}
	r.mu.Unlock()

	for _, h := range snapshot {
		dispatch(h, msg)
	}
}

// dispatch swallows a panicking subscriber callback rather than letting it
// take down the publisher or starve other subscribers, per spec §7:
// "Subscriber-callback errors are swallowed by the publisher (logged at
// most) to protect other subscribers."
func dispatch[T any](handler func(T), msg T) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("subscriber callback panicked")
		}
	}()
	handler(msg)
}
