// Package ordercache reconciles push-delivered order events with the
// pull-based order listings. Collections are keyed by room plus an optional
// filter, and merging is an idempotent upsert: applying the same event
// twice leaves the collection byte-for-byte identical.
package ordercache

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog/log"

	"github.com/restomate/restokit/domain"
)

// Key addresses one cached collection.
type Key struct {
	// Room is the subscription key the collection belongs to.
	Room string
	// Filter is the optional list filter the collection was fetched with.
	Filter string
}

func (k Key) String() string {
	if k.Filter == "" {
		return k.Room
	}
	return k.Room + "?" + k.Filter
}

type collection struct {
	orders []domain.Order
}

// Store holds the cached collections. Idle collections age out after the
// configured TTL; by default they live until explicitly invalidated.
type Store struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, *collection]
}

// Option configures a Store.
type Option func(*[]ttlcache.Option[string, *collection])

// WithTTL makes idle collections expire after d.
func WithTTL(d time.Duration) Option {
	return func(opts *[]ttlcache.Option[string, *collection]) {
		*opts = append(*opts, ttlcache.WithTTL[string, *collection](d))
	}
}

// NewStore creates an order cache. Call Close when done.
func NewStore(opts ...Option) *Store {
	cacheOpts := []ttlcache.Option[string, *collection]{
		ttlcache.WithTTL[string, *collection](ttlcache.NoTTL),
		ttlcache.WithDisableTouchOnHit[string, *collection](),
	}
	for _, opt := range opts {
		opt(&cacheOpts)
	}

	cache := ttlcache.New(cacheOpts...)

	// Start the eviction process
	go cache.Start()

	return &Store{cache: cache}
}

// Merge applies one realtime event to the collection under key.
//
// An absent collection is initialized with exactly the incoming record. A
// record with a known identifier is replaced in place, preserving its
// position and the collection length; an unknown identifier is prepended.
func (s *Store) Merge(ctx context.Context, key Key, event domain.OrderEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.cache.Get(key.String())
	if item == nil {
		s.cache.Set(key.String(), &collection{orders: []domain.Order{event.Order}}, ttlcache.DefaultTTL)

		log.Ctx(ctx).Debug().
			Str("cache_key", key.String()).
			Str("order_id", event.Order.ID).
			Msg("order cache initialized from event")

		return
	}

	coll := item.Value()
	for i := range coll.orders {
		if coll.orders[i].ID == event.Order.ID {
			coll.orders[i] = event.Order
			return
		}
	}

	coll.orders = append([]domain.Order{event.Order}, coll.orders...)
}

// Prime seeds the collection under key from a pull-based list response so
// subsequent push events reconcile against it.
func (s *Store) Prime(_ context.Context, key Key, orders []domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll := &collection{orders: make([]domain.Order, len(orders))}
	copy(coll.orders, orders)
	s.cache.Set(key.String(), coll, ttlcache.DefaultTTL)
}

// List returns a copy of the collection under key, or nil when the lookup
// misses. A miss is not an error.
func (s *Store) List(_ context.Context, key Key) []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.cache.Get(key.String())
	if item == nil {
		return nil
	}

	coll := item.Value()
	out := make([]domain.Order, len(coll.orders))
	copy(out, coll.orders)

	return out
}

// Invalidate drops the collection under key.
func (s *Store) Invalidate(_ context.Context, key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Delete(key.String())
}

// Close stops the eviction goroutine.
func (s *Store) Close() {
	s.cache.Stop()
}
