// Package availability resolves the weekly windows that drive slot
// materialization.
package availability

import (
	"context"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"slotengine/internal/domain"
	"slotengine/internal/events"
)

// Source returns the windows in effect for a listing.
type Source interface {
	Windows(ctx context.Context, providerID, listingID string) ([]domain.AvailabilityWindow, error)
}

type windowLister interface {
	ListWindows(ctx context.Context, providerID, listingID string) ([]domain.AvailabilityWindow, error)
}

// StoreSource reads windows from the scheduling store and applies listing
// overrides.
type StoreSource struct {
	windows windowLister
}

func NewStoreSource(w windowLister) *StoreSource {
	return &StoreSource{windows: w}
}

func (s *StoreSource) Windows(ctx context.Context, providerID, listingID string) ([]domain.AvailabilityWindow, error) {
	all, err := s.windows.ListWindows(ctx, providerID, listingID)
	if err != nil {
		return nil, err
	}
	return domain.EffectiveWindows(all, listingID), nil
}

const DefaultCacheSize = 512

// Cached memoizes a Source per listing until the provider's availability changes.
type Cached struct {
	mu    sync.Mutex
	next  Source
	cache *lru.Cache[string, []domain.AvailabilityWindow]
	// gen counts invalidations per provider; a fill started under an older
	// generation is returned but never cached.
	gen map[string]uint64
}

func NewCached(next Source, size int) (*Cached, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, []domain.AvailabilityWindow](size)
	if err != nil {
		return nil, err
	}
	return &Cached{next: next, cache: cache, gen: make(map[string]uint64)}, nil
}

func cacheKey(providerID, listingID string) string {
	return providerID + "|" + listingID
}

func (c *Cached) Windows(ctx context.Context, providerID, listingID string) ([]domain.AvailabilityWindow, error) {
	key := cacheKey(providerID, listingID)
	if w, ok := c.cache.Get(key); ok {
		return w, nil
	}

	c.mu.Lock()
	gen := c.gen[providerID]
	c.mu.Unlock()

	w, err := c.next.Windows(ctx, providerID, listingID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen[providerID] == gen {
		c.cache.Add(key, w)
	}
	return w, nil
}

// Invalidate drops every cached listing of providerID.
func (c *Cached) Invalidate(providerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen[providerID]++
	prefix := providerID + "|"
	for _, k := range c.cache.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.cache.Remove(k)
		}
	}
}

// Watch invalidates on availability changes published to bus.
func (c *Cached) Watch(bus *events.Bus) (unsubscribe func()) {
	return bus.Availability.Subscribe("", func(ch events.Change) {
		c.Invalidate(ch.ProviderID)
	})
}
