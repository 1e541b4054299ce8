package events

import (
	"context"
	"sync"
	"time"
)

const DefaultFeedSize = 1024

// Feed keeps the most recent changes in a ring for polling clients.
type Feed struct {
	mu   sync.Mutex
	now  func() time.Time
	ring []Change
	size int
	seq  uint64
}

func NewFeed(size int) *Feed {
	if size <= 0 {
		size = DefaultFeedSize
	}
	return &Feed{now: time.Now, size: size, ring: make([]Change, 0, size)}
}

func (f *Feed) Notify(ctx context.Context, c Change) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	c.Seq = f.seq
	if c.At.IsZero() {
		c.At = f.now().UTC()
	}
	if len(f.ring) == f.size {
		copy(f.ring, f.ring[1:])
		f.ring = f.ring[:f.size-1]
	}
	f.ring = append(f.ring, c)
}

// Since returns buffered changes with Seq > cursor for providerID (all providers
// when empty) and the cursor to poll with next. truncated is true when changes
// after cursor were already evicted; the caller should reload its view.
func (f *Feed) Since(providerID string, cursor uint64) (changes []Change, next uint64, truncated bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	next = f.seq
	if len(f.ring) > 0 && f.ring[0].Seq > cursor+1 {
		truncated = true
	}
	for _, c := range f.ring {
		if c.Seq <= cursor {
			continue
		}
		if providerID != "" && c.ProviderID != providerID {
			continue
		}
		changes = append(changes, c)
	}
	return changes, next, truncated
}
