// Package hold keeps short-lived checkout holds on slots. A hold expires on its
// own; nothing has to cancel it.
package hold

import (
	"context"
	"fmt"
	"time"
)

// DefaultTTL is the checkout window.
const DefaultTTL = 5 * time.Minute

type Store interface {
	// Acquire places a hold for holder. It succeeds when the key is free or
	// already held by the same holder, extending the TTL in that case.
	Acquire(ctx context.Context, key, holder string, ttl time.Duration) (bool, error)
	// Holder returns the current holder of key, empty when free.
	Holder(ctx context.Context, key string) (string, error)
	// Release drops the hold only if holder still owns it.
	Release(ctx context.Context, key, holder string) error
}

// SlotKey names the hold on one slot start.
func SlotKey(providerID, listingID string, start time.Time) string {
	return fmt.Sprintf("%s|%s|%d", providerID, listingID, start.UTC().Unix())
}
