package hold

import (
	"context"
	"testing"
	"time"
)

func TestMemory_HoldExpiresWithoutCancel(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	m := NewMemory(func() time.Time { return now })
	ctx := context.Background()
	key := SlotKey("p1", "l1", now)

	ok, err := m.Acquire(ctx, key, "alice", DefaultTTL)
	if err != nil || !ok {
		t.Fatalf("Acquire = %v, %v", ok, err)
	}
	if ok, _ := m.Acquire(ctx, key, "bob", DefaultTTL); ok {
		t.Fatalf("second holder acquired a live hold")
	}
	if ok, _ := m.Acquire(ctx, key, "alice", DefaultTTL); !ok {
		t.Fatalf("holder could not refresh its own hold")
	}

	now = now.Add(DefaultTTL + time.Second)
	holder, err := m.Holder(ctx, key)
	if err != nil || holder != "" {
		t.Fatalf("Holder after expiry = %q, %v", holder, err)
	}
	if ok, _ := m.Acquire(ctx, key, "bob", DefaultTTL); !ok {
		t.Fatalf("expired hold blocked a new holder")
	}
}

func TestMemory_ReleaseOnlyByOwner(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()

	if _, err := m.Acquire(ctx, "k", "alice", time.Minute); err != nil {
		t.Fatalf("Acquire error: %v", err)
	}
	_ = m.Release(ctx, "k", "bob")
	if h, _ := m.Holder(ctx, "k"); h != "alice" {
		t.Fatalf("holder = %q, want alice", h)
	}
	_ = m.Release(ctx, "k", "alice")
	if h, _ := m.Holder(ctx, "k"); h != "" {
		t.Fatalf("holder = %q after release", h)
	}
}

func TestMemory_AcquireSweepsExpiredKeys(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	m := NewMemory(func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if ok, _ := m.Acquire(ctx, SlotKey("p1", "l1", now.Add(time.Duration(i)*30*time.Minute)), "alice", time.Minute); !ok {
			t.Fatalf("Acquire %d failed", i)
		}
	}
	now = now.Add(2 * time.Minute)
	if ok, _ := m.Acquire(ctx, "other", "bob", time.Minute); !ok {
		t.Fatalf("Acquire failed")
	}
	if len(m.holds) != 1 {
		t.Fatalf("holds = %d, want only the live one", len(m.holds))
	}
}
