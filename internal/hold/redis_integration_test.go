package hold

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func TestRedisIntegration_AcquireRefreshRelease(t *testing.T) {
	addr := strings.TrimSpace(os.Getenv("SLOTENGINE_TEST_REDIS_ADDR"))
	if addr == "" {
		t.Skip("SLOTENGINE_TEST_REDIS_ADDR not set")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	ctx := context.Background()

	r := NewRedis(rdb, "slotengine_test:"+uuid.NewString())
	key := SlotKey("p1", "l1", time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))

	ok, err := r.Acquire(ctx, key, "alice", 200*time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("Acquire = %v, %v", ok, err)
	}
	if ok, err := r.Acquire(ctx, key, "bob", time.Second); err != nil || ok {
		t.Fatalf("competing Acquire = %v, %v", ok, err)
	}
	if h, err := r.Holder(ctx, key); err != nil || h != "alice" {
		t.Fatalf("Holder = %q, %v", h, err)
	}

	time.Sleep(400 * time.Millisecond)
	if h, err := r.Holder(ctx, key); err != nil || h != "" {
		t.Fatalf("Holder after TTL = %q, %v", h, err)
	}

	if ok, err := r.Acquire(ctx, key, "bob", time.Second); err != nil || !ok {
		t.Fatalf("Acquire after expiry = %v, %v", ok, err)
	}
	if err := r.Release(ctx, key, "alice"); err != nil {
		t.Fatalf("Release error: %v", err)
	}
	if h, _ := r.Holder(ctx, key); h != "bob" {
		t.Fatalf("non-owner release dropped the hold")
	}
	if err := r.Release(ctx, key, "bob"); err != nil {
		t.Fatalf("Release error: %v", err)
	}
}
