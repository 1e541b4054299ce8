package availability

import (
	"context"
	"testing"
	"time"

	"slotengine/internal/domain"
	"slotengine/internal/events"
)

type fakeLister struct {
	calls  int
	listFn func(ctx context.Context, providerID, listingID string) ([]domain.AvailabilityWindow, error)
}

func (f *fakeLister) ListWindows(ctx context.Context, providerID, listingID string) ([]domain.AvailabilityWindow, error) {
	f.calls++
	if f.listFn == nil {
		panic("ListWindows not configured")
	}
	return f.listFn(ctx, providerID, listingID)
}

func windows() []domain.AvailabilityWindow {
	return []domain.AvailabilityWindow{
		{ProviderID: "p1", ListingID: "", DayOfWeek: time.Monday, StartTime: domain.NewClock(9, 0), EndTime: domain.NewClock(17, 0), IsActive: true},
		{ProviderID: "p1", ListingID: "l1", DayOfWeek: time.Monday, StartTime: domain.NewClock(10, 0), EndTime: domain.NewClock(12, 0), IsActive: true},
	}
}

func TestStoreSource_ListingOverridesProviderWide(t *testing.T) {
	src := NewStoreSource(&fakeLister{listFn: func(ctx context.Context, providerID, listingID string) ([]domain.AvailabilityWindow, error) {
		return windows(), nil
	}})

	got, err := src.Windows(context.Background(), "p1", "l1")
	if err != nil {
		t.Fatalf("Windows error: %v", err)
	}
	if len(got) != 1 || got[0].ListingID != "l1" {
		t.Fatalf("windows = %+v", got)
	}
}

func TestCached_InvalidatedByAvailabilityEvent(t *testing.T) {
	lister := &fakeLister{listFn: func(ctx context.Context, providerID, listingID string) ([]domain.AvailabilityWindow, error) {
		return windows(), nil
	}}
	cached, err := NewCached(NewStoreSource(lister), 8)
	if err != nil {
		t.Fatalf("NewCached error: %v", err)
	}
	bus := events.NewBus()
	defer bus.Close()
	unsub := cached.Watch(bus)
	defer unsub()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := cached.Windows(ctx, "p1", "l1"); err != nil {
			t.Fatalf("Windows error: %v", err)
		}
	}
	if lister.calls != 1 {
		t.Fatalf("calls = %d, want 1", lister.calls)
	}

	bus.Notify(ctx, events.Change{Kind: events.KindSlots, ProviderID: "p1"})
	_, _ = cached.Windows(ctx, "p1", "l1")
	if lister.calls != 1 {
		t.Fatalf("slot change must not invalidate; calls = %d", lister.calls)
	}

	bus.Notify(ctx, events.Change{Kind: events.KindAvailability, ProviderID: "p1"})
	_, _ = cached.Windows(ctx, "p1", "l1")
	if lister.calls != 2 {
		t.Fatalf("calls = %d, want 2 after invalidation", lister.calls)
	}
}

type blockingSource struct {
	started chan struct{}
	release chan struct{}
	windows []domain.AvailabilityWindow
}

func (b *blockingSource) Windows(ctx context.Context, providerID, listingID string) ([]domain.AvailabilityWindow, error) {
	w := b.windows
	if b.started != nil {
		close(b.started)
		b.started = nil
		<-b.release
	}
	return w, nil
}

func TestCached_FillRacingInvalidateIsNotCached(t *testing.T) {
	src := &blockingSource{started: make(chan struct{}), release: make(chan struct{}), windows: windows()}
	started := src.started
	cached, err := NewCached(src, 8)
	if err != nil {
		t.Fatalf("NewCached error: %v", err)
	}
	ctx := context.Background()

	done := make(chan []domain.AvailabilityWindow)
	go func() {
		w, _ := cached.Windows(ctx, "p1", "l1")
		done <- w
	}()
	<-started

	src.windows = nil
	cached.Invalidate("p1")
	close(src.release)

	if stale := <-done; len(stale) != 2 {
		t.Fatalf("in-flight fill = %d windows, want the 2 it read", len(stale))
	}
	got, err := cached.Windows(ctx, "p1", "l1")
	if err != nil {
		t.Fatalf("Windows error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("cache kept pre-invalidation windows: %d", len(got))
	}
}
