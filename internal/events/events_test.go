package events

import (
	"context"
	"testing"
)

func TestTopic_ProviderKeyedWithWildcard(t *testing.T) {
	topic := NewTopic[Change]()

	var p1, all int
	unsub := topic.Subscribe("p1", func(Change) { p1++ })
	topic.Subscribe("", func(Change) { all++ })

	topic.Publish("p1", Change{})
	topic.Publish("p2", Change{})
	if p1 != 1 || all != 2 {
		t.Fatalf("p1=%d all=%d, want 1 and 2", p1, all)
	}

	unsub()
	unsub()
	topic.Publish("p1", Change{})
	if p1 != 1 {
		t.Fatalf("unsubscribed handler still called")
	}
}

func TestBus_RoutesByKindAndStopsAfterClose(t *testing.T) {
	bus := NewBus()
	var got []Kind
	bus.Availability.Subscribe("p1", func(c Change) { got = append(got, c.Kind) })
	bus.Slots.Subscribe("p1", func(c Change) { got = append(got, c.Kind) })

	bus.Notify(context.Background(), Change{Kind: KindAvailability, ProviderID: "p1"})
	bus.Notify(context.Background(), Change{Kind: KindRule, ProviderID: "p1"})
	if len(got) != 1 || got[0] != KindAvailability {
		t.Fatalf("got = %v", got)
	}

	bus.Close()
	bus.Notify(context.Background(), Change{Kind: KindSlots, ProviderID: "p1"})
	if len(got) != 1 {
		t.Fatalf("delivery after Close: %v", got)
	}
	if unsub := bus.Slots.Subscribe("p1", func(Change) {}); unsub == nil {
		t.Fatalf("Subscribe after Close must return a handle")
	}
}

func TestFeed_SinceFiltersAndReportsTruncation(t *testing.T) {
	feed := NewFeed(3)
	ctx := context.Background()
	for _, p := range []string{"p1", "p2", "p1", "p1"} {
		feed.Notify(ctx, Change{Kind: KindSlots, ProviderID: p})
	}

	changes, next, truncated := feed.Since("p1", 0)
	if !truncated {
		t.Fatalf("expected truncation after eviction")
	}
	if next != 4 {
		t.Fatalf("next = %d, want 4", next)
	}
	if len(changes) != 2 || changes[0].Seq != 3 || changes[1].Seq != 4 {
		t.Fatalf("changes = %+v", changes)
	}

	changes, _, truncated = feed.Since("", 3)
	if truncated || len(changes) != 1 || changes[0].Seq != 4 {
		t.Fatalf("Since(3) = %+v truncated=%v", changes, truncated)
	}
}

func TestFanout_DeliversToAll(t *testing.T) {
	feed := NewFeed(0)
	bus := NewBus()
	var pushed int
	bus.Rules.Subscribe("", func(Change) { pushed++ })

	Fanout{bus, feed, Discard, nil}.Notify(context.Background(), Change{Kind: KindRule, ProviderID: "p9"})

	changes, _, _ := feed.Since("p9", 0)
	if pushed != 1 || len(changes) != 1 {
		t.Fatalf("pushed=%d polled=%d", pushed, len(changes))
	}
}
