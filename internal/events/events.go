// Package events propagates scheduling changes to open views. Delivery is
// best-effort; nothing in the scheduling core depends on it.
package events

import (
	"context"
	"time"
)

type Kind string

const (
	KindAvailability Kind = "availability_changed"
	KindSlots        Kind = "slots_changed"
	KindRule         Kind = "rule_changed"
	KindAppointment  Kind = "appointment_changed"
)

type Change struct {
	Seq        uint64    `json:"seq"`
	Kind       Kind      `json:"kind"`
	ProviderID string    `json:"provider_id"`
	ListingID  string    `json:"listing_id,omitempty"`
	EntityID   string    `json:"entity_id,omitempty"`
	At         time.Time `json:"at"`
}

// Notifier is the outbound port. Implementations must not block for long and
// must swallow their own delivery failures.
type Notifier interface {
	Notify(ctx context.Context, c Change)
}

// Fanout delivers to every notifier in order.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, c Change) {
	for _, n := range f {
		if n != nil {
			n.Notify(ctx, c)
		}
	}
}

type discard struct{}

func (discard) Notify(context.Context, Change) {}

// Discard drops every change.
var Discard Notifier = discard{}
