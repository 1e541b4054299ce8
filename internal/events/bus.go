package events

import (
	"context"
	"sync"
)

// Topic is a provider-keyed publish/subscribe channel for values of type T.
// Subscribing with an empty provider id receives every provider's values.
type Topic[T any] struct {
	mu     sync.RWMutex
	next   uint64
	subs   map[string]map[uint64]func(T)
	closed bool
}

func NewTopic[T any]() *Topic[T] {
	return &Topic[T]{subs: make(map[string]map[uint64]func(T))}
}

// Subscribe registers fn and returns the handle that removes it. The handle is
// safe to call more than once.
func (t *Topic[T]) Subscribe(providerID string, fn func(T)) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return func() {}
	}

	t.next++
	id := t.next
	if t.subs[providerID] == nil {
		t.subs[providerID] = make(map[uint64]func(T))
	}
	t.subs[providerID][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			delete(t.subs[providerID], id)
			if len(t.subs[providerID]) == 0 {
				delete(t.subs, providerID)
			}
		})
	}
}

// Publish calls the provider's subscribers and the wildcard subscribers
// synchronously, outside the topic lock.
func (t *Topic[T]) Publish(providerID string, v T) {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return
	}
	var fns []func(T)
	for _, fn := range t.subs[providerID] {
		fns = append(fns, fn)
	}
	if providerID != "" {
		for _, fn := range t.subs[""] {
			fns = append(fns, fn)
		}
	}
	t.mu.RUnlock()

	for _, fn := range fns {
		fn(v)
	}
}

func (t *Topic[T]) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.subs = nil
}

// Bus owns one topic per change kind. It is created by the process and closed
// on shutdown.
type Bus struct {
	Availability *Topic[Change]
	Slots        *Topic[Change]
	Rules        *Topic[Change]
	Appointments *Topic[Change]
}

func NewBus() *Bus {
	return &Bus{
		Availability: NewTopic[Change](),
		Slots:        NewTopic[Change](),
		Rules:        NewTopic[Change](),
		Appointments: NewTopic[Change](),
	}
}

func (b *Bus) topic(k Kind) *Topic[Change] {
	switch k {
	case KindAvailability:
		return b.Availability
	case KindSlots:
		return b.Slots
	case KindRule:
		return b.Rules
	case KindAppointment:
		return b.Appointments
	}
	return nil
}

func (b *Bus) Notify(ctx context.Context, c Change) {
	if t := b.topic(c.Kind); t != nil {
		t.Publish(c.ProviderID, c)
	}
}

// Close drops every subscription; later publishes are no-ops.
func (b *Bus) Close() {
	b.Availability.close()
	b.Slots.close()
	b.Rules.close()
	b.Appointments.close()
}
