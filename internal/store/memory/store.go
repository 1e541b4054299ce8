// Package memory is an in-process store.Store for tests and single-node
// development. Transactions run on a copy of the dataset that replaces the
// live one only when the callback succeeds.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"slotengine/internal/domain"
	"slotengine/internal/store"
)

type Store struct {
	mu sync.Mutex
	st *state
}

var _ store.Store = (*Store)(nil)

type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.st.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{st: newState(time.Now)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InProviderTransaction serializes all writers, which is stricter than per-provider
// locking and equivalent for correctness.
func (s *Store) InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx store.SchedulingTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, work); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) InsertSlots(ctx context.Context, slots []domain.Slot) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.InsertSlots(ctx, slots)
}

func (s *Store) ListSlots(ctx context.Context, f store.SlotFilter) ([]domain.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ListSlots(ctx, f)
}

func (s *Store) GetSlot(ctx context.Context, id uuid.UUID) (domain.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetSlot(ctx, id)
}

func (s *Store) ReserveSlots(ctx context.Context, ids []uuid.UUID, appointmentID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ReserveSlots(ctx, ids, appointmentID)
}

func (s *Store) ReleaseSlots(ctx context.Context, appointmentID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ReleaseSlots(ctx, appointmentID)
}

func (s *Store) BlockSlots(ctx context.Context, appointmentID uuid.UUID, kind domain.SlotType) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.BlockSlots(ctx, appointmentID, kind)
}

func (s *Store) SetSlotDisabled(ctx context.Context, id uuid.UUID, disabled bool) (domain.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.SetSlotDisabled(ctx, id, disabled)
}

func (s *Store) SetListingSlotsDisabled(ctx context.Context, providerID, listingID string, from time.Time, disabled bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.SetListingSlotsDisabled(ctx, providerID, listingID, from, disabled)
}

func (s *Store) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.CreateAppointment(ctx, appt)
}

func (s *Store) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetAppointment(ctx, id)
}

func (s *Store) ListAppointments(ctx context.Context, f store.AppointmentFilter) ([]domain.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ListAppointments(ctx, f)
}

func (s *Store) FindActiveAppointment(ctx context.Context, key store.InstanceKey) (domain.Appointment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.FindActiveAppointment(ctx, key)
}

func (s *Store) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to domain.AppointmentStatus) (domain.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.UpdateAppointmentStatus(ctx, id, from, to)
}

func (s *Store) ClearRecurrence(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ClearRecurrence(ctx, id)
}

func (s *Store) CreateRule(ctx context.Context, rule domain.RecurringRule) (domain.RecurringRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.CreateRule(ctx, rule)
}

func (s *Store) GetRule(ctx context.Context, id uuid.UUID) (domain.RecurringRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetRule(ctx, id)
}

func (s *Store) ListRules(ctx context.Context, activeOnly bool) ([]domain.RecurringRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ListRules(ctx, activeOnly)
}

func (s *Store) DeactivateRule(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.DeactivateRule(ctx, id)
}

func (s *Store) DeleteRule(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.DeleteRule(ctx, id)
}

func (s *Store) ListPreferences(ctx context.Context, providerID, listingID string) ([]domain.SlotPreference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ListPreferences(ctx, providerID, listingID)
}

func (s *Store) UpsertPreference(ctx context.Context, pref domain.SlotPreference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.UpsertPreference(ctx, pref)
}

func (s *Store) ReplacePreferences(ctx context.Context, providerID, listingID string, prefs []domain.SlotPreference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ReplacePreferences(ctx, providerID, listingID, prefs)
}

func (s *Store) ListWindows(ctx context.Context, providerID, listingID string) ([]domain.AvailabilityWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ListWindows(ctx, providerID, listingID)
}

func (s *Store) ReplaceWindows(ctx context.Context, providerID, listingID string, windows []domain.AvailabilityWindow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ReplaceWindows(ctx, providerID, listingID, windows)
}

func (s *Store) ListListings(ctx context.Context) ([]store.ListingRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ListListings(ctx)
}
