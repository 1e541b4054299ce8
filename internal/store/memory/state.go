package memory

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"slotengine/internal/domain"
	"slotengine/internal/store"
)

type slotKey struct {
	providerID string
	listingID  string
	start      int64
}

type prefKey struct {
	providerID string
	listingID  string
	pattern    string
}

// state is the whole dataset. Its methods assume the caller holds the store lock.
type state struct {
	now func() time.Time

	slots     map[uuid.UUID]domain.Slot
	slotIndex map[slotKey]uuid.UUID
	appts     map[uuid.UUID]domain.Appointment
	rules     map[uuid.UUID]domain.RecurringRule
	prefs     map[prefKey]domain.SlotPreference
	windows   []domain.AvailabilityWindow
}

var _ store.SchedulingTx = (*state)(nil)

func newState(now func() time.Time) *state {
	return &state{
		now:       now,
		slots:     make(map[uuid.UUID]domain.Slot),
		slotIndex: make(map[slotKey]uuid.UUID),
		appts:     make(map[uuid.UUID]domain.Appointment),
		rules:     make(map[uuid.UUID]domain.RecurringRule),
		prefs:     make(map[prefKey]domain.SlotPreference),
	}
}

func (s *state) clone() *state {
	return &state{
		now:       s.now,
		slots:     maps.Clone(s.slots),
		slotIndex: maps.Clone(s.slotIndex),
		appts:     maps.Clone(s.appts),
		rules:     maps.Clone(s.rules),
		prefs:     maps.Clone(s.prefs),
		windows:   slices.Clone(s.windows),
	}
}

func newID() (uuid.UUID, error) {
	return uuid.NewV7()
}

func keyOfSlot(sl domain.Slot) slotKey {
	return slotKey{providerID: sl.ProviderID, listingID: sl.ListingID, start: sl.StartTime.UnixNano()}
}

func (s *state) InsertSlots(ctx context.Context, slots []domain.Slot) (int, error) {
	now := s.now().UTC()
	inserted := 0
	for _, sl := range slots {
		k := keyOfSlot(sl)
		if _, ok := s.slotIndex[k]; ok {
			continue
		}
		if sl.ID == uuid.Nil {
			id, err := newID()
			if err != nil {
				return inserted, err
			}
			sl.ID = id
		}
		if sl.Type == 0 {
			sl.Type = domain.SlotTypeNormal
		}
		sl.StartTime = sl.StartTime.UTC()
		sl.EndTime = sl.EndTime.UTC()
		sl.Normalize()
		sl.CreatedAt, sl.UpdatedAt = now, now
		s.slots[sl.ID] = sl
		s.slotIndex[k] = sl.ID
		inserted++
	}
	return inserted, nil
}

func (s *state) ListSlots(ctx context.Context, f store.SlotFilter) ([]domain.Slot, error) {
	var out []domain.Slot
	for _, sl := range s.slots {
		if f.ProviderID != "" && sl.ProviderID != f.ProviderID {
			continue
		}
		if f.ListingID != "" && sl.ListingID != f.ListingID {
			continue
		}
		if !f.From.IsZero() && sl.StartTime.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !sl.StartTime.Before(f.To) {
			continue
		}
		out = append(out, sl)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ListingID < out[j].ListingID
	})
	return out, nil
}

func (s *state) GetSlot(ctx context.Context, id uuid.UUID) (domain.Slot, error) {
	sl, ok := s.slots[id]
	if !ok {
		return domain.Slot{}, store.ErrNotFound
	}
	return sl, nil
}

func (s *state) ReserveSlots(ctx context.Context, ids []uuid.UUID, appointmentID uuid.UUID) (int, error) {
	now := s.now().UTC()
	n := 0
	for _, id := range ids {
		sl, ok := s.slots[id]
		if !ok || !sl.Bookable() {
			continue
		}
		apptID := appointmentID
		sl.IsReserved = true
		sl.AppointmentID = &apptID
		sl.Normalize()
		sl.UpdatedAt = now
		s.slots[id] = sl
		n++
	}
	return n, nil
}

func (s *state) ReleaseSlots(ctx context.Context, appointmentID uuid.UUID) (int, error) {
	now := s.now().UTC()
	n := 0
	for id, sl := range s.slots {
		if !sl.IsReserved || sl.AppointmentID == nil || *sl.AppointmentID != appointmentID {
			continue
		}
		sl.IsReserved = false
		sl.AppointmentID = nil
		sl.Normalize()
		sl.UpdatedAt = now
		s.slots[id] = sl
		n++
	}
	return n, nil
}

func (s *state) BlockSlots(ctx context.Context, appointmentID uuid.UUID, kind domain.SlotType) (int, error) {
	if !kind.Blocking() {
		return 0, errors.New("block requires a blocking slot type")
	}
	now := s.now().UTC()
	n := 0
	for id, sl := range s.slots {
		if sl.AppointmentID == nil || *sl.AppointmentID != appointmentID {
			continue
		}
		sl.Type = kind
		sl.IsReserved = false
		sl.Normalize()
		sl.UpdatedAt = now
		s.slots[id] = sl
		n++
	}
	return n, nil
}

func (s *state) SetSlotDisabled(ctx context.Context, id uuid.UUID, disabled bool) (domain.Slot, error) {
	sl, ok := s.slots[id]
	if !ok {
		return domain.Slot{}, store.ErrNotFound
	}
	sl.IsManuallyDisabled = disabled
	sl.Normalize()
	sl.UpdatedAt = s.now().UTC()
	s.slots[id] = sl
	return sl, nil
}

func (s *state) SetListingSlotsDisabled(ctx context.Context, providerID, listingID string, from time.Time, disabled bool) (int, error) {
	now := s.now().UTC()
	n := 0
	for id, sl := range s.slots {
		if sl.ProviderID != providerID || sl.ListingID != listingID || sl.StartTime.Before(from) {
			continue
		}
		sl.IsManuallyDisabled = disabled
		sl.Normalize()
		sl.UpdatedAt = now
		s.slots[id] = sl
		n++
	}
	return n, nil
}

func (s *state) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	if appt.ID == uuid.Nil {
		id, err := newID()
		if err != nil {
			return domain.Appointment{}, err
		}
		appt.ID = id
	}
	if _, ok := s.appts[appt.ID]; ok {
		return domain.Appointment{}, store.ErrConflict
	}
	if appt.Status.Active() {
		if _, ok, _ := s.FindActiveAppointment(ctx, store.KeyOf(appt)); ok {
			return domain.Appointment{}, store.ErrConflict
		}
	}
	now := s.now().UTC()
	appt.StartTime = appt.StartTime.UTC()
	appt.EndTime = appt.EndTime.UTC()
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = now
	}
	appt.UpdatedAt = now
	s.appts[appt.ID] = appt
	return appt, nil
}

func (s *state) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	a, ok := s.appts[id]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return a, nil
}

func (s *state) ListAppointments(ctx context.Context, f store.AppointmentFilter) ([]domain.Appointment, error) {
	var out []domain.Appointment
	for _, a := range s.appts {
		if f.ProviderID != "" && a.ProviderID != f.ProviderID {
			continue
		}
		if f.ListingID != "" && a.ListingID != f.ListingID {
			continue
		}
		if f.ClientID != "" && a.ClientID != f.ClientID {
			continue
		}
		if f.RuleID != nil && (a.RuleID == nil || *a.RuleID != *f.RuleID) {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, a.Status) {
			continue
		}
		if !f.StartFrom.IsZero() && a.StartTime.Before(f.StartFrom) {
			continue
		}
		if !f.StartTo.IsZero() && !a.StartTime.Before(f.StartTo) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *state) FindActiveAppointment(ctx context.Context, key store.InstanceKey) (domain.Appointment, bool, error) {
	for _, a := range s.appts {
		if a.Status.Active() && sameInstance(a, key) {
			return a, true, nil
		}
	}
	return domain.Appointment{}, false, nil
}

func sameInstance(a domain.Appointment, key store.InstanceKey) bool {
	return a.ProviderID == key.ProviderID &&
		a.ClientID == key.ClientID &&
		a.ListingID == key.ListingID &&
		a.StartTime.Equal(key.StartTime)
}

func (s *state) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to domain.AppointmentStatus) (domain.Appointment, error) {
	a, ok := s.appts[id]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	if a.Status != from {
		return domain.Appointment{}, store.ErrConflict
	}
	a.Status = to
	a.UpdatedAt = s.now().UTC()
	s.appts[id] = a
	return a, nil
}

func (s *state) ClearRecurrence(ctx context.Context, id uuid.UUID) error {
	a, ok := s.appts[id]
	if !ok {
		return store.ErrNotFound
	}
	a.Recurrence = domain.RecurrenceNone
	a.RuleID = nil
	a.RecurrenceGroupID = nil
	a.IsRecurringInstance = false
	a.UpdatedAt = s.now().UTC()
	s.appts[id] = a
	return nil
}

func (s *state) CreateRule(ctx context.Context, rule domain.RecurringRule) (domain.RecurringRule, error) {
	if rule.ID == uuid.Nil {
		id, err := newID()
		if err != nil {
			return domain.RecurringRule{}, err
		}
		rule.ID = id
	}
	if _, ok := s.rules[rule.ID]; ok {
		return domain.RecurringRule{}, store.ErrConflict
	}
	if rule.GroupID == uuid.Nil {
		rule.GroupID = rule.ID
	}
	now := s.now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now
	s.rules[rule.ID] = rule
	return rule, nil
}

func (s *state) GetRule(ctx context.Context, id uuid.UUID) (domain.RecurringRule, error) {
	r, ok := s.rules[id]
	if !ok {
		return domain.RecurringRule{}, store.ErrNotFound
	}
	return r, nil
}

func (s *state) ListRules(ctx context.Context, activeOnly bool) ([]domain.RecurringRule, error) {
	var out []domain.RecurringRule
	for _, r := range s.rules {
		if activeOnly && !r.IsActive {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *state) DeactivateRule(ctx context.Context, id uuid.UUID) error {
	r, ok := s.rules[id]
	if !ok {
		return store.ErrNotFound
	}
	r.IsActive = false
	r.UpdatedAt = s.now().UTC()
	s.rules[id] = r
	return nil
}

func (s *state) DeleteRule(ctx context.Context, id uuid.UUID) error {
	if _, ok := s.rules[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.rules, id)
	return nil
}

func (s *state) ListPreferences(ctx context.Context, providerID, listingID string) ([]domain.SlotPreference, error) {
	var out []domain.SlotPreference
	for k, p := range s.prefs {
		if k.providerID == providerID && k.listingID == listingID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SlotPattern < out[j].SlotPattern })
	return out, nil
}

func (s *state) UpsertPreference(ctx context.Context, pref domain.SlotPreference) error {
	k := prefKey{providerID: pref.ProviderID, listingID: pref.ListingID, pattern: pref.SlotPattern}
	now := s.now().UTC()
	if existing, ok := s.prefs[k]; ok {
		existing.IsManuallyDisabled = pref.IsManuallyDisabled
		existing.UpdatedAt = now
		s.prefs[k] = existing
		return nil
	}
	if pref.ID == uuid.Nil {
		id, err := newID()
		if err != nil {
			return err
		}
		pref.ID = id
	}
	pref.CreatedAt, pref.UpdatedAt = now, now
	s.prefs[k] = pref
	return nil
}

func (s *state) ReplacePreferences(ctx context.Context, providerID, listingID string, prefs []domain.SlotPreference) error {
	for k := range s.prefs {
		if k.providerID == providerID && k.listingID == listingID {
			delete(s.prefs, k)
		}
	}
	for _, p := range prefs {
		if err := s.UpsertPreference(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (s *state) ListWindows(ctx context.Context, providerID, listingID string) ([]domain.AvailabilityWindow, error) {
	var out []domain.AvailabilityWindow
	for _, w := range s.windows {
		if w.ProviderID == providerID && (w.ListingID == listingID || w.ListingID == "") {
			out = append(out, w)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DayOfWeek != out[j].DayOfWeek {
			return out[i].DayOfWeek < out[j].DayOfWeek
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

func (s *state) ReplaceWindows(ctx context.Context, providerID, listingID string, windows []domain.AvailabilityWindow) error {
	kept := s.windows[:0:0]
	for _, w := range s.windows {
		if w.ProviderID == providerID && w.ListingID == listingID {
			continue
		}
		kept = append(kept, w)
	}
	now := s.now().UTC()
	for _, w := range windows {
		if w.ID == uuid.Nil {
			id, err := newID()
			if err != nil {
				return err
			}
			w.ID = id
		}
		w.CreatedAt, w.UpdatedAt = now, now
		kept = append(kept, w)
	}
	s.windows = kept
	return nil
}

func (s *state) ListListings(ctx context.Context) ([]store.ListingRef, error) {
	seen := make(map[store.ListingRef]struct{})
	for _, w := range s.windows {
		if w.ListingID != "" && w.IsActive {
			seen[store.ListingRef{ProviderID: w.ProviderID, ListingID: w.ListingID}] = struct{}{}
		}
	}
	for _, sl := range s.slots {
		seen[store.ListingRef{ProviderID: sl.ProviderID, ListingID: sl.ListingID}] = struct{}{}
	}
	out := make([]store.ListingRef, 0, len(seen))
	for ref := range seen {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProviderID != out[j].ProviderID {
			return out[i].ProviderID < out[j].ProviderID
		}
		return out[i].ListingID < out[j].ListingID
	})
	return out, nil
}
