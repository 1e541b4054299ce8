package scheduling

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"slotengine/internal/domain"
	"slotengine/internal/events"
	"slotengine/internal/hold"
	"slotengine/internal/store"
)

type ClaimRequest struct {
	ProviderID   string
	ListingID    string
	ClientID     string
	Start        time.Time
	Duration     time.Duration
	HolderID     string
	Timezone     string
	Location     string
	ContactName  string
	ContactEmail string
	ContactPhone string
	Notes        string
	CreatedBy    string
}

func (r ClaimRequest) validate(loc *time.Location) (int, error) {
	if strings.TrimSpace(r.ProviderID) == "" {
		return 0, validationError("provider_id is required")
	}
	if strings.TrimSpace(r.ListingID) == "" {
		return 0, validationError("listing_id is required")
	}
	if strings.TrimSpace(r.CreatedBy) == "" {
		return 0, validationError("created_by is required")
	}
	if r.Start.IsZero() {
		return 0, validationError("start_time is required")
	}
	if !aligned(r.Start, loc) {
		return 0, validationError("start_time must be aligned to a 30-minute slot")
	}
	if r.Timezone != "" {
		if _, err := time.LoadLocation(r.Timezone); err != nil {
			return 0, validationError("invalid timezone")
		}
	}
	return RequiredSlots(r.Duration)
}

// aligned reports whether t sits on the local :00/:30 grid.
func aligned(t time.Time, loc *time.Location) bool {
	local := t.In(loc)
	return local.Second() == 0 && local.Nanosecond() == 0 && local.Minute()%30 == 0
}

func (r ClaimRequest) appointment() domain.Appointment {
	start := r.Start.UTC()
	tz := r.Timezone
	if tz == "" {
		tz = "UTC"
	}
	return domain.Appointment{
		ProviderID:   r.ProviderID,
		ClientID:     r.ClientID,
		ListingID:    r.ListingID,
		StartTime:    start,
		EndTime:      start.Add(r.Duration),
		Status:       domain.StatusPending,
		Recurrence:   domain.RecurrenceNone,
		SourceType:   domain.SourceAppointment,
		Timezone:     tz,
		Location:     r.Location,
		ContactName:  r.ContactName,
		ContactEmail: r.ContactEmail,
		ContactPhone: r.ContactPhone,
		Notes:        r.Notes,
		CreatedBy:    r.CreatedBy,
	}
}

// Claim reserves the run starting at req.Start and creates a pending
// appointment in one transaction. Losing a race, or finding any slot of the
// run reserved, disabled, blocked, missing or held by someone else, yields a
// SlotUnavailableError and leaves nothing behind.
func (s *Service) Claim(ctx context.Context, req ClaimRequest) (appt domain.Appointment, err error) {
	n, err := req.validate(s.cfg.Location)
	if err != nil {
		return domain.Appointment{}, err
	}

	ctx, span := s.startSpan(ctx, "Claim",
		attribute.String("provider_id", req.ProviderID),
		attribute.String("listing_id", req.ListingID),
		attribute.Int("slots", n),
	)
	defer func() { endSpan(span, err) }()

	if err := s.checkHolds(ctx, req.ProviderID, req.ListingID, req.Start, n, req.HolderID); err != nil {
		return domain.Appointment{}, err
	}

	err = s.store.InProviderTransaction(ctx, req.ProviderID, func(ctx context.Context, tx store.SchedulingTx) error {
		created, err := claimTx(ctx, tx, req.appointment(), n)
		if err != nil {
			return err
		}
		appt = created
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}

	s.releaseHolds(ctx, req.ProviderID, req.ListingID, req.Start, n, req.HolderID)
	s.notify(ctx, events.KindAppointment, appt.ProviderID, appt.ListingID, appt.ID.String())
	s.notify(ctx, events.KindSlots, appt.ProviderID, appt.ListingID, "")
	return appt, nil
}

// claimTx is the strict claim: every slot of the run must exist and be bookable,
// and the compare-and-set reserve must win all of them.
func claimTx(ctx context.Context, tx store.SchedulingTx, appt domain.Appointment, n int) (domain.Appointment, error) {
	runEnd := appt.StartTime.Add(time.Duration(n) * domain.SlotSize)
	slots, err := tx.ListSlots(ctx, store.SlotFilter{
		ProviderID: appt.ProviderID,
		ListingID:  appt.ListingID,
		From:       appt.StartTime,
		To:         runEnd,
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	if !domain.SlotsCover(slots, appt.StartTime, runEnd) {
		return domain.Appointment{}, slotUnavailable(appt.ProviderID, appt.ListingID, appt.StartTime, "no slot run covers the requested time")
	}
	ids := make([]uuid.UUID, 0, len(slots))
	for _, sl := range slots {
		if !sl.Bookable() {
			return domain.Appointment{}, slotUnavailable(appt.ProviderID, appt.ListingID, appt.StartTime, unbookableReason(sl))
		}
		ids = append(ids, sl.ID)
	}

	created, err := tx.CreateAppointment(ctx, appt)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.Appointment{}, slotUnavailable(appt.ProviderID, appt.ListingID, appt.StartTime, "an active appointment already exists for this time")
		}
		return domain.Appointment{}, err
	}

	reserved, err := tx.ReserveSlots(ctx, ids, created.ID)
	if err != nil {
		return domain.Appointment{}, err
	}
	if reserved != len(ids) {
		return domain.Appointment{}, slotUnavailable(appt.ProviderID, appt.ListingID, appt.StartTime, "slot was claimed concurrently")
	}
	return created, nil
}

func unbookableReason(sl domain.Slot) string {
	switch {
	case sl.Type.Blocking():
		return "slot is blocked (" + sl.Type.String() + ")"
	case sl.IsReserved:
		return "slot is already reserved"
	case sl.IsManuallyDisabled:
		return "slot is disabled"
	default:
		return "slot is not available"
	}
}

type HoldRequest struct {
	ProviderID string
	ListingID  string
	Start      time.Time
	Duration   time.Duration
	HolderID   string
}

type Hold struct {
	ProviderID string    `json:"provider_id"`
	ListingID  string    `json:"listing_id"`
	Start      time.Time `json:"start_time"`
	Slots      int       `json:"slots"`
	HolderID   string    `json:"holder_id"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// HoldSlots keeps a bookable run aside for a checkout. The hold lapses by itself
// after the configured TTL.
func (s *Service) HoldSlots(ctx context.Context, req HoldRequest) (Hold, error) {
	if strings.TrimSpace(req.HolderID) == "" {
		return Hold{}, validationError("holder_id is required")
	}
	if strings.TrimSpace(req.ProviderID) == "" || strings.TrimSpace(req.ListingID) == "" {
		return Hold{}, validationError("provider_id and listing_id are required")
	}
	if !aligned(req.Start, s.cfg.Location) {
		return Hold{}, validationError("start_time must be aligned to a 30-minute slot")
	}
	n, err := RequiredSlots(req.Duration)
	if err != nil {
		return Hold{}, err
	}

	start := req.Start.UTC()
	end := start.Add(time.Duration(n) * domain.SlotSize)
	slots, err := s.store.ListSlots(ctx, store.SlotFilter{ProviderID: req.ProviderID, ListingID: req.ListingID, From: start, To: end})
	if err != nil {
		return Hold{}, err
	}
	if !domain.SlotsCover(slots, start, end) {
		return Hold{}, slotUnavailable(req.ProviderID, req.ListingID, start, "no slot run covers the requested time")
	}
	for _, sl := range slots {
		if !sl.Bookable() {
			return Hold{}, slotUnavailable(req.ProviderID, req.ListingID, start, unbookableReason(sl))
		}
	}

	var acquired []string
	for i := 0; i < n; i++ {
		key := hold.SlotKey(req.ProviderID, req.ListingID, start.Add(time.Duration(i)*domain.SlotSize))
		ok, err := s.holds.Acquire(ctx, key, req.HolderID, s.cfg.HoldTTL)
		if err != nil || !ok {
			for _, k := range acquired {
				_ = s.holds.Release(ctx, k, req.HolderID)
			}
			if err != nil {
				return Hold{}, err
			}
			return Hold{}, slotUnavailable(req.ProviderID, req.ListingID, start, "slot is held by another checkout")
		}
		acquired = append(acquired, key)
	}

	s.notify(ctx, events.KindSlots, req.ProviderID, req.ListingID, "")
	return Hold{
		ProviderID: req.ProviderID,
		ListingID:  req.ListingID,
		Start:      start,
		Slots:      n,
		HolderID:   req.HolderID,
		ExpiresAt:  s.now().Add(s.cfg.HoldTTL).UTC(),
	}, nil
}

func (s *Service) checkHolds(ctx context.Context, providerID, listingID string, start time.Time, n int, holderID string) error {
	for i := 0; i < n; i++ {
		at := start.Add(time.Duration(i) * domain.SlotSize)
		h, err := s.holds.Holder(ctx, hold.SlotKey(providerID, listingID, at))
		if err != nil {
			s.logger.Warn("hold lookup failed", "err", err, "provider_id", providerID)
			continue
		}
		if h != "" && h != holderID {
			return slotUnavailable(providerID, listingID, start, "slot is held by another checkout")
		}
	}
	return nil
}

func (s *Service) releaseHolds(ctx context.Context, providerID, listingID string, start time.Time, n int, holderID string) {
	if holderID == "" {
		return
	}
	for i := 0; i < n; i++ {
		key := hold.SlotKey(providerID, listingID, start.Add(time.Duration(i)*domain.SlotSize))
		if err := s.holds.Release(ctx, key, holderID); err != nil {
			s.logger.Warn("hold release failed", "err", err, "provider_id", providerID)
		}
	}
}

// withoutForeignHolds marks slots held by anyone but holderID as unavailable.
func (s *Service) withoutForeignHolds(ctx context.Context, slots []domain.Slot, holderID string) []domain.Slot {
	out := make([]domain.Slot, len(slots))
	copy(out, slots)
	for i := range out {
		if !out[i].Bookable() {
			continue
		}
		h, err := s.holds.Holder(ctx, hold.SlotKey(out[i].ProviderID, out[i].ListingID, out[i].StartTime))
		if err != nil {
			s.logger.Warn("hold lookup failed", "err", err, "provider_id", out[i].ProviderID)
			continue
		}
		if h != "" && h != holderID {
			out[i].IsAvailable = false
		}
	}
	return out
}

// ToggleSlot flips a slot's manual override and records it as a preference so
// the choice survives regeneration.
func (s *Service) ToggleSlot(ctx context.Context, slotID uuid.UUID) (domain.Slot, error) {
	if slotID == uuid.Nil {
		return domain.Slot{}, validationError("slot_id is required")
	}
	current, err := s.store.GetSlot(ctx, slotID)
	if err != nil {
		return domain.Slot{}, err
	}

	var updated domain.Slot
	err = s.store.InProviderTransaction(ctx, current.ProviderID, func(ctx context.Context, tx store.SchedulingTx) error {
		sl, err := tx.GetSlot(ctx, slotID)
		if err != nil {
			return err
		}
		disable := !sl.IsManuallyDisabled
		updated, err = tx.SetSlotDisabled(ctx, slotID, disable)
		if err != nil {
			return err
		}
		return tx.UpsertPreference(ctx, domain.SlotPreference{
			ProviderID:         sl.ProviderID,
			ListingID:          sl.ListingID,
			SlotPattern:        domain.FormatSlotPattern(sl.StartTime, s.cfg.Location),
			IsManuallyDisabled: disable,
		})
	})
	if err != nil {
		return domain.Slot{}, err
	}
	s.notify(ctx, events.KindSlots, updated.ProviderID, updated.ListingID, updated.ID.String())
	return updated, nil
}

// EnableAllSlots clears every override of the listing and re-enables its
// future slots.
func (s *Service) EnableAllSlots(ctx context.Context, providerID, listingID string) (int, error) {
	return s.setAllSlots(ctx, providerID, listingID, false)
}

// DisableAllSlots replaces the listing's overrides with one disabled entry per
// future slot.
func (s *Service) DisableAllSlots(ctx context.Context, providerID, listingID string) (int, error) {
	return s.setAllSlots(ctx, providerID, listingID, true)
}

func (s *Service) setAllSlots(ctx context.Context, providerID, listingID string, disabled bool) (int, error) {
	if strings.TrimSpace(providerID) == "" || strings.TrimSpace(listingID) == "" {
		return 0, validationError("provider_id and listing_id are required")
	}
	from := s.now().UTC()

	changed := 0
	err := s.store.InProviderTransaction(ctx, providerID, func(ctx context.Context, tx store.SchedulingTx) error {
		var prefs []domain.SlotPreference
		if disabled {
			slots, err := tx.ListSlots(ctx, store.SlotFilter{ProviderID: providerID, ListingID: listingID, From: from})
			if err != nil {
				return err
			}
			prefs = make([]domain.SlotPreference, 0, len(slots))
			for _, sl := range slots {
				prefs = append(prefs, domain.SlotPreference{
					ProviderID:         providerID,
					ListingID:          listingID,
					SlotPattern:        domain.FormatSlotPattern(sl.StartTime, s.cfg.Location),
					IsManuallyDisabled: true,
				})
			}
		}
		if err := tx.ReplacePreferences(ctx, providerID, listingID, prefs); err != nil {
			return err
		}
		n, err := tx.SetListingSlotsDisabled(ctx, providerID, listingID, from, disabled)
		changed = n
		return err
	})
	if err != nil {
		return 0, err
	}
	s.notify(ctx, events.KindSlots, providerID, listingID, "")
	return changed, nil
}
