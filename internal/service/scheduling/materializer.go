package scheduling

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"slotengine/internal/domain"
	"slotengine/internal/events"
	"slotengine/internal/store"
)

const dateLayout = "2006-01-02"

type GenerateConfig struct {
	ProviderID string
	ListingID  string
	// From is the first local day to materialize; zero means today.
	From time.Time
	// Days overrides the configured horizon.
	Days int
}

type SlotStats struct {
	Total          int     `json:"total"`
	Enabled        int     `json:"enabled"`
	Disabled       int     `json:"disabled"`
	PercentEnabled float64 `json:"percent_enabled"`
}

type GenerateResult struct {
	SlotsByDate map[string][]domain.Slot `json:"slots_by_date"`
	Stats       SlotStats                `json:"stats"`
	Inserted    int                      `json:"inserted"`
}

// GenerateSlots materializes the listing's slots over the horizon. Existing
// rows are never deleted or overwritten, so reserved and disabled slots survive
// any number of regenerations.
func (s *Service) GenerateSlots(ctx context.Context, cfg GenerateConfig) (res GenerateResult, err error) {
	providerID := strings.TrimSpace(cfg.ProviderID)
	listingID := strings.TrimSpace(cfg.ListingID)
	if providerID == "" {
		return GenerateResult{}, validationError("provider_id is required")
	}
	if listingID == "" {
		return GenerateResult{}, validationError("listing_id is required")
	}
	days := cfg.Days
	if days == 0 {
		days = s.cfg.HorizonDays
	}
	if days < 0 || days > 366 {
		return GenerateResult{}, validationError("days must be between 1 and 366")
	}

	ctx, span := s.startSpan(ctx, "GenerateSlots",
		attribute.String("provider_id", providerID),
		attribute.String("listing_id", listingID),
		attribute.Int("days", days),
	)
	defer func() { endSpan(span, err) }()

	loc := s.cfg.Location
	from := cfg.From
	if from.IsZero() {
		from = s.now()
	}
	from = from.In(loc)
	first := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)
	last := first.AddDate(0, 0, days)

	windows, err := s.windows.Windows(ctx, providerID, listingID)
	if err != nil {
		return GenerateResult{}, err
	}

	inserted := 0
	err = s.store.InProviderTransaction(ctx, providerID, func(ctx context.Context, tx store.SchedulingTx) error {
		prefs, err := tx.ListPreferences(ctx, providerID, listingID)
		if err != nil {
			return err
		}
		disabled := domain.DisabledPatterns(prefs)

		var candidates []domain.Slot
		for day := first; day.Before(last); day = day.AddDate(0, 0, 1) {
			for _, start := range domain.SlotStarts(day, loc, windows) {
				candidates = append(candidates, newSlot(providerID, listingID, start, loc, disabled))
			}
		}

		n, err := tx.InsertSlots(ctx, candidates)
		if err != nil {
			return err
		}
		inserted = n
		if n == 0 {
			return nil
		}
		return reserveCoveredSlots(ctx, tx, providerID, listingID, first, last)
	})
	if err != nil {
		return GenerateResult{}, err
	}

	slots, err := s.store.ListSlots(ctx, store.SlotFilter{ProviderID: providerID, ListingID: listingID, From: first, To: last})
	if err != nil {
		return GenerateResult{}, err
	}

	res = GenerateResult{SlotsByDate: make(map[string][]domain.Slot), Inserted: inserted}
	for _, sl := range slots {
		key := sl.StartTime.In(loc).Format(dateLayout)
		res.SlotsByDate[key] = append(res.SlotsByDate[key], sl)
	}
	res.Stats = slotStats(slots)

	if inserted > 0 {
		s.notify(ctx, events.KindSlots, providerID, listingID, "")
	}
	s.logger.Debug("slots materialized", "provider_id", providerID, "listing_id", listingID, "inserted", inserted, "total", res.Stats.Total)
	return res, nil
}

func newSlot(providerID, listingID string, start time.Time, loc *time.Location, disabled map[string]bool) domain.Slot {
	return domain.Slot{
		ProviderID:         providerID,
		ListingID:          listingID,
		StartTime:          start.UTC(),
		EndTime:            start.Add(domain.SlotSize).UTC(),
		IsManuallyDisabled: disabled[domain.FormatSlotPattern(start, loc)],
		Type:               domain.SlotTypeNormal,
	}
}

// ensureSlotsTx inserts the slots windows define inside [from, to). Rows that
// already exist are left alone.
func (s *Service) ensureSlotsTx(ctx context.Context, tx store.SchedulingTx, windows []domain.AvailabilityWindow, providerID, listingID string, from, to time.Time) error {
	loc := s.cfg.Location
	prefs, err := tx.ListPreferences(ctx, providerID, listingID)
	if err != nil {
		return err
	}
	disabled := domain.DisabledPatterns(prefs)

	local := from.In(loc)
	var candidates []domain.Slot
	for day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc); day.Before(to); day = day.AddDate(0, 0, 1) {
		for _, start := range domain.SlotStarts(day, loc, windows) {
			if start.Before(from) || !start.Before(to) {
				continue
			}
			candidates = append(candidates, newSlot(providerID, listingID, start, loc, disabled))
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	_, err = tx.InsertSlots(ctx, candidates)
	return err
}

// reserveCoveredSlots links fresh slots to the active appointments that already
// occupy them, e.g. recurring instances created beyond the previous horizon.
func reserveCoveredSlots(ctx context.Context, tx store.SchedulingTx, providerID, listingID string, from, to time.Time) error {
	appts, err := tx.ListAppointments(ctx, store.AppointmentFilter{
		ProviderID: providerID,
		ListingID:  listingID,
		Statuses:   []domain.AppointmentStatus{domain.StatusPending, domain.StatusConfirmed},
		StartFrom:  from.Add(-24 * time.Hour),
		StartTo:    to,
	})
	if err != nil || len(appts) == 0 {
		return err
	}

	slots, err := tx.ListSlots(ctx, store.SlotFilter{ProviderID: providerID, ListingID: listingID, From: from.Add(-24 * time.Hour), To: to.Add(24 * time.Hour)})
	if err != nil {
		return err
	}
	byStart := make(map[int64]domain.Slot, len(slots))
	for _, sl := range slots {
		byStart[sl.StartTime.Unix()] = sl
	}

	for _, a := range appts {
		n, err := RequiredSlots(a.Duration())
		if err != nil {
			continue
		}
		var ids []uuid.UUID
		for i := 0; i < n; i++ {
			sl, ok := byStart[a.StartTime.Add(time.Duration(i)*domain.SlotSize).Unix()]
			if ok && sl.AppointmentID == nil && sl.Bookable() {
				ids = append(ids, sl.ID)
			}
		}
		if len(ids) == 0 {
			continue
		}
		if _, err := tx.ReserveSlots(ctx, ids, a.ID); err != nil {
			return err
		}
	}
	return nil
}

func slotStats(slots []domain.Slot) SlotStats {
	st := SlotStats{Total: len(slots)}
	for _, sl := range slots {
		if sl.IsManuallyDisabled {
			st.Disabled++
		} else {
			st.Enabled++
		}
	}
	if st.Total > 0 {
		st.PercentEnabled = math.Round(float64(st.Enabled)/float64(st.Total)*1000) / 10
	}
	return st
}

// MaterializeAll runs GenerateSlots for every known listing and returns the
// number of inserted slots. Per-listing failures are logged and skipped.
func (s *Service) MaterializeAll(ctx context.Context) (int, error) {
	refs, err := s.store.ListListings(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		res, err := s.GenerateSlots(ctx, GenerateConfig{ProviderID: ref.ProviderID, ListingID: ref.ListingID})
		if err != nil {
			s.logger.Error("materialize listing failed", "err", err, "provider_id", ref.ProviderID, "listing_id", ref.ListingID)
			continue
		}
		total += res.Inserted
	}
	return total, nil
}

// ReplaceAvailability swaps a listing's weekly template. An empty listingID sets
// the provider-wide template. Existing slots are left as they are.
func (s *Service) ReplaceAvailability(ctx context.Context, providerID, listingID string, days []domain.DayTemplate) ([]domain.AvailabilityWindow, error) {
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return nil, validationError("provider_id is required")
	}
	seen := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		if d.DayOfWeek < time.Sunday || d.DayOfWeek > time.Saturday {
			return nil, validationError("day_of_week must be between 0 and 6")
		}
		if seen[d.DayOfWeek] {
			return nil, validationError("duplicate day_of_week")
		}
		seen[d.DayOfWeek] = true
		for _, r := range d.Ranges {
			if r.Start < 0 || r.End > domain.NewClock(24, 0) || r.End <= r.Start {
				return nil, validationError("each range must satisfy 00:00 <= start_time < end_time <= 24:00")
			}
		}
	}

	windows := domain.WindowsFromTemplate(providerID, strings.TrimSpace(listingID), days)
	err := s.store.InProviderTransaction(ctx, providerID, func(ctx context.Context, tx store.SchedulingTx) error {
		return tx.ReplaceWindows(ctx, providerID, strings.TrimSpace(listingID), windows)
	})
	if err != nil {
		return nil, err
	}
	if inv, ok := s.windows.(invalidator); ok {
		inv.Invalidate(providerID)
	}
	s.notify(ctx, events.KindAvailability, providerID, listingID, "")
	return windows, nil
}

// invalidator is a window source that caches per provider.
type invalidator interface {
	Invalidate(providerID string)
}
