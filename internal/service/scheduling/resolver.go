package scheduling

import (
	"context"
	"strings"
	"time"

	"slotengine/internal/domain"
	"slotengine/internal/store"
)

const maxServiceDuration = 24 * time.Hour

// RequiredSlots is ceil(d / SlotSize): 45m and 60m need 2 slots, 90m needs 3.
func RequiredSlots(d time.Duration) (int, error) {
	if d <= 0 {
		return 0, validationError("duration must be positive")
	}
	if d > maxServiceDuration {
		return 0, validationError("duration too long")
	}
	return int((d + domain.SlotSize - 1) / domain.SlotSize), nil
}

// FirstRun returns the earliest run of n bookable slots whose starts are exactly
// one slot apart. slots must be sorted by start. Any unbookable or missing slot
// inside a candidate run disqualifies that start.
func FirstRun(slots []domain.Slot, n int) ([]domain.Slot, bool) {
	if n <= 0 {
		return nil, false
	}
	runStart := -1
	for i, sl := range slots {
		if !sl.Bookable() {
			runStart = -1
			continue
		}
		if runStart < 0 || !sl.StartTime.Equal(slots[i-1].StartTime.Add(domain.SlotSize)) {
			runStart = i
		}
		if i-runStart+1 == n {
			return slots[runStart : i+1], true
		}
	}
	return nil, false
}

type RunQuery struct {
	ProviderID string
	ListingID  string
	Duration   time.Duration
	From       time.Time
	To         time.Time
}

// FindRun returns the first run in [From, To) that fits Duration, or a
// SlotUnavailableError when none does.
func (s *Service) FindRun(ctx context.Context, q RunQuery) ([]domain.Slot, error) {
	if strings.TrimSpace(q.ProviderID) == "" || strings.TrimSpace(q.ListingID) == "" {
		return nil, validationError("provider_id and listing_id are required")
	}
	n, err := RequiredSlots(q.Duration)
	if err != nil {
		return nil, err
	}
	from := q.From.UTC()
	to := q.To.UTC()
	if !to.After(from) {
		return nil, validationError("to must be after from")
	}

	slots, err := s.store.ListSlots(ctx, store.SlotFilter{ProviderID: q.ProviderID, ListingID: q.ListingID, From: from, To: to})
	if err != nil {
		return nil, err
	}
	slots = s.withoutForeignHolds(ctx, slots, "")

	run, ok := FirstRun(slots, n)
	if !ok {
		return nil, slotUnavailable(q.ProviderID, q.ListingID, from, "no consecutive run fits the duration")
	}
	return run, nil
}
