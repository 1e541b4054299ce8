package domain

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AvailabilityWindow struct {
	bun.BaseModel `bun:"table:availability_windows"`

	ID         uuid.UUID    `bun:"id,pk,type:uuid"`
	ProviderID string       `bun:"provider_id,notnull"`
	ListingID  string       `bun:"listing_id,notnull"`
	DayOfWeek  time.Weekday `bun:"day_of_week,notnull"`
	StartTime  Clock        `bun:"start_time,notnull,type:text"`
	EndTime    Clock        `bun:"end_time,notnull,type:text"`
	IsActive   bool         `bun:"is_active,notnull"`
	CreatedAt  time.Time    `bun:"created_at,notnull"`
	UpdatedAt  time.Time    `bun:"updated_at,notnull"`
}

func (w *AvailabilityWindow) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if w.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			w.ID = id
		}
		if w.CreatedAt.IsZero() {
			w.CreatedAt = now
		}
		if w.UpdatedAt.IsZero() {
			w.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		w.UpdatedAt = now
	}
	return nil
}

// DayTemplate is the provider-facing weekly template shape.
type DayTemplate struct {
	DayOfWeek time.Weekday
	Enabled   bool
	Ranges    []ClockRange
}

type ClockRange struct {
	Start Clock
	End   Clock
}

// WindowsFromTemplate flattens a weekly template into windows. Disabled days and
// empty or inverted ranges produce no windows.
func WindowsFromTemplate(providerID, listingID string, days []DayTemplate) []AvailabilityWindow {
	var out []AvailabilityWindow
	for _, d := range days {
		if !d.Enabled {
			continue
		}
		for _, r := range d.Ranges {
			if r.End <= r.Start {
				continue
			}
			out = append(out, AvailabilityWindow{
				ProviderID: providerID,
				ListingID:  listingID,
				DayOfWeek:  d.DayOfWeek,
				StartTime:  r.Start,
				EndTime:    r.End,
				IsActive:   true,
			})
		}
	}
	return out
}

// SlotStarts enumerates slot start instants for one calendar day. Starts are snapped
// up to the fixed :00/:30 grid and a slot is emitted only if it ends within its window.
// Overlapping windows yield each grid start once; the result is sorted.
func SlotStarts(day time.Time, loc *time.Location, windows []AvailabilityWindow) []time.Time {
	weekday := time.Date(day.Year(), day.Month(), day.Day(), 12, 0, 0, 0, loc).Weekday()
	size := Clock(SlotSize / time.Minute)

	seen := make(map[Clock]struct{})
	for _, w := range windows {
		if !w.IsActive || w.DayOfWeek != weekday {
			continue
		}
		first := w.StartTime
		if rem := first % size; rem != 0 {
			first += size - rem
		}
		for c := first; c+size <= w.EndTime; c += size {
			seen[c] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}

	clocks := make([]Clock, 0, len(seen))
	for c := range seen {
		clocks = append(clocks, c)
	}
	sort.Slice(clocks, func(i, j int) bool { return clocks[i] < clocks[j] })

	out := make([]time.Time, 0, len(clocks))
	for _, c := range clocks {
		out = append(out, c.On(day, loc))
	}
	return out
}

// EffectiveWindows picks the windows that apply to listingID. Listing-specific
// windows replace the provider-wide ones (empty listing id) entirely.
func EffectiveWindows(windows []AvailabilityWindow, listingID string) []AvailabilityWindow {
	var specific, shared []AvailabilityWindow
	for _, w := range windows {
		switch w.ListingID {
		case listingID:
			specific = append(specific, w)
		case "":
			shared = append(shared, w)
		}
	}
	if listingID != "" && len(specific) > 0 {
		return specific
	}
	return shared
}
