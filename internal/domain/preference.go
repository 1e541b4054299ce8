package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SlotPatternLayout keys overrides by local date and time of day.
const SlotPatternLayout = "2006-01-02T15:04"

func FormatSlotPattern(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(SlotPatternLayout)
}

func ParseSlotPattern(pattern string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(SlotPatternLayout, pattern, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid slot pattern %q", pattern)
	}
	return t, nil
}

type SlotPreference struct {
	bun.BaseModel `bun:"table:slot_preferences"`

	ID                 uuid.UUID `bun:"id,pk,type:uuid"`
	ProviderID         string    `bun:"provider_id,notnull"`
	ListingID          string    `bun:"listing_id,notnull"`
	SlotPattern        string    `bun:"slot_pattern,notnull"`
	IsManuallyDisabled bool      `bun:"is_manually_disabled,notnull"`
	CreatedAt          time.Time `bun:"created_at,notnull"`
	UpdatedAt          time.Time `bun:"updated_at,notnull"`
}

func (p *SlotPreference) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if p.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			p.ID = id
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		if p.UpdatedAt.IsZero() {
			p.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		p.UpdatedAt = now
	}
	return nil
}

// DisabledPatterns indexes the disabled overrides of a preference set.
func DisabledPatterns(prefs []SlotPreference) map[string]bool {
	out := make(map[string]bool, len(prefs))
	for _, p := range prefs {
		if p.IsManuallyDisabled {
			out[p.SlotPattern] = true
		}
	}
	return out
}
