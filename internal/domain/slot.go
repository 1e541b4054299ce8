package domain

import (
	"context"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SlotSize is the platform-wide bookable unit.
const SlotSize = 30 * time.Minute

// SlotType is a closed set; unknown values never scan.
type SlotType uint8

const (
	SlotTypeNormal SlotType = iota + 1
	SlotTypeProviderRejected
	SlotTypeRecurringBlocked
)

func ParseSlotType(s string) (SlotType, error) {
	switch s {
	case "normal":
		return SlotTypeNormal, nil
	case "provider_rejected":
		return SlotTypeProviderRejected, nil
	case "recurring_blocked":
		return SlotTypeRecurringBlocked, nil
	default:
		return 0, fmt.Errorf("unknown slot type %q", s)
	}
}

func (t SlotType) String() string {
	switch t {
	case SlotTypeNormal:
		return "normal"
	case SlotTypeProviderRejected:
		return "provider_rejected"
	case SlotTypeRecurringBlocked:
		return "recurring_blocked"
	default:
		return fmt.Sprintf("SlotType(%d)", uint8(t))
	}
}

// Blocking reports whether slots of this type are withheld from booking.
func (t SlotType) Blocking() bool {
	switch t {
	case SlotTypeNormal:
		return false
	case SlotTypeProviderRejected, SlotTypeRecurringBlocked:
		return true
	default:
		panic(fmt.Sprintf("domain: unhandled slot type %d", uint8(t)))
	}
}

func (t SlotType) Value() (driver.Value, error) {
	switch t {
	case SlotTypeNormal, SlotTypeProviderRejected, SlotTypeRecurringBlocked:
		return t.String(), nil
	default:
		return nil, fmt.Errorf("invalid slot type %d", uint8(t))
	}
}

func (t *SlotType) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("slot type: unsupported type %T", src)
	}
	parsed, err := ParseSlotType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t SlotType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

type Slot struct {
	bun.BaseModel `bun:"table:slots"`

	ID                 uuid.UUID  `bun:"id,pk,type:uuid"`
	ProviderID         string     `bun:"provider_id,notnull"`
	ListingID          string     `bun:"listing_id,notnull"`
	StartTime          time.Time  `bun:"slot_start,notnull"`
	EndTime            time.Time  `bun:"slot_end,notnull"`
	IsAvailable        bool       `bun:"is_available,notnull"`
	IsReserved         bool       `bun:"is_reserved,notnull"`
	IsManuallyDisabled bool       `bun:"is_manually_disabled,notnull"`
	Type               SlotType   `bun:"slot_type,notnull,type:text"`
	AppointmentID      *uuid.UUID `bun:"appointment_id,type:uuid"`
	CreatedAt          time.Time  `bun:"created_at,notnull"`
	UpdatedAt          time.Time  `bun:"updated_at,notnull"`
}

// Bookable is the claim precondition: available, unreserved, enabled and not blocked.
func (s Slot) Bookable() bool {
	return s.IsAvailable && !s.IsReserved && !s.IsManuallyDisabled && !s.Type.Blocking()
}

// Normalize recomputes IsAvailable from the other flags.
func (s *Slot) Normalize() {
	s.IsAvailable = !s.IsReserved && !s.IsManuallyDisabled && !s.Type.Blocking()
}

func (s *Slot) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if s.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			s.ID = id
		}
		if s.Type == 0 {
			s.Type = SlotTypeNormal
		}
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
		if s.UpdatedAt.IsZero() {
			s.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		s.UpdatedAt = now
	}
	return nil
}

// SlotsCover reports whether slots form an unbroken run covering exactly [start, end).
// slots must be sorted by StartTime.
func SlotsCover(slots []Slot, start, end time.Time) bool {
	if len(slots) == 0 {
		return false
	}
	if !slots[0].StartTime.Equal(start) {
		return false
	}
	for i := 1; i < len(slots); i++ {
		if !slots[i].StartTime.Equal(slots[i-1].StartTime.Add(SlotSize)) {
			return false
		}
	}
	return !slots[len(slots)-1].StartTime.Add(SlotSize).Before(end)
}
