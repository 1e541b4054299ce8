package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusRejected  AppointmentStatus = "rejected"
)

// Valid reports whether s is one of the current lifecycle states. Stored rows may
// still carry legacy values.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// Active statuses hold slots.
func (s AppointmentStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusRejected
}

// CanTransition encodes pending → confirmed → completed and
// pending|confirmed → cancelled|rejected.
func CanTransition(from, to AppointmentStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusConfirmed || to == StatusCancelled || to == StatusRejected
	case StatusConfirmed:
		return to == StatusCompleted || to == StatusCancelled || to == StatusRejected
	}
	return false
}

type SourceType string

const (
	SourceAppointment       SourceType = "appointment"
	SourceRecurringInstance SourceType = "recurring_instance"
)

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID                  uuid.UUID         `bun:"id,pk,type:uuid"`
	RuleID              *uuid.UUID        `bun:"rule_id,type:uuid"`
	RecurrenceGroupID   *uuid.UUID        `bun:"recurrence_group_id,type:uuid"`
	ProviderID          string            `bun:"provider_id,notnull"`
	ClientID            string            `bun:"client_id"`
	ListingID           string            `bun:"listing_id,notnull"`
	StartTime           time.Time         `bun:"start_time,notnull"`
	EndTime             time.Time         `bun:"end_time,notnull"`
	Status              AppointmentStatus `bun:"status,notnull"`
	Recurrence          Recurrence        `bun:"recurrence,notnull"`
	IsRecurringInstance bool              `bun:"is_recurring_instance,notnull"`
	SourceType          SourceType        `bun:"source_type,notnull"`
	Timezone            string            `bun:"timezone,notnull"`
	Location            string            `bun:"location"`
	ContactName         string            `bun:"contact_name"`
	ContactEmail        string            `bun:"contact_email"`
	ContactPhone        string            `bun:"contact_phone"`
	Notes               string            `bun:"notes"`
	CreatedBy           string            `bun:"created_by"`
	CreatedAt           time.Time         `bun:"created_at,notnull"`
	UpdatedAt           time.Time         `bun:"updated_at,notnull"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}

func (a Appointment) Duration() time.Duration {
	return a.EndTime.Sub(a.StartTime)
}

// Loc resolves the appointment's timezone, falling back to UTC.
func (a Appointment) Loc() *time.Location {
	return LoadLocation(a.Timezone)
}

// TimeOfDay is the wall-clock start in the appointment's timezone.
func (a Appointment) TimeOfDay() Clock {
	return ClockOf(a.StartTime.In(a.Loc()))
}

func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
