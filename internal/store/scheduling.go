package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"slotengine/internal/domain"
)

type SlotFilter struct {
	ProviderID string
	ListingID  string
	From       time.Time
	To         time.Time
}

// AppointmentFilter selects appointments; zero fields are unconstrained and
// StartFrom/StartTo bound start_time to [StartFrom, StartTo).
type AppointmentFilter struct {
	ProviderID string
	ListingID  string
	ClientID   string
	RuleID     *uuid.UUID
	Statuses   []domain.AppointmentStatus
	StartFrom  time.Time
	StartTo    time.Time
}

// InstanceKey identifies a materialized occurrence for check-before-insert.
type InstanceKey struct {
	ProviderID string
	ClientID   string
	ListingID  string
	StartTime  time.Time
}

func KeyOf(a domain.Appointment) InstanceKey {
	return InstanceKey{ProviderID: a.ProviderID, ClientID: a.ClientID, ListingID: a.ListingID, StartTime: a.StartTime}
}

// ListingRef names a provider listing that has availability.
type ListingRef struct {
	ProviderID string
	ListingID  string
}

type SlotTx interface {
	// InsertSlots inserts slots whose (provider, listing, start) is not present and
	// returns how many were inserted. Existing rows are never touched.
	InsertSlots(ctx context.Context, slots []domain.Slot) (int, error)
	ListSlots(ctx context.Context, f SlotFilter) ([]domain.Slot, error)
	GetSlot(ctx context.Context, id uuid.UUID) (domain.Slot, error)
	// ReserveSlots reserves those of ids that are still bookable for appointmentID
	// and returns how many changed; a short count means a lost race.
	ReserveSlots(ctx context.Context, ids []uuid.UUID, appointmentID uuid.UUID) (int, error)
	ReleaseSlots(ctx context.Context, appointmentID uuid.UUID) (int, error)
	BlockSlots(ctx context.Context, appointmentID uuid.UUID, kind domain.SlotType) (int, error)
	SetSlotDisabled(ctx context.Context, id uuid.UUID, disabled bool) (domain.Slot, error)
	SetListingSlotsDisabled(ctx context.Context, providerID, listingID string, from time.Time, disabled bool) (int, error)
}

type AppointmentTx interface {
	CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	ListAppointments(ctx context.Context, f AppointmentFilter) ([]domain.Appointment, error)
	FindActiveAppointment(ctx context.Context, key InstanceKey) (domain.Appointment, bool, error)
	// UpdateAppointmentStatus moves id from → to; ErrConflict when the stored status is not from.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to domain.AppointmentStatus) (domain.Appointment, error)
	ClearRecurrence(ctx context.Context, id uuid.UUID) error
}

type RuleTx interface {
	CreateRule(ctx context.Context, rule domain.RecurringRule) (domain.RecurringRule, error)
	GetRule(ctx context.Context, id uuid.UUID) (domain.RecurringRule, error)
	ListRules(ctx context.Context, activeOnly bool) ([]domain.RecurringRule, error)
	DeactivateRule(ctx context.Context, id uuid.UUID) error
	DeleteRule(ctx context.Context, id uuid.UUID) error
}

type PreferenceTx interface {
	ListPreferences(ctx context.Context, providerID, listingID string) ([]domain.SlotPreference, error)
	UpsertPreference(ctx context.Context, pref domain.SlotPreference) error
	// ReplacePreferences swaps the whole override set of a listing.
	ReplacePreferences(ctx context.Context, providerID, listingID string, prefs []domain.SlotPreference) error
}

type AvailabilityTx interface {
	ListWindows(ctx context.Context, providerID, listingID string) ([]domain.AvailabilityWindow, error)
	ReplaceWindows(ctx context.Context, providerID, listingID string, windows []domain.AvailabilityWindow) error
	ListListings(ctx context.Context) ([]ListingRef, error)
}

type SchedulingTx interface {
	SlotTx
	AppointmentTx
	RuleTx
	PreferenceTx
	AvailabilityTx
}

// Store runs reads directly and serializes writes per provider.
type Store interface {
	SchedulingTx
	InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx SchedulingTx) error) error
}
