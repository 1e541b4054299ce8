// Package api holds the transport-neutral request and response shapes of the
// scheduling API and the operations both the gRPC and HTTP servers expose.
package api

import (
	"time"

	"github.com/google/uuid"

	"slotengine/internal/domain"
	"slotengine/internal/events"
	"slotengine/internal/pricing"
	"slotengine/internal/service/scheduling"
)

type Slot struct {
	ID                 string     `json:"id"`
	ProviderID         string     `json:"provider_id"`
	ListingID          string     `json:"listing_id"`
	StartTime          time.Time  `json:"slot_start"`
	EndTime            time.Time  `json:"slot_end"`
	IsAvailable        bool       `json:"is_available"`
	IsReserved         bool       `json:"is_reserved"`
	IsManuallyDisabled bool       `json:"is_manually_disabled"`
	SlotType           string     `json:"slot_type"`
	AppointmentID      *uuid.UUID `json:"appointment_id,omitempty"`
}

func SlotOf(s domain.Slot) Slot {
	return Slot{
		ID:                 s.ID.String(),
		ProviderID:         s.ProviderID,
		ListingID:          s.ListingID,
		StartTime:          s.StartTime.UTC(),
		EndTime:            s.EndTime.UTC(),
		IsAvailable:        s.IsAvailable,
		IsReserved:         s.IsReserved,
		IsManuallyDisabled: s.IsManuallyDisabled,
		SlotType:           s.Type.String(),
		AppointmentID:      s.AppointmentID,
	}
}

func slotsOf(in []domain.Slot) []Slot {
	out := make([]Slot, 0, len(in))
	for _, s := range in {
		out = append(out, SlotOf(s))
	}
	return out
}

type Appointment struct {
	ID                  string     `json:"id"`
	RuleID              *uuid.UUID `json:"rule_id,omitempty"`
	RecurrenceGroupID   *uuid.UUID `json:"recurrence_group_id,omitempty"`
	ProviderID          string     `json:"provider_id"`
	ClientID            string     `json:"client_id,omitempty"`
	ListingID           string     `json:"listing_id"`
	StartTime           time.Time  `json:"start_time"`
	EndTime             time.Time  `json:"end_time"`
	Status              string     `json:"status"`
	Recurrence          string     `json:"recurrence"`
	IsRecurringInstance bool       `json:"is_recurring_instance"`
	SourceType          string     `json:"source_type"`
	Timezone            string     `json:"timezone"`
	Location            string     `json:"location,omitempty"`
	ContactName         string     `json:"contact_name,omitempty"`
	ContactEmail        string     `json:"contact_email,omitempty"`
	ContactPhone        string     `json:"contact_phone,omitempty"`
	Notes               string     `json:"notes,omitempty"`
	CreatedBy           string     `json:"created_by"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func AppointmentOf(a domain.Appointment) Appointment {
	return Appointment{
		ID:                  a.ID.String(),
		RuleID:              a.RuleID,
		RecurrenceGroupID:   a.RecurrenceGroupID,
		ProviderID:          a.ProviderID,
		ClientID:            a.ClientID,
		ListingID:           a.ListingID,
		StartTime:           a.StartTime.UTC(),
		EndTime:             a.EndTime.UTC(),
		Status:              string(a.Status),
		Recurrence:          string(a.Recurrence),
		IsRecurringInstance: a.IsRecurringInstance,
		SourceType:          string(a.SourceType),
		Timezone:            a.Timezone,
		Location:            a.Location,
		ContactName:         a.ContactName,
		ContactEmail:        a.ContactEmail,
		ContactPhone:        a.ContactPhone,
		Notes:               a.Notes,
		CreatedBy:           a.CreatedBy,
		CreatedAt:           a.CreatedAt.UTC(),
		UpdatedAt:           a.UpdatedAt.UTC(),
	}
}

func appointmentsOf(in []domain.Appointment) []Appointment {
	out := make([]Appointment, 0, len(in))
	for _, a := range in {
		out = append(out, AppointmentOf(a))
	}
	return out
}

type GenerateSlotsRequest struct {
	ProviderID string `json:"provider_id"`
	ListingID  string `json:"listing_id"`
	// From is a local calendar date (2006-01-02); empty means today.
	From string `json:"from,omitempty"`
	Days int    `json:"days,omitempty"`
}

type GenerateSlotsResponse struct {
	SlotsByDate map[string][]Slot    `json:"slots_by_date"`
	Stats       scheduling.SlotStats `json:"stats"`
	Inserted    int                  `json:"inserted"`
}

type SlotRequest struct {
	SlotID string `json:"slot_id"`
}

type ListingRequest struct {
	ProviderID string `json:"provider_id"`
	ListingID  string `json:"listing_id"`
}

type CountResponse struct {
	Count int `json:"count"`
}

type BookingRequest struct {
	ProviderID      string    `json:"provider_id"`
	ListingID       string    `json:"listing_id"`
	ClientID        string    `json:"client_id"`
	StartTime       time.Time `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Recurrence      string    `json:"recurrence,omitempty"`
	WeeksAhead      int       `json:"weeks_ahead,omitempty"`
	HolderID        string    `json:"holder_id,omitempty"`
	Timezone        string    `json:"timezone,omitempty"`
	Location        string    `json:"location,omitempty"`
	ContactName     string    `json:"contact_name,omitempty"`
	ContactEmail    string    `json:"contact_email,omitempty"`
	ContactPhone    string    `json:"contact_phone,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	CreatedBy       string    `json:"created_by"`
}

type BookingResponse struct {
	Success      bool          `json:"success"`
	Appointments []Appointment `json:"appointments"`
	GroupID      *uuid.UUID    `json:"group_id,omitempty"`
	Count        int           `json:"count"`
}

type GenerateInstancesRequest struct {
	WeeksAhead int `json:"weeks_ahead"`
}

type TransitionRequest struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
}

type AppointmentRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type HoldRequest struct {
	ProviderID      string    `json:"provider_id"`
	ListingID       string    `json:"listing_id"`
	StartTime       time.Time `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	HolderID        string    `json:"holder_id"`
}

type TimeRange struct {
	Start string `json:"start_time"`
	End   string `json:"end_time"`
}

type DayAvailability struct {
	DayOfWeek int         `json:"day_of_week"`
	Enabled   bool        `json:"enabled"`
	Ranges    []TimeRange `json:"time_ranges"`
}

type AvailabilityRequest struct {
	ProviderID string            `json:"provider_id"`
	ListingID  string            `json:"listing_id,omitempty"`
	Days       []DayAvailability `json:"days"`
}

type Window struct {
	DayOfWeek int    `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	ListingID string `json:"listing_id,omitempty"`
}

type AvailabilityResponse struct {
	Windows []Window `json:"windows"`
}

type FindRunRequest struct {
	ProviderID      string    `json:"provider_id"`
	ListingID       string    `json:"listing_id"`
	DurationMinutes int       `json:"duration_minutes"`
	From            time.Time `json:"from"`
	To              time.Time `json:"to"`
	// BasePrice, when set, is quoted for the run; Recommended marks the first
	// slot as recommended upstream.
	BasePrice   string `json:"base_price,omitempty"`
	Recommended bool   `json:"recommended,omitempty"`
}

type FindRunResponse struct {
	Slots []Slot         `json:"slots"`
	Quote *pricing.Quote `json:"quote,omitempty"`
}

type ChangesRequest struct {
	ProviderID string `json:"provider_id"`
	Since      uint64 `json:"since"`
}

type ChangesResponse struct {
	Changes   []events.Change `json:"changes"`
	Next      uint64          `json:"next"`
	Truncated bool            `json:"truncated"`
}

func quoteFor(price string, recommended bool) (*pricing.Quote, error) {
	if price == "" {
		return nil, nil
	}
	base, err := pricing.ParsePrice(price)
	if err != nil {
		return nil, err
	}
	q := pricing.QuoteRun(base.Round(2), recommended)
	return &q, nil
}
