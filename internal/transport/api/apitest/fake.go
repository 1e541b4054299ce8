// Package apitest provides a configurable Scheduler for transport tests.
package apitest

import (
	"context"
	"time"

	"github.com/google/uuid"

	"slotengine/internal/domain"
	"slotengine/internal/service/scheduling"
)

// Scheduler panics on any method whose func field is unset.
type Scheduler struct {
	Loc                      *time.Location
	GenerateSlotsFn          func(ctx context.Context, cfg scheduling.GenerateConfig) (scheduling.GenerateResult, error)
	ToggleSlotFn             func(ctx context.Context, slotID uuid.UUID) (domain.Slot, error)
	EnableAllSlotsFn         func(ctx context.Context, providerID, listingID string) (int, error)
	DisableAllSlotsFn        func(ctx context.Context, providerID, listingID string) (int, error)
	CreateRecurringBookingFn func(ctx context.Context, req scheduling.BookingRequest) (scheduling.BookingResult, error)
	GenerateInstancesFn      func(ctx context.Context, weeksAhead int) (int, error)
	ExtendFn                 func(ctx context.Context) (int, error)
	CheckConsistencyFn       func(ctx context.Context) (scheduling.AuditReport, error)
	RepairOrphansFn          func(ctx context.Context) (scheduling.RepairReport, error)
	TransitionFn             func(ctx context.Context, id uuid.UUID, to domain.AppointmentStatus) (domain.Appointment, error)
	ClearRecurrenceFn        func(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	HoldSlotsFn              func(ctx context.Context, req scheduling.HoldRequest) (scheduling.Hold, error)
	ReplaceAvailabilityFn    func(ctx context.Context, providerID, listingID string, days []domain.DayTemplate) ([]domain.AvailabilityWindow, error)
	FindRunFn                func(ctx context.Context, q scheduling.RunQuery) ([]domain.Slot, error)
}

func (f *Scheduler) Location() *time.Location {
	if f.Loc == nil {
		return time.UTC
	}
	return f.Loc
}

func (f *Scheduler) GenerateSlots(ctx context.Context, cfg scheduling.GenerateConfig) (scheduling.GenerateResult, error) {
	if f.GenerateSlotsFn == nil {
		panic("GenerateSlots not configured")
	}
	return f.GenerateSlotsFn(ctx, cfg)
}

func (f *Scheduler) ToggleSlot(ctx context.Context, slotID uuid.UUID) (domain.Slot, error) {
	if f.ToggleSlotFn == nil {
		panic("ToggleSlot not configured")
	}
	return f.ToggleSlotFn(ctx, slotID)
}

func (f *Scheduler) EnableAllSlots(ctx context.Context, providerID, listingID string) (int, error) {
	if f.EnableAllSlotsFn == nil {
		panic("EnableAllSlots not configured")
	}
	return f.EnableAllSlotsFn(ctx, providerID, listingID)
}

func (f *Scheduler) DisableAllSlots(ctx context.Context, providerID, listingID string) (int, error) {
	if f.DisableAllSlotsFn == nil {
		panic("DisableAllSlots not configured")
	}
	return f.DisableAllSlotsFn(ctx, providerID, listingID)
}

func (f *Scheduler) CreateRecurringBooking(ctx context.Context, req scheduling.BookingRequest) (scheduling.BookingResult, error) {
	if f.CreateRecurringBookingFn == nil {
		panic("CreateRecurringBooking not configured")
	}
	return f.CreateRecurringBookingFn(ctx, req)
}

func (f *Scheduler) GenerateInstances(ctx context.Context, weeksAhead int) (int, error) {
	if f.GenerateInstancesFn == nil {
		panic("GenerateInstances not configured")
	}
	return f.GenerateInstancesFn(ctx, weeksAhead)
}

func (f *Scheduler) Extend(ctx context.Context) (int, error) {
	if f.ExtendFn == nil {
		panic("Extend not configured")
	}
	return f.ExtendFn(ctx)
}

func (f *Scheduler) CheckConsistency(ctx context.Context) (scheduling.AuditReport, error) {
	if f.CheckConsistencyFn == nil {
		panic("CheckConsistency not configured")
	}
	return f.CheckConsistencyFn(ctx)
}

func (f *Scheduler) RepairOrphans(ctx context.Context) (scheduling.RepairReport, error) {
	if f.RepairOrphansFn == nil {
		panic("RepairOrphans not configured")
	}
	return f.RepairOrphansFn(ctx)
}

func (f *Scheduler) Transition(ctx context.Context, id uuid.UUID, to domain.AppointmentStatus) (domain.Appointment, error) {
	if f.TransitionFn == nil {
		panic("Transition not configured")
	}
	return f.TransitionFn(ctx, id, to)
}

func (f *Scheduler) ClearRecurrence(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if f.ClearRecurrenceFn == nil {
		panic("ClearRecurrence not configured")
	}
	return f.ClearRecurrenceFn(ctx, id)
}

func (f *Scheduler) HoldSlots(ctx context.Context, req scheduling.HoldRequest) (scheduling.Hold, error) {
	if f.HoldSlotsFn == nil {
		panic("HoldSlots not configured")
	}
	return f.HoldSlotsFn(ctx, req)
}

func (f *Scheduler) ReplaceAvailability(ctx context.Context, providerID, listingID string, days []domain.DayTemplate) ([]domain.AvailabilityWindow, error) {
	if f.ReplaceAvailabilityFn == nil {
		panic("ReplaceAvailability not configured")
	}
	return f.ReplaceAvailabilityFn(ctx, providerID, listingID, days)
}

func (f *Scheduler) FindRun(ctx context.Context, q scheduling.RunQuery) ([]domain.Slot, error) {
	if f.FindRunFn == nil {
		panic("FindRun not configured")
	}
	return f.FindRunFn(ctx, q)
}
