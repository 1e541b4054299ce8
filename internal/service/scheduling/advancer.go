package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"slotengine/internal/domain"
	"slotengine/internal/events"
	"slotengine/internal/store"
)

// Transition moves an appointment along its lifecycle. Cancelling releases its
// slots, rejecting blocks them, and both stop the owning rule. Completing a
// weekly-or-longer occurrence, or activating a daily one, schedules the next
// occurrence; failures there are logged and never fail the transition.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, to domain.AppointmentStatus) (appt domain.Appointment, err error) {
	if id == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	if !to.Valid() {
		return domain.Appointment{}, validationError("invalid status")
	}

	ctx, span := s.startSpan(ctx, "Transition",
		attribute.String("appointment_id", id.String()),
		attribute.String("to", string(to)),
	)
	defer func() { endSpan(span, err) }()

	current, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}

	err = s.store.InProviderTransaction(ctx, current.ProviderID, func(ctx context.Context, tx store.SchedulingTx) error {
		cur, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		if !domain.CanTransition(cur.Status, to) {
			return validationError("cannot transition from " + string(cur.Status) + " to " + string(to))
		}
		appt, err = tx.UpdateAppointmentStatus(ctx, id, cur.Status, to)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				return validationError("appointment status changed concurrently")
			}
			return err
		}

		switch to {
		case domain.StatusCancelled:
			if _, err := tx.ReleaseSlots(ctx, id); err != nil {
				return err
			}
		case domain.StatusRejected:
			if _, err := tx.BlockSlots(ctx, id, domain.SlotTypeProviderRejected); err != nil {
				return err
			}
		default:
			return nil
		}
		if appt.RuleID != nil {
			if err := tx.DeactivateRule(ctx, *appt.RuleID); err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}

	s.notify(ctx, events.KindAppointment, appt.ProviderID, appt.ListingID, appt.ID.String())
	if to == domain.StatusCancelled || to == domain.StatusRejected {
		s.notify(ctx, events.KindSlots, appt.ProviderID, appt.ListingID, "")
		if appt.RuleID != nil {
			s.notify(ctx, events.KindRule, appt.ProviderID, appt.ListingID, appt.RuleID.String())
		}
	}

	switch {
	case to == domain.StatusCompleted && appt.Recurrence.AdvancesOnCompletion():
		s.advance(ctx, appt)
	case to.Active() && appt.Recurrence == domain.RecurrenceDaily:
		s.advance(ctx, appt)
	}
	return appt, nil
}

// advance is the best-effort follow-up of Transition.
func (s *Service) advance(ctx context.Context, appt domain.Appointment) {
	next, created, err := s.ensureNextOccurrence(ctx, appt)
	if err != nil {
		var rgErr *RecurrenceGenerationError
		if !errors.As(err, &rgErr) {
			err = &RecurrenceGenerationError{RuleID: appt.RuleID, At: appt.StartTime, Err: err}
		}
		s.logger.Warn("next occurrence not generated", "err", err, "appointment_id", appt.ID, "provider_id", appt.ProviderID)
		return
	}
	if created {
		s.logger.Info("next occurrence generated", "appointment_id", appt.ID, "next_id", next.ID, "start_time", next.StartTime)
		s.notify(ctx, events.KindAppointment, next.ProviderID, next.ListingID, next.ID.String())
		s.notify(ctx, events.KindSlots, next.ProviderID, next.ListingID, "")
	}
}

// ensureNextOccurrence creates the occurrence after appt unless the series
// already has a future active one. The series is (client, recurrence, local time
// of day) within the provider's listing, which keeps two same-cadence series of
// one client apart.
func (s *Service) ensureNextOccurrence(ctx context.Context, appt domain.Appointment) (domain.Appointment, bool, error) {
	if appt.Status == domain.StatusCancelled || appt.Status == domain.StatusRejected || !appt.Recurrence.Recurring() {
		return domain.Appointment{}, false, nil
	}

	loc := appt.Loc()
	next, err := domain.NextOccurrence(appt.StartTime.In(loc), appt.Recurrence)
	if err != nil {
		return domain.Appointment{}, false, &RecurrenceGenerationError{RuleID: appt.RuleID, At: appt.StartTime, Err: err}
	}

	windows, err := s.windows.Windows(ctx, appt.ProviderID, appt.ListingID)
	if err != nil {
		return domain.Appointment{}, false, err
	}

	var out domain.Appointment
	var created bool
	err = s.store.InProviderTransaction(ctx, appt.ProviderID, func(ctx context.Context, tx store.SchedulingTx) error {
		cur, err := tx.GetAppointment(ctx, appt.ID)
		if err != nil {
			return err
		}
		if !cur.Recurrence.Recurring() || cur.Status == domain.StatusCancelled || cur.Status == domain.StatusRejected {
			return nil
		}
		if cur.RuleID != nil {
			rule, err := tx.GetRule(ctx, *cur.RuleID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			if err == nil && !rule.IsActive {
				return nil
			}
		}

		future, err := tx.ListAppointments(ctx, store.AppointmentFilter{
			ProviderID: cur.ProviderID,
			ListingID:  cur.ListingID,
			ClientID:   cur.ClientID,
			Statuses:   []domain.AppointmentStatus{domain.StatusPending, domain.StatusConfirmed},
			StartFrom:  cur.StartTime.Add(time.Second),
		})
		if err != nil {
			return err
		}
		tod := cur.TimeOfDay()
		for _, f := range future {
			if f.Recurrence == cur.Recurrence && f.TimeOfDay() == tod {
				return nil
			}
		}

		candidate := nextFrom(cur, next)
		made, ok, err := s.materializeInstanceTx(ctx, tx, windows, candidate)
		if err != nil {
			return &RecurrenceGenerationError{RuleID: cur.RuleID, At: next, Err: err}
		}
		out, created = made, ok
		return nil
	})
	if err != nil {
		return domain.Appointment{}, false, err
	}
	return out, created, nil
}

// nextFrom copies the parties and contact metadata of prev onto a new pending
// occurrence at start.
func nextFrom(prev domain.Appointment, start time.Time) domain.Appointment {
	start = start.UTC()
	return domain.Appointment{
		RuleID:              prev.RuleID,
		RecurrenceGroupID:   prev.RecurrenceGroupID,
		ProviderID:          prev.ProviderID,
		ClientID:            prev.ClientID,
		ListingID:           prev.ListingID,
		StartTime:           start,
		EndTime:             start.Add(prev.Duration()),
		Status:              domain.StatusPending,
		Recurrence:          prev.Recurrence,
		IsRecurringInstance: true,
		SourceType:          domain.SourceRecurringInstance,
		Timezone:            prev.Timezone,
		Location:            prev.Location,
		ContactName:         prev.ContactName,
		ContactEmail:        prev.ContactEmail,
		ContactPhone:        prev.ContactPhone,
		Notes:               prev.Notes,
		CreatedBy:           prev.CreatedBy,
	}
}

// ClearRecurrence turns an appointment into a one-time booking and stops its
// rule. The appointment and its siblings stay as they are.
func (s *Service) ClearRecurrence(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	current, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}

	var out domain.Appointment
	err = s.store.InProviderTransaction(ctx, current.ProviderID, func(ctx context.Context, tx store.SchedulingTx) error {
		cur, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.ClearRecurrence(ctx, id); err != nil {
			return err
		}
		if cur.RuleID != nil {
			if err := tx.DeactivateRule(ctx, *cur.RuleID); err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}
		out, err = tx.GetAppointment(ctx, id)
		return err
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	s.notify(ctx, events.KindAppointment, out.ProviderID, out.ListingID, out.ID.String())
	if current.RuleID != nil {
		s.notify(ctx, events.KindRule, out.ProviderID, out.ListingID, current.RuleID.String())
	}
	return out, nil
}
