package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"slotengine/internal/domain"
	"slotengine/internal/events"
	"slotengine/internal/store"
)

type BookingRequest struct {
	ClaimRequest
	Recurrence domain.Recurrence
	// WeeksAhead overrides the configured lookahead for the initial instances.
	WeeksAhead int
}

type BookingResult struct {
	Success      bool                 `json:"success"`
	Appointments []domain.Appointment `json:"appointments"`
	GroupID      *uuid.UUID           `json:"group_id,omitempty"`
	Count        int                  `json:"count"`
}

// CreateRecurringBooking claims the first occurrence and, for a recurring
// request, stores the rule and materializes its upcoming instances. The first
// claim and the rule commit together; instance generation afterwards is best
// effort and never undoes the booking.
func (s *Service) CreateRecurringBooking(ctx context.Context, req BookingRequest) (res BookingResult, err error) {
	if req.Recurrence == "" {
		req.Recurrence = domain.RecurrenceNone
	}
	if !req.Recurrence.Valid() {
		return BookingResult{}, validationError("invalid recurrence")
	}
	if req.WeeksAhead < 0 || req.WeeksAhead > 104 {
		return BookingResult{}, validationError("weeks_ahead must be between 1 and 104")
	}

	if !req.Recurrence.Recurring() {
		appt, err := s.Claim(ctx, req.ClaimRequest)
		if err != nil {
			return BookingResult{}, err
		}
		return BookingResult{Success: true, Appointments: []domain.Appointment{appt}, Count: 1}, nil
	}

	n, err := req.validate(s.cfg.Location)
	if err != nil {
		return BookingResult{}, err
	}
	if req.Duration%time.Minute != 0 {
		return BookingResult{}, validationError("recurring duration must be whole minutes")
	}
	first := req.appointment()
	loc := first.Loc()
	localStart := first.StartTime.In(loc)
	startClock := domain.ClockOf(localStart)
	endClock := startClock + domain.Clock(req.Duration/time.Minute)
	if endClock > domain.NewClock(24, 0) {
		return BookingResult{}, validationError("recurring appointment must end on the day it starts")
	}

	ctx, span := s.startSpan(ctx, "CreateRecurringBooking",
		attribute.String("provider_id", req.ProviderID),
		attribute.String("listing_id", req.ListingID),
		attribute.String("recurrence", string(req.Recurrence)),
	)
	defer func() { endSpan(span, err) }()

	if err := s.checkHolds(ctx, req.ProviderID, req.ListingID, req.Start, n, req.HolderID); err != nil {
		return BookingResult{}, err
	}

	var rule domain.RecurringRule
	var appt domain.Appointment
	err = s.store.InProviderTransaction(ctx, req.ProviderID, func(ctx context.Context, tx store.SchedulingTx) error {
		created, err := tx.CreateRule(ctx, domain.RecurringRule{
			ProviderID:     first.ProviderID,
			ListingID:      first.ListingID,
			ClientID:       first.ClientID,
			RecurrenceType: req.Recurrence,
			StartDate:      time.Date(localStart.Year(), localStart.Month(), localStart.Day(), 0, 0, 0, 0, time.UTC),
			StartTime:      startClock,
			EndTime:        endClock,
			Timezone:       first.Timezone,
			IsActive:       true,
			Location:       first.Location,
			ContactName:    first.ContactName,
			ContactEmail:   first.ContactEmail,
			ContactPhone:   first.ContactPhone,
			CreatedBy:      first.CreatedBy,
		})
		if err != nil {
			return err
		}
		rule = created

		ruleID, groupID := rule.ID, rule.GroupID
		first.RuleID = &ruleID
		first.RecurrenceGroupID = &groupID
		first.Recurrence = req.Recurrence
		appt, err = claimTx(ctx, tx, first, n)
		return err
	})
	if err != nil {
		return BookingResult{}, err
	}

	s.releaseHolds(ctx, req.ProviderID, req.ListingID, req.Start, n, req.HolderID)
	s.notify(ctx, events.KindRule, rule.ProviderID, rule.ListingID, rule.ID.String())
	s.notify(ctx, events.KindAppointment, appt.ProviderID, appt.ListingID, appt.ID.String())
	s.notify(ctx, events.KindSlots, appt.ProviderID, appt.ListingID, "")

	if _, err := s.Generate(ctx, rule, req.WeeksAhead); err != nil {
		s.logger.Warn("initial instances not generated", "err", err, "rule_id", rule.ID, "provider_id", rule.ProviderID)
	}
	if req.Recurrence == domain.RecurrenceDaily {
		s.advance(ctx, appt)
	}

	ruleID := rule.ID
	series, err := s.store.ListAppointments(ctx, store.AppointmentFilter{RuleID: &ruleID})
	if err != nil {
		return BookingResult{}, err
	}
	groupID := rule.GroupID
	return BookingResult{
		Success:      true,
		Appointments: series,
		GroupID:      &groupID,
		Count:        len(series),
	}, nil
}
