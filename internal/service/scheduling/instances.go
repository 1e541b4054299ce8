package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"slotengine/internal/domain"
	"slotengine/internal/events"
	"slotengine/internal/store"
)

var (
	errOccupied  = errors.New("occurrence time is occupied")
	errUncovered = errors.New("occurrence lies outside availability")
)

// materializeInstanceTx inserts appt unless an active appointment already holds
// its key. The slots under the occurrence are materialized from windows first
// and must form an unbroken run: a gap fails with errUncovered and a slot that
// is not bookable fails with errOccupied.
func (s *Service) materializeInstanceTx(ctx context.Context, tx store.SchedulingTx, windows []domain.AvailabilityWindow, appt domain.Appointment) (domain.Appointment, bool, error) {
	existing, found, err := tx.FindActiveAppointment(ctx, store.KeyOf(appt))
	if err != nil {
		return domain.Appointment{}, false, err
	}
	if found {
		return existing, false, nil
	}

	n, err := RequiredSlots(appt.Duration())
	if err != nil {
		return domain.Appointment{}, false, err
	}
	end := appt.StartTime.Add(time.Duration(n) * domain.SlotSize)
	if err := s.ensureSlotsTx(ctx, tx, windows, appt.ProviderID, appt.ListingID, appt.StartTime, end); err != nil {
		return domain.Appointment{}, false, err
	}
	slots, err := tx.ListSlots(ctx, store.SlotFilter{
		ProviderID: appt.ProviderID,
		ListingID:  appt.ListingID,
		From:       appt.StartTime,
		To:         end,
	})
	if err != nil {
		return domain.Appointment{}, false, err
	}
	if !domain.SlotsCover(slots, appt.StartTime, end) {
		return domain.Appointment{}, false, fmt.Errorf("%w at %s", errUncovered, appt.StartTime.Format(time.RFC3339))
	}
	ids := make([]uuid.UUID, 0, len(slots))
	for _, sl := range slots {
		if !sl.Bookable() {
			return domain.Appointment{}, false, fmt.Errorf("%w at %s: %s", errOccupied, sl.StartTime.Format(time.RFC3339), unbookableReason(sl))
		}
		ids = append(ids, sl.ID)
	}

	created, err := tx.CreateAppointment(ctx, appt)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.Appointment{}, false, nil
		}
		return domain.Appointment{}, false, err
	}
	reserved, err := tx.ReserveSlots(ctx, ids, created.ID)
	if err != nil {
		return domain.Appointment{}, false, err
	}
	if reserved != len(ids) {
		return domain.Appointment{}, false, fmt.Errorf("%w at %s: slot was claimed concurrently", errOccupied, appt.StartTime.Format(time.RFC3339))
	}
	return created, true, nil
}

func instanceOf(rule domain.RecurringRule, start time.Time) domain.Appointment {
	ruleID := rule.ID
	groupID := rule.GroupID
	start = start.UTC()
	return domain.Appointment{
		RuleID:              &ruleID,
		RecurrenceGroupID:   &groupID,
		ProviderID:          rule.ProviderID,
		ClientID:            rule.ClientID,
		ListingID:           rule.ListingID,
		StartTime:           start,
		EndTime:             start.Add(rule.Duration()),
		Status:              domain.StatusPending,
		Recurrence:          rule.RecurrenceType,
		IsRecurringInstance: true,
		SourceType:          domain.SourceRecurringInstance,
		Timezone:            rule.Timezone,
		Location:            rule.Location,
		ContactName:         rule.ContactName,
		ContactEmail:        rule.ContactEmail,
		ContactPhone:        rule.ContactPhone,
		CreatedBy:           rule.CreatedBy,
	}
}

// Generate tops up a rule's future instances over the next weeksAhead weeks
// when fewer than the low-water mark exist. It returns how many were created.
// Occurrences whose time is already taken or lies outside availability are
// skipped and logged.
func (s *Service) Generate(ctx context.Context, rule domain.RecurringRule, weeksAhead int) (created int, err error) {
	if !rule.IsActive {
		return 0, nil
	}
	if weeksAhead <= 0 {
		weeksAhead = s.cfg.WeeksAhead
	}

	ctx, span := s.startSpan(ctx, "Generate",
		attribute.String("rule_id", rule.ID.String()),
		attribute.Int("weeks_ahead", weeksAhead),
	)
	defer func() { endSpan(span, err) }()

	now := s.now().UTC()
	horizon := now.AddDate(0, 0, 7*weeksAhead)
	ruleID := rule.ID

	windows, err := s.windows.Windows(ctx, rule.ProviderID, rule.ListingID)
	if err != nil {
		return 0, err
	}

	err = s.store.InProviderTransaction(ctx, rule.ProviderID, func(ctx context.Context, tx store.SchedulingTx) error {
		current, err := tx.GetRule(ctx, rule.ID)
		if err != nil {
			return err
		}
		if !current.IsActive {
			return nil
		}

		future, err := tx.ListAppointments(ctx, store.AppointmentFilter{
			RuleID:    &ruleID,
			Statuses:  []domain.AppointmentStatus{domain.StatusPending, domain.StatusConfirmed},
			StartFrom: now,
		})
		if err != nil {
			return err
		}
		if len(future) >= s.cfg.LowWater {
			return nil
		}

		occs, err := current.Occurrences(now, horizon)
		if err != nil {
			return &RecurrenceGenerationError{RuleID: &ruleID, At: now, Err: err}
		}
		for _, at := range occs {
			_, ok, err := s.materializeInstanceTx(ctx, tx, windows, instanceOf(current, at))
			if errors.Is(err, errOccupied) || errors.Is(err, errUncovered) {
				s.logger.Warn("occurrence skipped",
					"err", &RecurrenceGenerationError{RuleID: &ruleID, At: at, Err: err},
					"provider_id", current.ProviderID,
				)
				continue
			}
			if err != nil {
				return &RecurrenceGenerationError{RuleID: &ruleID, At: at, Err: err}
			}
			if ok {
				created++
			}
		}
		return nil
	})
	if err != nil {
		created = 0
		return 0, err
	}
	if created > 0 {
		s.notify(ctx, events.KindAppointment, rule.ProviderID, rule.ListingID, rule.ID.String())
		s.notify(ctx, events.KindSlots, rule.ProviderID, rule.ListingID, "")
	}
	return created, nil
}

// GenerateInstances runs Generate for every active rule. A failing rule is
// logged and does not stop the pass.
func (s *Service) GenerateInstances(ctx context.Context, weeksAhead int) (int, error) {
	if weeksAhead < 0 || weeksAhead > 104 {
		return 0, validationError("weeks_ahead must be between 1 and 104")
	}
	rules, err := s.store.ListRules(ctx, true)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, rule := range rules {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := s.Generate(ctx, rule, weeksAhead)
		if err != nil {
			s.logger.Error("instance generation failed", "err", err, "rule_id", rule.ID, "provider_id", rule.ProviderID)
			continue
		}
		total += n
	}
	return total, nil
}

// Extend is GenerateInstances with the configured lookahead. It is safe to run
// repeatedly and concurrently with bookings.
func (s *Service) Extend(ctx context.Context) (int, error) {
	n, err := s.GenerateInstances(ctx, s.cfg.WeeksAhead)
	if err == nil && n > 0 {
		s.logger.Info("instances extended", "generated", n)
	}
	return n, err
}

type RepairReport struct {
	RulesDeleted           int `json:"rules_deleted"`
	AppointmentsNormalized int `json:"appointments_normalized"`
}

// RepairOrphans deletes rules without any appointment and resets appointments
// that claim a recurrence but reference no existing rule. Appointments are never
// deleted.
func (s *Service) RepairOrphans(ctx context.Context) (rep RepairReport, err error) {
	ctx, span := s.startSpan(ctx, "RepairOrphans")
	defer func() { endSpan(span, err) }()

	rules, err := s.store.ListRules(ctx, false)
	if err != nil {
		return RepairReport{}, err
	}
	for _, rule := range rules {
		ruleID := rule.ID
		err := s.store.InProviderTransaction(ctx, rule.ProviderID, func(ctx context.Context, tx store.SchedulingTx) error {
			linked, err := tx.ListAppointments(ctx, store.AppointmentFilter{RuleID: &ruleID})
			if err != nil {
				return err
			}
			if len(linked) > 0 {
				return nil
			}
			if err := tx.DeleteRule(ctx, ruleID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return nil
				}
				return err
			}
			rep.RulesDeleted++
			return nil
		})
		if err != nil {
			return rep, err
		}
	}

	appts, err := s.store.ListAppointments(ctx, store.AppointmentFilter{})
	if err != nil {
		return rep, err
	}
	for _, a := range appts {
		if !claimsRecurrence(a) {
			continue
		}
		id := a.ID
		err := s.store.InProviderTransaction(ctx, a.ProviderID, func(ctx context.Context, tx store.SchedulingTx) error {
			cur, err := tx.GetAppointment(ctx, id)
			if err != nil {
				return err
			}
			if !claimsRecurrence(cur) {
				return nil
			}
			if cur.RuleID != nil {
				if _, err := tx.GetRule(ctx, *cur.RuleID); err == nil {
					return nil
				} else if !errors.Is(err, store.ErrNotFound) {
					return err
				}
			}
			if err := tx.ClearRecurrence(ctx, id); err != nil {
				return err
			}
			rep.AppointmentsNormalized++
			return nil
		})
		if err != nil {
			return rep, err
		}
	}

	if rep.RulesDeleted > 0 || rep.AppointmentsNormalized > 0 {
		s.logger.Info("orphans repaired", "rules_deleted", rep.RulesDeleted, "appointments_normalized", rep.AppointmentsNormalized)
	}
	return rep, nil
}

func claimsRecurrence(a domain.Appointment) bool {
	return a.Recurrence.Recurring() || a.IsRecurringInstance || a.RuleID != nil
}
