package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"slotengine/internal/domain"
	"slotengine/internal/store"
)

type AuditTotals struct {
	RawAppointments     int `json:"raw_appointments"`
	UnifiedAppointments int `json:"unified_appointments"`
	Duplicates          int `json:"duplicates"`
	Rules               int `json:"rules"`
	ActiveRules         int `json:"active_rules"`
	Slots               int `json:"slots"`
	ReservedSlots       int `json:"reserved_slots"`
}

type AuditReport struct {
	IsConsistent bool                 `json:"is_consistent"`
	Issues       []ConsistencyWarning `json:"issues"`
	Totals       AuditTotals          `json:"totals"`
}

// CheckConsistency compares the raw appointment rows with the unified view
// (one entry per timeslot and parties) and with the derived rule and slot
// counts. It only reads. The report is inconsistent when any critical issue is
// found.
func (s *Service) CheckConsistency(ctx context.Context) (rep AuditReport, err error) {
	ctx, span := s.startSpan(ctx, "CheckConsistency")
	defer func() { endSpan(span, err) }()

	appts, err := s.store.ListAppointments(ctx, store.AppointmentFilter{})
	if err != nil {
		return AuditReport{}, err
	}
	rules, err := s.store.ListRules(ctx, false)
	if err != nil {
		return AuditReport{}, err
	}
	slots, err := s.store.ListSlots(ctx, store.SlotFilter{})
	if err != nil {
		return AuditReport{}, err
	}

	rep.Totals.RawAppointments = len(appts)
	rep.Totals.Rules = len(rules)
	rep.Totals.Slots = len(slots)

	ruleByID := make(map[uuid.UUID]domain.RecurringRule, len(rules))
	for _, r := range rules {
		ruleByID[r.ID] = r
		if r.IsActive {
			rep.Totals.ActiveRules++
		}
	}
	reservedBy := make(map[uuid.UUID]int)
	materializedTo := make(map[store.ListingRef]time.Time)
	for _, sl := range slots {
		ref := store.ListingRef{ProviderID: sl.ProviderID, ListingID: sl.ListingID}
		if sl.EndTime.After(materializedTo[ref]) {
			materializedTo[ref] = sl.EndTime
		}
		if sl.IsReserved {
			rep.Totals.ReservedSlots++
			if sl.AppointmentID != nil {
				reservedBy[*sl.AppointmentID]++
			}
		}
	}

	add := func(w ConsistencyWarning) {
		w.Critical = w.Type.Critical()
		rep.Issues = append(rep.Issues, w)
	}

	linked := make(map[uuid.UUID]int, len(rules))
	unified := make(map[store.InstanceKey]uuid.UUID, len(appts))
	for _, a := range appts {
		id := a.ID
		if a.RuleID != nil {
			linked[*a.RuleID]++
		}

		if !a.Status.Valid() {
			add(ConsistencyWarning{
				Type:          IssueInvalidStatus,
				AppointmentID: &id,
				Message:       fmt.Sprintf("appointment has unknown status %q", a.Status),
			})
		}
		if a.CreatedBy == "" || a.CreatedAt.IsZero() {
			add(ConsistencyWarning{
				Type:          IssueMissingAuditTrail,
				AppointmentID: &id,
				Message:       "appointment lacks created_by or created_at",
			})
		}

		if a.Status != domain.StatusCancelled && a.Status != domain.StatusRejected {
			key := store.KeyOf(a)
			key.StartTime = a.StartTime.UTC()
			if first, ok := unified[key]; ok {
				rep.Totals.Duplicates++
				add(ConsistencyWarning{
					Type:          IssueDuplicateTimeslot,
					AppointmentID: &id,
					Message:       fmt.Sprintf("appointment duplicates %s at %s", first, a.StartTime.UTC().Format(time.RFC3339)),
				})
			} else {
				unified[key] = a.ID
			}
		}

		s.checkSeries(a, ruleByID, add)

		if a.Status.Active() {
			if n, err := RequiredSlots(a.Duration()); err == nil {
				got := reservedBy[a.ID]
				switch {
				case got > 0 && got != n:
					add(ConsistencyWarning{
						Type:          IssueCountMismatch,
						AppointmentID: &id,
						Message:       fmt.Sprintf("appointment holds %d slots, needs %d", got, n),
					})
				case got == 0 && !a.EndTime.After(materializedTo[store.ListingRef{ProviderID: a.ProviderID, ListingID: a.ListingID}]):
					add(ConsistencyWarning{
						Type:          IssueUncovered,
						AppointmentID: &id,
						Message:       fmt.Sprintf("appointment at %s holds no slots", a.StartTime.UTC().Format(time.RFC3339)),
					})
				}
			}
		}
	}
	rep.Totals.UnifiedAppointments = len(unified)

	for _, r := range rules {
		if linked[r.ID] == 0 {
			ruleID := r.ID
			add(ConsistencyWarning{
				Type:    IssueOrphanedRule,
				RuleID:  &ruleID,
				Message: "rule has no appointments",
			})
		}
	}

	rep.IsConsistent = true
	for _, w := range rep.Issues {
		if w.Critical {
			rep.IsConsistent = false
			break
		}
	}
	if !rep.IsConsistent {
		s.logger.Warn("consistency check failed", "issues", len(rep.Issues), "raw", rep.Totals.RawAppointments, "unified", rep.Totals.UnifiedAppointments)
	}
	return rep, nil
}

func (s *Service) checkSeries(a domain.Appointment, rules map[uuid.UUID]domain.RecurringRule, add func(ConsistencyWarning)) {
	id := a.ID
	if a.RuleID == nil {
		if a.Recurrence.Recurring() || a.IsRecurringInstance {
			add(ConsistencyWarning{
				Type:          IssueRecurringWithoutRule,
				AppointmentID: &id,
				Message:       "appointment is marked recurring but has no rule",
			})
		}
		if !a.Recurrence.Recurring() && a.RecurrenceGroupID != nil {
			add(ConsistencyWarning{
				Type:          IssueGroupMismatch,
				AppointmentID: &id,
				Message:       "one-time appointment carries a recurrence group",
			})
		}
		return
	}

	ruleID := *a.RuleID
	rule, ok := rules[ruleID]
	if !ok {
		add(ConsistencyWarning{
			Type:          IssueRecurringWithoutRule,
			AppointmentID: &id,
			RuleID:        &ruleID,
			Message:       "appointment references a missing rule",
		})
		return
	}
	if a.RecurrenceGroupID == nil || *a.RecurrenceGroupID != rule.GroupID {
		add(ConsistencyWarning{
			Type:          IssueGroupMismatch,
			AppointmentID: &id,
			RuleID:        &ruleID,
			Message:       "appointment group differs from its rule's group",
		})
	}
}
