package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"slotengine/internal/domain"
	"slotengine/internal/store"
)

func issuesOf(rep AuditReport, typ IssueType) []ConsistencyWarning {
	var out []ConsistencyWarning
	for _, w := range rep.Issues {
		if w.Type == typ {
			out = append(out, w)
		}
	}
	return out
}

func rawAppointment(start time.Time, status domain.AppointmentStatus, createdBy string) domain.Appointment {
	return domain.Appointment{
		ProviderID: "p1",
		ListingID:  "l1",
		ClientID:   "c5",
		StartTime:  start,
		EndTime:    start.Add(time.Hour),
		Status:     status,
		Recurrence: domain.RecurrenceNone,
		SourceType: domain.SourceAppointment,
		Timezone:   "UTC",
		CreatedBy:  createdBy,
	}
}

func TestCheckConsistency_CleanSeries(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	f.openListing(t)
	if _, err := f.svc.CreateRecurringBooking(ctx, bookingAt(at(2, 10, 0), time.Hour, domain.RecurrenceWeekly, 0)); err != nil {
		t.Fatalf("CreateRecurringBooking error: %v", err)
	}

	rep, err := f.svc.CheckConsistency(ctx)
	if err != nil {
		t.Fatalf("CheckConsistency error: %v", err)
	}
	if !rep.IsConsistent || len(rep.Issues) != 0 {
		t.Fatalf("report = %+v", rep)
	}
	want := AuditTotals{RawAppointments: 8, UnifiedAppointments: 8, Rules: 1, ActiveRules: 1, ReservedSlots: 16}
	got := rep.Totals
	got.Slots = 0
	if got != want {
		t.Fatalf("totals = %+v, want %+v", got, want)
	}
}

func TestCheckConsistency_LegacyStatusIsCritical(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	if _, err := f.store.CreateAppointment(ctx, rawAppointment(at(3, 10, 0), domain.AppointmentStatus("booked"), "import")); err != nil {
		t.Fatalf("CreateAppointment error: %v", err)
	}

	rep, err := f.svc.CheckConsistency(ctx)
	if err != nil {
		t.Fatalf("CheckConsistency error: %v", err)
	}
	if rep.IsConsistent {
		t.Fatalf("legacy status must make the report inconsistent")
	}
	got := issuesOf(rep, IssueInvalidStatus)
	if len(got) != 1 || !got[0].Critical || got[0].AppointmentID == nil {
		t.Fatalf("invalid_status issues = %+v", got)
	}
}

func TestCheckConsistency_MissingAuditTrailIsCritical(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	if _, err := f.store.CreateAppointment(ctx, rawAppointment(at(3, 10, 0), domain.StatusPending, "")); err != nil {
		t.Fatalf("CreateAppointment error: %v", err)
	}

	rep, err := f.svc.CheckConsistency(ctx)
	if err != nil {
		t.Fatalf("CheckConsistency error: %v", err)
	}
	if rep.IsConsistent || len(issuesOf(rep, IssueMissingAuditTrail)) != 1 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestCheckConsistency_InformationalIssues(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	f.openListing(t)

	for _, status := range []domain.AppointmentStatus{domain.StatusCompleted, domain.StatusPending} {
		if _, err := f.store.CreateAppointment(ctx, rawAppointment(at(3, 10, 0), status, "import")); err != nil {
			t.Fatalf("CreateAppointment error: %v", err)
		}
	}

	undersized, err := f.store.CreateAppointment(ctx, rawAppointment(at(4, 10, 0), domain.StatusConfirmed, "import"))
	if err != nil {
		t.Fatalf("CreateAppointment error: %v", err)
	}
	sl := f.slotAt(t, at(4, 10, 0))
	if _, err := f.store.ReserveSlots(ctx, []uuid.UUID{sl.ID}, undersized.ID); err != nil {
		t.Fatalf("ReserveSlots error: %v", err)
	}

	norule := rawAppointment(at(5, 10, 0), domain.StatusPending, "import")
	norule.Recurrence = domain.RecurrenceWeekly
	if _, err := f.store.CreateAppointment(ctx, norule); err != nil {
		t.Fatalf("CreateAppointment error: %v", err)
	}

	if _, err := f.store.CreateRule(ctx, domain.RecurringRule{
		ProviderID:     "p1",
		ListingID:      "l1",
		ClientID:       "c6",
		RecurrenceType: domain.RecurrenceWeekly,
		StartDate:      at(6, 0, 0),
		StartTime:      domain.NewClock(9, 0),
		EndTime:        domain.NewClock(10, 0),
		Timezone:       "UTC",
		IsActive:       true,
	}); err != nil {
		t.Fatalf("CreateRule error: %v", err)
	}

	rep, err := f.svc.CheckConsistency(ctx)
	if err != nil {
		t.Fatalf("CheckConsistency error: %v", err)
	}
	if !rep.IsConsistent {
		t.Fatalf("informational issues must not fail the audit: %+v", rep.Issues)
	}
	for _, typ := range []IssueType{IssueDuplicateTimeslot, IssueCountMismatch, IssueRecurringWithoutRule, IssueOrphanedRule} {
		got := issuesOf(rep, typ)
		if len(got) != 1 || got[0].Critical {
			t.Fatalf("%s issues = %+v", typ, got)
		}
	}
	// the pending import at 03-03 and the rule-less one at 03-05 hold nothing
	if got := issuesOf(rep, IssueUncovered); len(got) != 2 || got[0].Critical {
		t.Fatalf("uncovered issues = %+v", got)
	}
	if rep.Totals.RawAppointments != 4 || rep.Totals.UnifiedAppointments != 3 || rep.Totals.Duplicates != 1 {
		t.Fatalf("totals = %+v", rep.Totals)
	}
}

func TestCheckConsistency_IsReadOnly(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	if _, err := f.store.CreateRule(ctx, domain.RecurringRule{
		ProviderID:     "p1",
		ListingID:      "l1",
		RecurrenceType: domain.RecurrenceDaily,
		StartDate:      at(6, 0, 0),
		StartTime:      domain.NewClock(9, 0),
		EndTime:        domain.NewClock(10, 0),
		IsActive:       true,
	}); err != nil {
		t.Fatalf("CreateRule error: %v", err)
	}
	if _, err := f.svc.CheckConsistency(ctx); err != nil {
		t.Fatalf("CheckConsistency error: %v", err)
	}
	rules, _ := f.store.ListRules(ctx, false)
	appts, _ := f.store.ListAppointments(ctx, store.AppointmentFilter{})
	if len(rules) != 1 || len(appts) != 0 {
		t.Fatalf("audit changed data: rules=%d appointments=%d", len(rules), len(appts))
	}
}
