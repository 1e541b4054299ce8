package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestProject_WeeklyFourWeekWindow(t *testing.T) {
	origin := time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)

	occs, err := Project(origin, RecurrenceWeekly, origin, origin.AddDate(0, 0, 28))
	if err != nil {
		t.Fatalf("Project error: %v", err)
	}

	want := []time.Time{
		time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 22, 14, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 29, 14, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 5, 14, 0, 0, 0, time.UTC),
	}
	if len(occs) != len(want) {
		t.Fatalf("len(occs) = %d, want %d (%v)", len(occs), len(want), occs)
	}
	for i := range want {
		if !occs[i].Equal(want[i]) {
			t.Fatalf("occs[%d] = %v, want %v", i, occs[i], want[i])
		}
	}
}

func TestProject_StepPerCadence(t *testing.T) {
	origin := time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		recurrence Recurrence
		second     time.Time
	}{
		{RecurrenceDaily, time.Date(2026, 1, 6, 9, 30, 0, 0, time.UTC)},
		{RecurrenceWeekly, time.Date(2026, 1, 12, 9, 30, 0, 0, time.UTC)},
		{RecurrenceBiweekly, time.Date(2026, 1, 19, 9, 30, 0, 0, time.UTC)},
		{RecurrenceTriweekly, time.Date(2026, 1, 26, 9, 30, 0, 0, time.UTC)},
		{RecurrenceMonthly, time.Date(2026, 2, 5, 9, 30, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(string(tt.recurrence), func(t *testing.T) {
			occs, err := Project(origin, tt.recurrence, origin, origin.AddDate(0, 3, 0))
			if err != nil {
				t.Fatalf("Project error: %v", err)
			}
			if len(occs) < 2 {
				t.Fatalf("len(occs) = %d, want >= 2", len(occs))
			}
			if !occs[0].Equal(origin) {
				t.Fatalf("first occurrence = %v, want origin %v", occs[0], origin)
			}
			if !occs[1].Equal(tt.second) {
				t.Fatalf("second occurrence = %v, want %v", occs[1], tt.second)
			}
		})
	}
}

func TestProject_ExcludesOriginOutsideWindow(t *testing.T) {
	origin := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	from := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	occs, err := Project(origin, RecurrenceWeekly, from, from.AddDate(0, 0, 14))
	if err != nil {
		t.Fatalf("Project error: %v", err)
	}
	if len(occs) != 2 {
		t.Fatalf("len(occs) = %d, want 2", len(occs))
	}
	if !occs[0].Equal(time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("first occurrence = %v", occs[0])
	}
}

func TestProject_CapsIterations(t *testing.T) {
	origin := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

	occs, err := Project(origin, RecurrenceDaily, origin, origin.AddDate(3, 0, 0))
	if err != nil {
		t.Fatalf("Project error: %v", err)
	}
	if len(occs) != MaxProjectionSteps {
		t.Fatalf("len(occs) = %d, want %d", len(occs), MaxProjectionSteps)
	}
}

func TestProject_DistantOriginStillFillsWindow(t *testing.T) {
	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		origin     time.Time
		recurrence Recurrence
		to         time.Time
		want       int
	}{
		{time.Date(2019, 6, 3, 9, 0, 0, 0, time.UTC), RecurrenceDaily, from.AddDate(0, 0, 7), 7},
		{time.Date(2018, 1, 1, 9, 0, 0, 0, time.UTC), RecurrenceBiweekly, from.AddDate(0, 0, 28), 2},
		{time.Date(2016, 5, 15, 9, 0, 0, 0, time.UTC), RecurrenceMonthly, from.AddDate(0, 3, 0), 3},
	}
	for _, tt := range tests {
		occs, err := Project(tt.origin, tt.recurrence, from, tt.to)
		if err != nil {
			t.Fatalf("Project(%s) error: %v", tt.recurrence, err)
		}
		if len(occs) != tt.want {
			t.Fatalf("Project(%s) = %v, want %d occurrences", tt.recurrence, occs, tt.want)
		}
		for _, o := range occs {
			if o.Hour() != 9 || o.Before(from) {
				t.Fatalf("Project(%s) occurrence %s", tt.recurrence, o)
			}
		}
	}
}

func TestProject_RejectsUnknownCadence(t *testing.T) {
	origin := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	for _, r := range []Recurrence{RecurrenceNone, "fortnightly"} {
		if _, err := Project(origin, r, origin, origin.AddDate(0, 1, 0)); err == nil {
			t.Fatalf("Project(%q) expected error", r)
		}
	}
}

func TestProject_DSTMaintainsLocalHour(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation error: %v", err)
	}
	origin := time.Date(2026, 3, 1, 9, 0, 0, 0, loc)

	occs, err := Project(origin, RecurrenceWeekly, origin, origin.AddDate(0, 0, 21))
	if err != nil {
		t.Fatalf("Project error: %v", err)
	}
	if len(occs) != 3 {
		t.Fatalf("len(occs) = %d, want 3", len(occs))
	}
	for _, o := range occs {
		if o.In(loc).Hour() != 9 {
			t.Fatalf("local hour = %d, want 9 (start=%v)", o.In(loc).Hour(), o)
		}
	}
}

func TestNextOccurrence(t *testing.T) {
	start := time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC)
	next, err := NextOccurrence(start, RecurrenceBiweekly)
	if err != nil {
		t.Fatalf("NextOccurrence error: %v", err)
	}
	if !next.Equal(time.Date(2026, 1, 19, 14, 0, 0, 0, time.UTC)) {
		t.Fatalf("next = %v", next)
	}
}

func TestRecurringRule_OccurrencesShareTimeOfDayAndDuration(t *testing.T) {
	rule := RecurringRule{
		ID:             uuid.MustParse("00000000-0000-0000-0000-000000000001"),
		ProviderID:     "p1",
		ListingID:      "l1",
		ClientID:       "c1",
		RecurrenceType: RecurrenceWeekly,
		StartDate:      time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		StartTime:      NewClock(10, 30),
		EndTime:        NewClock(11, 30),
		Timezone:       "Europe/Berlin",
		IsActive:       true,
	}

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	occs, err := rule.Occurrences(from, from.AddDate(0, 2, 0))
	if err != nil {
		t.Fatalf("Occurrences error: %v", err)
	}
	if len(occs) == 0 {
		t.Fatalf("expected occurrences")
	}
	for _, o := range occs {
		if ClockOf(o.In(rule.Loc())) != rule.StartTime {
			t.Fatalf("time of day = %s, want %s", ClockOf(o.In(rule.Loc())), rule.StartTime)
		}
	}
	if rule.Duration() != time.Hour {
		t.Fatalf("duration = %v, want 1h", rule.Duration())
	}
}

func TestRecurringRule_InvalidDuration(t *testing.T) {
	rule := RecurringRule{
		RecurrenceType: RecurrenceWeekly,
		StartDate:      time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		StartTime:      NewClock(10, 0),
		EndTime:        NewClock(10, 0),
	}
	if _, err := rule.Occurrences(rule.Origin(), rule.Origin().AddDate(0, 1, 0)); err == nil {
		t.Fatalf("expected error")
	}
}
