package domain

import (
	"testing"
	"time"
)

func TestSlotStarts_GridAndBounds(t *testing.T) {
	monday := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		windows []AvailabilityWindow
		want    []string
	}{
		{
			name: "aligned window",
			windows: []AvailabilityWindow{
				{DayOfWeek: time.Monday, StartTime: NewClock(9, 0), EndTime: NewClock(10, 30), IsActive: true},
			},
			want: []string{"09:00", "09:30", "10:00"},
		},
		{
			name: "unaligned start snaps to grid",
			windows: []AvailabilityWindow{
				{DayOfWeek: time.Monday, StartTime: NewClock(9, 15), EndTime: NewClock(11, 0), IsActive: true},
			},
			want: []string{"09:30", "10:00", "10:30"},
		},
		{
			name: "overlapping windows collapse",
			windows: []AvailabilityWindow{
				{DayOfWeek: time.Monday, StartTime: NewClock(9, 0), EndTime: NewClock(10, 0), IsActive: true},
				{DayOfWeek: time.Monday, StartTime: NewClock(9, 30), EndTime: NewClock(10, 30), IsActive: true},
			},
			want: []string{"09:00", "09:30", "10:00"},
		},
		{
			name: "window shorter than a slot",
			windows: []AvailabilityWindow{
				{DayOfWeek: time.Monday, StartTime: NewClock(9, 0), EndTime: NewClock(9, 20), IsActive: true},
			},
			want: nil,
		},
		{
			name: "inactive and other weekdays ignored",
			windows: []AvailabilityWindow{
				{DayOfWeek: time.Monday, StartTime: NewClock(9, 0), EndTime: NewClock(10, 0), IsActive: false},
				{DayOfWeek: time.Tuesday, StartTime: NewClock(9, 0), EndTime: NewClock(10, 0), IsActive: true},
			},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SlotStarts(monday, time.UTC, tt.windows)
			if len(got) != len(tt.want) {
				t.Fatalf("len(got) = %d, want %d (%v)", len(got), len(tt.want), got)
			}
			for i, w := range tt.want {
				if ClockOf(got[i]).String() != w {
					t.Fatalf("got[%d] = %s, want %s", i, ClockOf(got[i]), w)
				}
			}
		})
	}
}

func TestSlotStarts_PropertyInsideWindowsOnBoundaries(t *testing.T) {
	windows := []AvailabilityWindow{
		{DayOfWeek: time.Monday, StartTime: NewClock(8, 10), EndTime: NewClock(12, 0), IsActive: true},
		{DayOfWeek: time.Wednesday, StartTime: NewClock(13, 0), EndTime: NewClock(17, 45), IsActive: true},
		{DayOfWeek: time.Wednesday, StartTime: NewClock(16, 0), EndTime: NewClock(18, 0), IsActive: true},
	}
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for d := 0; d < 60; d++ {
		day := start.AddDate(0, 0, d)
		starts := SlotStarts(day, time.UTC, windows)
		if day.Weekday() != time.Monday && day.Weekday() != time.Wednesday && len(starts) != 0 {
			t.Fatalf("%s: slots on disabled day", day.Format("2006-01-02"))
		}
		for i, s := range starts {
			if s.Minute()%30 != 0 || s.Second() != 0 {
				t.Fatalf("start %v not on 30-minute boundary", s)
			}
			if i > 0 && s.Sub(starts[i-1]) < SlotSize {
				t.Fatalf("overlapping slots %v and %v", starts[i-1], s)
			}
			inside := false
			for _, w := range windows {
				if w.DayOfWeek == s.Weekday() && ClockOf(s) >= w.StartTime && ClockOf(s.Add(SlotSize)) <= w.EndTime {
					inside = true
				}
			}
			if !inside {
				t.Fatalf("start %v outside declared windows", s)
			}
		}
	}
}

func TestWindowsFromTemplate(t *testing.T) {
	windows := WindowsFromTemplate("p1", "l1", []DayTemplate{
		{DayOfWeek: time.Monday, Enabled: true, Ranges: []ClockRange{{Start: NewClock(9, 0), End: NewClock(12, 0)}, {Start: NewClock(14, 0), End: NewClock(13, 0)}}},
		{DayOfWeek: time.Tuesday, Enabled: false, Ranges: []ClockRange{{Start: NewClock(9, 0), End: NewClock(12, 0)}}},
	})
	if len(windows) != 1 {
		t.Fatalf("len(windows) = %d, want 1", len(windows))
	}
	if windows[0].ProviderID != "p1" || windows[0].ListingID != "l1" || !windows[0].IsActive {
		t.Fatalf("unexpected window %+v", windows[0])
	}
}

func TestSlotPattern_RoundTrips(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatalf("LoadLocation error: %v", err)
	}
	start := time.Date(2026, 2, 3, 14, 30, 0, 0, loc)

	pattern := FormatSlotPattern(start.UTC(), loc)
	if pattern != "2026-02-03T14:30" {
		t.Fatalf("pattern = %q", pattern)
	}
	back, err := ParseSlotPattern(pattern, loc)
	if err != nil {
		t.Fatalf("ParseSlotPattern error: %v", err)
	}
	if !back.Equal(start) {
		t.Fatalf("round trip = %v, want %v", back, start)
	}
}

func TestSlotType_ScanRejectsUnknown(t *testing.T) {
	var st SlotType
	if err := st.Scan("provider_rejected"); err != nil || st != SlotTypeProviderRejected {
		t.Fatalf("Scan = %v, %v", st, err)
	}
	if err := st.Scan("maybe"); err == nil {
		t.Fatalf("expected error for unknown slot type")
	}
}

func TestSlot_Bookable(t *testing.T) {
	base := Slot{IsAvailable: true, Type: SlotTypeNormal}
	if !base.Bookable() {
		t.Fatalf("expected bookable")
	}

	reserved := base
	reserved.IsReserved = true
	reserved.Normalize()
	if reserved.Bookable() || reserved.IsAvailable {
		t.Fatalf("reserved slot must not be bookable")
	}

	blocked := base
	blocked.Type = SlotTypeProviderRejected
	blocked.Normalize()
	if blocked.Bookable() {
		t.Fatalf("rejected slot must not be bookable")
	}
}

func TestCanTransition(t *testing.T) {
	allowed := map[[2]AppointmentStatus]bool{
		{StatusPending, StatusConfirmed}:   true,
		{StatusPending, StatusCancelled}:   true,
		{StatusPending, StatusRejected}:    true,
		{StatusConfirmed, StatusCompleted}: true,
		{StatusConfirmed, StatusCancelled}: true,
		{StatusConfirmed, StatusRejected}:  true,
	}
	all := []AppointmentStatus{StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled, StatusRejected}
	for _, from := range all {
		for _, to := range all {
			if got := CanTransition(from, to); got != allowed[[2]AppointmentStatus{from, to}] {
				t.Fatalf("CanTransition(%s, %s) = %v", from, to, got)
			}
		}
	}
}

func TestEffectiveWindows_ListingOverridesProvider(t *testing.T) {
	shared := AvailabilityWindow{ListingID: "", DayOfWeek: time.Monday, StartTime: NewClock(9, 0), EndTime: NewClock(17, 0), IsActive: true}
	own := AvailabilityWindow{ListingID: "l1", DayOfWeek: time.Monday, StartTime: NewClock(10, 0), EndTime: NewClock(11, 0), IsActive: true}
	other := AvailabilityWindow{ListingID: "l2", DayOfWeek: time.Monday, StartTime: NewClock(8, 0), EndTime: NewClock(9, 0), IsActive: true}

	got := EffectiveWindows([]AvailabilityWindow{shared, own, other}, "l1")
	if len(got) != 1 || got[0].StartTime != own.StartTime {
		t.Fatalf("l1 windows = %+v", got)
	}

	got = EffectiveWindows([]AvailabilityWindow{shared, other}, "l3")
	if len(got) != 1 || got[0].StartTime != shared.StartTime {
		t.Fatalf("l3 windows = %+v", got)
	}
}
