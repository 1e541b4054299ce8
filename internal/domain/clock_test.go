package domain

import "testing"

func TestClock_ValueScanRoundTrip(t *testing.T) {
	for _, c := range []Clock{NewClock(0, 0), NewClock(9, 30), NewClock(23, 30), EndOfDay} {
		v, err := c.Value()
		if err != nil {
			t.Fatalf("Value(%s) error: %v", c, err)
		}
		var got Clock
		if err := got.Scan(v); err != nil {
			t.Fatalf("Scan(%v) error: %v", v, err)
		}
		if got != c {
			t.Fatalf("round trip %s = %s", c, got)
		}
	}
}

func TestParseClock(t *testing.T) {
	if c, err := ParseClock("24:00"); err != nil || c != NewClock(24, 0) {
		t.Fatalf("ParseClock(24:00) = %v, %v", c, err)
	}
	var c Clock
	if err := c.Scan([]byte("24:00:00")); err != nil || c != EndOfDay {
		t.Fatalf("Scan(24:00:00) = %v, %v", c, err)
	}
	for _, bad := range []string{"24:30", "25:00", "9am", ""} {
		if _, err := ParseClock(bad); err == nil {
			t.Fatalf("ParseClock(%q) accepted", bad)
		}
	}
}
