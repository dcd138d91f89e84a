package clock

import (
	"testing"
	"time"
)

func TestFakeClockAdvanceAndSet(t *testing.T) {
	start := time.Date(2025, 11, 30, 23, 0, 0, 0, time.UTC)
	c := NewFakeClock(start)

	c.Advance(2 * time.Hour)
	if got := c.Now(); got.Month() != time.December || got.Day() != 1 {
		t.Fatalf("expected rollover into December, got %s", got)
	}

	c.Set(start.In(time.FixedZone("EAT", 3*3600)))
	if got := c.Now(); !got.Equal(start) || got.Location() != time.UTC {
		t.Fatalf("expected UTC %s, got %s", start, got)
	}
}
