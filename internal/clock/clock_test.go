package clock_test

import (
	"testing"
	"time"

	"pkt.systems/robotrpc/internal/clock"
)

func TestRealNowUsesUTC(t *testing.T) {
	t.Parallel()

	now := clock.Real{}.Now()
	if loc := now.Location(); loc != time.UTC {
		t.Fatalf("expected UTC location, got %v", loc)
	}
	if delta := time.Since(now); delta < 0 || delta > time.Second {
		t.Fatalf("unexpected Now delta: %v", delta)
	}
}

func TestOrDefaultsToReal(t *testing.T) {
	t.Parallel()

	if _, ok := clock.Or(nil).(clock.Real); !ok {
		t.Fatal("expected Real clock for nil input")
	}
	manual := clock.NewManual(time.Unix(1700000000, 0))
	if clock.Or(manual) != clock.Clock(manual) {
		t.Fatal("expected supplied clock to be returned")
	}
}

func TestManualAdvance(t *testing.T) {
	t.Parallel()

	start := time.Unix(1700000000, 0).UTC()
	m := clock.NewManual(start)
	if got := m.Now(); !got.Equal(start) {
		t.Fatalf("expected %v, got %v", start, got)
	}
	m.Advance(5 * time.Second)
	if got := m.Now(); !got.Equal(start.Add(5 * time.Second)) {
		t.Fatalf("unexpected time after advance: %v", got)
	}
	m.Advance(-time.Second)
	if got := m.Now(); !got.Equal(start.Add(5 * time.Second)) {
		t.Fatalf("negative advance moved clock: %v", got)
	}
}
