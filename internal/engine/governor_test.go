package engine

import (
	"testing"
	"time"

	"lurkbot/internal/config"
)

func testGovernor() (*Governor, *fakeClock) {
	clock := newFakeClock()
	cfg := config.Defaults().Scheduler
	return NewGovernor(cfg, clock.Now), clock
}

func TestGovernorNeverRunIsDue(t *testing.T) {
	g, _ := testGovernor()

	for _, a := range []Activity{ActivityIngestion, ActivityReplyCheck, ActivityProactive} {
		if !g.IsDue(a) {
			t.Errorf("%s should be due before first run", a)
		}
	}
}

func TestGovernorIntervalElapses(t *testing.T) {
	g, clock := testGovernor()

	g.MarkDone(ActivityIngestion)
	if g.IsDue(ActivityIngestion) {
		t.Fatal("just-run activity should not be due")
	}

	clock.Advance(59 * time.Second)
	if g.IsDue(ActivityIngestion) {
		t.Fatal("activity due before 60s interval elapsed")
	}

	clock.Advance(time.Second)
	if !g.IsDue(ActivityIngestion) {
		t.Fatal("activity not due after interval elapsed")
	}
}

func TestGovernorSendFloor(t *testing.T) {
	g, clock := testGovernor()

	if !g.CanSend() {
		t.Fatal("fresh governor should allow sending")
	}

	g.MarkSent()
	if g.CanSend() {
		t.Fatal("send floor should block immediately after a send")
	}

	clock.Advance(599 * time.Second)
	if g.CanSend() {
		t.Fatal("send floor should hold until 600s elapsed")
	}

	clock.Advance(time.Second)
	if !g.CanSend() {
		t.Fatal("send floor should release after min interval")
	}
}

func TestGovernorRandomDelayRange(t *testing.T) {
	clock := newFakeClock()
	cfg := config.Defaults().Scheduler
	cfg.MinDelay = 120
	cfg.MaxDelay = 420
	g := NewGovernor(cfg, clock.Now)

	for i := 0; i < 200; i++ {
		d := g.RandomDelay()
		if d < 120*time.Second || d > 420*time.Second {
			t.Fatalf("delay %v outside [120s, 420s]", d)
		}
	}
}

func TestGovernorRandomDelayDegenerateWindow(t *testing.T) {
	clock := newFakeClock()
	cfg := config.Defaults().Scheduler
	cfg.MinDelay = 30
	cfg.MaxDelay = 30
	g := NewGovernor(cfg, clock.Now)

	if d := g.RandomDelay(); d != 30*time.Second {
		t.Fatalf("degenerate window should return min, got %v", d)
	}
}
