package engine

import (
	"math/rand"
	"sync"
	"time"

	"lurkbot/internal/config"
)

// Activity identifies one independently-paced duty of the engine loop.
type Activity string

const (
	ActivityIngestion  Activity = "ingestion"
	ActivityReplyCheck Activity = "reply_check"
	ActivityProactive  Activity = "proactive"
	ActivityPrune      Activity = "prune"
)

// Governor owns the per-activity last-run timestamps and enforces the single
// shared minimum spacing between outbound sends, regardless of which activity
// wants to send. The engine loop is the only writer; the mutex exists because
// status snapshots are read from the metrics/diagnostic path.
type Governor struct {
	mu           sync.Mutex
	now          func() time.Time
	rng          *rand.Rand
	intervals    map[Activity]time.Duration
	lastRun      map[Activity]time.Time
	lastOutbound time.Time
	minBetween   time.Duration
	minDelay     time.Duration
	maxDelay     time.Duration
}

// NewGovernor builds a governor from scheduler config. A nil now falls back
// to the wall clock; tests inject a synthetic clock.
func NewGovernor(cfg config.SchedulerConfig, now func() time.Time) *Governor {
	if now == nil {
		now = time.Now
	}
	return &Governor{
		now: now,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		intervals: map[Activity]time.Duration{
			ActivityIngestion:  time.Duration(cfg.DataRetrievalInterval) * time.Second,
			ActivityReplyCheck: time.Duration(cfg.ChatCheckInterval) * time.Second,
			ActivityProactive:  time.Duration(cfg.ProactiveInterval) * time.Second,
		},
		lastRun:    make(map[Activity]time.Time),
		minBetween: time.Duration(cfg.MinTimeBetweenMessages) * time.Second,
		minDelay:   time.Duration(cfg.MinDelay) * time.Second,
		maxDelay:   time.Duration(cfg.MaxDelay) * time.Second,
	}
}

// IsDue reports whether the activity's interval has elapsed since its last
// completed run. An activity that never ran is always due.
func (g *Governor) IsDue(a Activity) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	last, ok := g.lastRun[a]
	if !ok || last.IsZero() {
		return true
	}
	interval, ok := g.intervals[a]
	if !ok {
		return false
	}
	return g.now().Sub(last) >= interval
}

// MarkDone records that the activity completed now. Unconditional.
func (g *Governor) MarkDone(a Activity) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastRun[a] = g.now()
}

// LastRun returns when the activity last completed (zero if never).
func (g *Governor) LastRun(a Activity) time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastRun[a]
}

// CanSend reports whether the minimum time between outbound messages has
// elapsed. This is the anti-spam floor shared by every outbound path.
func (g *Governor) CanSend() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.lastOutbound.IsZero() {
		return true
	}
	return g.now().Sub(g.lastOutbound) >= g.minBetween
}

// MarkSent records a successful outbound send. Called only after the
// transport confirms the send.
func (g *Governor) MarkSent() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastOutbound = g.now()
}

// LastOutbound returns the timestamp of the last successful send.
func (g *Governor) LastOutbound() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastOutbound
}

// RandomDelay draws a uniform jitter from the configured delay window. The
// caller sleeps this long before sending and must re-check CanSend after
// waking, since another path may have sent in the interim.
func (g *Governor) RandomDelay() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.maxDelay <= g.minDelay {
		return g.minDelay
	}
	return g.minDelay + time.Duration(g.rng.Int63n(int64(g.maxDelay-g.minDelay)+1))
}
