// Package engine implements the decision/timing core: a single cooperative
// loop that ingests channel messages, watches for replies to its own output,
// answers direct mentions with optional RAG context, occasionally joins the
// conversation unprompted, and paces every outbound send behind one shared
// minimum-interval governor.
package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"lurkbot/internal/config"
	"lurkbot/internal/domain"
	"lurkbot/internal/metrics"
)

// Deps are the external collaborators the engine drives. Transport,
// Generator, and Archive are required; Knowledge may be nil (retrieval is
// skipped). Now and Sleep are injectable for deterministic tests.
type Deps struct {
	Transport domain.Transport
	Generator domain.Generator
	Archive   domain.MessageStore
	Knowledge domain.KnowledgeStore
	Logger    *slog.Logger
	Now       func() time.Time
	Sleep     func(ctx context.Context, d time.Duration) error
}

// Engine is the scheduling loop plus its process-wide state: the governor,
// the marker of our own last outbound message, and the handled-id set. All
// mutation happens on the loop goroutine.
type Engine struct {
	cfg       *config.Config
	transport domain.Transport
	gen       domain.Generator
	archive   domain.MessageStore
	knowledge domain.KnowledgeStore
	gov       *Governor
	logger    *slog.Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error

	selfID    string
	startedAt time.Time

	// marker is our last sent message; replies to it trigger the reply path.
	// Not persisted: on restart the engine starts watching from its next send.
	marker *domain.ProcessedMarker

	// handled guards against re-acting on a reply or mention that keeps
	// appearing in subsequent polls.
	handled map[string]struct{}

	// lastFetch is the most recent ingestion page, scanned by the mention path.
	lastFetch []domain.InboundMessage

	messagesProcessed atomic.Int64
	repliesSent       atomic.Int64
	responsesSent     atomic.Int64
	proactiveSends    atomic.Int64
}

func New(cfg *config.Config, d Deps) *Engine {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Sleep == nil {
		d.Sleep = sleepCtx
	}

	selfID := cfg.Discord.UserID
	if cfg.General.Transport == "telegram" {
		// getUpdates never delivers the bot's own messages, so self-filtering
		// is not needed there.
		selfID = ""
	}

	return &Engine{
		cfg:       cfg,
		transport: d.Transport,
		gen:       d.Generator,
		archive:   d.Archive,
		knowledge: d.Knowledge,
		gov:       NewGovernor(cfg.Scheduler, d.Now),
		logger:    d.Logger,
		now:       d.Now,
		sleep:     d.Sleep,
		selfID:    selfID,
		handled:   make(map[string]struct{}),
	}
}

// Governor exposes the timing governor for the host process (status command,
// tests). Read-only use expected.
func (e *Engine) Governor() *Governor { return e.gov }

// Run drives the cooperative loop until ctx is cancelled. Activities run
// sequentially within a cycle; in-flight collaborator calls are allowed to
// complete before the loop exits.
func (e *Engine) Run(ctx context.Context) error {
	e.startedAt = e.now()
	e.logger.Info("engine started",
		"transport", e.cfg.General.Transport,
		"ingest_interval_s", e.cfg.Scheduler.DataRetrievalInterval,
		"chat_interval_s", e.cfg.Scheduler.ChatCheckInterval,
		"min_between_s", e.cfg.Scheduler.MinTimeBetweenMessages,
	)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	statusTicker := time.NewTicker(10 * time.Minute)
	defer statusTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopped")
			return nil
		case <-statusTicker.C:
			e.logStatus()
		case <-ticker.C:
			e.runCycle(ctx)
		}
	}
}

// runCycle executes one pass: ingestion, then chat (replies and mentions),
// then proactive if nothing else acted, then retention pruning. Failures are
// logged and degrade to skipped steps; nothing here is fatal.
func (e *Engine) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	if e.gov.IsDue(ActivityIngestion) {
		if err := e.runIngestion(ctx); err != nil {
			e.logger.Warn("ingestion cycle failed", "error", err)
		}
		e.gov.MarkDone(ActivityIngestion)
	}

	acted := false
	if e.gov.IsDue(ActivityReplyCheck) {
		var err error
		acted, err = e.runChatCheck(ctx)
		if err != nil {
			e.logger.Warn("chat check failed", "error", err)
		}
		e.gov.MarkDone(ActivityReplyCheck)
	}

	if !acted && e.gov.IsDue(ActivityProactive) {
		if err := e.runProactive(ctx); err != nil {
			e.logger.Warn("proactive evaluation failed", "error", err)
		}
		e.gov.MarkDone(ActivityProactive)
	}

	e.maybePrune(ctx)
}

// maybePrune runs the retention prune once per day, on the first cycle at or
// after 05:00 local time.
func (e *Engine) maybePrune(ctx context.Context) {
	if e.cfg.Archive.RetentionDays < 1 {
		return
	}
	now := e.now()
	if now.Hour() < 5 {
		return
	}
	last := e.gov.LastRun(ActivityPrune)
	if !last.IsZero() && sameDay(last, now) {
		return
	}

	cutoff := now.AddDate(0, 0, -e.cfg.Archive.RetentionDays)
	deleted, err := e.archive.PruneOlderThan(ctx, cutoff)
	if err != nil {
		e.logger.Warn("prune failed", "error", err)
	} else if deleted > 0 {
		metrics.MessagesPruned.Add(deleted)
		e.logger.Info("pruned archived messages", "deleted", deleted, "cutoff", cutoff)
	}
	e.gov.MarkDone(ActivityPrune)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
