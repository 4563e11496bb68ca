package engine

import (
	"context"
	"time"

	"lurkbot/internal/metrics"
)

// Status is a read-only snapshot of the engine's timers and counters. Safe
// to take from any goroutine at any time.
type Status struct {
	LastIngestionAt  time.Time
	LastReplyCheckAt time.Time
	LastProactiveAt  time.Time
	LastPruneAt      time.Time
	LastOutboundAt   time.Time

	MessagesProcessed int64
	RepliesSent       int64
	ResponsesSent     int64
	ProactiveSends    int64
}

// Status returns the current snapshot.
func (e *Engine) Status() Status {
	return Status{
		LastIngestionAt:   e.gov.LastRun(ActivityIngestion),
		LastReplyCheckAt:  e.gov.LastRun(ActivityReplyCheck),
		LastProactiveAt:   e.gov.LastRun(ActivityProactive),
		LastPruneAt:       e.gov.LastRun(ActivityPrune),
		LastOutboundAt:    e.gov.LastOutbound(),
		MessagesProcessed: e.messagesProcessed.Load(),
		RepliesSent:       e.repliesSent.Load(),
		ResponsesSent:     e.responsesSent.Load(),
		ProactiveSends:    e.proactiveSends.Load(),
	}
}

func (e *Engine) logStatus() {
	s := e.Status()

	// Keep the archive gauges fresh alongside the periodic status line.
	if stats, err := e.archive.Stats(context.Background()); err == nil {
		metrics.ArchivedMessages.Set(stats.TotalMessages)
	}

	e.logger.Info("engine status",
		"messages_processed", s.MessagesProcessed,
		"replies_sent", s.RepliesSent,
		"responses_sent", s.ResponsesSent,
		"proactive_sends", s.ProactiveSends,
		"last_outbound", s.LastOutboundAt,
		"last_ingestion", s.LastIngestionAt,
	)
}
