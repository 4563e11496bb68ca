package engine

import (
	"context"
	"fmt"

	"lurkbot/internal/metrics"
)

// runIngestion pulls the most recent page from the transport and archives
// every message not already stored. Persistence is per-message and
// idempotent, so a mid-page failure leaves no partial state to unwind.
func (e *Engine) runIngestion(ctx context.Context) error {
	msgs, err := e.transport.FetchRecent(ctx, e.cfg.Chat.FetchLimit)
	if err != nil {
		return fmt.Errorf("fetch recent messages: %w", err)
	}

	// Pages arrive newest first; archive oldest first so insertion order
	// matches chronology.
	stored := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if err := e.archive.SaveMessage(ctx, m); err != nil {
			e.logger.Warn("archive message failed", "id", m.ID, "error", err)
			continue
		}
		stored++
	}

	e.lastFetch = msgs
	e.messagesProcessed.Add(int64(stored))
	metrics.MessagesIngested.Add(int64(stored))

	e.logger.Debug("ingestion cycle complete", "fetched", len(msgs))
	return nil
}
