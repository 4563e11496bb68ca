package engine

import (
	"context"
	"strings"

	"lurkbot/internal/metrics"
)

// runProactive evaluates whether to join the conversation unprompted. The
// generator makes the join/pass decision itself; the engine only enforces
// the preconditions (enough recent context, send floor) and the shared
// delivery gate.
func (e *Engine) runProactive(ctx context.Context) error {
	if !e.gov.CanSend() {
		return nil
	}

	convCtx, err := e.archive.RecentMessages(ctx, e.cfg.Chat.ContextWindow)
	if err != nil {
		e.logger.Warn("recent messages unavailable, skipping proactive", "error", err)
		return nil
	}

	// Never talk into an empty or stale channel.
	if len(convCtx) < e.cfg.Chat.MinContextMessages {
		e.logger.Debug("proactive skipped, too little context", "messages", len(convCtx))
		return nil
	}

	text, err := e.gen.ComposeProactive(ctx, convCtx)
	if err != nil {
		e.logger.Warn("proactive composition failed", "error", err)
		return nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		// The model passed.
		e.logger.Debug("proactive evaluation passed")
		return nil
	}

	sent, _, err := e.deliver(ctx, text, "")
	if err != nil {
		return err
	}
	if sent {
		e.proactiveSends.Add(1)
		metrics.ProactiveSends.Inc()
	}
	return nil
}
