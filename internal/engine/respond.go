package engine

import (
	"context"
	"strings"

	"lurkbot/internal/domain"
	"lurkbot/internal/metrics"
)

// triggerKind selects which composition the generator runs for a trigger.
type triggerKind int

const (
	replyKind    triggerKind = iota // trigger replies to our marker
	responseKind                    // trigger mentions us directly
)

// respondTo runs the full pipeline for one trigger message: intent gate,
// optional retrieval, composition, jittered pre-send delay, pacing re-check,
// send, marker update. Returns whether a send happened and whether the
// trigger is settled (sent, dropped, or declined) versus still pending.
func (e *Engine) respondTo(ctx context.Context, trigger domain.InboundMessage, kind triggerKind) (sent, handled bool, err error) {
	intent := e.classify(ctx, trigger.Content)

	// Two-stage gate: only question-like intents justify the cost of
	// embedding and retrieval. Unknown is treated as possibly a question.
	var tech []domain.ScoredChunk
	if intent == domain.IntentQuestion || intent == domain.IntentUnknown {
		tech = e.retrieveContext(ctx, trigger.Content)
	}

	convCtx, cerr := e.archive.RecentMessages(ctx, e.cfg.Chat.ContextWindow)
	if cerr != nil {
		e.logger.Warn("recent messages unavailable, composing without history", "error", cerr)
		convCtx = nil
	}

	var text string
	var gerr error
	switch kind {
	case replyKind:
		text, gerr = e.gen.ComposeReply(ctx, e.marker.Content, trigger.Content, convCtx, tech)
	default:
		text, gerr = e.gen.ComposeResponse(ctx, trigger.Content, convCtx, tech)
	}
	if gerr != nil {
		e.logger.Warn("composition failed", "id", trigger.ID, "error", gerr)
		return false, true, nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		e.logger.Debug("composition produced no text, skipping", "id", trigger.ID)
		return false, true, nil
	}

	return e.deliver(ctx, text, trigger.ID)
}

// deliver sleeps the human-pacing jitter, re-checks the send floor, and
// sends. A candidate blocked after the jitter is dropped, not queued:
// correctness favors silence over double-posting.
func (e *Engine) deliver(ctx context.Context, text, replyTo string) (sent, handled bool, err error) {
	if err := e.sleep(ctx, e.gov.RandomDelay()); err != nil {
		return false, false, err
	}

	if !e.gov.CanSend() {
		e.logger.Info("candidate dropped, another path sent during jitter", "reply_to", replyTo)
		metrics.SendsBlocked.Inc()
		return false, true, nil
	}

	id, err := e.transport.Send(ctx, text, replyTo)
	if err != nil {
		return false, false, err
	}

	e.marker = &domain.ProcessedMarker{MessageID: id, Content: text, SentAt: e.now()}
	e.gov.MarkSent()
	e.logger.Info("message sent", "id", id, "reply_to", replyTo, "chars", len(text))
	return true, true, nil
}

// classify runs the cheap intent stage. Classification failure degrades to
// unknown, which downstream treats conservatively.
func (e *Engine) classify(ctx context.Context, text string) domain.Intent {
	intent, err := e.gen.ClassifyIntent(ctx, text)
	if err != nil {
		e.logger.Warn("intent classification failed", "error", err)
		return domain.IntentUnknown
	}
	return intent
}

// retrieveContext builds a search query, embeds it, and queries the
// knowledge store, keeping only chunks at or above the confidence threshold.
// Every failure degrades to "no technical context"; retrieval is never a
// reason to stay silent.
func (e *Engine) retrieveContext(ctx context.Context, text string) []domain.ScoredChunk {
	if e.knowledge == nil {
		return nil
	}

	query, err := e.gen.BuildSearchQuery(ctx, text)
	if err != nil || strings.TrimSpace(query) == "" {
		query = text
	}

	vec, err := e.gen.Embed(ctx, query, domain.EmbedQuery)
	if err != nil {
		e.logger.Warn("query embedding failed", "error", err)
		return nil
	}

	metrics.RetrievalQueries.Inc()
	scored, err := e.knowledge.QuerySimilar(ctx, vec, e.cfg.RAG.MaxResults)
	if err != nil {
		e.logger.Warn("similarity query failed", "error", err)
		return nil
	}

	var kept []domain.ScoredChunk
	for _, s := range scored {
		if s.Score >= e.cfg.RAG.ConfidenceThreshold {
			kept = append(kept, s)
		}
	}
	e.logger.Debug("retrieval complete", "candidates", len(scored), "kept", len(kept))
	return kept
}
