package engine

import (
	"context"
	"fmt"
	"sort"

	"lurkbot/internal/domain"
	"lurkbot/internal/metrics"
)

// runChatCheck runs the two trigger paths of one chat cycle: replies to our
// own last message first, then direct mentions from the latest ingestion
// page. At most one send happens per cycle; the first path to act wins.
func (e *Engine) runChatCheck(ctx context.Context) (bool, error) {
	acted, err := e.checkReplies(ctx)
	if err != nil {
		return acted, err
	}
	if acted {
		return true, nil
	}
	return e.checkMentions(ctx)
}

// checkReplies reconciles the transport's view of replies to our marker
// against the handled-id set and answers the oldest pending one. A reply
// blocked only by the pacing floor stays unhandled and is retried on the
// next due cycle; a reply the model declined to answer is marked handled so
// it is never regenerated.
func (e *Engine) checkReplies(ctx context.Context) (bool, error) {
	if e.marker == nil {
		return false, nil
	}

	replies, err := e.transport.FindReplies(ctx, e.marker.MessageID, e.cfg.Chat.FetchLimit)
	if err != nil {
		return false, fmt.Errorf("find replies to %s: %w", e.marker.MessageID, err)
	}

	pending := e.pendingOf(replies)
	if len(pending) == 0 {
		return false, nil
	}
	trigger := pending[0]

	// Cheap pre-gate: if the floor blocks sending anyway, don't spend a
	// generation call. The reply stays pending.
	if !e.gov.CanSend() {
		e.logger.Debug("reply pending, send floor not elapsed", "id", trigger.ID)
		return false, nil
	}

	sent, handled, err := e.respondTo(ctx, trigger, replyKind)
	if handled {
		e.handled[trigger.ID] = struct{}{}
	}
	if err != nil {
		return sent, fmt.Errorf("reply to %s: %w", trigger.ID, err)
	}
	if sent {
		e.repliesSent.Add(1)
		metrics.RepliesSent.Inc()
	}
	return sent, nil
}

// checkMentions answers messages that address us directly but are not
// structured replies to the marker. Only messages observed after engine
// start are considered, so a restart never answers stale mentions.
func (e *Engine) checkMentions(ctx context.Context) (bool, error) {
	var mentions []domain.InboundMessage
	for _, m := range e.pendingOf(e.lastFetch) {
		if m.MentionsMe && m.CreatedAt.After(e.startedAt) {
			mentions = append(mentions, m)
		}
	}
	if len(mentions) == 0 {
		return false, nil
	}
	trigger := mentions[0]

	if !e.gov.CanSend() {
		e.logger.Debug("mention pending, send floor not elapsed", "id", trigger.ID)
		return false, nil
	}

	sent, handled, err := e.respondTo(ctx, trigger, responseKind)
	if handled {
		e.handled[trigger.ID] = struct{}{}
	}
	if err != nil {
		return sent, fmt.Errorf("respond to %s: %w", trigger.ID, err)
	}
	if sent {
		e.responsesSent.Add(1)
		metrics.ResponsesSent.Inc()
	}
	return sent, nil
}

// pendingOf filters out handled ids and our own messages, returning the rest
// oldest first. Set reconciliation instead of diffing against the previous
// poll keeps repeated observations harmless.
func (e *Engine) pendingOf(msgs []domain.InboundMessage) []domain.InboundMessage {
	var out []domain.InboundMessage
	for _, m := range msgs {
		if _, done := e.handled[m.ID]; done {
			continue
		}
		if e.selfID != "" && m.AuthorID == e.selfID {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
