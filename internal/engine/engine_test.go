package engine

import (
	"context"
	"testing"
	"time"

	"lurkbot/internal/config"
	"lurkbot/internal/domain"
)

func TestIngestionIsIdempotent(t *testing.T) {
	rig := newTestRig(nil)
	now := rig.clock.Now()
	rig.transport.recent = []domain.InboundMessage{
		inbound("m2", "alice", "second", now),
		inbound("m1", "bob", "first", now.Add(-time.Minute)),
	}

	ctx := context.Background()
	if err := rig.engine.runIngestion(ctx); err != nil {
		t.Fatalf("first ingestion: %v", err)
	}
	if err := rig.engine.runIngestion(ctx); err != nil {
		t.Fatalf("second ingestion: %v", err)
	}

	if got := len(rig.archive.byID); got != 2 {
		t.Fatalf("archive has %d records, want 2 (ingestion must dedup by id)", got)
	}
	// Oldest first in insertion order.
	if rig.archive.order[0] != "m1" {
		t.Errorf("oldest message should be archived first, got %s", rig.archive.order[0])
	}
}

func TestIngestionTransportErrorAborts(t *testing.T) {
	rig := newTestRig(nil)
	rig.transport.fetchErr = context.DeadlineExceeded

	if err := rig.engine.runIngestion(context.Background()); err == nil {
		t.Fatal("expected error from failed fetch")
	}
	if rig.archive.saveCalls != 0 {
		t.Errorf("no persist should happen when fetch fails, got %d calls", rig.archive.saveCalls)
	}
}

func TestReplyWatcherNoMarkerNoOp(t *testing.T) {
	rig := newTestRig(nil)

	acted, err := rig.engine.runChatCheck(context.Background())
	if err != nil {
		t.Fatalf("runChatCheck: %v", err)
	}
	if acted {
		t.Fatal("no marker means nothing to watch")
	}
	if rig.gen.classifyCalls != 0 {
		t.Error("no generation should happen without a marker")
	}
}

func TestReplyHandledExactlyOnce(t *testing.T) {
	rig := newTestRig(nil)
	rig.engine.marker = &domain.ProcessedMarker{MessageID: "mine-1", Content: "hey", SentAt: rig.clock.Now()}
	rig.gen.replyText = "sure thing"
	reply := inbound("r1", "alice", "what do you mean?", rig.clock.Now())
	reply.ReplyToID = "mine-1"
	rig.transport.replies["mine-1"] = []domain.InboundMessage{reply}

	ctx := context.Background()
	acted, err := rig.engine.runChatCheck(ctx)
	if err != nil {
		t.Fatalf("first chat check: %v", err)
	}
	if !acted || len(rig.transport.sent) != 1 {
		t.Fatalf("expected one send, got acted=%v sent=%d", acted, len(rig.transport.sent))
	}

	// The same reply keeps appearing in later polls; the marker moved to the
	// newly sent message, but even pointing it back must not re-trigger.
	rig.engine.marker = &domain.ProcessedMarker{MessageID: "mine-1", Content: "hey", SentAt: rig.clock.Now()}
	rig.clock.Advance(time.Hour)
	acted, err = rig.engine.runChatCheck(ctx)
	if err != nil {
		t.Fatalf("second chat check: %v", err)
	}
	if acted || len(rig.transport.sent) != 1 {
		t.Fatalf("handled reply must never be acted on again, sent=%d", len(rig.transport.sent))
	}
}

func TestSendFloorDefersReplyWithoutDropping(t *testing.T) {
	rig := newTestRig(nil)
	ctx := context.Background()

	// Last outbound at T.
	rig.engine.gov.MarkSent()
	rig.engine.marker = &domain.ProcessedMarker{MessageID: "mine-1", Content: "hey", SentAt: rig.clock.Now()}
	rig.gen.replyText = "answer"

	// Reply becomes ready at T+100s.
	rig.clock.Advance(100 * time.Second)
	reply := inbound("r1", "alice", "and?", rig.clock.Now())
	reply.ReplyToID = "mine-1"
	rig.transport.replies["mine-1"] = []domain.InboundMessage{reply}

	acted, err := rig.engine.runChatCheck(ctx)
	if err != nil {
		t.Fatalf("chat check at T+100: %v", err)
	}
	if acted || len(rig.transport.sent) != 0 {
		t.Fatal("send floor must block the reply at T+100s")
	}

	// At T+650s the same pending reply is handled, not dropped.
	rig.clock.Advance(550 * time.Second)
	acted, err = rig.engine.runChatCheck(ctx)
	if err != nil {
		t.Fatalf("chat check at T+650: %v", err)
	}
	if !acted || len(rig.transport.sent) != 1 {
		t.Fatalf("pending reply must be sent once the floor releases, sent=%d", len(rig.transport.sent))
	}
	if rig.transport.sent[0].replyTo != "r1" {
		t.Errorf("reply should reference the trigger, got %q", rig.transport.sent[0].replyTo)
	}
}

func TestSocialIntentSkipsRetrieval(t *testing.T) {
	rig := newTestRig(nil)
	rig.engine.marker = &domain.ProcessedMarker{MessageID: "mine-1", Content: "check this out", SentAt: rig.clock.Now()}
	rig.gen.intent = domain.IntentSocialReply
	rig.gen.replyText = "haha yeah"
	reply := inbound("r1", "alice", "lol nice", rig.clock.Now())
	reply.ReplyToID = "mine-1"
	rig.transport.replies["mine-1"] = []domain.InboundMessage{reply}

	acted, err := rig.engine.runChatCheck(context.Background())
	if err != nil {
		t.Fatalf("runChatCheck: %v", err)
	}
	if !acted {
		t.Fatal("social reply should still be answered")
	}
	if rig.gen.embedCalls != 0 || rig.knowledge.queryCalls != 0 {
		t.Fatalf("social intent must never trigger embedding (%d) or retrieval (%d)",
			rig.gen.embedCalls, rig.knowledge.queryCalls)
	}
	if rig.gen.lastTech != nil {
		t.Error("composer should receive no technical context for social replies")
	}
}

func TestQuestionIntentRetrievesAboveThreshold(t *testing.T) {
	rig := newTestRig(func(c *config.Config) {
		c.RAG.ConfidenceThreshold = 0.78
		c.RAG.MaxResults = 8
	})
	rig.engine.marker = &domain.ProcessedMarker{MessageID: "mine-1", Content: "the config docs", SentAt: rig.clock.Now()}
	rig.gen.intent = domain.IntentQuestion
	rig.gen.searchQuery = "configure X setup"
	rig.gen.embedding = []float32{0.1, 0.2}
	rig.gen.replyText = "you set it in the config file"

	scores := []float64{0.95, 0.88, 0.80, 0.70, 0.60, 0.50, 0.40, 0.30}
	for i, s := range scores {
		rig.knowledge.scored = append(rig.knowledge.scored, domain.ScoredChunk{
			Chunk: domain.KnowledgeChunk{ID: string(rune('a' + i)), Content: "doc"},
			Score: s,
		})
	}

	reply := inbound("r1", "alice", "how do I configure X?", rig.clock.Now())
	reply.ReplyToID = "mine-1"
	rig.transport.replies["mine-1"] = []domain.InboundMessage{reply}

	if _, err := rig.engine.runChatCheck(context.Background()); err != nil {
		t.Fatalf("runChatCheck: %v", err)
	}

	if rig.gen.embedCalls != 1 || rig.knowledge.queryCalls != 1 {
		t.Fatalf("question intent should embed and query once, got %d/%d",
			rig.gen.embedCalls, rig.knowledge.queryCalls)
	}
	if got := len(rig.gen.lastTech); got != 3 {
		t.Fatalf("composer should receive exactly the 3 chunks above threshold, got %d", got)
	}
	for _, s := range rig.gen.lastTech {
		if s.Score < 0.78 {
			t.Errorf("chunk with score %v below threshold leaked through", s.Score)
		}
	}
}

func TestAllChunksBelowThresholdStillResponds(t *testing.T) {
	rig := newTestRig(nil)
	rig.engine.marker = &domain.ProcessedMarker{MessageID: "mine-1", Content: "x", SentAt: rig.clock.Now()}
	rig.gen.intent = domain.IntentQuestion
	rig.gen.embedding = []float32{0.5}
	rig.gen.replyText = "best guess answer"
	rig.knowledge.scored = []domain.ScoredChunk{
		{Chunk: domain.KnowledgeChunk{ID: "a"}, Score: 0.2},
		{Chunk: domain.KnowledgeChunk{ID: "b"}, Score: 0.1},
	}

	reply := inbound("r1", "alice", "what about Y?", rig.clock.Now())
	reply.ReplyToID = "mine-1"
	rig.transport.replies["mine-1"] = []domain.InboundMessage{reply}

	acted, err := rig.engine.runChatCheck(context.Background())
	if err != nil {
		t.Fatalf("runChatCheck: %v", err)
	}
	if !acted {
		t.Fatal("low-confidence retrieval must never block the response entirely")
	}
	if rig.gen.lastTech != nil {
		t.Errorf("composer should get no technical context, got %d chunks", len(rig.gen.lastTech))
	}
}

func TestEmptyGenerationIsNoAction(t *testing.T) {
	rig := newTestRig(nil)
	rig.engine.marker = &domain.ProcessedMarker{MessageID: "mine-1", Content: "x", SentAt: rig.clock.Now()}
	rig.gen.replyText = "   " // whitespace only
	reply := inbound("r1", "alice", "hm", rig.clock.Now())
	reply.ReplyToID = "mine-1"
	rig.transport.replies["mine-1"] = []domain.InboundMessage{reply}

	acted, err := rig.engine.runChatCheck(context.Background())
	if err != nil {
		t.Fatalf("runChatCheck: %v", err)
	}
	if acted || len(rig.transport.sent) != 0 {
		t.Fatal("empty generation must produce no send")
	}
	if !rig.engine.gov.LastOutbound().IsZero() {
		t.Error("last outbound timestamp must be unchanged on no-action")
	}
	if _, handled := rig.engine.handled["r1"]; !handled {
		t.Error("an explicit no-action decision should settle the reply")
	}
}

func TestProactiveRequiresMinimumContext(t *testing.T) {
	rig := newTestRig(func(c *config.Config) { c.Chat.MinContextMessages = 3 })
	now := rig.clock.Now()
	rig.archive.SaveMessage(context.Background(), inbound("m1", "alice", "hi", now))
	rig.archive.SaveMessage(context.Background(), inbound("m2", "bob", "yo", now))

	if err := rig.engine.runProactive(context.Background()); err != nil {
		t.Fatalf("runProactive: %v", err)
	}
	if rig.gen.proactiveCalls != 0 {
		t.Fatal("proactive evaluation must not run below the minimum context count")
	}
}

func TestProactivePassSendsNothing(t *testing.T) {
	rig := newTestRig(nil)
	now := rig.clock.Now()
	for i := 0; i < 5; i++ {
		rig.archive.SaveMessage(context.Background(), inbound(string(rune('a'+i)), "alice", "msg", now))
	}
	rig.gen.proactiveText = "" // the model passed

	if err := rig.engine.runProactive(context.Background()); err != nil {
		t.Fatalf("runProactive: %v", err)
	}
	if rig.gen.proactiveCalls != 1 {
		t.Fatal("proactive evaluation should have run")
	}
	if len(rig.transport.sent) != 0 {
		t.Fatal("a pass must never result in a send")
	}
}

func TestProactiveSendsUnprompted(t *testing.T) {
	rig := newTestRig(nil)
	now := rig.clock.Now()
	for i := 0; i < 5; i++ {
		rig.archive.SaveMessage(context.Background(), inbound(string(rune('a'+i)), "alice", "msg", now))
	}
	rig.gen.proactiveText = "anyone tried the new release?"

	if err := rig.engine.runProactive(context.Background()); err != nil {
		t.Fatalf("runProactive: %v", err)
	}
	if len(rig.transport.sent) != 1 {
		t.Fatalf("expected one proactive send, got %d", len(rig.transport.sent))
	}
	if rig.transport.sent[0].replyTo != "" {
		t.Error("proactive messages are not replies")
	}
	if rig.engine.Status().ProactiveSends != 1 {
		t.Error("proactive counter not incremented")
	}
}

func TestCandidateDroppedWhenAnotherPathSendsDuringJitter(t *testing.T) {
	rig := newTestRig(func(c *config.Config) {
		c.Scheduler.MinDelay = 10
		c.Scheduler.MaxDelay = 10
	})
	// Simulate a concurrent path winning the race while we sleep the jitter.
	rig.engine.sleep = func(ctx context.Context, d time.Duration) error {
		rig.clock.Advance(d)
		rig.engine.gov.MarkSent()
		return nil
	}

	rig.engine.marker = &domain.ProcessedMarker{MessageID: "mine-1", Content: "x", SentAt: rig.clock.Now()}
	rig.gen.replyText = "late answer"
	reply := inbound("r1", "alice", "?", rig.clock.Now())
	reply.ReplyToID = "mine-1"
	rig.transport.replies["mine-1"] = []domain.InboundMessage{reply}

	acted, err := rig.engine.runChatCheck(context.Background())
	if err != nil {
		t.Fatalf("runChatCheck: %v", err)
	}
	if acted || len(rig.transport.sent) != 0 {
		t.Fatal("candidate must be dropped when the floor re-check fails after jitter")
	}
	if _, handled := rig.engine.handled["r1"]; !handled {
		t.Error("a dropped candidate is settled, not retried")
	}
}

func TestMentionTriggersDirectResponse(t *testing.T) {
	rig := newTestRig(nil)
	rig.clock.Advance(time.Minute)
	m := inbound("m9", "alice", "hey you, thoughts?", rig.clock.Now())
	m.MentionsMe = true
	rig.engine.lastFetch = []domain.InboundMessage{m}
	rig.gen.responseText = "here's my take"

	acted, err := rig.engine.runChatCheck(context.Background())
	if err != nil {
		t.Fatalf("runChatCheck: %v", err)
	}
	if !acted || len(rig.transport.sent) != 1 {
		t.Fatalf("mention should be answered, sent=%d", len(rig.transport.sent))
	}
	if rig.gen.responseCalls != 1 || rig.gen.replyCalls != 0 {
		t.Errorf("mention path should use the direct-response composition, got reply=%d response=%d",
			rig.gen.replyCalls, rig.gen.responseCalls)
	}
	if rig.engine.Status().ResponsesSent != 1 {
		t.Error("response counter not incremented")
	}
}

func TestMarkerUpdatedOnSuccessfulSend(t *testing.T) {
	rig := newTestRig(nil)
	rig.engine.marker = &domain.ProcessedMarker{MessageID: "mine-1", Content: "x", SentAt: rig.clock.Now()}
	rig.gen.replyText = "done"
	reply := inbound("r1", "alice", "?", rig.clock.Now())
	reply.ReplyToID = "mine-1"
	rig.transport.replies["mine-1"] = []domain.InboundMessage{reply}

	if _, err := rig.engine.runChatCheck(context.Background()); err != nil {
		t.Fatalf("runChatCheck: %v", err)
	}
	if rig.engine.marker.MessageID != "sent-1" {
		t.Fatalf("marker should move to the newly sent message, got %s", rig.engine.marker.MessageID)
	}
	if rig.engine.marker.Content != "done" {
		t.Errorf("marker content = %q, want sent text", rig.engine.marker.Content)
	}
	if !rig.engine.gov.LastOutbound().Equal(rig.clock.Now()) {
		t.Error("last outbound must be stamped at send time")
	}
}

func TestPruneRunsOncePerDayAfterFiveAM(t *testing.T) {
	rig := newTestRig(func(c *config.Config) { c.Archive.RetentionDays = 7 })
	ctx := context.Background()

	old := inbound("ancient", "bob", "old news", rig.clock.Now().AddDate(0, 0, -30))
	rig.archive.SaveMessage(ctx, old)

	// Clock starts at 12:00, past 05:00, so the first cycle prunes.
	rig.engine.maybePrune(ctx)
	if rig.archive.pruned != 1 {
		t.Fatalf("expected 1 pruned message, got %d", rig.archive.pruned)
	}

	// Same day: no second prune.
	rig.clock.Advance(2 * time.Hour)
	rig.engine.maybePrune(ctx)
	if rig.archive.pruned != 1 {
		t.Fatal("prune must run at most once per day")
	}

	// Next day before 05:00: still nothing.
	rig.clock.Advance(14 * time.Hour) // 04:00 next day
	rig.engine.maybePrune(ctx)
	if rig.archive.pruned != 1 {
		t.Fatal("prune must not run before 05:00")
	}

	// Next day after 05:00: runs again (nothing left to delete).
	rig.clock.Advance(2 * time.Hour)
	rig.engine.maybePrune(ctx)
	if got := rig.engine.gov.LastRun(ActivityPrune); !sameDay(got, rig.clock.Now()) {
		t.Error("prune timestamp should advance to the new day")
	}
}

func TestCycleSkipsProactiveWhenReplyActed(t *testing.T) {
	rig := newTestRig(nil)
	ctx := context.Background()
	now := rig.clock.Now()
	for i := 0; i < 5; i++ {
		rig.archive.SaveMessage(ctx, inbound(string(rune('a'+i)), "alice", "msg", now))
	}
	rig.engine.marker = &domain.ProcessedMarker{MessageID: "mine-1", Content: "x", SentAt: now}
	rig.gen.replyText = "answered"
	rig.gen.proactiveText = "should never be sent"
	reply := inbound("r1", "alice", "?", now)
	reply.ReplyToID = "mine-1"
	rig.transport.replies["mine-1"] = []domain.InboundMessage{reply}

	rig.engine.runCycle(ctx)

	if rig.gen.proactiveCalls != 0 {
		t.Fatal("proactive must not run in a cycle where the reply path acted")
	}
	if len(rig.transport.sent) != 1 {
		t.Fatalf("expected exactly one send in the cycle, got %d", len(rig.transport.sent))
	}
}
