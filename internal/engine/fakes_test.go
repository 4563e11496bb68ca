package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lurkbot/internal/config"
	"lurkbot/internal/domain"
)

// fakeClock is a manually advanced clock for deterministic timing tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type sentMsg struct {
	content string
	replyTo string
}

type fakeTransport struct {
	recent   []domain.InboundMessage
	replies  map[string][]domain.InboundMessage
	sent     []sentMsg
	fetchErr error
	sendErr  error
	nextID   int
}

func (f *fakeTransport) FetchRecent(ctx context.Context, limit int) ([]domain.InboundMessage, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if len(f.recent) > limit {
		return f.recent[:limit], nil
	}
	return f.recent, nil
}

func (f *fakeTransport) Send(ctx context.Context, content, replyTo string) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, sentMsg{content: content, replyTo: replyTo})
	f.nextID++
	return fmt.Sprintf("sent-%d", f.nextID), nil
}

func (f *fakeTransport) FindReplies(ctx context.Context, messageID string, limit int) ([]domain.InboundMessage, error) {
	return f.replies[messageID], nil
}

func (f *fakeTransport) Close() error { return nil }

type fakeGenerator struct {
	intent        domain.Intent
	intentErr     error
	searchQuery   string
	embedding     []float32
	embedErr      error
	replyText     string
	responseText  string
	proactiveText string
	composeErr    error

	classifyCalls  int
	embedCalls     int
	replyCalls     int
	responseCalls  int
	proactiveCalls int
	openerCalls    int

	// lastTech captures the technical context passed to the last compose call.
	lastTech []domain.ScoredChunk
}

func (f *fakeGenerator) ClassifyIntent(ctx context.Context, text string) (domain.Intent, error) {
	f.classifyCalls++
	return f.intent, f.intentErr
}

func (f *fakeGenerator) BuildSearchQuery(ctx context.Context, text string) (string, error) {
	return f.searchQuery, nil
}

func (f *fakeGenerator) Embed(ctx context.Context, text string, task domain.EmbeddingTask) ([]float32, error) {
	f.embedCalls++
	return f.embedding, f.embedErr
}

func (f *fakeGenerator) ComposeReply(ctx context.Context, original, reply string, convCtx []domain.InboundMessage, tech []domain.ScoredChunk) (string, error) {
	f.replyCalls++
	f.lastTech = tech
	return f.replyText, f.composeErr
}

func (f *fakeGenerator) ComposeResponse(ctx context.Context, trigger string, convCtx []domain.InboundMessage, tech []domain.ScoredChunk) (string, error) {
	f.responseCalls++
	f.lastTech = tech
	return f.responseText, f.composeErr
}

func (f *fakeGenerator) ComposeProactive(ctx context.Context, convCtx []domain.InboundMessage) (string, error) {
	f.proactiveCalls++
	return f.proactiveText, f.composeErr
}

func (f *fakeGenerator) ComposeOpener(ctx context.Context, convCtx []domain.InboundMessage) (string, error) {
	f.openerCalls++
	return f.proactiveText, f.composeErr
}

type fakeArchive struct {
	byID      map[string]domain.InboundMessage
	order     []string
	saveCalls int
	saveErr   error
	pruned    int64
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{byID: make(map[string]domain.InboundMessage)}
}

func (f *fakeArchive) SaveMessage(ctx context.Context, msg domain.InboundMessage) error {
	f.saveCalls++
	if f.saveErr != nil {
		return f.saveErr
	}
	if _, ok := f.byID[msg.ID]; ok {
		return nil
	}
	f.byID[msg.ID] = msg
	f.order = append(f.order, msg.ID)
	return nil
}

func (f *fakeArchive) RecentMessages(ctx context.Context, limit int) ([]domain.InboundMessage, error) {
	start := len(f.order) - limit
	if start < 0 {
		start = 0
	}
	var out []domain.InboundMessage
	for _, id := range f.order[start:] {
		out = append(out, f.byID[id])
	}
	return out, nil
}

func (f *fakeArchive) Stats(ctx context.Context) (domain.ArchiveStats, error) {
	return domain.ArchiveStats{TotalMessages: int64(len(f.byID))}, nil
}

func (f *fakeArchive) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	for id, m := range f.byID {
		if m.CreatedAt.Before(cutoff) {
			delete(f.byID, id)
			deleted++
		}
	}
	f.pruned += deleted
	return deleted, nil
}

func (f *fakeArchive) Close() error { return nil }

type fakeKnowledge struct {
	scored     []domain.ScoredChunk
	queryCalls int
	queryErr   error
}

func (f *fakeKnowledge) AddChunks(ctx context.Context, chunks []domain.KnowledgeChunk) (int, error) {
	return len(chunks), nil
}

func (f *fakeKnowledge) QuerySimilar(ctx context.Context, vector []float32, k int) ([]domain.ScoredChunk, error) {
	f.queryCalls++
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if len(f.scored) > k {
		return f.scored[:k], nil
	}
	return f.scored, nil
}

func (f *fakeKnowledge) KnowledgeStats(ctx context.Context) (domain.KnowledgeStats, error) {
	return domain.KnowledgeStats{ChunkCount: int64(len(f.scored))}, nil
}

// testRig bundles an engine with its fakes and synthetic clock.
type testRig struct {
	engine    *Engine
	clock     *fakeClock
	transport *fakeTransport
	gen       *fakeGenerator
	archive   *fakeArchive
	knowledge *fakeKnowledge
}

func newTestRig(mutate func(*config.Config)) *testRig {
	cfg := config.Defaults()
	cfg.Discord.UserID = "self"
	// Deterministic pacing: no jitter unless a test opts in.
	cfg.Scheduler.MinDelay = 0
	cfg.Scheduler.MaxDelay = 0
	if mutate != nil {
		mutate(cfg)
	}

	clock := newFakeClock()
	tr := &fakeTransport{replies: make(map[string][]domain.InboundMessage)}
	gen := &fakeGenerator{intent: domain.IntentStatement}
	ar := newFakeArchive()
	kn := &fakeKnowledge{}

	eng := New(cfg, Deps{
		Transport: tr,
		Generator: gen,
		Archive:   ar,
		Knowledge: kn,
		Now:       clock.Now,
		Sleep: func(ctx context.Context, d time.Duration) error {
			clock.Advance(d)
			return ctx.Err()
		},
	})
	eng.startedAt = clock.Now()

	return &testRig{engine: eng, clock: clock, transport: tr, gen: gen, archive: ar, knowledge: kn}
}

func inbound(id, author, content string, at time.Time) domain.InboundMessage {
	return domain.InboundMessage{
		ID:         id,
		AuthorID:   author,
		AuthorName: author,
		Content:    content,
		CreatedAt:  at,
	}
}
