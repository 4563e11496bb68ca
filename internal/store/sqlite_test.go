package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"lurkbot/internal/domain"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "archive.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func msg(id, author, content string, at time.Time) domain.InboundMessage {
	return domain.InboundMessage{ID: id, AuthorID: author, AuthorName: author, Content: content, CreatedAt: at}
}

func TestSaveMessageIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	m := msg("m1", "alice", "hey", now)
	if err := s.SaveMessage(ctx, m); err != nil {
		t.Fatalf("first save: %v", err)
	}
	m.Content = "changed content must not overwrite"
	if err := s.SaveMessage(ctx, m); err != nil {
		t.Fatalf("second save: %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalMessages != 1 {
		t.Fatalf("TotalMessages = %d, want 1", stats.TotalMessages)
	}

	got, err := s.RecentMessages(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if got[0].Content != "hey" {
		t.Errorf("re-save must be a no-op, content = %q", got[0].Content)
	}
}

func TestRecentMessagesChronological(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		if err := s.SaveMessage(ctx, msg(id, "bob", id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.RecentMessages(ctx, 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	// Newest 3, oldest first.
	want := []string{"c", "d", "e"}
	for i, w := range want {
		if got[i].ID != w {
			t.Errorf("got[%d] = %s, want %s", i, got[i].ID, w)
		}
	}
}

func TestStatsCountsUniqueAuthors(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	s.SaveMessage(ctx, msg("m1", "alice", "a", now))
	s.SaveMessage(ctx, msg("m2", "alice", "b", now))
	s.SaveMessage(ctx, msg("m3", "bob", "c", now))

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalMessages != 3 || stats.UniqueAuthors != 2 {
		t.Fatalf("stats = %+v, want 3 messages / 2 authors", stats)
	}
}

func TestPruneOlderThan(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	s.SaveMessage(ctx, msg("old1", "alice", "a", now.AddDate(0, 0, -40)))
	s.SaveMessage(ctx, msg("old2", "bob", "b", now.AddDate(0, 0, -31)))
	s.SaveMessage(ctx, msg("new1", "bob", "c", now))

	// Chunks must survive pruning.
	if _, err := s.AddChunks(ctx, []domain.KnowledgeChunk{
		{ID: "c1", SourceURL: "https://example.com", Content: "doc", Embedding: []float32{1, 0}, StoredAt: now.AddDate(0, 0, -60)},
	}); err != nil {
		t.Fatal(err)
	}

	deleted, err := s.PruneOlderThan(ctx, now.AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("deleted = %d, want 2", deleted)
	}

	stats, _ := s.Stats(ctx)
	if stats.TotalMessages != 1 {
		t.Errorf("TotalMessages = %d, want 1", stats.TotalMessages)
	}
	kstats, _ := s.KnowledgeStats(ctx)
	if kstats.ChunkCount != 1 {
		t.Errorf("pruning must never delete knowledge chunks, got %d", kstats.ChunkCount)
	}
}

func TestAddChunksSkipsExisting(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	chunks := []domain.KnowledgeChunk{
		{ID: "c1", SourceURL: "https://a", Content: "one", Embedding: []float32{1, 0}, StoredAt: now},
		{ID: "c2", SourceURL: "https://b", Content: "two", Embedding: []float32{0, 1}, StoredAt: now},
	}
	stored, err := s.AddChunks(ctx, chunks)
	if err != nil {
		t.Fatalf("first add: %v", err)
	}
	if stored != 2 {
		t.Fatalf("stored = %d, want 2", stored)
	}

	stored, err = s.AddChunks(ctx, chunks)
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if stored != 0 {
		t.Fatalf("re-adding existing chunks should store 0, got %d", stored)
	}
}

func TestQuerySimilarRanksAndNormalizes(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := s.AddChunks(ctx, []domain.KnowledgeChunk{
		{ID: "exact", SourceURL: "https://a", Content: "exact match", Embedding: []float32{1, 0}, StoredAt: now},
		{ID: "orthogonal", SourceURL: "https://b", Content: "unrelated", Embedding: []float32{0, 1}, StoredAt: now},
		{ID: "opposite", SourceURL: "https://c", Content: "opposite", Embedding: []float32{-1, 0}, StoredAt: now},
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.QuerySimilar(ctx, []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Chunk.ID != "exact" || got[2].Chunk.ID != "opposite" {
		t.Fatalf("wrong ranking: %s .. %s", got[0].Chunk.ID, got[2].Chunk.ID)
	}
	// (1+cos)/2: identical -> 1, orthogonal -> 0.5, opposite -> 0.
	if got[0].Score < 0.999 || got[1].Score < 0.499 || got[1].Score > 0.501 || got[2].Score > 0.001 {
		t.Errorf("scores not normalized to [0,1]: %v %v %v", got[0].Score, got[1].Score, got[2].Score)
	}
}

func TestQuerySimilarHonorsK(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		s.AddChunks(ctx, []domain.KnowledgeChunk{
			{ID: string(rune('a' + i)), SourceURL: "https://x", Content: "doc", Embedding: []float32{1, float32(i)}, StoredAt: now},
		})
	}

	got, err := s.QuerySimilar(ctx, []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Score < got[1].Score {
		t.Error("results must be best first")
	}
}

func TestVectorRoundTrip(t *testing.T) {
	in := []float32{0.25, -1.5, 3.14159, 0}
	out := decodeVector(encodeVector(in))
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}
}
