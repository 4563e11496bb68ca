package domain

import (
	"context"
	"time"
)

// KnowledgeChunk is one embedded slice of scraped source content. Chunks are
// produced by the corpus builder and are immutable from the engine's
// perspective; the engine only consumes them through similarity queries.
type KnowledgeChunk struct {
	ID        string
	SourceURL string
	Content   string
	Embedding []float32
	StoredAt  time.Time
}

// ScoredChunk pairs a chunk with its similarity score, normalized to [0,1].
type ScoredChunk struct {
	Chunk KnowledgeChunk
	Score float64
}

// KnowledgeStats summarizes the stored corpus.
type KnowledgeStats struct {
	ChunkCount  int64
	SourceCount int64
}

// KnowledgeStore is the vector side of persistent storage.
type KnowledgeStore interface {
	// AddChunks stores chunks, skipping ids already present, and returns the
	// number newly stored.
	AddChunks(ctx context.Context, chunks []KnowledgeChunk) (int, error)

	// QuerySimilar returns up to k chunks ranked by similarity to the query
	// vector, best first.
	QuerySimilar(ctx context.Context, vector []float32, k int) ([]ScoredChunk, error)

	KnowledgeStats(ctx context.Context) (KnowledgeStats, error)
}
