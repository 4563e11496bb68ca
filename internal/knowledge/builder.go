package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/net/html"

	"lurkbot/internal/domain"
	"lurkbot/internal/metrics"
)

// Builder runs the corpus pipeline: fetch a source page, extract its
// content, chunk it, embed each chunk, and store the result.
type Builder struct {
	gen       domain.Generator
	store     domain.KnowledgeStore
	fetcher   Fetcher
	chunkSize int
	logger    *slog.Logger
}

type BuilderConfig struct {
	Generator domain.Generator
	Store     domain.KnowledgeStore
	Fetcher   Fetcher
	ChunkSize int // characters per chunk (default: 1000)
	Logger    *slog.Logger
}

func NewBuilder(cfg BuilderConfig) *Builder {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.Fetcher == nil {
		cfg.Fetcher = NewHTTPFetcher()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Builder{
		gen:       cfg.Generator,
		store:     cfg.Store,
		fetcher:   cfg.Fetcher,
		chunkSize: cfg.ChunkSize,
		logger:    cfg.Logger,
	}
}

// Populate ingests every source URL and returns the number of chunks newly
// stored. A failing source is logged and skipped; the pipeline only errors
// when storage itself fails.
func (b *Builder) Populate(ctx context.Context, urls []string) (int, error) {
	total := 0
	for i, url := range urls {
		if i > 0 {
			// Be polite to the sources.
			select {
			case <-ctx.Done():
				return total, ctx.Err()
			case <-time.After(time.Second):
			}
		}

		stored, err := b.ingestSource(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return total, err
			}
			b.logger.Warn("source ingestion failed", "url", url, "error", err)
			continue
		}
		total += stored
	}

	if stats, err := b.store.KnowledgeStats(ctx); err == nil {
		metrics.KnowledgeChunks.Set(stats.ChunkCount)
	}
	return total, nil
}

func (b *Builder) ingestSource(ctx context.Context, url string) (int, error) {
	raw, err := b.fetcher.Fetch(ctx, url)
	if err != nil {
		return 0, err
	}

	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", url, err)
	}

	elements := ExtractElements(doc)
	chunks := BuildChunks(elements, url, b.chunkSize)
	if len(chunks) == 0 {
		b.logger.Warn("no content extracted", "url", url)
		return 0, nil
	}

	now := time.Now()
	for i := range chunks {
		vec, err := b.gen.Embed(ctx, chunks[i].Content, domain.EmbedDocument)
		if err != nil {
			return 0, fmt.Errorf("embed chunk %s: %w", chunks[i].ID, err)
		}
		chunks[i].Embedding = vec
		chunks[i].StoredAt = now
	}

	stored, err := b.store.AddChunks(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("store chunks for %s: %w", url, err)
	}

	b.logger.Info("source ingested",
		"url", url, "elements", len(elements), "chunks", len(chunks), "stored", stored)
	return stored, nil
}
