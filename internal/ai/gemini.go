// Package ai implements the generative collaborator on top of Google's
// Gemini API: intent classification, search-query distillation, embeddings,
// and the chain-of-thought chat compositions.
package ai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"

	"lurkbot/internal/config"
	"lurkbot/internal/domain"
	"lurkbot/internal/metrics"
)

const geminiMaxRetries = 2

// Gemini implements domain.Generator.
type Gemini struct {
	client     *genai.Client
	model      string
	embedModel string
	persona    *Persona
	logger     *slog.Logger
}

// NewGemini creates the Gemini collaborator. persona may be nil, in which
// case the built-in default voice is used.
func NewGemini(ctx context.Context, cfg config.GeminiConfig, persona *Persona, logger *slog.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if persona == nil {
		persona = DefaultPersona()
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &Gemini{
		client:     client,
		model:      cfg.Model,
		embedModel: cfg.EmbeddingModel,
		persona:    persona,
		logger:     logger,
	}, nil
}

// generate runs one text generation with retry and squared backoff.
func (g *Gemini) generate(ctx context.Context, prompt string, genCfg *genai.GenerateContentConfig) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= geminiMaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * time.Second
			g.logger.Warn("retrying gemini request", "attempt", attempt+1, "backoff", backoff)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		start := time.Now()
		metrics.GenRequests.Inc()
		resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), genCfg)
		metrics.GenLatency.Observe(time.Since(start).Seconds())
		if err != nil {
			lastErr = err
			g.logger.Warn("gemini request failed", "err", err)
			continue
		}
		return resp.Text(), nil
	}
	return "", fmt.Errorf("gemini request (after %d retries): %w", geminiMaxRetries, lastErr)
}

// ClassifyIntent runs the cheap first-stage classification: deterministic,
// output capped to a few tokens.
func (g *Gemini) ClassifyIntent(ctx context.Context, text string) (domain.Intent, error) {
	out, err := g.generate(ctx, classifyPrompt(text), &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0),
		MaxOutputTokens: 10,
		CandidateCount:  1,
	})
	if err != nil {
		return domain.IntentUnknown, err
	}
	return domain.ParseIntent(cleanClassification(out)), nil
}

// BuildSearchQuery distills a message into a few retrieval keywords.
func (g *Gemini) BuildSearchQuery(ctx context.Context, text string) (string, error) {
	out, err := g.generate(ctx, searchQueryPrompt(text), nil)
	if err != nil {
		return "", err
	}
	return lastNonEmptyLine(out), nil
}

// Embed returns the embedding vector for text under the given task hint.
func (g *Gemini) Embed(ctx context.Context, text string, task domain.EmbeddingTask) ([]float32, error) {
	taskType := "RETRIEVAL_QUERY"
	if task == domain.EmbedDocument {
		taskType = "RETRIEVAL_DOCUMENT"
	}

	metrics.EmbedRequests.Inc()
	result, err := g.client.Models.EmbedContent(ctx,
		g.embedModel,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.EmbedContentConfig{TaskType: taskType},
	)
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("gemini embed: no embeddings returned")
	}
	return result.Embeddings[0].Values, nil
}

func (g *Gemini) ComposeReply(ctx context.Context, original, reply string, convCtx []domain.InboundMessage, tech []domain.ScoredChunk) (string, error) {
	out, err := g.generate(ctx, replyPrompt(g.persona, original, reply, convCtx, tech), nil)
	if err != nil {
		return "", err
	}
	return ExtractResponse(out), nil
}

func (g *Gemini) ComposeResponse(ctx context.Context, trigger string, convCtx []domain.InboundMessage, tech []domain.ScoredChunk) (string, error) {
	out, err := g.generate(ctx, responsePrompt(g.persona, trigger, convCtx, tech), nil)
	if err != nil {
		return "", err
	}
	return ExtractResponse(out), nil
}

// ComposeProactive evaluates whether to join the conversation. An empty
// return with nil error means the model passed.
func (g *Gemini) ComposeProactive(ctx context.Context, convCtx []domain.InboundMessage) (string, error) {
	out, err := g.generate(ctx, proactivePrompt(g.persona, convCtx), nil)
	if err != nil {
		return "", err
	}
	msg, joined := ParseProactive(out)
	if !joined {
		g.logger.Debug("proactive evaluation decided to pass")
		return "", nil
	}
	return msg, nil
}

func (g *Gemini) ComposeOpener(ctx context.Context, convCtx []domain.InboundMessage) (string, error) {
	out, err := g.generate(ctx, openerPrompt(g.persona, convCtx), nil)
	if err != nil {
		return "", err
	}
	return ExtractResponse(out), nil
}

// Close releases the underlying client. The genai client holds no
// resources that need explicit release.
func (g *Gemini) Close() error {
	return nil
}
