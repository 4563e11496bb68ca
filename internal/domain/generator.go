package domain

import "context"

// EmbeddingTask selects the embedding model's task hint.
type EmbeddingTask string

const (
	EmbedQuery    EmbeddingTask = "RETRIEVAL_QUERY"
	EmbedDocument EmbeddingTask = "RETRIEVAL_DOCUMENT"
)

// Generator is the generative-AI collaborator. Composition methods return an
// empty string (with nil error) when the model produced nothing usable; the
// engine treats that as "no action", never as fatal.
type Generator interface {
	// ClassifyIntent is the cheap first stage of the intent gate: a
	// low-temperature, token-capped call returning a single category.
	ClassifyIntent(ctx context.Context, text string) (Intent, error)

	// BuildSearchQuery distills a message into 3-5 keywords for retrieval.
	// On failure callers fall back to the raw message text.
	BuildSearchQuery(ctx context.Context, text string) (string, error)

	// Embed returns the embedding vector for text.
	Embed(ctx context.Context, text string, task EmbeddingTask) ([]float32, error)

	// ComposeReply answers a reply to the engine's own earlier message.
	ComposeReply(ctx context.Context, original, reply string, convCtx []InboundMessage, tech []ScoredChunk) (string, error)

	// ComposeResponse answers an arbitrary inbound message.
	ComposeResponse(ctx context.Context, trigger string, convCtx []InboundMessage, tech []ScoredChunk) (string, error)

	// ComposeProactive decides whether to join the conversation unprompted.
	// An empty result means the model passed.
	ComposeProactive(ctx context.Context, convCtx []InboundMessage) (string, error)

	// ComposeOpener writes a conversation-starting message without the
	// proactive decision stage.
	ComposeOpener(ctx context.Context, convCtx []InboundMessage) (string, error)
}
