package domain

import "context"

// Transport is the chat-platform adapter the engine polls and sends through.
// Implementations live in internal/transport.
type Transport interface {
	// FetchRecent returns the most recent page of channel messages, newest
	// first. limit is capped by the platform page size.
	FetchRecent(ctx context.Context, limit int) ([]InboundMessage, error)

	// Send posts content to the channel, optionally as a reply to replyTo
	// (empty = plain message). Returns the platform id of the sent message.
	Send(ctx context.Context, content, replyTo string) (string, error)

	// FindReplies returns messages in the recent window whose reply
	// reference equals messageID.
	FindReplies(ctx context.Context, messageID string, limit int) ([]InboundMessage, error)

	Close() error
}
