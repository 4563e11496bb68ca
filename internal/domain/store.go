package domain

import (
	"context"
	"time"
)

// ArchiveStats summarizes the message archive.
type ArchiveStats struct {
	TotalMessages int64
	UniqueAuthors int64
}

// MessageStore is the archive side of persistent storage.
type MessageStore interface {
	// SaveMessage persists a message. Saving an id that already exists is a
	// no-op, not an error.
	SaveMessage(ctx context.Context, msg InboundMessage) error

	// RecentMessages returns the newest limit messages in chronological
	// order, as a read-only snapshot for building conversation context.
	RecentMessages(ctx context.Context, limit int) ([]InboundMessage, error)

	Stats(ctx context.Context) (ArchiveStats, error)

	// PruneOlderThan deletes archived messages created before cutoff and
	// returns the deleted count. Never touches knowledge chunks.
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	Close() error
}
