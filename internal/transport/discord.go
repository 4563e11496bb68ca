// Package transport implements the chat-platform adapters behind
// domain.Transport. Both adapters are poll-driven: the engine asks for the
// recent page instead of subscribing to a gateway, which keeps the client
// footprint indistinguishable from a user scrolling the channel.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"lurkbot/internal/config"
	"lurkbot/internal/domain"
)

const (
	discordMaxMsgLen  = 2000
	discordMaxRetries = 2
)

// Discord polls a single channel over the REST API.
type Discord struct {
	session   *discordgo.Session
	channelID string
	selfID    string
	logger    *slog.Logger
}

func NewDiscord(cfg config.DiscordConfig, logger *slog.Logger) (*Discord, error) {
	if cfg.Token == "" || cfg.ChannelID == "" {
		return nil, fmt.Errorf("discord token and channel id are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}

	return &Discord{
		session:   session,
		channelID: cfg.ChannelID,
		selfID:    cfg.UserID,
		logger:    logger,
	}, nil
}

// FetchRecent returns the most recent page of channel messages, newest
// first, as Discord delivers them.
func (d *Discord) FetchRecent(ctx context.Context, limit int) ([]domain.InboundMessage, error) {
	if limit > 100 {
		limit = 100
	}

	msgs, err := d.session.ChannelMessages(d.channelID, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("discord fetch messages: %w", err)
	}

	out := make([]domain.InboundMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, d.convert(m))
	}
	return out, nil
}

// Send posts content, optionally as a reply. Long content is split at
// newlines under the 2000-char platform limit; the reply reference goes on
// the first chunk and the returned id is the last chunk's, so replies to
// the tail of our output are detected.
func (d *Discord) Send(ctx context.Context, content, replyTo string) (string, error) {
	chunks := splitMessage(content, discordMaxMsgLen)

	var lastID string
	for i, chunk := range chunks {
		var msg *discordgo.Message
		var err error
		for attempt := 0; attempt <= discordMaxRetries; attempt++ {
			if attempt > 0 {
				backoff := time.Duration(attempt) * 2 * time.Second
				d.logger.Warn("discord send retry", "attempt", attempt+1, "backoff", backoff)
				select {
				case <-ctx.Done():
					return "", ctx.Err()
				case <-time.After(backoff):
				}
			}

			if i == 0 && replyTo != "" {
				msg, err = d.session.ChannelMessageSendReply(d.channelID, chunk, &discordgo.MessageReference{
					MessageID: replyTo,
					ChannelID: d.channelID,
				}, discordgo.WithContext(ctx))
			} else {
				msg, err = d.session.ChannelMessageSend(d.channelID, chunk, discordgo.WithContext(ctx))
			}
			if err == nil {
				break
			}
		}
		if err != nil {
			return "", fmt.Errorf("discord send (after %d retries): %w", discordMaxRetries, err)
		}
		lastID = msg.ID
	}

	return lastID, nil
}

// FindReplies scans the recent page for messages whose reply reference
// points at messageID.
func (d *Discord) FindReplies(ctx context.Context, messageID string, limit int) ([]domain.InboundMessage, error) {
	page, err := d.FetchRecent(ctx, limit)
	if err != nil {
		return nil, err
	}

	var out []domain.InboundMessage
	for _, m := range page {
		if m.ReplyToID == messageID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (d *Discord) Close() error {
	// REST-only session, nothing to disconnect.
	return nil
}

func (d *Discord) convert(m *discordgo.Message) domain.InboundMessage {
	out := domain.InboundMessage{
		ID:         m.ID,
		AuthorID:   m.Author.ID,
		AuthorName: m.Author.Username,
		Content:    m.Content,
		CreatedAt:  m.Timestamp,
	}
	if m.MessageReference != nil {
		out.ReplyToID = m.MessageReference.MessageID
	}
	for _, u := range m.Mentions {
		if u.ID == d.selfID {
			out.MentionsMe = true
			break
		}
	}
	return out
}

// splitMessage splits a message into chunks that fit within the max length,
// trying to split on newlines when possible.
func splitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}

		cut := maxLen
		if idx := strings.LastIndex(msg[:maxLen], "\n"); idx > maxLen/2 {
			cut = idx + 1
		}

		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}
