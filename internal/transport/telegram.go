package transport

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"lurkbot/internal/config"
	"lurkbot/internal/domain"
)

const (
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 3
	telegramRingSize       = 500
)

// Telegram adapts the bot API to the poll-based transport contract. Bots
// cannot fetch channel history, so the adapter consumes getUpdates in the
// background and keeps a bounded ring of observed messages; FetchRecent and
// FindReplies read from that ring.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *slog.Logger

	mu   sync.Mutex
	ring []domain.InboundMessage
}

func NewTelegram(cfg config.TelegramConfig, logger *slog.Logger) (*Telegram, error) {
	if cfg.Token == "" || cfg.ChatID == "" {
		return nil, fmt.Errorf("telegram token and chat id are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	chatID, err := strconv.ParseInt(cfg.ChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat id %q: %w", cfg.ChatID, err)
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}

	t := &Telegram{bot: bot, chatID: chatID, logger: logger}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)
	go t.consume(updates)

	logger.Info("telegram bot connected", "username", bot.Self.UserName, "id", bot.Self.ID)
	return t, nil
}

// consume drains getUpdates into the ring until the channel closes.
func (t *Telegram) consume(updates tgbotapi.UpdatesChannel) {
	for update := range updates {
		m := update.Message
		if m == nil || m.From == nil || m.Chat == nil || m.Chat.ID != t.chatID {
			continue
		}
		text := strings.TrimSpace(m.Text)
		if text == "" {
			continue
		}

		msg := domain.InboundMessage{
			ID:         strconv.Itoa(m.MessageID),
			AuthorID:   strconv.FormatInt(m.From.ID, 10),
			AuthorName: m.From.UserName,
			Content:    text,
			CreatedAt:  time.Unix(int64(m.Date), 0),
			MentionsMe: strings.Contains(text, "@"+t.bot.Self.UserName),
		}
		if m.ReplyToMessage != nil {
			msg.ReplyToID = strconv.Itoa(m.ReplyToMessage.MessageID)
		}

		t.mu.Lock()
		t.ring = append(t.ring, msg)
		if len(t.ring) > telegramRingSize {
			t.ring = t.ring[len(t.ring)-telegramRingSize:]
		}
		t.mu.Unlock()
	}
}

// FetchRecent returns the newest observed messages, newest first.
func (t *Telegram) FetchRecent(ctx context.Context, limit int) ([]domain.InboundMessage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.ring)
	if limit > n {
		limit = n
	}
	out := make([]domain.InboundMessage, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, t.ring[i])
	}
	return out, nil
}

// Send posts content to the chat, chunked under the platform limit, with
// retry and rate-limit backoff. Returns the id of the last sent chunk.
func (t *Telegram) Send(ctx context.Context, content, replyTo string) (string, error) {
	replyID := 0
	if replyTo != "" {
		if id, err := strconv.Atoi(replyTo); err == nil {
			replyID = id
		}
	}

	var lastID string
	text := content
	first := true
	for len(text) > 0 {
		chunk := text
		if len(chunk) > telegramMaxMsgLen {
			cutAt := strings.LastIndex(chunk[:telegramMaxMsgLen], "\n")
			if cutAt < telegramMaxMsgLen/2 {
				cutAt = telegramMaxMsgLen
			}
			chunk = text[:cutAt]
			text = text[cutAt:]
		} else {
			text = ""
		}

		id, err := t.sendChunk(ctx, chunk, replyID, first)
		if err != nil {
			return "", err
		}
		lastID = id
		first = false
	}
	return lastID, nil
}

// sendChunk sends one chunk with retry. The reply reference goes on the
// first chunk only.
func (t *Telegram) sendChunk(ctx context.Context, text string, replyID int, withReply bool) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= telegramMaxSendRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * time.Second
			if lastErr != nil && (strings.Contains(lastErr.Error(), "Too Many Requests") || strings.Contains(lastErr.Error(), "429")) {
				backoff = time.Duration(attempt) * 3 * time.Second
			}
			t.logger.Warn("telegram send retry", "attempt", attempt+1, "backoff", backoff)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		msg := tgbotapi.NewMessage(t.chatID, text)
		if withReply && replyID != 0 {
			msg.ReplyToMessageID = replyID
		}

		sent, err := t.bot.Send(msg)
		if err == nil {
			return strconv.Itoa(sent.MessageID), nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("telegram send (after %d retries): %w", telegramMaxSendRetries, lastErr)
}

// FindReplies scans the observed ring for replies to messageID.
func (t *Telegram) FindReplies(ctx context.Context, messageID string, limit int) ([]domain.InboundMessage, error) {
	page, err := t.FetchRecent(ctx, limit)
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

func (t *Telegram) Close() error {
	t.bot.StopReceivingUpdates()
	return nil
}
