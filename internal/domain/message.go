package domain

import "time"

// InboundMessage is a message fetched from the chat platform. It is immutable
// once fetched; identity is the platform-assigned ID.
type InboundMessage struct {
	ID         string
	AuthorID   string
	AuthorName string
	Content    string
	CreatedAt  time.Time
	ReplyToID  string // empty when the message is not a reply
	MentionsMe bool   // set by the transport when the message addresses us
}

// ProcessedMarker records the engine's own last outbound message, used to
// detect replies to it. Exactly one live marker exists at a time; it is
// overwritten on every successful send, never merged.
type ProcessedMarker struct {
	MessageID string
	Content   string
	SentAt    time.Time
}

// Intent is the coarse classification of an inbound message's conversational
// purpose. Derived per message, never stored.
type Intent string

const (
	IntentQuestion    Intent = "question"
	IntentSocialReply Intent = "social_reply"
	IntentStatement   Intent = "statement"
	IntentUnknown     Intent = "unknown"
)

// ParseIntent maps raw classifier output to an Intent. Anything the
// classifier did not label cleanly is treated as unknown, which downstream
// code handles conservatively (as a possible question).
func ParseIntent(s string) Intent {
	switch Intent(s) {
	case IntentQuestion, IntentSocialReply, IntentStatement:
		return Intent(s)
	default:
		return IntentUnknown
	}
}
