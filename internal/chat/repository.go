package chat

import (
	"context"
	"time"
)

// ConversationRepository persists two-party conversations keyed by their
// canonical pair. Implementations must enforce uniqueness of the pair and
// report a duplicate insert as infrastructure.ErrPairConflict.
type ConversationRepository interface {
	FindByPair(ctx context.Context, pair Pair) (*Conversation, error)
	InsertCanonical(ctx context.Context, pair Pair) (*Conversation, error)
	FindByID(ctx context.Context, id int64) (*Conversation, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]*Conversation, error)
}

// NewMessage is the write model for MessageRepository.Insert.
type NewMessage struct {
	ConversationID int64
	SenderID       int64
	ReceiverID     int64
	Body           string
	Type           MessageType
}

type MessageRepository interface {
	// Message operations
	Insert(ctx context.Context, msg NewMessage) (*Message, error)
	FindMessage(ctx context.Context, id int64) (*Message, error)
	// ListByConversation returns up to limit messages strictly before the
	// cursor (or the newest when nil), newest first.
	ListByConversation(ctx context.Context, conversationID int64, limit int, before *Cursor) ([]*Message, error)
	Redact(ctx context.Context, id int64, body string, at time.Time) (*Message, error)

	// Read state operations
	MarkRead(ctx context.Context, conversationID, readerID int64, at time.Time) (int64, error)
	CountUnread(ctx context.Context, userID int64) (int64, error)
}
