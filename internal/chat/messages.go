package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"carechat/infrastructure"
)

// MaxBodyLength bounds a message body in characters.
const MaxBodyLength = 5000

type Limits struct {
	PageSize    int
	MaxPageSize int
	TempIDTTL   time.Duration
}

func (l Limits) clamp(limit int) int {
	if limit <= 0 {
		limit = l.PageSize
	}
	if limit > l.MaxPageSize {
		limit = l.MaxPageSize
	}
	if limit <= 0 {
		limit = 1
	}
	return limit
}

// MessageStore appends messages and serves participant-only history.
type MessageStore struct {
	conversations ConversationRepository
	messages      MessageRepository
	limits        Limits
	now           func() time.Time
}

func NewMessageStore(conversations ConversationRepository, messages MessageRepository, limits Limits) *MessageStore {
	return &MessageStore{
		conversations: conversations,
		messages:      messages,
		limits:        limits,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// NormalizeBody trims body and checks it is non-empty and within bounds.
func NormalizeBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", fmt.Errorf("%w: message body is empty", infrastructure.ErrInvalidInput)
	}
	if utf8.RuneCountInString(body) > MaxBodyLength {
		return "", fmt.Errorf("%w: message body exceeds %d characters", infrastructure.ErrInvalidInput, MaxBodyLength)
	}
	return body, nil
}

// Append persists a new message. Prior rows are never touched.
func (s *MessageStore) Append(ctx context.Context, conversationID, senderID, receiverID int64, body string, typ MessageType) (*Message, error) {
	if conversationID <= 0 || senderID <= 0 || receiverID <= 0 {
		return nil, fmt.Errorf("%w: conversation, sender and receiver ids are required", infrastructure.ErrInvalidInput)
	}
	if typ == "" {
		typ = MessageTypeText
	}
	if typ != MessageTypeText && typ != MessageTypeSystem {
		return nil, fmt.Errorf("%w: unknown message type %q", infrastructure.ErrInvalidInput, typ)
	}
	body, err := NormalizeBody(body)
	if err != nil {
		return nil, err
	}
	return s.messages.Insert(ctx, NewMessage{
		ConversationID: conversationID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Body:           body,
		Type:           typ,
	})
}

// Page returns up to limit messages before the cursor in ascending order.
// Only the conversation's two participants may read it.
func (s *MessageStore) Page(ctx context.Context, conversationID, callerID int64, limit int, before *Cursor) (*Page, error) {
	if _, err := s.authorize(ctx, conversationID, callerID); err != nil {
		return nil, err
	}

	limit = s.limits.clamp(limit)
	rows, err := s.messages.ListByConversation(ctx, conversationID, limit+1, before)
	if err != nil {
		return nil, err
	}

	page := &Page{Messages: []*Message{}}
	if len(rows) > limit {
		rows = rows[:limit]
		page.HasMore = true
	}
	// rows are newest first
	for i := len(rows) - 1; i >= 0; i-- {
		page.Messages = append(page.Messages, rows[i])
	}
	if page.HasMore {
		page.NextCursor = CursorOf(page.Messages[0]).String()
	}
	return page, nil
}

// Redact soft-deletes a message on behalf of its original sender.
func (s *MessageStore) Redact(ctx context.Context, messageID, callerID int64) (*Message, error) {
	if messageID <= 0 || callerID <= 0 {
		return nil, fmt.Errorf("%w: message and user ids are required", infrastructure.ErrInvalidInput)
	}
	m, err := s.messages.FindMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if m.SenderID != callerID {
		return nil, fmt.Errorf("%w: only the sender may delete message %d", infrastructure.ErrAccessDenied, messageID)
	}
	if m.Redacted() {
		return nil, infrastructure.ErrMessageRedacted
	}
	return s.messages.Redact(ctx, messageID, RedactedBody, s.now())
}

// authorize loads the conversation and checks callerID takes part in it.
// A missing conversation is reported the same way as a foreign one.
func (s *MessageStore) authorize(ctx context.Context, conversationID, callerID int64) (*Conversation, error) {
	if conversationID <= 0 || callerID <= 0 {
		return nil, fmt.Errorf("%w: conversation and user ids are required", infrastructure.ErrInvalidInput)
	}
	c, err := s.conversations.FindByID(ctx, conversationID)
	if errors.Is(err, infrastructure.ErrConversationNotFound) || (err == nil && !c.HasParticipant(callerID)) {
		return nil, fmt.Errorf("%w: user %d is not a participant of conversation %d",
			infrastructure.ErrAccessDenied, callerID, conversationID)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}
