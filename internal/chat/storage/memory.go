package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"carechat/infrastructure"
	"carechat/internal/chat"
)

// MemoryStorage is a process-local store with the same contract as
// PostgresStorage, including pair uniqueness. Values handed out are copies.
type MemoryStorage struct {
	mu            sync.RWMutex
	nextConvID    int64
	nextMsgID     int64
	conversations map[int64]*chat.Conversation
	byPair        map[chat.Pair]int64
	messages      map[int64]*chat.Message
	byConv        map[int64][]int64
	clock         func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		conversations: make(map[int64]*chat.Conversation),
		byPair:        make(map[chat.Pair]int64),
		messages:      make(map[int64]*chat.Message),
		byConv:        make(map[int64][]int64),
		clock:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the timestamp source. Used by tests.
func (s *MemoryStorage) WithClock(clock func() time.Time) *MemoryStorage {
	s.clock = clock
	return s
}

func copyConversation(c *chat.Conversation) *chat.Conversation {
	out := *c
	if c.LastMessageAt != nil {
		t := *c.LastMessageAt
		out.LastMessageAt = &t
	}
	return &out
}

func copyMessage(m *chat.Message) *chat.Message {
	out := *m
	if m.ReadAt != nil {
		t := *m.ReadAt
		out.ReadAt = &t
	}
	if m.RedactedAt != nil {
		t := *m.RedactedAt
		out.RedactedAt = &t
	}
	return &out
}

func (s *MemoryStorage) FindByPair(ctx context.Context, pair chat.Pair) (*chat.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPair[pair]
	if !ok {
		return nil, infrastructure.ErrConversationNotFound
	}
	return copyConversation(s.conversations[id]), nil
}

func (s *MemoryStorage) InsertCanonical(ctx context.Context, pair chat.Pair) (*chat.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byPair[pair]; ok {
		return nil, infrastructure.ErrPairConflict
	}
	s.nextConvID++
	c := &chat.Conversation{
		ID:        s.nextConvID,
		UserLow:   pair.Low,
		UserHigh:  pair.High,
		CreatedAt: s.clock(),
	}
	s.conversations[c.ID] = c
	s.byPair[pair] = c.ID
	return copyConversation(c), nil
}

func (s *MemoryStorage) FindByID(ctx context.Context, id int64) (*chat.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, infrastructure.ErrConversationNotFound
	}
	return copyConversation(c), nil
}

func (s *MemoryStorage) ListByUser(ctx context.Context, userID int64, limit int) ([]*chat.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var out []*chat.Conversation
	for _, c := range s.conversations {
		if c.HasParticipant(userID) {
			out = append(out, copyConversation(c))
		}
	}
	s.mu.RUnlock()

	activity := func(c *chat.Conversation) time.Time {
		if c.LastMessageAt != nil {
			return *c.LastMessageAt
		}
		return c.CreatedAt
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := activity(out[i]), activity(out[j])
		if ai.Equal(aj) {
			return out[i].ID > out[j].ID
		}
		return ai.After(aj)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStorage) Insert(ctx context.Context, msg chat.NewMessage) (*chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[msg.ConversationID]
	if !ok {
		return nil, infrastructure.ErrConversationNotFound
	}
	s.nextMsgID++
	m := &chat.Message{
		ID:             s.nextMsgID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		ReceiverID:     msg.ReceiverID,
		Body:           msg.Body,
		Type:           msg.Type,
		CreatedAt:      s.clock(),
	}
	s.messages[m.ID] = m
	s.byConv[m.ConversationID] = append(s.byConv[m.ConversationID], m.ID)
	if c.LastMessageAt == nil || c.LastMessageAt.Before(m.CreatedAt) {
		t := m.CreatedAt
		c.LastMessageAt = &t
	}
	return copyMessage(m), nil
}

func (s *MemoryStorage) FindMessage(ctx context.Context, id int64) (*chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, infrastructure.ErrMessageNotFound
	}
	return copyMessage(m), nil
}

func (s *MemoryStorage) ListByConversation(ctx context.Context, conversationID int64, limit int, before *chat.Cursor) ([]*chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var out []*chat.Message
	for _, id := range s.byConv[conversationID] {
		m := s.messages[id]
		if before == nil || before.Before(m) {
			out = append(out, copyMessage(m))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStorage) Redact(ctx context.Context, id int64, body string, at time.Time) (*chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, infrastructure.ErrMessageNotFound
	}
	if m.RedactedAt != nil {
		return nil, infrastructure.ErrMessageRedacted
	}
	m.Body = body
	m.Type = chat.MessageTypeSystem
	m.RedactedAt = &at
	return copyMessage(m), nil
}

func (s *MemoryStorage) MarkRead(ctx context.Context, conversationID, readerID int64, at time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range s.byConv[conversationID] {
		m := s.messages[id]
		if m.ReceiverID == readerID && !m.IsRead {
			m.IsRead = true
			readAt := at
			m.ReadAt = &readAt
			n++
		}
	}
	return n, nil
}

func (s *MemoryStorage) CountUnread(ctx context.Context, userID int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, m := range s.messages {
		if m.ReceiverID == userID && !m.IsRead {
			n++
		}
	}
	return n, nil
}
