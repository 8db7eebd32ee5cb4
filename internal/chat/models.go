package chat

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"carechat/infrastructure"
)

type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeSystem MessageType = "system"
)

// RedactedBody replaces the body of a deleted message.
const RedactedBody = "This message was deleted"

// Pair is the canonical form of a two-party conversation key: Low < High.
type Pair struct {
	Low  int64
	High int64
}

func NewPair(a, b int64) (Pair, error) {
	if a <= 0 || b <= 0 {
		return Pair{}, fmt.Errorf("%w: participant ids must be positive", infrastructure.ErrInvalidInput)
	}
	if a == b {
		return Pair{}, fmt.Errorf("%w: cannot start a conversation with yourself", infrastructure.ErrInvalidInput)
	}
	if a > b {
		a, b = b, a
	}
	return Pair{Low: a, High: b}, nil
}

func (p Pair) String() string {
	return strconv.FormatInt(p.Low, 10) + ":" + strconv.FormatInt(p.High, 10)
}

type Conversation struct {
	ID            int64      `json:"id" db:"id"`
	UserLow       int64      `json:"user_low" db:"user_low"`
	UserHigh      int64      `json:"user_high" db:"user_high"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty" db:"last_message_at"`
}

func (c *Conversation) Pair() Pair {
	return Pair{Low: c.UserLow, High: c.UserHigh}
}

func (c *Conversation) HasParticipant(userID int64) bool {
	return userID == c.UserLow || userID == c.UserHigh
}

// Counterpart returns the other participant, or 0 if userID is not one.
func (c *Conversation) Counterpart(userID int64) int64 {
	switch userID {
	case c.UserLow:
		return c.UserHigh
	case c.UserHigh:
		return c.UserLow
	}
	return 0
}

type Message struct {
	ID             int64       `json:"id" db:"id"`
	ConversationID int64       `json:"conversation_id" db:"conversation_id"`
	SenderID       int64       `json:"sender_id" db:"sender_id"`
	ReceiverID     int64       `json:"receiver_id" db:"receiver_id"`
	Body           string      `json:"message" db:"body"`
	Type           MessageType `json:"type" db:"type"`
	IsRead         bool        `json:"is_read" db:"is_read"`
	ReadAt         *time.Time  `json:"read_at,omitempty" db:"read_at"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	RedactedAt     *time.Time  `json:"redacted_at,omitempty" db:"redacted_at"`
}

func (m *Message) Redacted() bool {
	return m.RedactedAt != nil
}

// Cursor marks a position in a conversation's (created_at, id) order.
// Pages are fetched strictly before it.
type Cursor struct {
	CreatedAt time.Time
	ID        int64
}

func CursorOf(m *Message) *Cursor {
	return &Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
}

func (c *Cursor) String() string {
	raw := c.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + strconv.FormatInt(c.ID, 10)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseCursor decodes a cursor. An empty string yields nil (newest page).
func ParseCursor(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed cursor", infrastructure.ErrInvalidInput)
	}
	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok {
		return nil, fmt.Errorf("%w: malformed cursor", infrastructure.ErrInvalidInput)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed cursor time", infrastructure.ErrInvalidInput)
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed cursor id", infrastructure.ErrInvalidInput)
	}
	return &Cursor{CreatedAt: createdAt, ID: n}, nil
}

// Before reports whether m sorts strictly before the cursor position.
func (c *Cursor) Before(m *Message) bool {
	if m.CreatedAt.Equal(c.CreatedAt) {
		return m.ID < c.ID
	}
	return m.CreatedAt.Before(c.CreatedAt)
}

// Page is one slice of history in ascending order.
type Page struct {
	Messages   []*Message `json:"messages"`
	NextCursor string     `json:"nextCursor,omitempty"`
	HasMore    bool       `json:"hasMore"`
}
