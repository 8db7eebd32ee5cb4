package chat

import (
	"context"
	"strconv"
	"time"
)

// Session is a live transport connection as seen by the chat core.
type Session interface {
	ID() string
	// UserID is the identity registered on the session, 0 until registration.
	UserID() int64
	Emit(event string, payload any) error
}

// Broadcaster fans events out to live sessions. Implementations are
// best-effort and return how many sessions accepted the event.
type Broadcaster interface {
	SendToUser(userID int64, event string, payload any) int
	SendToRoom(room string, event string, payload any, exceptSessionID string) int
	InRoom(room string, sessionID string) bool
}

// Cache is the key/value capability behind the pair cache and the tempId
// ledger. Get reports a missing key with cache.ErrMiss.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// ConversationRoom names the fan-out room of a conversation.
func ConversationRoom(conversationID int64) string {
	return "conversation:" + strconv.FormatInt(conversationID, 10)
}
