package chat

import (
	"fmt"

	"carechat/infrastructure"
)

// Presence relays typing indicators. Nothing is stored or retried; the
// client owns the stop-typing timeout.
type Presence struct {
	broadcaster Broadcaster
}

func NewPresence(broadcaster Broadcaster) *Presence {
	return &Presence{broadcaster: broadcaster}
}

func (p *Presence) RelayTyping(origin Session, conversationID, userID int64) (int, error) {
	return p.relay(origin, EventDisplayTyping, conversationID, userID)
}

func (p *Presence) RelayStopTyping(origin Session, conversationID, userID int64) (int, error) {
	return p.relay(origin, EventRemoveTyping, conversationID, userID)
}

// relay sends to every other session in the conversation room. The
// originating session must have joined the room.
func (p *Presence) relay(origin Session, event string, conversationID, userID int64) (int, error) {
	if conversationID <= 0 || userID <= 0 {
		return 0, fmt.Errorf("%w: conversation and user ids are required", infrastructure.ErrInvalidInput)
	}
	room := ConversationRoom(conversationID)
	if !p.broadcaster.InRoom(room, origin.ID()) {
		return 0, fmt.Errorf("%w: join conversation %d before signalling presence", infrastructure.ErrAccessDenied, conversationID)
	}
	n := p.broadcaster.SendToRoom(room, event, TypingEvent{ConversationID: conversationID, UserID: userID}, origin.ID())
	return n, nil
}
