package chat

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"carechat/infrastructure"
	"carechat/internal/cache"
)

// Router persists new messages and then fans them out. A message is never
// broadcast before it is durable.
type Router struct {
	resolver    *Resolver
	store       *MessageStore
	reads       *ReadState
	broadcaster Broadcaster
	ledger      Cache
	limits      Limits
	logger      *zap.Logger
}

// NewRouter builds a Router. ledger may be nil, which disables tempId
// deduplication of resubmitted messages.
func NewRouter(
	resolver *Resolver,
	store *MessageStore,
	reads *ReadState,
	broadcaster Broadcaster,
	ledger Cache,
	limits Limits,
	logger *zap.Logger,
) *Router {
	return &Router{
		resolver:    resolver,
		store:       store,
		reads:       reads,
		broadcaster: broadcaster,
		ledger:      ledger,
		limits:      limits,
		logger:      logger.Named("router"),
	}
}

func validateSend(req *SendMessageRequest) (string, error) {
	if req.SenderID <= 0 || req.ReceiverID <= 0 {
		return "", fmt.Errorf("%w: sender_id and receiver_id are required", infrastructure.ErrInvalidInput)
	}
	if req.SenderID == req.ReceiverID {
		return "", fmt.Errorf("%w: cannot message yourself", infrastructure.ErrInvalidInput)
	}
	if len(req.TempID) > 128 {
		return "", fmt.Errorf("%w: tempId is too long", infrastructure.ErrInvalidInput)
	}
	return NormalizeBody(req.Message)
}

// SendMessage validates, resolves the conversation, persists, pushes
// receiveMessage to every live session of the receiver and confirms to the
// originating session only. origin may be nil for callers without a live
// session.
func (r *Router) SendMessage(ctx context.Context, origin Session, req SendMessageRequest) (*Message, error) {
	body, err := validateSend(&req)
	if err != nil {
		return nil, err
	}

	if msg, ok := r.replayed(ctx, &req, body); ok {
		r.confirm(origin, msg, req.TempID)
		return msg, nil
	}

	conversationID, err := r.resolver.Resolve(ctx, req.SenderID, req.ReceiverID)
	if err != nil {
		return nil, err
	}
	msg, err := r.store.Append(ctx, conversationID, req.SenderID, req.ReceiverID, body, MessageTypeText)
	if err != nil {
		return nil, err
	}
	r.record(ctx, &req, msg.ID)

	delivered := r.broadcaster.SendToUser(req.ReceiverID, EventReceiveMessage, MessageEvent{Message: msg, TempID: req.TempID})
	r.confirm(origin, msg, req.TempID)

	r.logger.Debug("message delivered",
		zap.Int64("message_id", msg.ID),
		zap.Int64("conversation_id", conversationID),
		zap.Int("receiver_sessions", delivered),
	)
	return msg, nil
}

func (r *Router) confirm(origin Session, msg *Message, tempID string) {
	if origin == nil {
		return
	}
	if err := origin.Emit(EventMessageSentConfirmation, MessageEvent{Message: msg, TempID: tempID}); err != nil {
		// The message is committed; the sender sees it on its next history fetch.
		r.logger.Debug("confirmation not delivered", zap.String("session", origin.ID()), zap.Error(err))
	}
}

func ledgerKey(senderID int64, tempID string) string {
	return "chat:temp:" + strconv.FormatInt(senderID, 10) + ":" + tempID
}

// replayed returns the message already persisted for this sender and tempId.
// A ledger entry only counts when receiver and body match too, so a tempId
// reused for a different message is sent normally.
func (r *Router) replayed(ctx context.Context, req *SendMessageRequest, body string) (*Message, bool) {
	if r.ledger == nil || req.TempID == "" {
		return nil, false
	}
	v, err := r.ledger.Get(ctx, ledgerKey(req.SenderID, req.TempID))
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			r.logger.Warn("tempId ledger read failed", zap.Error(err))
		}
		return nil, false
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, false
	}
	msg, err := r.store.messages.FindMessage(ctx, id)
	if err != nil || msg.SenderID != req.SenderID || msg.ReceiverID != req.ReceiverID || msg.Body != body {
		return nil, false
	}
	r.logger.Debug("resubmitted tempId matched persisted message", zap.Int64("message_id", id))
	return msg, true
}

func (r *Router) record(ctx context.Context, req *SendMessageRequest, messageID int64) {
	if r.ledger == nil || req.TempID == "" {
		return
	}
	if err := r.ledger.Set(ctx, ledgerKey(req.SenderID, req.TempID), messageID, r.limits.TempIDTTL); err != nil {
		r.logger.Warn("tempId ledger write failed", zap.Error(err))
	}
}

// MarkRead marks the reader's incoming messages read, sends a receipt to the
// counterpart when anything changed and refreshes the reader's badge.
func (r *Router) MarkRead(ctx context.Context, conversationID, readerID int64) (int64, error) {
	c, err := r.store.authorize(ctx, conversationID, readerID)
	if err != nil {
		return 0, err
	}
	n, readAt, err := r.reads.MarkRead(ctx, conversationID, readerID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.broadcaster.SendToUser(c.Counterpart(readerID), EventMessagesRead, ReadReceiptEvent{
			ConversationID: conversationID,
			ReaderID:       readerID,
			Count:          n,
			ReadAt:         readAt,
		})
	}
	unread, err := r.reads.UnreadCount(ctx, readerID)
	if err != nil {
		r.logger.Warn("unread count refresh failed", zap.Int64("user_id", readerID), zap.Error(err))
		return n, nil
	}
	r.broadcaster.SendToUser(readerID, EventUnreadCount, UnreadCountEvent{UserID: readerID, Count: unread})
	return n, nil
}

// DeleteMessage redacts a message and notifies both participants.
func (r *Router) DeleteMessage(ctx context.Context, messageID, callerID int64) (*Message, error) {
	msg, err := r.store.Redact(ctx, messageID, callerID)
	if err != nil {
		return nil, err
	}
	event := MessageEvent{Message: msg}
	r.broadcaster.SendToUser(msg.SenderID, EventMessageDeleted, event)
	r.broadcaster.SendToUser(msg.ReceiverID, EventMessageDeleted, event)
	return msg, nil
}
