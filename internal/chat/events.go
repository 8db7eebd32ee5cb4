package chat

import "time"

// Inbound event names.
const (
	EventRegisterUser           = "registerUser"
	EventJoinConversation       = "joinConversation"
	EventLeaveConversation      = "leaveConversation"
	EventGetConversationHistory = "getConversationHistory"
	EventSendMessage            = "sendMessage"
	EventTyping                 = "typing"
	EventStopTyping             = "stopTyping"
	EventMarkAsRead             = "markAsRead"
	EventGetUnreadCount         = "getUnreadCount"
	EventDeleteMessage          = "deleteMessage"
)

// Outbound event names.
const (
	EventRegistered              = "registered"
	EventConversationJoined      = "conversationJoined"
	EventConversationLeft        = "conversationLeft"
	EventConversationHistory     = "conversationHistory"
	EventReceiveMessage          = "receiveMessage"
	EventMessageSentConfirmation = "messageSentConfirmation"
	EventDisplayTyping           = "displayTyping"
	EventRemoveTyping            = "removeTyping"
	EventMessagesRead            = "messagesRead"
	EventUnreadCount             = "unreadCount"
	EventMessageDeleted          = "messageDeleted"
	EventError                   = "error"
)

type RegisterUserRequest struct {
	UserID int64 `json:"userId" binding:"required,gt=0"`
}

type JoinConversationRequest struct {
	SenderID   int64 `json:"senderId" binding:"required,gt=0"`
	ReceiverID int64 `json:"receiverId" binding:"required,gt=0,nefield=SenderID"`
}

type LeaveConversationRequest struct {
	ConversationID int64 `json:"conversationId" binding:"required,gt=0"`
}

type HistoryRequest struct {
	ConversationID int64  `json:"conversationId" binding:"required,gt=0"`
	UserID         int64  `json:"userId" binding:"required,gt=0"`
	Limit          int    `json:"limit" binding:"gte=0"`
	Before         string `json:"before"`
}

type SendMessageRequest struct {
	SenderID   int64  `json:"sender_id" binding:"required,gt=0"`
	ReceiverID int64  `json:"receiver_id" binding:"required,gt=0"`
	Message    string `json:"message" binding:"required"`
	TempID     string `json:"tempId" binding:"max=128"`
}

type TypingRequest struct {
	ConversationID int64 `json:"conversationId" binding:"required,gt=0"`
	UserID         int64 `json:"userId" binding:"required,gt=0"`
}

type MarkReadRequest struct {
	ConversationID int64 `json:"conversationId" binding:"required,gt=0"`
	UserID         int64 `json:"userId" binding:"required,gt=0"`
}

type UnreadCountRequest struct {
	UserID int64 `json:"userId" binding:"required,gt=0"`
}

type DeleteMessageRequest struct {
	MessageID int64 `json:"messageId" binding:"required,gt=0"`
	UserID    int64 `json:"userId" binding:"required,gt=0"`
}

type RegisteredEvent struct {
	UserID    int64  `json:"userId"`
	SessionID string `json:"sessionId"`
}

type ConversationJoinedEvent struct {
	ConversationID int64 `json:"conversationId"`
	SenderID       int64 `json:"senderId"`
	ReceiverID     int64 `json:"receiverId"`
}

type ConversationLeftEvent struct {
	ConversationID int64 `json:"conversationId"`
}

type ConversationHistoryEvent struct {
	ConversationID int64      `json:"conversationId"`
	Messages       []*Message `json:"messages"`
	NextCursor     string     `json:"nextCursor,omitempty"`
	HasMore        bool       `json:"hasMore"`
}

// MessageEvent carries a persisted message plus the sender's tempId.
type MessageEvent struct {
	*Message
	TempID string `json:"tempId,omitempty"`
}

type TypingEvent struct {
	ConversationID int64 `json:"conversationId"`
	UserID         int64 `json:"userId"`
}

type ReadReceiptEvent struct {
	ConversationID int64     `json:"conversationId"`
	ReaderID       int64     `json:"readerId"`
	Count          int64     `json:"count"`
	ReadAt         time.Time `json:"readAt"`
}

type UnreadCountEvent struct {
	UserID int64 `json:"userId"`
	Count  int64 `json:"count"`
}

type ErrorEvent struct {
	Event   string `json:"event"`
	Code    string `json:"code"`
	Message string `json:"message"`
	TempID  string `json:"tempId,omitempty"`
}
