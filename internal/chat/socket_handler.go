package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc/codes"

	"carechat/infrastructure"
	"carechat/internal/realtime"
	"carechat/pkg/jwt"
)

// writeTimeout bounds store writes started by a socket event. Writes are
// detached from the session so a disconnect never aborts a commit.
const writeTimeout = 10 * time.Second

type SocketHandler struct {
	resolver *Resolver
	store    *MessageStore
	reads    *ReadState
	presence *Presence
	router   *Router
	registry *realtime.Registry
	tokens   *jwt.JWT

	opts            realtime.Options
	upgrader        websocket.Upgrader
	eventsPerSecond float64
	logger          *zap.Logger
}

type SocketOptions struct {
	Session         realtime.Options
	EventsPerSecond float64
	AllowedOrigins  []string
}

// NewSocketHandler builds the websocket endpoint. tokens may be nil, in which
// case identities in event payloads are trusted as given.
func NewSocketHandler(
	resolver *Resolver,
	store *MessageStore,
	reads *ReadState,
	presence *Presence,
	router *Router,
	registry *realtime.Registry,
	tokens *jwt.JWT,
	opts SocketOptions,
	logger *zap.Logger,
) *SocketHandler {
	return &SocketHandler{
		resolver:        resolver,
		store:           store,
		reads:           reads,
		presence:        presence,
		router:          router,
		registry:        registry,
		tokens:          tokens,
		opts:            opts.Session,
		eventsPerSecond: opts.EventsPerSecond,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
		logger: logger.Named("socket"),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// ServeWS upgrades the request and serves the session until it disconnects.
func (h *SocketHandler) ServeWS(c *gin.Context) {
	var pinned int64
	if h.tokens != nil {
		claims, err := h.tokens.ValidateToken(c.Query("token"))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": infrastructure.ErrUnauthorized.Error()})
			return
		}
		pinned = claims.UserID
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("upgrade failed", zap.Error(err))
		return
	}

	session := realtime.NewSession(conn, h.opts, h.logger)
	h.registry.Attach(session)
	session.Start()

	ctx, cancel := context.WithCancel(context.Background())
	cl := &socketClient{
		h:       h,
		session: session,
		pinned:  pinned,
		limiter: newEventLimiter(h.eventsPerSecond),
		ctx:     ctx,
		logger:  h.logger.With(zap.String("session", session.ID())),
	}
	if pinned != 0 {
		cl.register(pinned)
	}

	err = session.ReadLoop(cl.handleFrame)
	cl.logger.Debug("session ended", zap.Int64("user_id", session.UserID()), zap.Error(err))

	h.registry.Unregister(session)
	cancel()
	session.Close(websocket.CloseNormalClosure, "")
	cl.wg.Wait()
}

// newEventLimiter allows bursts of twice the steady rate. A non-positive
// rate disables limiting.
func newEventLimiter(eventsPerSecond float64) *rate.Limiter {
	if eventsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	b := int(eventsPerSecond * 2)
	if b < 1 {
		b = 1
	}
	return rate.NewLimiter(rate.Limit(eventsPerSecond), b)
}

// socketClient holds the per-connection state of ServeWS.
type socketClient struct {
	h       *SocketHandler
	session *realtime.Session
	pinned  int64
	limiter *rate.Limiter
	ctx     context.Context
	wg      sync.WaitGroup
	logger  *zap.Logger
}

type eventHandler func(cl *socketClient, data json.RawMessage) error

var socketEvents = map[string]eventHandler{
	EventJoinConversation:       (*socketClient).joinConversation,
	EventLeaveConversation:      (*socketClient).leaveConversation,
	EventGetConversationHistory: (*socketClient).history,
	EventSendMessage:            (*socketClient).sendMessage,
	EventTyping:                 (*socketClient).typing,
	EventStopTyping:             (*socketClient).stopTyping,
	EventMarkAsRead:             (*socketClient).markAsRead,
	EventGetUnreadCount:         (*socketClient).unreadCount,
	EventDeleteMessage:          (*socketClient).deleteMessage,
}

func (cl *socketClient) handleFrame(frame []byte) {
	var in realtime.Inbound
	if err := json.Unmarshal(frame, &in); err != nil || in.Event == "" {
		cl.fail("", fmt.Errorf("%w: malformed frame", infrastructure.ErrInvalidInput), "")
		return
	}
	if !cl.limiter.Allow() {
		cl.fail(in.Event, infrastructure.ErrRateLimited, "")
		return
	}

	if in.Event == EventRegisterUser {
		var req RegisterUserRequest
		if err := decode(in.Data, &req); err != nil {
			cl.fail(in.Event, err, "")
			return
		}
		if err := cl.claim(req.UserID); err != nil {
			cl.fail(in.Event, err, "")
			return
		}
		cl.register(req.UserID)
		return
	}

	handle, ok := socketEvents[in.Event]
	if !ok {
		cl.fail(in.Event, fmt.Errorf("%w: unknown event %q", infrastructure.ErrInvalidInput, in.Event), "")
		return
	}
	cl.wg.Add(1)
	go func() {
		defer cl.wg.Done()
		if err := handle(cl, in.Data); err != nil {
			cl.fail(in.Event, err, "")
		}
	}()
}

func (cl *socketClient) register(userID int64) {
	cl.h.registry.Register(userID, cl.session)
	cl.emit(EventRegistered, RegisteredEvent{UserID: userID, SessionID: cl.session.ID()})
	cl.logger.Debug("user registered", zap.Int64("user_id", userID))
}

// claim rejects payload identities that contradict the token subject.
func (cl *socketClient) claim(userID int64) error {
	if cl.pinned != 0 && userID != cl.pinned {
		return fmt.Errorf("%w: session is authenticated as another user", infrastructure.ErrAccessDenied)
	}
	return nil
}

func (cl *socketClient) writeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(cl.ctx), writeTimeout)
}

func (cl *socketClient) emit(event string, payload any) {
	if err := cl.session.Emit(event, payload); err != nil && !errors.Is(err, realtime.ErrSessionClosed) {
		cl.logger.Debug("emit failed", zap.String("event", event), zap.Error(err))
	}
}

// fail reports err to the originating session only.
func (cl *socketClient) fail(event string, err error, tempID string) {
	code := infrastructure.Code(err)
	if code == codes.Internal {
		cl.logger.Error("event failed", zap.String("event", event), zap.Error(err))
	} else {
		cl.logger.Debug("event rejected", zap.String("event", event), zap.Error(err))
	}
	cl.emit(EventError, ErrorEvent{
		Event:   event,
		Code:    code.String(),
		Message: infrastructure.PublicMessage(err),
		TempID:  tempID,
	})
}

func decode(data json.RawMessage, dst any) error {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", infrastructure.ErrInvalidInput, err)
	}
	if err := binding.Validator.ValidateStruct(dst); err != nil {
		return fmt.Errorf("%w: %v", infrastructure.ErrInvalidInput, err)
	}
	return nil
}

func (cl *socketClient) joinConversation(data json.RawMessage) error {
	var req JoinConversationRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	if err := cl.claim(req.SenderID); err != nil {
		return err
	}
	ctx, cancel := cl.writeContext()
	defer cancel()
	id, err := cl.h.resolver.Resolve(ctx, req.SenderID, req.ReceiverID)
	if err != nil {
		return err
	}
	if !cl.h.registry.Join(ConversationRoom(id), cl.session) {
		// disconnected while resolving
		return nil
	}
	cl.emit(EventConversationJoined, ConversationJoinedEvent{
		ConversationID: id,
		SenderID:       req.SenderID,
		ReceiverID:     req.ReceiverID,
	})
	return nil
}

func (cl *socketClient) leaveConversation(data json.RawMessage) error {
	var req LeaveConversationRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	cl.h.registry.Leave(ConversationRoom(req.ConversationID), cl.session)
	cl.emit(EventConversationLeft, ConversationLeftEvent{ConversationID: req.ConversationID})
	return nil
}

func (cl *socketClient) history(data json.RawMessage) error {
	var req HistoryRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	if err := cl.claim(req.UserID); err != nil {
		return err
	}
	before, err := ParseCursor(req.Before)
	if err != nil {
		return err
	}
	page, err := cl.h.store.Page(cl.ctx, req.ConversationID, req.UserID, req.Limit, before)
	if err != nil {
		return err
	}
	cl.emit(EventConversationHistory, ConversationHistoryEvent{
		ConversationID: req.ConversationID,
		Messages:       page.Messages,
		NextCursor:     page.NextCursor,
		HasMore:        page.HasMore,
	})
	return nil
}

func (cl *socketClient) sendMessage(data json.RawMessage) error {
	var req SendMessageRequest
	err := decode(data, &req)
	if err == nil {
		err = cl.claim(req.SenderID)
	}
	if err == nil {
		ctx, cancel := cl.writeContext()
		defer cancel()
		_, err = cl.h.router.SendMessage(ctx, cl.session, req)
	}
	if err != nil {
		// echo tempId so the client can reconcile its optimistic copy
		cl.fail(EventSendMessage, err, req.TempID)
	}
	return nil
}

func (cl *socketClient) typing(data json.RawMessage) error {
	var req TypingRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	if err := cl.claim(req.UserID); err != nil {
		return err
	}
	_, err := cl.h.presence.RelayTyping(cl.session, req.ConversationID, req.UserID)
	return err
}

func (cl *socketClient) stopTyping(data json.RawMessage) error {
	var req TypingRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	if err := cl.claim(req.UserID); err != nil {
		return err
	}
	_, err := cl.h.presence.RelayStopTyping(cl.session, req.ConversationID, req.UserID)
	return err
}

func (cl *socketClient) markAsRead(data json.RawMessage) error {
	var req MarkReadRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	if err := cl.claim(req.UserID); err != nil {
		return err
	}
	ctx, cancel := cl.writeContext()
	defer cancel()
	_, err := cl.h.router.MarkRead(ctx, req.ConversationID, req.UserID)
	return err
}

func (cl *socketClient) unreadCount(data json.RawMessage) error {
	var req UnreadCountRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	if err := cl.claim(req.UserID); err != nil {
		return err
	}
	n, err := cl.h.reads.UnreadCount(cl.ctx, req.UserID)
	if err != nil {
		return err
	}
	cl.emit(EventUnreadCount, UnreadCountEvent{UserID: req.UserID, Count: n})
	return nil
}

func (cl *socketClient) deleteMessage(data json.RawMessage) error {
	var req DeleteMessageRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	if err := cl.claim(req.UserID); err != nil {
		return err
	}
	ctx, cancel := cl.writeContext()
	defer cancel()
	_, err := cl.h.router.DeleteMessage(ctx, req.MessageID, req.UserID)
	return err
}
