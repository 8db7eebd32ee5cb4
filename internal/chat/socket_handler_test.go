package chat_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"carechat/internal/cache"
	"carechat/internal/chat"
	"carechat/internal/chat/storage"
	"carechat/internal/realtime"
	"carechat/pkg/jwt"
)

type socketServer struct {
	url      string
	registry *realtime.Registry
}

func newSocketServer(t *testing.T, tokens *jwt.JWT, eventsPerSecond float64) *socketServer {
	t.Helper()
	return newSocketServerWithOptions(t, tokens, eventsPerSecond, realtime.DefaultOptions)
}

func newSocketServerWithOptions(t *testing.T, tokens *jwt.JWT, eventsPerSecond float64, session realtime.Options) *socketServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	store := storage.NewMemoryStorage()
	kv := cache.NewMemoryCache()
	registry := realtime.NewRegistry(logger)

	resolver := chat.NewResolver(store, kv, logger)
	messages := chat.NewMessageStore(store, store, testLimits)
	reads := chat.NewReadState(store)
	presence := chat.NewPresence(registry)
	router := chat.NewRouter(resolver, messages, reads, registry, kv, testLimits, logger)
	handler := chat.NewSocketHandler(resolver, messages, reads, presence, router, registry, tokens, chat.SocketOptions{
		Session:         session,
		EventsPerSecond: eventsPerSecond,
		AllowedOrigins:  []string{"*"},
	}, logger)

	engine := gin.New()
	engine.GET("/ws", handler.ServeWS)
	srv := httptest.NewServer(engine)
	t.Cleanup(func() {
		registry.Close()
		srv.Close()
	})
	return &socketServer{
		url:      "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		registry: registry,
	}
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"event": event, "data": data}); err != nil {
		t.Fatalf("WriteJSON %s: %v", event, err)
	}
}

// expect reads frames until one named event arrives and decodes its data.
func expect(t *testing.T, conn *websocket.Conn, event string, out any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if f.Event != event {
			continue
		}
		if out != nil {
			if err := json.Unmarshal(f.Data, out); err != nil {
				t.Fatalf("decode %s: %v", event, err)
			}
		}
		return
	}
}

func register(t *testing.T, conn *websocket.Conn, userID int64) {
	t.Helper()
	send(t, conn, chat.EventRegisterUser, map[string]any{"userId": userID})
	var got chat.RegisteredEvent
	expect(t, conn, chat.EventRegistered, &got)
	if got.UserID != userID || got.SessionID == "" {
		t.Fatalf("registered = %+v", got)
	}
}

func TestSocketConversationFlow(t *testing.T) {
	srv := newSocketServer(t, nil, 0)
	alice := dial(t, srv.url)
	bob := dial(t, srv.url)
	register(t, alice, 1)
	register(t, bob, 2)

	send(t, alice, chat.EventJoinConversation, map[string]any{"senderId": 1, "receiverId": 2})
	var joinedA chat.ConversationJoinedEvent
	expect(t, alice, chat.EventConversationJoined, &joinedA)
	send(t, bob, chat.EventJoinConversation, map[string]any{"senderId": 2, "receiverId": 1})
	var joinedB chat.ConversationJoinedEvent
	expect(t, bob, chat.EventConversationJoined, &joinedB)
	if joinedA.ConversationID == 0 || joinedA.ConversationID != joinedB.ConversationID {
		t.Fatalf("joined %d and %d", joinedA.ConversationID, joinedB.ConversationID)
	}

	send(t, alice, chat.EventSendMessage, map[string]any{
		"sender_id": 1, "receiver_id": 2, "message": "hi", "tempId": "t1",
	})
	var received, confirmed struct {
		ID             int64  `json:"id"`
		ConversationID int64  `json:"conversation_id"`
		Body           string `json:"message"`
		TempID         string `json:"tempId"`
	}
	expect(t, bob, chat.EventReceiveMessage, &received)
	expect(t, alice, chat.EventMessageSentConfirmation, &confirmed)
	if received.TempID != "t1" || received.Body != "hi" || received.ConversationID != joinedA.ConversationID {
		t.Fatalf("receiveMessage = %+v", received)
	}
	if confirmed.ID != received.ID || confirmed.TempID != "t1" {
		t.Fatalf("confirmation = %+v", confirmed)
	}

	send(t, alice, chat.EventTyping, map[string]any{"conversationId": joinedA.ConversationID, "userId": 1})
	var typing chat.TypingEvent
	expect(t, bob, chat.EventDisplayTyping, &typing)
	if typing.UserID != 1 {
		t.Fatalf("displayTyping = %+v", typing)
	}

	send(t, bob, chat.EventGetConversationHistory, map[string]any{"conversationId": joinedA.ConversationID, "userId": 2})
	var history chat.ConversationHistoryEvent
	expect(t, bob, chat.EventConversationHistory, &history)
	if len(history.Messages) != 1 || history.Messages[0].ID != received.ID {
		t.Fatalf("history = %+v", history)
	}

	send(t, bob, chat.EventMarkAsRead, map[string]any{"conversationId": joinedA.ConversationID, "userId": 2})
	var receipt chat.ReadReceiptEvent
	expect(t, alice, chat.EventMessagesRead, &receipt)
	if receipt.Count != 1 || receipt.ReaderID != 2 {
		t.Fatalf("messagesRead = %+v", receipt)
	}

	send(t, bob, chat.EventGetUnreadCount, map[string]any{"userId": 2})
	var unread chat.UnreadCountEvent
	expect(t, bob, chat.EventUnreadCount, &unread)
	if unread.Count != 0 {
		t.Fatalf("unreadCount = %+v", unread)
	}

	// an outsider asking for the history gets an error and no messages
	carol := dial(t, srv.url)
	register(t, carol, 3)
	send(t, carol, chat.EventGetConversationHistory, map[string]any{"conversationId": joinedA.ConversationID, "userId": 3})
	var denied chat.ErrorEvent
	expect(t, carol, chat.EventError, &denied)
	if denied.Code != "PermissionDenied" || denied.Event != chat.EventGetConversationHistory {
		t.Fatalf("error = %+v", denied)
	}
}

func TestSocketRejectsBadPayloads(t *testing.T) {
	srv := newSocketServer(t, nil, 0)
	conn := dial(t, srv.url)
	register(t, conn, 1)

	send(t, conn, chat.EventSendMessage, map[string]any{"sender_id": 1, "receiver_id": 2, "message": "", "tempId": "t5"})
	var got chat.ErrorEvent
	expect(t, conn, chat.EventError, &got)
	if got.Code != "InvalidArgument" || got.TempID != "t5" {
		t.Fatalf("error = %+v", got)
	}

	send(t, conn, "noSuchEvent", map[string]any{})
	expect(t, conn, chat.EventError, &got)
	if got.Code != "InvalidArgument" || got.Event != "noSuchEvent" {
		t.Fatalf("error = %+v", got)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	expect(t, conn, chat.EventError, &got)
	if got.Code != "InvalidArgument" {
		t.Fatalf("error = %+v", got)
	}
}

func TestSocketRateLimit(t *testing.T) {
	srv := newSocketServer(t, nil, 1)
	conn := dial(t, srv.url)
	for i := 0; i < 5; i++ {
		send(t, conn, chat.EventGetUnreadCount, map[string]any{"userId": 1})
	}
	var got chat.ErrorEvent
	expect(t, conn, chat.EventError, &got)
	if got.Code != "ResourceExhausted" {
		t.Fatalf("error = %+v", got)
	}
}

func TestSocketDisconnectUnregisters(t *testing.T) {
	srv := newSocketServer(t, nil, 0)
	conn := dial(t, srv.url)
	register(t, conn, 1)
	if n := len(srv.registry.SessionsFor(1)); n != 1 {
		t.Fatalf("SessionsFor(1) = %d, want 1", n)
	}
	_ = conn.Close()

	deadline := time.Now().Add(3 * time.Second)
	for len(srv.registry.SessionsFor(1)) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session still registered after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSocketSilentClientIsEvicted(t *testing.T) {
	opts := realtime.DefaultOptions
	opts.PongWait = 300 * time.Millisecond
	srv := newSocketServerWithOptions(t, nil, 0, opts)
	conn := dial(t, srv.url)
	register(t, conn, 1)
	if n := len(srv.registry.SessionsFor(1)); n != 1 {
		t.Fatalf("SessionsFor(1) = %d, want 1", n)
	}

	// The client never reads again, so pings go unanswered.
	deadline := time.Now().Add(3 * time.Second)
	for len(srv.registry.SessionsFor(1)) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session still registered after missing pongs")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestSocketTokenPinsIdentity(t *testing.T) {
	tokens := jwt.NewJWT([]byte("test-secret"), 60)
	srv := newSocketServer(t, tokens, 0)

	_, resp, err := websocket.DefaultDialer.Dial(srv.url, nil)
	if err == nil {
		t.Fatal("dial without token succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("dial without token response = %v", resp)
	}

	token, err := tokens.IssueToken(5)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	conn := dial(t, srv.url+"?token="+token)
	var registered chat.RegisteredEvent
	expect(t, conn, chat.EventRegistered, &registered)
	if registered.UserID != 5 {
		t.Fatalf("registered = %+v", registered)
	}

	send(t, conn, chat.EventSendMessage, map[string]any{"sender_id": 6, "receiver_id": 2, "message": "spoof", "tempId": "x"})
	var got chat.ErrorEvent
	expect(t, conn, chat.EventError, &got)
	if got.Code != "PermissionDenied" || got.TempID != "x" {
		t.Fatalf("error = %+v", got)
	}
}
