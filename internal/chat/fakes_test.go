package chat_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"carechat/internal/cache"
	"carechat/internal/chat"
	"carechat/internal/chat/storage"
)

type emitted struct {
	Event   string
	Payload any
}

type fakeSession struct {
	id   string
	user int64

	mu     sync.Mutex
	events []emitted
}

func (s *fakeSession) ID() string    { return s.id }
func (s *fakeSession) UserID() int64 { return s.user }

func (s *fakeSession) Emit(event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, emitted{Event: event, Payload: payload})
	return nil
}

func (s *fakeSession) received(event string) []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []any
	for _, e := range s.events {
		if e.Event == event {
			out = append(out, e.Payload)
		}
	}
	return out
}

func (s *fakeSession) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// fakeBroadcaster is an in-memory chat.Broadcaster over fakeSessions.
type fakeBroadcaster struct {
	mu     sync.Mutex
	seq    int
	users  map[int64][]*fakeSession
	rooms  map[string][]*fakeSession
	onSend func(userID int64, event string, payload any)
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{
		users: make(map[int64][]*fakeSession),
		rooms: make(map[string][]*fakeSession),
	}
}

func (b *fakeBroadcaster) connect(userID int64) *fakeSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	s := &fakeSession{id: fmt.Sprintf("s-%d-%d", userID, b.seq), user: userID}
	b.users[userID] = append(b.users[userID], s)
	return s
}

func (b *fakeBroadcaster) join(room string, s *fakeSession) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rooms[room] = append(b.rooms[room], s)
}

func (b *fakeBroadcaster) SendToUser(userID int64, event string, payload any) int {
	b.mu.Lock()
	targets := append([]*fakeSession(nil), b.users[userID]...)
	hook := b.onSend
	b.mu.Unlock()
	if hook != nil {
		hook(userID, event, payload)
	}
	for _, s := range targets {
		_ = s.Emit(event, payload)
	}
	return len(targets)
}

func (b *fakeBroadcaster) SendToRoom(room, event string, payload any, exceptSessionID string) int {
	b.mu.Lock()
	targets := append([]*fakeSession(nil), b.rooms[room]...)
	b.mu.Unlock()
	n := 0
	for _, s := range targets {
		if s.id == exceptSessionID {
			continue
		}
		_ = s.Emit(event, payload)
		n++
	}
	return n
}

func (b *fakeBroadcaster) InRoom(room, sessionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.rooms[room] {
		if s.id == sessionID {
			return true
		}
	}
	return false
}

type harness struct {
	store    *storage.MemoryStorage
	ledger   *cache.MemoryCache
	bc       *fakeBroadcaster
	resolver *chat.Resolver
	messages *chat.MessageStore
	reads    *chat.ReadState
	presence *chat.Presence
	router   *chat.Router
}

// tickingClock advances one millisecond per call so insert order is
// reflected in timestamps.
func tickingClock() func() time.Time {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var n atomic.Int64
	return func() time.Time {
		return base.Add(time.Duration(n.Add(1)) * time.Millisecond)
	}
}

var testLimits = chat.Limits{PageSize: 50, MaxPageSize: 200, TempIDTTL: time.Minute}

func newHarness(t *testing.T, limits chat.Limits) *harness {
	t.Helper()
	logger := zap.NewNop()
	h := &harness{
		store:  storage.NewMemoryStorage().WithClock(tickingClock()),
		ledger: cache.NewMemoryCache(),
		bc:     newFakeBroadcaster(),
	}
	h.resolver = chat.NewResolver(h.store, h.ledger, logger)
	h.messages = chat.NewMessageStore(h.store, h.store, limits)
	h.reads = chat.NewReadState(h.store)
	h.presence = chat.NewPresence(h.bc)
	h.router = chat.NewRouter(h.resolver, h.messages, h.reads, h.bc, h.ledger, limits, logger)
	return h
}
