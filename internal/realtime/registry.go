package realtime

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Registry maps user identities to their live sessions and tracks room
// membership. A user may hold any number of sessions at once (devices,
// tabs); removing one leaves the others addressable. Nothing here survives
// a restart.
type Registry struct {
	mu           sync.RWMutex
	sessions     map[string]*Session            // sessionID -> session
	users        map[int64]map[string]*Session  // userID -> sessionID -> session
	rooms        map[string]map[string]*Session // room -> sessionID -> session
	sessionRooms map[string]map[string]struct{} // sessionID -> rooms
	logger       *zap.Logger
}

type Stats struct {
	Sessions int `json:"sessions"`
	Users    int `json:"users"`
	Rooms    int `json:"rooms"`
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		sessions:     make(map[string]*Session),
		users:        make(map[int64]map[string]*Session),
		rooms:        make(map[string]map[string]*Session),
		sessionRooms: make(map[string]map[string]struct{}),
		logger:       logger.Named("registry"),
	}
}

// Attach tracks a freshly connected, not yet registered session.
func (r *Registry) Attach(s *Session) {
	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.mu.Unlock()
}

// Register associates s with userID. Other sessions of the same user are
// kept. Re-registering under another identity moves the session.
func (r *Registry) Register(userID int64, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev := s.UserID(); prev != 0 && prev != userID {
		r.removeUserSessionLocked(prev, s.ID())
	}
	r.sessions[s.ID()] = s
	set := r.users[userID]
	if set == nil {
		set = make(map[string]*Session)
		r.users[userID] = set
	}
	set[s.ID()] = s
	s.setUserID(userID)
}

// Unregister forgets s entirely, including its room memberships.
func (r *Registry) Unregister(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.ID()]; !ok {
		return
	}
	delete(r.sessions, s.ID())
	if uid := s.UserID(); uid != 0 {
		r.removeUserSessionLocked(uid, s.ID())
	}
	for room := range r.sessionRooms[s.ID()] {
		r.leaveLocked(room, s.ID())
	}
	delete(r.sessionRooms, s.ID())
}

// SessionsFor returns a snapshot of the user's live sessions.
func (r *Registry) SessionsFor(userID int64) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.users[userID]
	out := make([]*Session, 0, len(set))
	for _, s := range set {
		out = append(out, s)
	}
	return out
}

// Join subscribes s to room. It reports false if s is not tracked.
func (r *Registry) Join(room string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.ID()]; !ok {
		return false
	}
	members := r.rooms[room]
	if members == nil {
		members = make(map[string]*Session)
		r.rooms[room] = members
	}
	members[s.ID()] = s

	memberships := r.sessionRooms[s.ID()]
	if memberships == nil {
		memberships = make(map[string]struct{})
		r.sessionRooms[s.ID()] = memberships
	}
	memberships[room] = struct{}{}
	return true
}

func (r *Registry) Leave(room string, s *Session) {
	r.mu.Lock()
	r.leaveLocked(room, s.ID())
	r.mu.Unlock()
}

func (r *Registry) InRoom(room string, sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[room][sessionID]
	return ok
}

// SendToUser delivers an event to every live session of userID and returns
// how many accepted it.
func (r *Registry) SendToUser(userID int64, event string, payload any) int {
	return r.deliver(r.SessionsFor(userID), event, payload)
}

// SendToRoom delivers an event to every member of room except the session
// with exceptSessionID.
func (r *Registry) SendToRoom(room string, event string, payload any, exceptSessionID string) int {
	r.mu.RLock()
	targets := make([]*Session, 0, len(r.rooms[room]))
	for id, s := range r.rooms[room] {
		if id != exceptSessionID {
			targets = append(targets, s)
		}
	}
	r.mu.RUnlock()
	return r.deliver(targets, event, payload)
}

func (r *Registry) deliver(targets []*Session, event string, payload any) int {
	if len(targets) == 0 {
		return 0
	}
	frame, err := Encode(event, payload)
	if err != nil {
		r.logger.Error("failed to encode event", zap.String("event", event), zap.Error(err))
		return 0
	}
	delivered := 0
	for _, s := range targets {
		if err := s.Send(frame); err == nil {
			delivered++
		}
	}
	return delivered
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{Sessions: len(r.sessions), Users: len(r.users), Rooms: len(r.rooms)}
}

// Close terminates all tracked sessions and clears registry state.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.users = make(map[int64]map[string]*Session)
	r.rooms = make(map[string]map[string]*Session)
	r.sessionRooms = make(map[string]map[string]struct{})
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close(websocket.CloseGoingAway, "server shutdown")
	}
}

func (r *Registry) removeUserSessionLocked(userID int64, sessionID string) {
	set := r.users[userID]
	if set == nil {
		return
	}
	delete(set, sessionID)
	if len(set) == 0 {
		delete(r.users, userID)
	}
}

func (r *Registry) leaveLocked(room string, sessionID string) {
	members := r.rooms[room]
	if members == nil {
		return
	}
	delete(members, sessionID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
	if memberships, ok := r.sessionRooms[sessionID]; ok {
		delete(memberships, room)
		if len(memberships) == 0 {
			delete(r.sessionRooms, sessionID)
		}
	}
}
