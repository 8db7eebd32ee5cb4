package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	ErrSessionClosed = errors.New("session closed")
	ErrBufferFull    = errors.New("session send buffer exceeded")
)

// Conn is the subset of *websocket.Conn used by Session.
type Conn interface {
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

type Options struct {
	PongWait   time.Duration
	WriteWait  time.Duration
	ReadLimit  int64
	SendBuffer int
}

var DefaultOptions = Options{
	PongWait:   60 * time.Second,
	WriteWait:  10 * time.Second,
	ReadLimit:  8 * 1024,
	SendBuffer: 256,
}

func (o Options) withDefaults() Options {
	if o.PongWait <= 0 {
		o.PongWait = DefaultOptions.PongWait
	}
	if o.WriteWait <= 0 {
		o.WriteWait = DefaultOptions.WriteWait
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = DefaultOptions.ReadLimit
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = DefaultOptions.SendBuffer
	}
	return o
}

func (o Options) pingPeriod() time.Duration {
	return (o.PongWait * 9) / 10
}

// Inbound is a client frame: {"event": "...", "data": {...}}.
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Encode renders an outbound frame.
func Encode(event string, payload any) ([]byte, error) {
	return json.Marshal(outbound{Event: event, Data: payload})
}

// Session is one live websocket connection. Writes go through a bounded
// queue drained by a single writer goroutine; a client that cannot keep up
// is disconnected.
type Session struct {
	id     string
	conn   Conn
	opts   Options
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger

	mu     sync.RWMutex
	userID int64
}

func NewSession(conn Conn, opts Options, logger *zap.Logger) *Session {
	id := uuid.NewString()
	opts = opts.withDefaults()
	return &Session{
		id:     id,
		conn:   conn,
		opts:   opts,
		send:   make(chan []byte, opts.SendBuffer),
		done:   make(chan struct{}),
		logger: logger.With(zap.String("session", id)),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) UserID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

func (s *Session) setUserID(id int64) {
	s.mu.Lock()
	s.userID = id
	s.mu.Unlock()
}

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Start launches the write loop. It must be called exactly once.
func (s *Session) Start() {
	go s.writeLoop()
}

func (s *Session) Emit(event string, payload any) error {
	b, err := Encode(event, payload)
	if err != nil {
		return err
	}
	return s.Send(b)
}

// Send enqueues a frame without blocking.
func (s *Session) Send(frame []byte) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case <-s.done:
		return ErrSessionClosed
	case s.send <- frame:
		return nil
	default:
		s.Close(websocket.CloseTryAgainLater, "send buffer full")
		return ErrBufferFull
	}
}

// Close terminates the connection. Safe to call more than once.
func (s *Session) Close(code int, reason string) {
	s.once.Do(func() {
		close(s.done)
		deadline := time.Now().Add(s.opts.WriteWait)
		_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		_ = s.conn.Close()
	})
}

// ReadLoop reads frames until the connection fails or misses the heartbeat
// window, handing each to handle. It returns the terminating read error.
func (s *Session) ReadLoop(handle func(frame []byte)) error {
	s.conn.SetReadLimit(s.opts.ReadLimit)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})
	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
		handle(frame)
	}
}

func (s *Session) writeLoop() {
	ticker := time.NewTicker(s.opts.pingPeriod())
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.logger.Debug("write failed", zap.Error(err))
				s.Close(websocket.CloseInternalServerErr, "write failed")
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.opts.WriteWait)); err != nil {
				s.logger.Debug("ping failed", zap.Error(err))
				s.Close(websocket.CloseInternalServerErr, "ping failed")
				return
			}
		}
	}
}
