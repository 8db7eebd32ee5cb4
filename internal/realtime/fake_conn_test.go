package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// fakeConn is an in-memory Conn. Frames written by the session appear on
// written; frames pushed to inbound are returned by ReadMessage.
type fakeConn struct {
	mu       sync.Mutex
	written  chan []byte
	controls []int
	inbound  chan []byte
	closed   chan struct{}
	once     sync.Once
	pong     func(string) error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		written: make(chan []byte, 64),
		inbound: make(chan []byte, 64),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) SetReadLimit(int64) {}
func (c *fakeConn) SetReadDeadline(time.Time) error { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (c *fakeConn) SetPongHandler(h func(string) error) { c.pong = h }

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case <-c.closed:
		return 0, nil, errors.New("use of closed connection")
	case b := <-c.inbound:
		return websocket.TextMessage, b, nil
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-c.closed:
		return errors.New("use of closed connection")
	default:
	}
	c.written <- data
	return nil
}

func (c *fakeConn) WriteControl(messageType int, _ []byte, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controls = append(c.controls, messageType)
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) sawControl(messageType int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.controls {
		if t == messageType {
			return true
		}
	}
	return false
}
