package realtime

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxFrameSize   = 64 << 10
	sendBufferSize = 256
)

// State is where a session is in its lifecycle:
//
//	Unauthenticated -> Joining -> Joined -> Closed
//
// Closed is terminal. A reconnect is a new Session.
type State int32

const (
	StateUnauthenticated State = iota
	StateJoining
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateJoining:
		return "joining"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Session is one WebSocket client joined to one chat.
type Session struct {
	chatID uuid.UUID
	userID uuid.UUID
	token  string

	conn  *websocket.Conn
	send  chan []byte
	done  chan struct{}
	state atomic.Int32

	closeOnce sync.Once
	closeCode int
	closeText string
}

func newSession(conn *websocket.Conn, chatID, userID uuid.UUID, token string) *Session {
	s := &Session{
		chatID:    chatID,
		userID:    userID,
		token:     token,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		done:      make(chan struct{}),
		closeCode: websocket.CloseNormalClosure,
	}
	s.state.Store(int32(StateUnauthenticated))
	return s
}

func (s *Session) UserID() uuid.UUID {
	return s.userID
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// advance moves from one state to the next and fails if the session has
// already moved on, which keeps Closed terminal.
func (s *Session) advance(from, to State) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

// Enqueue queues a frame for the write pump without blocking.
func (s *Session) Enqueue(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// Close marks the session closed and stops the write pump, which sends a
// normal close frame. Safe to call from any goroutine, any number of times.
func (s *Session) Close() {
	s.closeWith(websocket.CloseNormalClosure, "")
}

func (s *Session) closeWith(code int, text string) {
	s.closeOnce.Do(func() {
		s.closeCode = code
		s.closeText = text
		s.state.Store(int32(StateClosed))
		close(s.done)
	})
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case frame := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.Close()
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(s.closeCode, s.closeText))
			return
		}
	}
}
