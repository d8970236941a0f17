package collaboration

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often ping frames are sent. Must be less
	// than pongWait.
	pingPeriod = 54 * time.Second

	// maxMessageSize bounds a single inbound frame.
	maxMessageSize = 64 * 1024
)

// Session is one live websocket connection. Outbound messages go through a
// buffered send channel drained by writePump, so broadcasts never block on a
// slow consumer beyond the channel's own buffering.
type Session struct {
	ID string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func newSession(id string, hub *Hub, conn *websocket.Conn, queueSize int) *Session {
	return &Session{
		ID:   id,
		hub:  hub,
		conn: conn,
		send: make(chan []byte, queueSize),
		done: make(chan struct{}),
	}
}

// enqueue attempts a non-blocking send. Returns false when the session is
// closed or its buffer is full; the caller treats that as a dead connection.
func (s *Session) enqueue(msg []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- msg:
		return true
	case <-s.done:
		return false
	default:
		return false
	}
}

// close signals the write pump to send a close frame and stop. Safe to call
// more than once.
func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// readPump reads inbound frames and hands them to the router. It blocks
// until the connection closes, then runs disconnect teardown exactly once.
func (s *Session) readPump(ctx context.Context) {
	defer func() {
		s.hub.Disconnect(s.ID)
		s.close()
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.hub.log.Debug().Str("connection_id", s.ID).Err(err).Msg("websocket read error")
			}
			return
		}
		s.hub.router.Dispatch(ctx, s, message)
	}
}

// writePump drains the send channel to the connection and keeps the
// transport alive with periodic pings. Runs in its own goroutine per session.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
