package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 1024

	sendBufferSize = 64
)

type outboundEvent struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

type inboundEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Session is one connected client. The transport-session reference is used
// only for targeted delivery and disconnect detection; it is never persisted.
type Session struct {
	conn   *websocket.Conn
	userID string

	send      chan outboundEvent
	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, userID string) *Session {
	return &Session{
		conn:   conn,
		userID: userID,
		send:   make(chan outboundEvent, sendBufferSize),
	}
}

func (s *Session) UserID() string { return s.userID }

// enqueue hands an event to the write pump without blocking. A slow client
// loses events rather than stalling the room.
func (s *Session) enqueue(event outboundEvent) {
	defer func() {
		// Racing against closeSend is tolerable for a best-effort channel.
		if recover() != nil {
			log.Printf("WARN: [ws] dropped %s event for closed session of %s", event.Type, s.userID)
		}
	}()
	select {
	case s.send <- event:
	default:
		log.Printf("WARN: [ws] send buffer full, dropping %s event for %s", event.Type, s.userID)
	}
}

func (s *Session) closeSend() {
	s.closeOnce.Do(func() { close(s.send) })
}

// readPump consumes inbound events until the connection drops, dispatching
// each to the handler. Runs in its own goroutine per connection.
func (s *Session) readPump(h *GameHandler) {
	defer func() {
		h.handleDisconnect(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WARN: [ws] read error for %s: %v", s.userID, err)
			}
			return
		}

		var msg inboundEvent
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("WARN: [ws] malformed message from %s: %v", s.userID, err)
			continue
		}
		h.dispatch(s, msg)
	}
}

// writePump forwards queued events to the peer and keeps the connection
// alive with pings.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case event, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteJSON(event); err != nil {
				log.Printf("WARN: [ws] write error for %s: %v", s.userID, err)
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
