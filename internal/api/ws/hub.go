package ws

import (
	"log"
	"sync"
)

// Hub tracks connected sessions and their room membership, and fans room
// events out to every session associated with a room code. It implements
// service.Broadcaster. Delivery is best-effort: a session whose send buffer
// is full drops the event rather than blocking the broadcaster.
type Hub struct {
	mu          sync.RWMutex
	sessions    map[*Session]bool
	rooms       map[string]map[*Session]bool
	sessionRoom map[*Session]string
}

func NewHub() *Hub {
	return &Hub{
		sessions:    make(map[*Session]bool),
		rooms:       make(map[string]map[*Session]bool),
		sessionRoom: make(map[*Session]string),
	}
}

func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	h.sessions[s] = true
	total := len(h.sessions)
	h.mu.Unlock()
	log.Printf("INFO: [ws] session connected for user %s (%d online)", s.userID, total)
}

// Unregister drops the session and returns the room code it was in, if any,
// so the caller can run disconnect cleanup against that room.
func (h *Hub) Unregister(s *Session) string {
	h.mu.Lock()
	delete(h.sessions, s)
	code := h.sessionRoom[s]
	h.removeFromRoomLocked(s)
	total := len(h.sessions)
	h.mu.Unlock()

	s.closeSend()
	log.Printf("INFO: [ws] session disconnected for user %s (%d online)", s.userID, total)
	return code
}

// JoinRoom associates the session with a room code. A session belongs to at
// most one room; joining again moves it.
func (h *Hub) JoinRoom(s *Session, roomCode string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeFromRoomLocked(s)
	members, ok := h.rooms[roomCode]
	if !ok {
		members = make(map[*Session]bool)
		h.rooms[roomCode] = members
	}
	members[s] = true
	h.sessionRoom[s] = roomCode
}

// LeaveRoom detaches the session from its room, returning the code it left.
func (h *Hub) LeaveRoom(s *Session) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	code := h.sessionRoom[s]
	h.removeFromRoomLocked(s)
	return code
}

// RoomOf returns the room code a session is currently associated with.
func (h *Hub) RoomOf(s *Session) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessionRoom[s]
}

// BroadcastToRoom delivers an event to every session in the room.
func (h *Hub) BroadcastToRoom(roomCode, event string, payload interface{}) {
	h.mu.RLock()
	members := make([]*Session, 0, len(h.rooms[roomCode]))
	for s := range h.rooms[roomCode] {
		members = append(members, s)
	}
	h.mu.RUnlock()

	for _, s := range members {
		s.enqueue(outboundEvent{Type: event, Payload: payload})
	}
}

// SendTo targets a single session (used for room_created and error events,
// which are never broadcast).
func (h *Hub) SendTo(s *Session, event string, payload interface{}) {
	s.enqueue(outboundEvent{Type: event, Payload: payload})
}

// SendError reports a failure to the originating session only.
func (h *Hub) SendError(s *Session, message string) {
	s.enqueue(outboundEvent{Type: "error", Payload: map[string]string{"message": message}})
}

func (h *Hub) removeFromRoomLocked(s *Session) {
	code, ok := h.sessionRoom[s]
	if !ok {
		return
	}
	delete(h.sessionRoom, s)
	if members, ok := h.rooms[code]; ok {
		delete(members, s)
		if len(members) == 0 {
			delete(h.rooms, code)
		}
	}
}
