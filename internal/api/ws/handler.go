package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"codeduel/internal/api/middleware"
	"codeduel/internal/app/service"
	"codeduel/internal/app/worker"
	"codeduel/internal/common"
	"codeduel/internal/domain/model"
	"codeduel/internal/platform/codeforces"

	"github.com/gorilla/websocket"
)

// Room creation can sit behind the rate gate plus a full problemset fetch.
const opTimeout = 30 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// GameHandler dispatches inbound real-time events (create_room, join_room,
// leave_room) into the match engine and wires disconnects to abandonment.
type GameHandler struct {
	hub    *Hub
	rooms  *service.RoomService
	poller *worker.MatchPoller
}

func NewGameHandler(hub *Hub, rooms *service.RoomService, poller *worker.MatchPoller) *GameHandler {
	return &GameHandler{hub: hub, rooms: rooms, poller: poller}
}

// ServeWS upgrades an authenticated request to a websocket session.
func (h *GameHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Missing user context")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ERROR: [ws] upgrade failed for %s: %v", userID, err)
		return
	}

	session := newSession(conn, userID)
	h.hub.Register(session)

	go session.writePump()
	go session.readPump(h)
}

type createRoomRequest struct {
	Difficulty string `json:"difficulty"`
}

type joinRoomRequest struct {
	RoomCode string `json:"roomCode"`
}

type leaveRoomRequest struct {
	RoomCode string `json:"roomCode"`
}

type roomCreatedPayload struct {
	RoomCode string             `json:"roomCode"`
	Problem  codeforces.Problem `json:"problem"`
}

type matchStartedPayload struct {
	RoomCode     string              `json:"roomCode"`
	Problem      codeforces.Problem  `json:"problem"`
	Participants []model.Participant `json:"participants"`
	StartTime    time.Time           `json:"startTime"`
	Message      string              `json:"message"`
}

type opponentLeftPayload struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *GameHandler) dispatch(s *Session, msg inboundEvent) {
	switch msg.Type {
	case "create_room":
		h.createRoom(s, msg.Payload)
	case "join_room":
		h.joinRoom(s, msg.Payload)
	case "leave_room":
		h.leaveRoom(s, msg.Payload)
	default:
		h.hub.SendError(s, "unknown event type: "+msg.Type)
	}
}

func (h *GameHandler) createRoom(s *Session, payload json.RawMessage) {
	var req createRoomRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		h.hub.SendError(s, "invalid create_room payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	room, err := h.rooms.CreateRoom(ctx, s.UserID(), model.Difficulty(req.Difficulty))
	if err != nil {
		log.Printf("WARN: [ws] create_room failed for %s: %v", s.UserID(), err)
		h.hub.SendError(s, err.Error())
		return
	}

	h.hub.JoinRoom(s, room.Code)
	h.hub.SendTo(s, service.EventRoomCreated, roomCreatedPayload{
		RoomCode: room.Code,
		Problem:  room.Problem,
	})
}

func (h *GameHandler) joinRoom(s *Session, payload json.RawMessage) {
	var req joinRoomRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		h.hub.SendError(s, "invalid join_room payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	room, err := h.rooms.JoinRoom(ctx, s.UserID(), req.RoomCode)
	if err != nil {
		log.Printf("WARN: [ws] join_room %s failed for %s: %v", req.RoomCode, s.UserID(), err)
		h.hub.SendError(s, err.Error())
		return
	}

	h.hub.JoinRoom(s, room.Code)
	h.hub.BroadcastToRoom(room.Code, service.EventMatchStarted, matchStartedPayload{
		RoomCode:     room.Code,
		Problem:      room.Problem,
		Participants: room.Participants(),
		StartTime:    *room.StartedAt,
		Message:      "Match started! Go to Codeforces and submit your solution!",
	})

	h.poller.Start(room.Code)
}

func (h *GameHandler) leaveRoom(s *Session, payload json.RawMessage) {
	var req leaveRoomRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		h.hub.SendError(s, "invalid leave_room payload")
		return
	}
	h.abandon(s, req.RoomCode, "Opponent left the match")
	h.hub.LeaveRoom(s)
}

// handleDisconnect runs when a session's transport drops. Whatever room the
// session was in is forced into abandoned; terminal rooms are untouched.
func (h *GameHandler) handleDisconnect(s *Session) {
	roomCode := h.hub.Unregister(s)
	if roomCode == "" {
		return
	}
	h.abandon(s, roomCode, "Opponent disconnected")
}

func (h *GameHandler) abandon(s *Session, roomCode, notice string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, changed, err := h.rooms.AbandonRoom(ctx, roomCode)
	if err != nil {
		if !errors.Is(err, common.ErrRoomNotFound) {
			log.Printf("ERROR: [ws] abandon of room %s failed: %v", roomCode, err)
		}
		// Already terminal and evicted from the registry: nothing to do.
		return
	}
	if !changed {
		return
	}

	h.poller.Stop(roomCode)
	h.hub.BroadcastToRoom(roomCode, service.EventOpponentLeft, opponentLeftPayload{
		Message:   notice,
		Timestamp: time.Now(),
	})
}
