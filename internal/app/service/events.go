package service

// Event names on the real-time channel.
const (
	EventRoomCreated   = "room_created"
	EventMatchStarted  = "match_started"
	EventPollingUpdate = "polling_update"
	EventMatchEnded    = "match_ended"
	EventOpponentLeft  = "opponent_left"
	EventError         = "error"
)

// Broadcaster delivers room-scoped events to every transport session
// currently associated with a room code. Delivery is best-effort; clients
// must treat match_ended and opponent_left as authoritative terminal
// signals that supersede any later progress event.
type Broadcaster interface {
	BroadcastToRoom(roomCode, event string, payload interface{})
}
