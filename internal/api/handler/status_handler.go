package handler

import (
	"context"
	"net/http"

	"codeduel/internal/common"

	"github.com/go-chi/chi/v5"
)

type pollerStats interface {
	ActiveCount() int
}

type roomStats interface {
	ActiveRoomCount() int
}

type pinger interface {
	Ping(ctx context.Context) bool
}

// StatusHandler exposes operational visibility: registry size, poll-queue
// depth (the shared rate gate's scalability ceiling), and an on-demand
// Codeforces reachability probe.
type StatusHandler struct {
	rooms  roomStats
	poller pollerStats
	cf     pinger
}

func NewStatusHandler(rooms roomStats, poller pollerStats, cf pinger) *StatusHandler {
	return &StatusHandler{rooms: rooms, poller: poller, cf: cf}
}

func (h *StatusHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.status)
	r.Get("/codeforces", h.codeforcesProbe)
}

func (h *StatusHandler) status(w http.ResponseWriter, r *http.Request) {
	common.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"active_rooms":      h.rooms.ActiveRoomCount(),
		"active_poll_tasks": h.poller.ActiveCount(),
	})
}

// codeforcesProbe spends one rate-gated call; it is for operators, not for
// dashboards to poll.
func (h *StatusHandler) codeforcesProbe(w http.ResponseWriter, r *http.Request) {
	common.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"connected": h.cf.Ping(r.Context()),
	})
}
