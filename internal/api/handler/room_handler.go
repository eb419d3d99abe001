package handler

import (
	"errors"
	"net/http"
	"strconv"

	"codeduel/internal/api/middleware"
	"codeduel/internal/app/service"
	"codeduel/internal/common"
	"codeduel/internal/domain/model"

	"github.com/go-chi/chi/v5"
)

// RoomHandler serves match state and history over REST. Live mutations go
// through the real-time channel; these routes are read-only.
type RoomHandler struct {
	roomService *service.RoomService
}

func NewRoomHandler(roomService *service.RoomService) *RoomHandler {
	return &RoomHandler{roomService: roomService}
}

func (h *RoomHandler) RegisterRoutes(r chi.Router) {
	r.Use(middleware.Authenticator)
	r.Get("/", h.listMine)
	r.Get("/{roomCode}", h.getRoom)
}

type roomDetailsResponse struct {
	Room              *model.Room              `json:"room"`
	WinningSubmission *model.WinningSubmission `json:"winning_submission,omitempty"`
}

func (h *RoomHandler) getRoom(w http.ResponseWriter, r *http.Request) {
	roomCode := chi.URLParam(r, "roomCode")

	room, err := h.roomService.GetRoom(r.Context(), roomCode)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}

	resp := roomDetailsResponse{Room: room}
	if room.Phase == model.PhaseCompleted {
		sub, err := h.roomService.WinningSubmission(r.Context(), room.Code)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
			return
		}
		resp.WinningSubmission = sub
	}
	common.RespondWithJSON(w, http.StatusOK, resp)
}

func (h *RoomHandler) listMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Missing user context")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rooms, err := h.roomService.History(r.Context(), userID, limit)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"rooms": rooms})
}
