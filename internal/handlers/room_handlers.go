package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"roomchat/internal/models"
	"roomchat/internal/services"
)

// PresenceLister reports who is connected to a room right now.
type PresenceLister interface {
	RoomUsers(roomID string) []models.Member
}

type RoomHandlers struct {
	roomService *services.RoomService
	presence    PresenceLister
}

func NewRoomHandlers(roomService *services.RoomService, presence PresenceLister) *RoomHandlers {
	return &RoomHandlers{
		roomService: roomService,
		presence:    presence,
	}
}

func (h *RoomHandlers) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRoomRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	room, err := h.roomService.CreateRoom(r.Context(), &req, identity(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, services.RoomView(room))
}

func (h *RoomHandlers) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.roomService.ListRooms(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, services.RoomViews(rooms))
}

func (h *RoomHandlers) JoinRoom(w http.ResponseWriter, r *http.Request) {
	var req models.JoinRoomRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.roomService.JoinRoom(r.Context(), chi.URLParam(r, "roomId"), identity(r), req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, services.RoomView(res.Room))
}

func (h *RoomHandlers) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.roomService.LeaveRoom(r.Context(), chi.URLParam(r, "roomId"), identity(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, services.RoomView(room))
}

func (h *RoomHandlers) GetActiveUsers(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	if err := h.roomService.CanView(r.Context(), roomID, identity(r)); err != nil {
		writeError(w, r, err)
		return
	}

	users := h.presence.RoomUsers(roomID)
	writeJSON(w, r, http.StatusOK, models.ActiveUsersResponse{
		RoomID: roomID,
		Users:  users,
		Count:  len(users),
	})
}
