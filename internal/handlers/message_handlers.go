package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"roomchat/internal/models"
	"roomchat/internal/services"
)

type MessageHandlers struct {
	messageService *services.MessageService
}

func NewMessageHandlers(messageService *services.MessageService) *MessageHandlers {
	return &MessageHandlers{messageService: messageService}
}

func (h *MessageHandlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.messageService.ListMessages(r.Context(), chi.URLParam(r, "roomId"), identity(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if messages == nil {
		messages = []*models.Message{}
	}

	writeJSON(w, r, http.StatusOK, messages)
}

// SendMessage is the HTTP path for clients without a socket. It carries no
// join handshake, so password protected rooms need prior membership.
func (h *MessageHandlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req models.SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	msg, err := h.messageService.SendMessage(r.Context(), chi.URLParam(r, "roomId"), identity(r), req.Content, false)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, msg)
}
