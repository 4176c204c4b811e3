package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"roomchat/internal/models"
	"roomchat/internal/services"
)

type InvitationHandlers struct {
	invitationService *services.InvitationService
}

func NewInvitationHandlers(invitationService *services.InvitationService) *InvitationHandlers {
	return &InvitationHandlers{invitationService: invitationService}
}

func (h *InvitationHandlers) SendInvitations(w http.ResponseWriter, r *http.Request) {
	var req models.SendInvitationsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	batch, err := h.invitationService.SendInvitations(r.Context(), chi.URLParam(r, "roomId"), identity(r), []string(req.Emails))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, batch.Response())
}

// GetInvitation is public: the token in the path is the credential.
func (h *InvitationHandlers) GetInvitation(w http.ResponseWriter, r *http.Request) {
	inv, err := h.invitationService.GetInvitation(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{"invitation": inv.Response()})
}

func (h *InvitationHandlers) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	res, err := h.invitationService.AcceptInvitation(r.Context(), chi.URLParam(r, "token"), identity(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, models.AcceptInvitationResponse{
		Invitation: res.Invitation.Response(),
		RoomID:     res.Invitation.RoomID,
		RoomName:   res.Invitation.RoomName,
	})
}
