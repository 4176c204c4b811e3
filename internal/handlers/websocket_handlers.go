package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/hlog"

	"roomchat/internal/auth"
	apperr "roomchat/internal/errors"
	ws "roomchat/internal/websocket"
)

type WebSocketHandlers struct {
	verifier TokenVerifier
	hub      *ws.Hub
	rooms    ws.RoomJoiner
	messages ws.MessageRelay
	upgrader websocket.Upgrader
}

// NewWebSocketHandlers accepts browser handshakes only from allowedOrigins.
// Requests without an Origin header (non-browser clients) are let through.
func NewWebSocketHandlers(verifier TokenVerifier, hub *ws.Hub, rooms ws.RoomJoiner, messages ws.MessageRelay, allowedOrigins []string) *WebSocketHandlers {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[strings.TrimRight(origin, "/")] = struct{}{}
	}

	return &WebSocketHandlers{
		verifier: verifier,
		hub:      hub,
		rooms:    rooms,
		messages: messages,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := allowed[strings.TrimRight(origin, "/")]
				return ok
			},
		},
	}
}

// HandleWebSocket authenticates before upgrading; a bad token never gets a
// socket.
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := auth.TokenFromRequest(r)
	if token == "" {
		writeError(w, r, apperr.Unauthenticated("Missing authorization token"))
		return
	}

	user, err := h.verifier.VerifyToken(r.Context(), token)
	if err != nil {
		writeError(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := ws.NewClient(h.hub, conn, user)
	hlog.FromRequest(r).Info().Str("user", user.ID).Str("handle", client.Handle()).Msg("websocket connected")

	ws.NewSession(client, h.hub, h.rooms, h.messages).Run(r.Context())
}
