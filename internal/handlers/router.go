package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

type Routes struct {
	Verifier       TokenVerifier
	AllowedOrigins []string

	Auth        *AuthHandlers
	Rooms       *RoomHandlers
	Messages    *MessageHandlers
	Invitations *InvitationHandlers
	WebSocket   *WebSocketHandlers
}

func NewRouter(routes Routes, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	for _, mw := range accessLog(log) {
		r.Use(mw)
	}
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   routes.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", Health)
	r.Get("/ws", routes.WebSocket.HandleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Get("/invitations/{token}", routes.Invitations.GetInvitation)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(routes.Verifier))

			r.Get("/auth/me", routes.Auth.Me)

			r.Route("/rooms", func(r chi.Router) {
				r.Get("/", routes.Rooms.ListRooms)
				r.Post("/", routes.Rooms.CreateRoom)
				r.Post("/{roomId}/join", routes.Rooms.JoinRoom)
				r.Post("/{roomId}/leave", routes.Rooms.LeaveRoom)
				r.Get("/{roomId}/users", routes.Rooms.GetActiveUsers)
				r.Post("/{roomId}/invitations", routes.Invitations.SendInvitations)
			})

			r.Route("/messages/{roomId}", func(r chi.Router) {
				r.Get("/", routes.Messages.ListMessages)
				r.Post("/", routes.Messages.SendMessage)
			})

			r.Post("/invitations/{token}/accept", routes.Invitations.AcceptInvitation)
		})
	})

	return r
}
