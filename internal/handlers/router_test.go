package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomchat/internal/auth"
	"roomchat/internal/config"
	"roomchat/internal/database"
	"roomchat/internal/mail"
	"roomchat/internal/models"
	"roomchat/internal/presence"
	"roomchat/internal/services"
	ws "roomchat/internal/websocket"
)

const testOrigin = "http://app.test"

type captureMailer struct {
	mu   sync.Mutex
	sent []mail.InvitationEmail
}

func (m *captureMailer) SendInvitation(_ context.Context, email mail.InvitationEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, email)
	return nil
}

func (m *captureMailer) lastToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent)
	link := m.sent[len(m.sent)-1].InviteLink
	return link[strings.LastIndex(link, "/")+1:]
}

type testServer struct {
	*httptest.Server
	auth   *auth.Service
	mailer *captureMailer
	hub    *ws.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := database.NewMemoryDB()
	authService := auth.NewService(config.JWTConfig{Secret: []byte("test-secret"), ExpiresIn: time.Hour})
	mailer := &captureMailer{}

	hub := ws.NewHub(presence.NewTracker())
	roomService := services.NewRoomService(db, nil)
	messageService := services.NewMessageService(db)
	messageService.SetBroadcaster(hub)
	invitationService := services.NewInvitationService(db, mailer, testOrigin)

	router := NewRouter(Routes{
		Verifier:       authService,
		AllowedOrigins: []string{testOrigin},
		Auth:           NewAuthHandlers(),
		Rooms:          NewRoomHandlers(roomService, hub),
		Messages:       NewMessageHandlers(messageService),
		Invitations:    NewInvitationHandlers(invitationService),
		WebSocket:      NewWebSocketHandlers(authService, hub, roomService, messageService, []string{testOrigin}),
	}, zerolog.Nop())

	srv := &testServer{Server: httptest.NewServer(router), auth: authService, mailer: mailer, hub: hub}
	t.Cleanup(func() {
		hub.CloseAll()
		srv.Close()
	})
	return srv
}

func (s *testServer) token(t *testing.T, id models.Identity) string {
	t.Helper()
	tok, err := s.auth.IssueToken(id)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

var (
	owner   = models.Identity{ID: "u-owner", Name: "Owner", Email: "owner@x.com"}
	guest   = models.Identity{ID: "u-guest", Name: "Guest", Email: "guest@x.com"}
	invitee = models.Identity{ID: "u-invitee", Name: "Invitee", Email: "invitee@x.com"}
)

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	var body map[string]string
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/health", "", nil, &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRequireAuth(t *testing.T) {
	srv := newTestServer(t)

	var e errorBody
	assert.Equal(t, http.StatusUnauthorized, srv.do(t, http.MethodGet, "/api/rooms", "", nil, &e))
	assert.Equal(t, "UNAUTHENTICATED", e.Code)

	assert.Equal(t, http.StatusUnauthorized, srv.do(t, http.MethodGet, "/api/rooms", "garbage", nil, &e))

	var me struct {
		User models.Identity `json:"user"`
	}
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/api/auth/me", srv.token(t, owner), nil, &me))
	assert.Equal(t, owner.ID, me.User.ID)
}

func TestVaultFlow(t *testing.T) {
	srv := newTestServer(t)
	ownerTok := srv.token(t, owner)
	guestTok := srv.token(t, guest)
	inviteeTok := srv.token(t, invitee)

	var room models.RoomResponse
	status := srv.do(t, http.MethodPost, "/api/rooms", ownerTok, map[string]string{
		"name": "Vault", "type": "private", "password": "abcd",
	}, &room)
	require.Equal(t, http.StatusCreated, status)
	assert.True(t, room.RequiresPassword)
	assert.Equal(t, models.RoleAdmin, room.CreatedBy.Role)

	var e errorBody
	assert.Equal(t, http.StatusConflict, srv.do(t, http.MethodPost, "/api/rooms", guestTok, map[string]string{"name": "Vault"}, &e))

	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/api/rooms/"+room.ID+"/join", ownerTok, nil, &room))

	assert.Equal(t, http.StatusForbidden, srv.do(t, http.MethodPost, "/api/rooms/"+room.ID+"/join", guestTok, map[string]string{"password": "wrong"}, &e))
	assert.Equal(t, "PASSWORD_INCORRECT", e.Code)

	assert.Equal(t, http.StatusForbidden, srv.do(t, http.MethodPost, "/api/messages/"+room.ID, guestTok, map[string]string{"content": "hi"}, &e))
	assert.Equal(t, "NOT_A_MEMBER", e.Code)

	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/api/rooms/"+room.ID+"/join", guestTok, map[string]string{"password": "abcd"}, &room))
	var guestEntry *models.Member
	for i := range room.Members {
		if room.Members[i].ID == guest.ID {
			guestEntry = &room.Members[i]
		}
	}
	require.NotNil(t, guestEntry)
	assert.Equal(t, models.RoleMember, guestEntry.Role)

	var msg models.Message
	require.Equal(t, http.StatusCreated, srv.do(t, http.MethodPost, "/api/messages/"+room.ID, guestTok, map[string]string{"content": "hello vault"}, &msg))
	assert.Equal(t, guest.ID, msg.Sender.ID)

	var batch models.SendInvitationsResponse
	assert.Equal(t, http.StatusForbidden, srv.do(t, http.MethodPost, "/api/rooms/"+room.ID+"/invitations", guestTok, map[string][]string{"emails": {invitee.Email}}, &e))
	require.Equal(t, http.StatusCreated, srv.do(t, http.MethodPost, "/api/rooms/"+room.ID+"/invitations", ownerTok, map[string][]string{"emails": {invitee.Email, "bad"}}, &batch))
	require.Len(t, batch.Invitations, 1)
	assert.Empty(t, batch.Skipped)
	token := srv.mailer.lastToken(t)

	var lookup map[string]json.RawMessage
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/api/invitations/"+token, "", nil, &lookup))
	assert.NotContains(t, string(lookup["invitation"]), token)

	assert.Equal(t, http.StatusForbidden, srv.do(t, http.MethodPost, "/api/invitations/"+token+"/accept", guestTok, nil, &e))

	var accepted models.AcceptInvitationResponse
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/api/invitations/"+token+"/accept", inviteeTok, nil, &accepted))
	assert.Equal(t, room.ID, accepted.RoomID)
	assert.Equal(t, models.InvitationAccepted, accepted.Invitation.Status)

	assert.Equal(t, http.StatusGone, srv.do(t, http.MethodPost, "/api/invitations/"+token+"/accept", inviteeTok, nil, &e))

	var messages []models.Message
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/api/messages/"+room.ID, inviteeTok, nil, &messages))
	require.Len(t, messages, 1)
	assert.Equal(t, "hello vault", messages[0].Content)

	var rooms []models.RoomResponse
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/api/rooms", inviteeTok, nil, &rooms))
	require.Len(t, rooms, 1)
	assert.Len(t, rooms[0].Members, 3)
}

func TestLeaveAndNotFound(t *testing.T) {
	srv := newTestServer(t)
	ownerTok := srv.token(t, owner)
	guestTok := srv.token(t, guest)

	var room models.RoomResponse
	require.Equal(t, http.StatusCreated, srv.do(t, http.MethodPost, "/api/rooms", ownerTok, map[string]string{"name": "lobby"}, &room))
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/api/rooms/"+room.ID+"/join", guestTok, nil, &room))
	assert.Len(t, room.Members, 2)

	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/api/rooms/"+room.ID+"/leave", guestTok, nil, &room))
	assert.Len(t, room.Members, 1)

	var e errorBody
	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodPost, "/api/rooms/nope/join", guestTok, nil, &e))
	assert.Equal(t, "ROOM_NOT_FOUND", e.Code)
	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodGet, "/api/invitations/nope", "", nil, &e))
	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodPost, "/api/rooms", ownerTok, map[string]string{"name": " "}, &e))
}

func TestSendInvitations_CommaSeparatedEmails(t *testing.T) {
	srv := newTestServer(t)
	ownerTok := srv.token(t, owner)

	var room models.RoomResponse
	require.Equal(t, http.StatusCreated, srv.do(t, http.MethodPost, "/api/rooms", ownerTok, map[string]string{"name": "den", "type": "private", "password": "abcd"}, &room))

	var batch models.SendInvitationsResponse
	require.Equal(t, http.StatusCreated, srv.do(t, http.MethodPost, "/api/rooms/"+room.ID+"/invitations", ownerTok, map[string]string{"emails": "a@x.com, B@x.com,,a@x.com"}, &batch))
	require.Len(t, batch.Invitations, 2)
	assert.Equal(t, "a@x.com", batch.Invitations[0].Email)
	assert.Equal(t, "b@x.com", batch.Invitations[1].Email)
	assert.Empty(t, batch.Skipped)

	var e errorBody
	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodPost, "/api/rooms/"+room.ID+"/invitations", ownerTok, map[string]int{"emails": 3}, &e))
}

func TestWebSocketHandshake(t *testing.T) {
	srv := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	header := http.Header{"Origin": {"http://evil.test"}}
	_, resp, err = websocket.DefaultDialer.Dial(wsURL+"?token="+srv.token(t, owner), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	var room models.RoomResponse
	require.Equal(t, http.StatusCreated, srv.do(t, http.MethodPost, "/api/rooms", srv.token(t, owner), map[string]string{"name": "live"}, &room))

	header = http.Header{"Origin": {testOrigin}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+srv.token(t, guest), header)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(models.ClientEvent{Type: models.EventJoinRoom, RoomID: room.ID}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var frame map[string]any
		require.NoError(t, conn.ReadJSON(&frame))
		if frame["type"] == string(models.EventMessageHistory) {
			break
		}
	}

	var active models.ActiveUsersResponse
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/api/rooms/"+room.ID+"/users", srv.token(t, owner), nil, &active))
	assert.Equal(t, 1, active.Count)
	assert.Equal(t, guest.ID, active.Users[0].ID)

	var sent models.Message
	require.Equal(t, http.StatusCreated, srv.do(t, http.MethodPost, "/api/messages/"+room.ID, srv.token(t, owner), map[string]string{"content": "pushed"}, &sent))
	for {
		var frame struct {
			Type    models.EventType `json:"type"`
			Message *models.Message  `json:"message"`
		}
		require.NoError(t, conn.ReadJSON(&frame))
		if frame.Type == models.EventNewMessage {
			assert.Equal(t, "pushed", frame.Message.Content)
			break
		}
	}
}
