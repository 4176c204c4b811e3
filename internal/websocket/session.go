package websocket

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	apperr "roomchat/internal/errors"
	"roomchat/internal/models"
	"roomchat/internal/services"
	"roomchat/pkg/logger"
)

type State int

const (
	StateConnecting State = iota
	StateAuthenticated
	StateJoinPending
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateJoinPending:
		return "join_pending"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type RoomJoiner interface {
	JoinRoom(ctx context.Context, roomID string, user *models.Identity, password string) (*services.JoinResult, error)
}

type MessageRelay interface {
	SendMessage(ctx context.Context, roomID string, user *models.Identity, content string, trusted bool) (*models.Message, error)
	History(ctx context.Context, roomID string) ([]*models.Message, error)
}

// Session drives one authenticated connection through joins, leaves and
// sends. A connection may be attached to several rooms at once; it is
// Joined while attached to at least one.
type Session struct {
	client   *Client
	hub      *Hub
	rooms    RoomJoiner
	messages MessageRelay
	log      zerolog.Logger

	mu    sync.Mutex
	state State
}

// NewSession wraps a client whose identity has already been verified.
func NewSession(client *Client, hub *Hub, rooms RoomJoiner, messages MessageRelay) *Session {
	return &Session{
		client:   client,
		hub:      hub,
		rooms:    rooms,
		messages: messages,
		log:      logger.Module("websocket.session").With().Str("handle", client.handle).Str("user", client.identity.ID).Logger(),
		state:    StateAuthenticated,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	if s.state != state {
		s.log.Debug().Str("from", s.state.String()).Str("to", state.String()).Msg("session state")
	}
	s.state = state
}

// settle moves back to Joined or Authenticated depending on whether the
// connection is still in any room.
func (s *Session) settle() {
	s.hub.mu.Lock()
	attached := len(s.client.rooms) > 0
	s.hub.mu.Unlock()

	if attached {
		s.setState(StateJoined)
	} else {
		s.setState(StateAuthenticated)
	}
}

// Run serves the connection until it closes.
func (s *Session) Run(ctx context.Context) {
	s.hub.Register(s.client)
	go s.client.WritePump()
	s.client.ReadPump(ctx, s.Dispatch)

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
	s.log.Debug().Msg("session closed")
}

func (s *Session) Dispatch(ctx context.Context, event models.ClientEvent) {
	switch event.Type {
	case models.EventJoinRoom:
		s.join(ctx, event.RoomID, event.Password)
	case models.EventLeaveRoom:
		s.leave(event.RoomID)
	case models.EventSendMessage:
		s.send(ctx, event.RoomID, event.Content)
	default:
		s.notify("", "Unsupported event type", "")
	}
}

func (s *Session) join(ctx context.Context, roomID, password string) {
	if roomID == "" {
		s.notify("", "Room id missing", string(apperr.CodeValidation))
		return
	}

	s.setState(StateJoinPending)
	res, err := s.rooms.JoinRoom(ctx, roomID, s.client.identity, password)
	if err != nil {
		s.log.Debug().Err(err).Str("room", roomID).Msg("join refused")
		s.notifyErr(roomID, err, "Failed to join room")
		s.settle()
		return
	}

	if !s.hub.Attach(roomID, s.client, res.Member) {
		s.log.Debug().Str("room", roomID).Msg("connection closed during join")
		return
	}
	s.setState(StateJoined)
	s.hub.BroadcastPresence(roomID)

	history, err := s.messages.History(ctx, roomID)
	if err != nil {
		s.log.Warn().Err(err).Str("room", roomID).Msg("history replay failed")
		s.notify(roomID, "Joined room, but failed to load previous messages.", string(apperr.CodeUpstream))
		return
	}
	if history == nil {
		history = []*models.Message{}
	}
	s.hub.SendTo(s.client, models.MessageHistoryEvent{
		Type:     models.EventMessageHistory,
		RoomID:   roomID,
		Messages: history,
	})
}

func (s *Session) leave(roomID string) {
	if roomID == "" {
		s.notify("", "Room id missing", string(apperr.CodeValidation))
		return
	}
	if s.hub.Detach(roomID, s.client) {
		s.hub.BroadcastPresence(roomID)
	}
	s.settle()
}

func (s *Session) send(ctx context.Context, roomID, content string) {
	if roomID == "" {
		s.notify("", "Room id missing", string(apperr.CodeValidation))
		return
	}

	trusted := s.hub.IsAttached(roomID, s.client)
	if _, err := s.messages.SendMessage(ctx, roomID, s.client.identity, content, trusted); err != nil {
		s.log.Debug().Err(err).Str("room", roomID).Msg("send refused")
		s.notifyErr(roomID, err, "Unable to send message")
	}
}

// notifyErr reports err to this connection only. Upstream failures are
// replaced by fallback.
func (s *Session) notifyErr(roomID string, err error, fallback string) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Code == apperr.CodeUpstream {
		s.notify(roomID, fallback, string(apperr.CodeUpstream))
		return
	}
	s.notify(roomID, appErr.Message, string(appErr.Code))
}

func (s *Session) notify(roomID, message, code string) {
	s.hub.SendTo(s.client, models.NotificationEvent{
		Type:    models.EventNotification,
		RoomID:  roomID,
		Message: message,
		Code:    code,
	})
}
