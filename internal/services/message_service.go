package services

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"roomchat/internal/database"
	apperr "roomchat/internal/errors"
	"roomchat/internal/membership"
	"roomchat/internal/models"
	"roomchat/pkg/logger"
)

const (
	// HistoryLimit bounds the replay sent to a connection after it joins.
	HistoryLimit = 100
	// ListLimit bounds the HTTP message listing.
	ListLimit = 500
)

// Broadcaster delivers a persisted message to every connection attached to
// its room.
type Broadcaster interface {
	BroadcastMessage(roomID string, msg *models.Message)
}

type MessageService struct {
	db          database.Directory
	access      *roomAccess
	locks       *roomLocks
	broadcaster Broadcaster
	log         zerolog.Logger
}

func NewMessageService(db database.Directory) *MessageService {
	log := logger.Module("services.message")
	return &MessageService{
		db:     db,
		access: &roomAccess{db: db, log: log},
		locks:  newRoomLocks(),
		log:    log,
	}
}

// SetBroadcaster wires the realtime fan-out. Without one, sends are only
// persisted.
func (s *MessageService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// SendMessage persists content from user in roomID and fans it out.
//
// A sender who is not yet a member is admitted on the fly. For password
// protected rooms that only happens when trusted is set, i.e. the caller has
// already completed a join handshake for this room on its connection.
func (s *MessageService) SendMessage(ctx context.Context, roomID string, user *models.Identity, content string, trusted bool) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.ErrEmptyMessage
	}

	loaded, err := s.access.load(ctx, roomID)
	if err != nil {
		return nil, err
	}

	if _, ok := loaded.member(user.ID); !ok {
		if loaded.room.RequiresPassword() && !trusted {
			return nil, apperr.ErrNotAMember
		}
		healed, _, _, err := s.access.admit(ctx, roomID, user)
		if err != nil {
			s.log.Warn().Err(err).Str("room", roomID).Str("user", user.ID).Msg("membership heal on send failed")
			return nil, apperr.ErrNotAMember.WithCause(err)
		}
		loaded = healed
	}

	sender := membership.Snapshot(user, loaded.roleFor(user.ID))

	unlock := s.locks.lock(roomID)
	defer unlock()

	msg, err := s.db.AppendMessage(ctx, &models.NewMessage{
		RoomID:  roomID,
		Content: content,
		Sender:  sender,
	})
	if err != nil {
		return nil, storageError(err, apperr.ErrRoomNotFound)
	}

	s.log.Debug().Str("room", roomID).Str("message", msg.ID).Str("user", user.ID).Msg("message stored")
	if s.broadcaster != nil {
		s.broadcaster.BroadcastMessage(roomID, msg)
	}
	return msg, nil
}

// History returns the replay sent to a connection that just joined roomID.
func (s *MessageService) History(ctx context.Context, roomID string) ([]*models.Message, error) {
	messages, err := s.db.QueryMessages(ctx, roomID, HistoryLimit)
	if err != nil {
		return nil, storageError(err, apperr.ErrRoomNotFound)
	}
	return messages, nil
}

// ListMessages returns the latest messages of roomID to one of its members.
func (s *MessageService) ListMessages(ctx context.Context, roomID string, user *models.Identity) ([]*models.Message, error) {
	loaded, err := s.access.load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if _, ok := loaded.member(user.ID); !ok {
		return nil, apperr.Forbidden("Join the room to view its messages")
	}

	messages, err := s.db.QueryMessages(ctx, roomID, ListLimit)
	if err != nil {
		return nil, storageError(err, apperr.ErrRoomNotFound)
	}
	return messages, nil
}
