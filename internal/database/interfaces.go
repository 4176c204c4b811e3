package database

import (
	"context"
	"errors"

	"roomchat/internal/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

type RoomRepository interface {
	GetRoom(ctx context.Context, id string) (*models.Room, error)
	FindRoomByName(ctx context.Context, name string) (*models.Room, error)
	// ListRooms returns every room, newest first.
	ListRooms(ctx context.Context) ([]*models.Room, error)
	CreateRoom(ctx context.Context, data *models.NewRoom) (*models.Room, error)
	// MergeRoomFields writes only the fields set in f, leaving the rest of
	// the stored room as is.
	MergeRoomFields(ctx context.Context, id string, f models.RoomFields) error
	// RemoveRoomMember deletes one key from the keyed members store and
	// bumps updatedAt.
	RemoveRoomMember(ctx context.Context, roomID, memberID string) error
}

type MessageRepository interface {
	// QueryMessages returns the latest limit messages of roomID in ascending
	// creation order.
	QueryMessages(ctx context.Context, roomID string, limit int) ([]*models.Message, error)
	AppendMessage(ctx context.Context, data *models.NewMessage) (*models.Message, error)
}

type InvitationRepository interface {
	QueryInvitationByField(ctx context.Context, field models.InvitationField, value string) (*models.Invitation, error)
	// AppendInvitation fails with ErrDuplicate when another invitation
	// already holds the same pending lookup key or token.
	AppendInvitation(ctx context.Context, data *models.NewInvitation) (*models.Invitation, error)
	MergeInvitationFields(ctx context.Context, id string, f models.InvitationFields) error
	DeleteInvitation(ctx context.Context, id string) error
}

// Directory is the persisted store of rooms, messages and invitations.
type Directory interface {
	RoomRepository
	MessageRepository
	InvitationRepository
	Close() error
}
