package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"roomchat/internal/database"
	apperr "roomchat/internal/errors"
	"roomchat/internal/membership"
	"roomchat/internal/models"
)

// loadedRoom is a room whose member and admin stores have been normalized.
type loadedRoom struct {
	room    *models.Room
	members membership.Result
	admins  membership.Result
}

func (l *loadedRoom) member(id string) (models.Member, bool) {
	m, ok := l.members.Map[id]
	return m, ok
}

func (l *loadedRoom) isAdmin(id string) bool {
	return membership.IsAdmin(id, l.admins.Map, l.room.CreatedBy)
}

func (l *loadedRoom) roleFor(id string) models.Role {
	return membership.RoleFor(id, l.admins.Map, l.room.CreatedBy)
}

// roomAccess reads rooms with membership healing and admits new members.
//
// Writes are field-level merges issued right after a fresh read. Two first
// joins racing on the same room can still overwrite each other's members
// entry; the dropped member is re-added on their next join or send.
type roomAccess struct {
	db  database.Directory
	log zerolog.Logger
}

// load fetches roomID and persists the canonical form of any store that was
// still in the legacy list shape.
func (a *roomAccess) load(ctx context.Context, roomID string) (*loadedRoom, error) {
	room, err := a.db.GetRoom(ctx, roomID)
	if err != nil {
		return nil, storageError(err, apperr.ErrRoomNotFound)
	}

	loaded := &loadedRoom{
		room:    room,
		members: membership.Normalize(room.Members, models.RoleMember),
		admins:  membership.Normalize(room.Admins, models.RoleAdmin),
	}

	var heal models.RoomFields
	if loaded.members.Mutated {
		s := models.KeyedStore(loaded.members.Map)
		heal.Members = &s
	}
	if loaded.admins.Mutated {
		s := models.KeyedStore(loaded.admins.Map)
		heal.Admins = &s
	}
	if !heal.Empty() {
		if err := a.db.MergeRoomFields(ctx, roomID, heal); err != nil {
			return nil, storageError(err, apperr.ErrRoomNotFound)
		}
		a.log.Info().
			Str("room", roomID).
			Bool("members", heal.Members != nil).
			Bool("admins", heal.Admins != nil).
			Msg("healed legacy membership store")
	}

	room.Members = models.KeyedStore(loaded.members.Map)
	room.Admins = models.KeyedStore(loaded.admins.Map)
	return loaded, nil
}

// admit makes user a member of roomID. The room is re-read first; an
// existing entry is returned untouched.
func (a *roomAccess) admit(ctx context.Context, roomID string, user *models.Identity) (*loadedRoom, models.Member, bool, error) {
	loaded, err := a.load(ctx, roomID)
	if err != nil {
		return nil, models.Member{}, false, err
	}
	if existing, ok := loaded.member(user.ID); ok {
		return loaded, existing, false, nil
	}

	snapshot := membership.Snapshot(user, loaded.roleFor(user.ID))
	loaded.members.Map[user.ID] = snapshot

	members := models.KeyedStore(loaded.members.Map)
	if err := a.db.MergeRoomFields(ctx, roomID, models.RoomFields{Members: &members, Touch: true}); err != nil {
		delete(loaded.members.Map, user.ID)
		return nil, models.Member{}, false, storageError(err, apperr.ErrRoomNotFound)
	}

	loaded.members = membership.Normalize(members, models.RoleMember)
	loaded.room.Members = members
	a.log.Info().Str("room", roomID).Str("user", user.ID).Str("role", string(snapshot.Role)).Msg("member admitted")
	return loaded, snapshot, true, nil
}

// storageError maps a directory error to a domain error, using notFound for
// missing records.
func storageError(err error, notFound *apperr.Error) error {
	if errors.Is(err, database.ErrNotFound) {
		return notFound
	}
	return apperr.Upstream(err, "Internal server error")
}
