package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"roomchat/internal/models"
)

// MemoryDB is a process-local Directory. Every record handed out is a copy,
// so callers can mutate results freely.
type MemoryDB struct {
	mu          sync.RWMutex
	rooms       map[string]*models.Room
	messages    map[string][]models.Message // roomID -> append order
	invitations map[string]*models.Invitation
	now         func() time.Time
}

var _ Directory = (*MemoryDB)(nil)

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		rooms:       make(map[string]*models.Room),
		messages:    make(map[string][]models.Message),
		invitations: make(map[string]*models.Invitation),
		now:         time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (db *MemoryDB) WithClock(now func() time.Time) *MemoryDB {
	db.now = now
	return db
}

func (db *MemoryDB) Close() error { return nil }

// PutRoom stores room verbatim, including legacy member store shapes.
func (db *MemoryDB) PutRoom(room *models.Room) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.rooms[room.ID] = cloneRoom(room)
}

func (db *MemoryDB) GetRoom(_ context.Context, id string) (*models.Room, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	room, ok := db.rooms[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRoom(room), nil
}

func (db *MemoryDB) FindRoomByName(_ context.Context, name string) (*models.Room, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, room := range db.rooms {
		if room.Name == name {
			return cloneRoom(room), nil
		}
	}
	return nil, ErrNotFound
}

func (db *MemoryDB) ListRooms(_ context.Context) ([]*models.Room, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rooms := make([]*models.Room, 0, len(db.rooms))
	for _, room := range db.rooms {
		rooms = append(rooms, cloneRoom(room))
	}
	sort.SliceStable(rooms, func(i, j int) bool {
		if rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].ID > rooms[j].ID
		}
		return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
	})
	return rooms, nil
}

func (db *MemoryDB) CreateRoom(_ context.Context, data *models.NewRoom) (*models.Room, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, room := range db.rooms {
		if room.Name == data.Name {
			return nil, ErrDuplicate
		}
	}

	now := db.now()
	room := &models.Room{
		ID:           uuid.NewString(),
		Name:         data.Name,
		Description:  data.Description,
		Visibility:   data.Visibility,
		PasswordHash: data.PasswordHash,
		Members:      data.Members.Clone(),
		Admins:       data.Admins.Clone(),
		CreatedBy:    data.CreatedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	db.rooms[room.ID] = room
	return cloneRoom(room), nil
}

func (db *MemoryDB) MergeRoomFields(_ context.Context, id string, f models.RoomFields) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	room, ok := db.rooms[id]
	if !ok {
		return ErrNotFound
	}
	if f.Members != nil {
		room.Members = f.Members.Clone()
	}
	if f.Admins != nil {
		room.Admins = f.Admins.Clone()
	}
	if f.PasswordHash != nil {
		room.PasswordHash = *f.PasswordHash
	}
	if f.Touch {
		room.UpdatedAt = db.now()
	}
	return nil
}

func (db *MemoryDB) RemoveRoomMember(_ context.Context, roomID, memberID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	room, ok := db.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	if room.Members.Shape == models.ShapeKeyed {
		delete(room.Members.Keyed, memberID)
	}
	room.UpdatedAt = db.now()
	return nil
}

func (db *MemoryDB) QueryMessages(_ context.Context, roomID string, limit int) ([]*models.Message, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	stored := db.messages[roomID]
	if limit > 0 && len(stored) > limit {
		stored = stored[len(stored)-limit:]
	}

	messages := make([]*models.Message, len(stored))
	for i := range stored {
		msg := stored[i]
		messages[i] = &msg
	}
	return messages, nil
}

func (db *MemoryDB) AppendMessage(_ context.Context, data *models.NewMessage) (*models.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.rooms[data.RoomID]; !ok {
		return nil, ErrNotFound
	}

	msg := models.Message{
		ID:        uuid.NewString(),
		RoomID:    data.RoomID,
		Content:   data.Content,
		Sender:    data.Sender,
		CreatedAt: db.now(),
	}
	db.messages[data.RoomID] = append(db.messages[data.RoomID], msg)
	return &msg, nil
}

func (db *MemoryDB) QueryInvitationByField(_ context.Context, field models.InvitationField, value string) (*models.Invitation, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, inv := range db.invitations {
		var candidate string
		switch field {
		case models.InvitationByToken:
			candidate = inv.Token
		case models.InvitationByPendingKey:
			candidate = inv.PendingLookupKey
		}
		if candidate != "" && candidate == value {
			return cloneInvitation(inv), nil
		}
	}
	return nil, ErrNotFound
}

func (db *MemoryDB) AppendInvitation(_ context.Context, data *models.NewInvitation) (*models.Invitation, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, inv := range db.invitations {
		if inv.Token == data.Token {
			return nil, ErrDuplicate
		}
		if data.PendingLookupKey != "" && inv.PendingLookupKey == data.PendingLookupKey {
			return nil, ErrDuplicate
		}
	}

	inv := &models.Invitation{
		ID:               uuid.NewString(),
		RoomID:           data.RoomID,
		RoomName:         data.RoomName,
		Email:            data.Email,
		Token:            data.Token,
		Status:           models.InvitationPending,
		PendingLookupKey: data.PendingLookupKey,
		CreatedBy:        data.CreatedBy,
		CreatedAt:        db.now(),
	}
	db.invitations[inv.ID] = inv
	return cloneInvitation(inv), nil
}

func (db *MemoryDB) MergeInvitationFields(_ context.Context, id string, f models.InvitationFields) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	inv, ok := db.invitations[id]
	if !ok {
		return ErrNotFound
	}
	if f.Status != nil {
		inv.Status = *f.Status
	}
	if f.AcceptedBy != nil {
		m := *f.AcceptedBy
		inv.AcceptedBy = &m
	}
	if f.StampAccepted {
		now := db.now()
		inv.AcceptedAt = &now
	}
	if f.ClearPendingKey {
		inv.PendingLookupKey = ""
	}
	return nil
}

func (db *MemoryDB) DeleteInvitation(_ context.Context, id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.invitations[id]; !ok {
		return ErrNotFound
	}
	delete(db.invitations, id)
	return nil
}

func cloneRoom(r *models.Room) *models.Room {
	out := *r
	out.Members = r.Members.Clone()
	out.Admins = r.Admins.Clone()
	return &out
}

func cloneInvitation(inv *models.Invitation) *models.Invitation {
	out := *inv
	if inv.AcceptedAt != nil {
		t := *inv.AcceptedAt
		out.AcceptedAt = &t
	}
	if inv.AcceptedBy != nil {
		m := *inv.AcceptedBy
		out.AcceptedBy = &m
	}
	return &out
}
