package models

import "time"

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// ParseVisibility maps anything other than "private" to public.
func ParseVisibility(value string) Visibility {
	if value == string(VisibilityPrivate) {
		return VisibilityPrivate
	}
	return VisibilityPublic
}

// Room is the persisted room document.
type Room struct {
	ID           string
	Name         string
	Description  string
	Visibility   Visibility
	PasswordHash string
	Members      MemberStore
	Admins       MemberStore
	CreatedBy    Member
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (r *Room) RequiresPassword() bool {
	return r.PasswordHash != ""
}

// NewRoom carries the fields of a room about to be created.
type NewRoom struct {
	Name         string
	Description  string
	Visibility   Visibility
	PasswordHash string
	Members      MemberStore
	Admins       MemberStore
	CreatedBy    Member
}

// RoomFields is a partial room update. Nil fields are left untouched and
// Touch bumps updatedAt to the directory's clock.
type RoomFields struct {
	Members      *MemberStore
	Admins       *MemberStore
	PasswordHash *string
	Touch        bool
}

func (f RoomFields) Empty() bool {
	return f.Members == nil && f.Admins == nil && f.PasswordHash == nil && !f.Touch
}

// RoomResponse is the client view of a room.
type RoomResponse struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Description      string     `json:"description,omitempty"`
	Type             Visibility `json:"type"`
	RequiresPassword bool       `json:"requiresPassword"`
	Members          []Member   `json:"members"`
	Admins           []Member   `json:"admins"`
	CreatedBy        Member     `json:"createdBy"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

type CreateRoomRequest struct {
	Name        string `json:"name" validate:"required,max=64"`
	Description string `json:"description" validate:"max=500"`
	Type        string `json:"type" validate:"omitempty,oneof=public private"`
	Password    string `json:"password"`
}

type JoinRoomRequest struct {
	Password string `json:"password"`
}

type ActiveUsersResponse struct {
	RoomID string   `json:"roomId"`
	Users  []Member `json:"users"`
	Count  int      `json:"count"`
}
