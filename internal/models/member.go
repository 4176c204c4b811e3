package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Member is a user's identity plus the role they hold in one room.
// Role is empty when a stored record never carried one.
type Member struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar,omitempty"`
	Role   Role   `json:"role,omitempty"`
}

// StoreShape tags how a membership field was persisted.
type StoreShape int

const (
	ShapeAbsent StoreShape = iota
	ShapeList              // legacy: JSON array of members
	ShapeKeyed             // current: JSON object keyed by member id
)

// MemberStore is a persisted members/admins field. Older rooms carry an
// array, newer ones a map keyed by member id; both decode here unchanged so
// the normalizer can decide whether a rewrite is due.
type MemberStore struct {
	Shape StoreShape
	List  []Member
	Keyed map[string]Member
}

func ListStore(members ...Member) MemberStore {
	return MemberStore{Shape: ShapeList, List: members}
}

func KeyedStore(members map[string]Member) MemberStore {
	if members == nil {
		members = make(map[string]Member)
	}
	return MemberStore{Shape: ShapeKeyed, Keyed: members}
}

func (s MemberStore) MarshalJSON() ([]byte, error) {
	switch s.Shape {
	case ShapeList:
		if s.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(s.List)
	case ShapeKeyed:
		if s.Keyed == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(s.Keyed)
	default:
		return []byte("null"), nil
	}
}

func (s *MemberStore) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*s = MemberStore{}
		return nil
	}

	switch trimmed[0] {
	case '[':
		var list []Member
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return fmt.Errorf("decode member list: %w", err)
		}
		*s = ListStore(list...)
	case '{':
		var keyed map[string]Member
		if err := json.Unmarshal(trimmed, &keyed); err != nil {
			return fmt.Errorf("decode member map: %w", err)
		}
		*s = KeyedStore(keyed)
	default:
		return fmt.Errorf("unsupported member store shape %q", trimmed[:1])
	}
	return nil
}

// Clone returns a deep copy so stores handed out by a directory can't alias.
func (s MemberStore) Clone() MemberStore {
	out := MemberStore{Shape: s.Shape}
	if s.List != nil {
		out.List = append([]Member(nil), s.List...)
	}
	if s.Keyed != nil {
		out.Keyed = make(map[string]Member, len(s.Keyed))
		for k, v := range s.Keyed {
			out.Keyed[k] = v
		}
	}
	return out
}
