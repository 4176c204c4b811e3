package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
)

// InvitationField names the fields an invitation can be looked up by.
type InvitationField string

const (
	InvitationByToken      InvitationField = "token"
	InvitationByPendingKey InvitationField = "pending_lookup_key"
)

// Invitation grants password-free entry to one room for one email address.
// PendingLookupKey is set while the invitation is pending and cleared on
// acceptance, which frees the (room, email) slot for a later invite.
type Invitation struct {
	ID               string
	RoomID           string
	RoomName         string
	Email            string
	Token            string
	Status           InvitationStatus
	PendingLookupKey string
	CreatedBy        Member
	CreatedAt        time.Time
	AcceptedAt       *time.Time
	AcceptedBy       *Member
}

type NewInvitation struct {
	RoomID           string
	RoomName         string
	Email            string
	Token            string
	PendingLookupKey string
	CreatedBy        Member
}

// InvitationFields is a partial invitation update.
type InvitationFields struct {
	Status          *InvitationStatus
	AcceptedBy      *Member
	StampAccepted   bool
	ClearPendingKey bool
}

// InvitationResponse never carries the token.
type InvitationResponse struct {
	ID         string           `json:"id"`
	RoomID     string           `json:"roomId"`
	RoomName   string           `json:"roomName"`
	Email      string           `json:"email"`
	Status     InvitationStatus `json:"status"`
	CreatedBy  Member           `json:"createdBy"`
	CreatedAt  time.Time        `json:"createdAt"`
	AcceptedAt *time.Time       `json:"acceptedAt"`
}

func (inv *Invitation) Response() InvitationResponse {
	resp := InvitationResponse{
		ID:        inv.ID,
		RoomID:    inv.RoomID,
		RoomName:  inv.RoomName,
		Email:     inv.Email,
		Status:    inv.Status,
		CreatedBy: inv.CreatedBy,
		CreatedAt: inv.CreatedAt,
	}
	if inv.Status == InvitationAccepted {
		resp.AcceptedAt = inv.AcceptedAt
	}
	return resp
}

type SendInvitationsRequest struct {
	Emails EmailList `json:"emails"`
}

// EmailList decodes either a JSON array of addresses or a single
// comma-separated string.
type EmailList []string

func (l *EmailList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*l = nil
		return nil
	}

	switch trimmed[0] {
	case '[':
		var list []string
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return fmt.Errorf("decode email list: %w", err)
		}
		*l = list
	case '"':
		var joined string
		if err := json.Unmarshal(trimmed, &joined); err != nil {
			return fmt.Errorf("decode email list: %w", err)
		}
		*l = strings.Split(joined, ",")
	default:
		return fmt.Errorf("unsupported email list shape %q", trimmed[:1])
	}
	return nil
}

type SkippedInvitation struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

type SendInvitationsResponse struct {
	Invitations []InvitationResponse `json:"invitations"`
	Skipped     []SkippedInvitation  `json:"skipped"`
}

type AcceptInvitationResponse struct {
	Invitation InvitationResponse `json:"invitation"`
	RoomID     string             `json:"roomId"`
	RoomName   string             `json:"roomName"`
}
