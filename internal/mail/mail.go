// Package mail delivers invitation emails.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
)

// InvitationEmail is everything needed to render one invitation.
type InvitationEmail struct {
	To         string `json:"to"`
	RoomName   string `json:"roomName"`
	InvitedBy  string `json:"invitedBy"`
	InviteLink string `json:"inviteLink"`
}

type Mailer interface {
	SendInvitation(ctx context.Context, email InvitationEmail) error
}

var invitationTemplate = template.Must(template.New("invitation").Parse(`<div style="font-family: Arial, sans-serif; line-height:1.6;">
  <h2>You're invited to a chat room!</h2>
  <p><strong>{{.InvitedBy}}</strong> invited you to join:</p>
  <p><strong>{{.RoomName}}</strong></p>
  <p style="margin:24px 0;">
    <a href="{{.InviteLink}}" style="background:#4f46e5;color:#fff;padding:12px 20px;text-decoration:none;border-radius:6px;font-weight:600;">Join Room</a>
  </p>
  <p>If the button doesn't work, open this link:</p>
  <p>{{.InviteLink}}</p>
</div>`))

// Render returns the subject and HTML body for email.
func Render(email InvitationEmail) (subject, html string, err error) {
	var buf bytes.Buffer
	if err := invitationTemplate.Execute(&buf, email); err != nil {
		return "", "", fmt.Errorf("render invitation: %w", err)
	}
	return fmt.Sprintf("You're invited to join %q", email.RoomName), buf.String(), nil
}
