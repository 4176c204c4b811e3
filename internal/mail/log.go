package mail

import (
	"context"

	"github.com/rs/zerolog"

	"roomchat/pkg/logger"
)

// LogMailer writes invitations to the log instead of sending them. The link
// is logged so local setups can follow it.
type LogMailer struct {
	log zerolog.Logger
}

func NewLogMailer() *LogMailer {
	return &LogMailer{log: logger.Module("mail")}
}

func (m *LogMailer) SendInvitation(_ context.Context, email InvitationEmail) error {
	m.log.Info().
		Str("to", email.To).
		Str("room", email.RoomName).
		Str("invited_by", email.InvitedBy).
		Str("link", email.InviteLink).
		Msg("invitation email (log driver)")
	return nil
}
