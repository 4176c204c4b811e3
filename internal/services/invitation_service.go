package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"roomchat/internal/database"
	apperr "roomchat/internal/errors"
	"roomchat/internal/mail"
	"roomchat/internal/membership"
	"roomchat/internal/models"
	"roomchat/pkg/logger"
)

const (
	maxInvitationsPerRequest = 25

	reasonAlreadyPending  = "Invitation already pending for this email"
	reasonDeliveryFailed  = "Failed to deliver invitation email"
	reasonCreationFailed  = "Failed to create invitation"
	invitationTokenLength = 32
)

// InvitationOutcome is the result for one recipient of a batch: either
// Created is set or Reason says why the email was skipped.
type InvitationOutcome struct {
	Email   string
	Created *models.Invitation
	Reason  string
}

func (o InvitationOutcome) Skipped() bool { return o.Created == nil }

type InvitationBatch struct {
	Outcomes []InvitationOutcome
}

func (b *InvitationBatch) Response() models.SendInvitationsResponse {
	resp := models.SendInvitationsResponse{
		Invitations: []models.InvitationResponse{},
		Skipped:     []models.SkippedInvitation{},
	}
	for _, o := range b.Outcomes {
		if o.Skipped() {
			resp.Skipped = append(resp.Skipped, models.SkippedInvitation{Email: o.Email, Reason: o.Reason})
			continue
		}
		resp.Invitations = append(resp.Invitations, o.Created.Response())
	}
	return resp
}

// AcceptResult is returned once an invitation has been redeemed.
type AcceptResult struct {
	Invitation *models.Invitation
	Room       *models.Room
}

type InvitationService struct {
	db       database.Directory
	access   *roomAccess
	mailer   mail.Mailer
	validate *validator.Validate
	baseURL  string
	newToken func() (string, error)
	log      zerolog.Logger
}

// NewInvitationService builds invitation links on top of baseURL, the client
// application's origin.
func NewInvitationService(db database.Directory, mailer mail.Mailer, baseURL string) *InvitationService {
	log := logger.Module("services.invitation")
	return &InvitationService{
		db:       db,
		access:   &roomAccess{db: db, log: log},
		mailer:   mailer,
		validate: validator.New(),
		baseURL:  strings.TrimRight(baseURL, "/"),
		newToken: randomToken,
		log:      log,
	}
}

func randomToken() (string, error) {
	buf := make([]byte, invitationTokenLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func pendingLookupKey(roomID, email string) string {
	return roomID + "::" + email
}

// cleanEmails lower-cases, validates and de-duplicates emails, keeping the
// order they were given in.
func (s *InvitationService) cleanEmails(emails []string) []string {
	seen := make(map[string]struct{}, len(emails))
	out := make([]string, 0, len(emails))
	for _, raw := range emails {
		email := strings.ToLower(strings.TrimSpace(raw))
		if email == "" {
			continue
		}
		if err := s.validate.Var(email, "email"); err != nil {
			continue
		}
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}
		out = append(out, email)
	}
	return out
}

// SendInvitations invites every valid address in emails to roomID. Each
// recipient is handled on its own; one failing does not stop the others.
func (s *InvitationService) SendInvitations(ctx context.Context, roomID string, user *models.Identity, emails []string) (*InvitationBatch, error) {
	recipients := s.cleanEmails(emails)
	if len(recipients) == 0 {
		return nil, apperr.Validation("Provide at least one valid email address")
	}
	if len(recipients) > maxInvitationsPerRequest {
		return nil, apperr.Validationf("You can invite up to %d people at once", maxInvitationsPerRequest)
	}

	loaded, err := s.access.load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !loaded.isAdmin(user.ID) {
		return nil, apperr.Forbidden("Only room admins can send invitations")
	}

	inviter, ok := loaded.member(user.ID)
	if !ok {
		inviter = membership.Snapshot(user, models.RoleAdmin)
	}
	inviter.Role = models.RoleAdmin

	batch := &InvitationBatch{Outcomes: make([]InvitationOutcome, 0, len(recipients))}
	for _, email := range recipients {
		batch.Outcomes = append(batch.Outcomes, s.invite(ctx, loaded.room, inviter, email))
	}

	created := 0
	for _, o := range batch.Outcomes {
		if !o.Skipped() {
			created++
		}
	}
	s.log.Info().
		Str("room", roomID).
		Str("user", user.ID).
		Int("created", created).
		Int("skipped", len(batch.Outcomes)-created).
		Msg("invitations processed")
	return batch, nil
}

func (s *InvitationService) invite(ctx context.Context, room *models.Room, inviter models.Member, email string) InvitationOutcome {
	key := pendingLookupKey(room.ID, email)
	skip := func(reason string) InvitationOutcome {
		return InvitationOutcome{Email: email, Reason: reason}
	}

	if _, err := s.db.QueryInvitationByField(ctx, models.InvitationByPendingKey, key); err == nil {
		return skip(reasonAlreadyPending)
	} else if !errors.Is(err, database.ErrNotFound) {
		s.log.Error().Err(err).Str("room", room.ID).Msg("pending invitation lookup failed")
		return skip(reasonCreationFailed)
	}

	token, err := s.newToken()
	if err != nil {
		s.log.Error().Err(err).Msg("invitation token generation failed")
		return skip(reasonCreationFailed)
	}

	inv, err := s.db.AppendInvitation(ctx, &models.NewInvitation{
		RoomID:           room.ID,
		RoomName:         room.Name,
		Email:            email,
		Token:            token,
		PendingLookupKey: key,
		CreatedBy:        inviter,
	})
	if errors.Is(err, database.ErrDuplicate) {
		return skip(reasonAlreadyPending)
	}
	if err != nil {
		s.log.Error().Err(err).Str("room", room.ID).Msg("invitation insert failed")
		return skip(reasonCreationFailed)
	}

	err = s.mailer.SendInvitation(ctx, mail.InvitationEmail{
		To:         email,
		RoomName:   room.Name,
		InvitedBy:  inviter.Name,
		InviteLink: s.baseURL + "/invite/accept/" + token,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("room", room.ID).Str("invitation", inv.ID).Msg("invitation delivery failed, rolling back")
		if derr := s.db.DeleteInvitation(ctx, inv.ID); derr != nil && !errors.Is(derr, database.ErrNotFound) {
			s.log.Error().Err(derr).Str("invitation", inv.ID).Msg("invitation rollback failed")
		}
		return skip(reasonDeliveryFailed)
	}

	return InvitationOutcome{Email: email, Created: inv}
}

// GetInvitation looks an invitation up by its token.
func (s *InvitationService) GetInvitation(ctx context.Context, token string) (*models.Invitation, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperr.NotFound("Invitation not found")
	}
	inv, err := s.db.QueryInvitationByField(ctx, models.InvitationByToken, token)
	if err != nil {
		return nil, storageError(err, apperr.NotFound("Invitation not found"))
	}
	return inv, nil
}

// AcceptInvitation redeems token for user, making them a member of the
// invited room without a password.
func (s *InvitationService) AcceptInvitation(ctx context.Context, token string, user *models.Identity) (*AcceptResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperr.NotFound("Invitation not found or expired")
	}
	inv, err := s.db.QueryInvitationByField(ctx, models.InvitationByToken, token)
	if err != nil {
		return nil, storageError(err, apperr.NotFound("Invitation not found or expired"))
	}

	if inv.Status == models.InvitationAccepted {
		return nil, apperr.Gone("Invitation already used")
	}
	if !strings.EqualFold(strings.TrimSpace(user.Email), inv.Email) {
		return nil, apperr.Forbidden("Invitation email does not match your account")
	}

	loaded, member, _, err := s.access.admit(ctx, inv.RoomID, user)
	if errors.Is(err, apperr.ErrRoomNotFound) {
		return nil, apperr.Gone("Room is no longer available")
	}
	if err != nil {
		return nil, err
	}

	status := models.InvitationAccepted
	err = s.db.MergeInvitationFields(ctx, inv.ID, models.InvitationFields{
		Status:          &status,
		AcceptedBy:      &member,
		StampAccepted:   true,
		ClearPendingKey: true,
	})
	if err != nil {
		return nil, storageError(err, apperr.NotFound("Invitation not found or expired"))
	}

	updated, err := s.db.QueryInvitationByField(ctx, models.InvitationByToken, token)
	if err != nil {
		return nil, storageError(err, apperr.NotFound("Invitation not found or expired"))
	}

	s.log.Info().Str("room", inv.RoomID).Str("invitation", inv.ID).Str("user", user.ID).Msg("invitation accepted")
	return &AcceptResult{Invitation: updated, Room: loaded.room}, nil
}
