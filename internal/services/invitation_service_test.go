package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomchat/internal/database"
	apperr "roomchat/internal/errors"
	"roomchat/internal/mail"
	"roomchat/internal/models"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []mail.InvitationEmail
	fail map[string]bool
}

func (m *fakeMailer) SendInvitation(_ context.Context, email mail.InvitationEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[email.To] {
		return errors.New("smtp down")
	}
	m.sent = append(m.sent, email)
	return nil
}

func (m *fakeMailer) tokenFor(t *testing.T, to string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].To == to {
			link := m.sent[i].InviteLink
			return link[strings.LastIndex(link, "/")+1:]
		}
	}
	t.Fatalf("no invitation sent to %s", to)
	return ""
}

type invitationFixture struct {
	db          *database.MemoryDB
	rooms       *RoomService
	invitations *InvitationService
	mailer      *fakeMailer
}

func newInvitationFixture(t *testing.T) *invitationFixture {
	t.Helper()
	db := database.NewMemoryDB()
	mailer := &fakeMailer{fail: map[string]bool{}}
	return &invitationFixture{
		db:          db,
		rooms:       NewRoomService(db, nil),
		invitations: NewInvitationService(db, mailer, "http://app.test/"),
		mailer:      mailer,
	}
}

func TestSendInvitations_FiltersAndCaps(t *testing.T) {
	f := newInvitationFixture(t)
	room := createRoom(t, f.rooms, "general", "", "")
	ctx := context.Background()

	_, err := f.invitations.SendInvitations(ctx, room.ID, alice, []string{"", "not-an-email"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, "Provide at least one valid email address", err.Error())

	many := make([]string, 0, 26)
	for i := 0; i < 26; i++ {
		many = append(many, strings.Repeat("a", i+1)+"@x.com")
	}
	_, err = f.invitations.SendInvitations(ctx, room.ID, alice, many)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, "You can invite up to 25 people at once", err.Error())

	batch, err := f.invitations.SendInvitations(ctx, room.ID, alice, []string{" Dave@X.com ", "dave@x.com", "bad"})
	require.NoError(t, err)
	require.Len(t, batch.Outcomes, 1)
	assert.Equal(t, "dave@x.com", batch.Outcomes[0].Email)
	assert.False(t, batch.Outcomes[0].Skipped())
}

func TestSendInvitations_OnlyAdmins(t *testing.T) {
	f := newInvitationFixture(t)
	room := createRoom(t, f.rooms, "general", "", "")
	ctx := context.Background()
	_, err := f.rooms.JoinRoom(ctx, room.ID, bob, "")
	require.NoError(t, err)

	_, err = f.invitations.SendInvitations(ctx, room.ID, bob, []string{"dave@x.com"})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.invitations.SendInvitations(ctx, "missing", alice, []string{"dave@x.com"})
	assert.ErrorIs(t, err, apperr.ErrRoomNotFound)
}

func TestSendInvitations_PendingUniqueness(t *testing.T) {
	f := newInvitationFixture(t)
	room := createRoom(t, f.rooms, "general", "", "")
	ctx := context.Background()

	first, err := f.invitations.SendInvitations(ctx, room.ID, alice, []string{"alice@x.com"})
	require.NoError(t, err)
	require.False(t, first.Outcomes[0].Skipped())
	assert.Equal(t, "http://app.test/invite/accept/"+f.mailer.tokenFor(t, "alice@x.com"), f.mailer.sent[0].InviteLink)

	second, err := f.invitations.SendInvitations(ctx, room.ID, alice, []string{"alice@x.com"})
	require.NoError(t, err)
	require.True(t, second.Outcomes[0].Skipped())
	assert.Equal(t, "Invitation already pending for this email", second.Outcomes[0].Reason)

	resp := second.Response()
	assert.Empty(t, resp.Invitations)
	assert.Len(t, resp.Skipped, 1)

	// accepting frees the slot
	token := f.mailer.tokenFor(t, "alice@x.com")
	_, err = f.invitations.AcceptInvitation(ctx, token, alice)
	require.NoError(t, err)

	third, err := f.invitations.SendInvitations(ctx, room.ID, alice, []string{"alice@x.com"})
	require.NoError(t, err)
	assert.False(t, third.Outcomes[0].Skipped())
}

func TestSendInvitations_RollsBackFailedDelivery(t *testing.T) {
	f := newInvitationFixture(t)
	room := createRoom(t, f.rooms, "general", "", "")
	ctx := context.Background()
	f.mailer.fail["down@x.com"] = true

	batch, err := f.invitations.SendInvitations(ctx, room.ID, alice, []string{"down@x.com", "up@x.com"})
	require.NoError(t, err)
	require.Len(t, batch.Outcomes, 2)
	assert.True(t, batch.Outcomes[0].Skipped())
	assert.Equal(t, "Failed to deliver invitation email", batch.Outcomes[0].Reason)
	assert.False(t, batch.Outcomes[1].Skipped())

	_, err = f.db.QueryInvitationByField(ctx, models.InvitationByPendingKey, room.ID+"::down@x.com")
	assert.ErrorIs(t, err, database.ErrNotFound)

	// a retry after delivery recovers is not blocked by the rolled back record
	delete(f.mailer.fail, "down@x.com")
	retry, err := f.invitations.SendInvitations(ctx, room.ID, alice, []string{"down@x.com"})
	require.NoError(t, err)
	assert.False(t, retry.Outcomes[0].Skipped())
}

func TestAcceptInvitation_Errors(t *testing.T) {
	f := newInvitationFixture(t)
	room := createRoom(t, f.rooms, "general", "", "")
	ctx := context.Background()

	_, err := f.invitations.AcceptInvitation(ctx, "nope", bob)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.invitations.SendInvitations(ctx, room.ID, alice, []string{"bob@x.com"})
	require.NoError(t, err)
	token := f.mailer.tokenFor(t, "bob@x.com")

	_, err = f.invitations.AcceptInvitation(ctx, token, carol)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	shouting := &models.Identity{ID: bob.ID, Name: bob.Name, Email: "BOB@X.COM"}
	_, err = f.invitations.AcceptInvitation(ctx, token, shouting)
	require.NoError(t, err)

	_, err = f.invitations.AcceptInvitation(ctx, token, bob)
	assert.ErrorIs(t, err, apperr.ErrGone)
	assert.Equal(t, "Invitation already used", err.Error())
}

func TestAcceptInvitation_RoomRemoved(t *testing.T) {
	f := newInvitationFixture(t)
	ctx := context.Background()

	_, err := f.db.AppendInvitation(ctx, &models.NewInvitation{
		RoomID:           "gone-room",
		RoomName:         "gone",
		Email:            bob.Email,
		Token:            "tok",
		PendingLookupKey: "gone-room::" + bob.Email,
	})
	require.NoError(t, err)

	_, err = f.invitations.AcceptInvitation(ctx, "tok", bob)
	assert.ErrorIs(t, err, apperr.ErrGone)
	assert.Equal(t, "Room is no longer available", err.Error())
}

func TestGetInvitation(t *testing.T) {
	f := newInvitationFixture(t)
	room := createRoom(t, f.rooms, "general", "", "")
	ctx := context.Background()

	_, err := f.invitations.SendInvitations(ctx, room.ID, alice, []string{"bob@x.com"})
	require.NoError(t, err)

	inv, err := f.invitations.GetInvitation(ctx, f.mailer.tokenFor(t, "bob@x.com"))
	require.NoError(t, err)
	assert.Equal(t, "general", inv.RoomName)
	assert.Equal(t, models.InvitationPending, inv.Status)
	assert.Equal(t, models.RoleAdmin, inv.CreatedBy.Role)

	_, err = f.invitations.GetInvitation(ctx, "  ")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestVaultScenario(t *testing.T) {
	f := newInvitationFixture(t)
	ctx := context.Background()

	vault := createRoom(t, f.rooms, "Vault", "private", "abcd")

	res, err := f.rooms.JoinRoom(ctx, vault.ID, alice, "")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, res.Member.Role)

	_, err = f.rooms.JoinRoom(ctx, vault.ID, bob, "wrong")
	require.ErrorIs(t, err, apperr.ErrPasswordIncorrect)
	assert.Equal(t, 403, apperr.CodeOf(err).HTTPStatus())

	res, err = f.rooms.JoinRoom(ctx, vault.ID, bob, "abcd")
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, res.Member.Role)

	batch, err := f.invitations.SendInvitations(ctx, vault.ID, alice, []string{carol.Email})
	require.NoError(t, err)
	require.False(t, batch.Outcomes[0].Skipped())

	accepted, err := f.invitations.AcceptInvitation(ctx, f.mailer.tokenFor(t, carol.Email), carol)
	require.NoError(t, err)
	assert.Equal(t, models.InvitationAccepted, accepted.Invitation.Status)
	require.NotNil(t, accepted.Invitation.AcceptedAt)
	require.NotNil(t, accepted.Invitation.AcceptedBy)
	assert.Equal(t, carol.ID, accepted.Invitation.AcceptedBy.ID)
	assert.Empty(t, accepted.Invitation.PendingLookupKey)

	stored, err := f.db.GetRoom(ctx, vault.ID)
	require.NoError(t, err)
	assert.Contains(t, stored.Members.Keyed, carol.ID)
	assert.Equal(t, models.RoleMember, stored.Members.Keyed[carol.ID].Role)
}
