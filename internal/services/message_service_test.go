package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomchat/internal/database"
	apperr "roomchat/internal/errors"
	"roomchat/internal/models"
)

type recordingBroadcaster struct {
	mu   sync.Mutex
	sent []*models.Message
}

func (r *recordingBroadcaster) BroadcastMessage(_ string, msg *models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
}

func (r *recordingBroadcaster) contents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.sent))
	for i, m := range r.sent {
		out[i] = m.Content
	}
	return out
}

func newMessageFixture(t *testing.T) (*database.MemoryDB, *RoomService, *MessageService, *recordingBroadcaster) {
	t.Helper()
	db := database.NewMemoryDB()
	rooms := NewRoomService(db, nil)
	messages := NewMessageService(db)
	b := &recordingBroadcaster{}
	messages.SetBroadcaster(b)
	return db, rooms, messages, b
}

func TestSendMessage_RejectsEmptyContent(t *testing.T) {
	_, rooms, messages, b := newMessageFixture(t)
	room := createRoom(t, rooms, "general", "", "")

	_, err := messages.SendMessage(context.Background(), room.ID, alice, " \n\t ", false)
	assert.ErrorIs(t, err, apperr.ErrEmptyMessage)
	assert.Empty(t, b.contents())
}

func TestSendMessage_PersistsAndBroadcastsInOrder(t *testing.T) {
	_, rooms, messages, b := newMessageFixture(t)
	room := createRoom(t, rooms, "general", "", "")
	ctx := context.Background()
	_, err := rooms.JoinRoom(ctx, room.ID, bob, "")
	require.NoError(t, err)

	a, err := messages.SendMessage(ctx, room.ID, alice, "  A  ", false)
	require.NoError(t, err)
	assert.Equal(t, "A", a.Content)
	assert.Equal(t, models.RoleAdmin, a.Sender.Role)

	msgB, err := messages.SendMessage(ctx, room.ID, bob, "B", false)
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, msgB.Sender.Role)

	assert.Equal(t, []string{"A", "B"}, b.contents())

	history, err := messages.History(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "A", history[0].Content)
	assert.Equal(t, "B", history[1].Content)
}

func TestSendMessage_ConcurrentSendsBroadcastInStoredOrder(t *testing.T) {
	_, rooms, messages, b := newMessageFixture(t)
	room := createRoom(t, rooms, "general", "", "")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := messages.SendMessage(ctx, room.ID, alice, fmt.Sprintf("m%d", i), false)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	history, err := messages.History(ctx, room.ID)
	require.NoError(t, err)
	stored := make([]string, len(history))
	for i, m := range history {
		stored[i] = m.Content
	}
	assert.Equal(t, stored, b.contents())
}

func TestSendMessage_HealsMembershipInPublicRoom(t *testing.T) {
	db, rooms, messages, _ := newMessageFixture(t)
	room := createRoom(t, rooms, "general", "", "")
	ctx := context.Background()

	_, err := messages.SendMessage(ctx, room.ID, carol, "hi", false)
	require.NoError(t, err)

	stored, err := db.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Contains(t, stored.Members.Keyed, carol.ID)
}

func TestSendMessage_PasswordRoomRequiresJoin(t *testing.T) {
	db, rooms, messages, b := newMessageFixture(t)
	room := createRoom(t, rooms, "vault", "private", "abcd")
	ctx := context.Background()

	_, err := messages.SendMessage(ctx, room.ID, bob, "let me in", false)
	assert.ErrorIs(t, err, apperr.ErrNotAMember)
	assert.Empty(t, b.contents())

	_, err = messages.SendMessage(ctx, room.ID, bob, "joined on this connection", true)
	require.NoError(t, err)

	stored, err := db.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Contains(t, stored.Members.Keyed, bob.ID)
}

func TestSendMessage_UnknownRoom(t *testing.T) {
	_, _, messages, _ := newMessageFixture(t)
	_, err := messages.SendMessage(context.Background(), "missing", alice, "hi", true)
	assert.ErrorIs(t, err, apperr.ErrRoomNotFound)
}

func TestListMessages_RequiresMembership(t *testing.T) {
	_, rooms, messages, _ := newMessageFixture(t)
	room := createRoom(t, rooms, "general", "", "")
	ctx := context.Background()

	_, err := messages.SendMessage(ctx, room.ID, alice, "hello", false)
	require.NoError(t, err)

	_, err = messages.ListMessages(ctx, room.ID, bob)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	list, err := messages.ListMessages(ctx, room.ID, alice)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "hello", list[0].Content)
}

func TestHistory_KeepsLatestInAscendingOrder(t *testing.T) {
	_, rooms, messages, _ := newMessageFixture(t)
	room := createRoom(t, rooms, "general", "", "")
	ctx := context.Background()

	for i := 0; i < HistoryLimit+5; i++ {
		_, err := messages.SendMessage(ctx, room.ID, alice, fmt.Sprintf("m%03d", i), false)
		require.NoError(t, err)
	}

	history, err := messages.History(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, history, HistoryLimit)
	assert.Equal(t, "m005", history[0].Content)
	assert.Equal(t, fmt.Sprintf("m%03d", HistoryLimit+4), history[len(history)-1].Content)
}
