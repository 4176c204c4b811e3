package presence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomchat/internal/models"
)

func member(id, name string) models.Member {
	return models.Member{ID: id, Name: name, Email: id + "@example.com", Role: models.RoleMember}
}

func TestTracker_MultipleHandlesKeepMemberListed(t *testing.T) {
	tr := NewTracker()
	alice := member("alice", "Alice")

	assert.True(t, tr.Attach("room-1", alice, "h1"))
	assert.False(t, tr.Attach("room-1", alice, "h2"))
	assert.False(t, tr.Attach("room-1", alice, "h3"))
	assert.Equal(t, 3, tr.HandleCount("room-1", "alice"))

	assert.False(t, tr.Detach("room-1", "alice", "h1"))
	assert.False(t, tr.Detach("room-1", "alice", "h2"))

	listed := tr.ListMembers("room-1")
	require.Len(t, listed, 1)
	assert.Equal(t, "alice", listed[0].ID)

	assert.True(t, tr.Detach("room-1", "alice", "h3"))
	assert.Empty(t, tr.ListMembers("room-1"))
	assert.Empty(t, tr.Rooms(), "empty room entry must be dropped")
}

func TestTracker_FirstSnapshotWins(t *testing.T) {
	tr := NewTracker()

	tr.Attach("r", member("bob", "Bob"), "h1")
	tr.Attach("r", member("bob", "Robert"), "h2")

	listed := tr.ListMembers("r")
	require.Len(t, listed, 1)
	assert.Equal(t, "Bob", listed[0].Name)
}

func TestTracker_ListMembersOrderAndEmptyRoom(t *testing.T) {
	tr := NewTracker()

	assert.NotNil(t, tr.ListMembers("nowhere"))
	assert.Empty(t, tr.ListMembers("nowhere"))

	tr.Attach("r", member("c", "C"), "h1")
	tr.Attach("r", member("a", "A"), "h2")
	tr.Attach("r", member("b", "B"), "h3")

	var ids []string
	for _, m := range tr.ListMembers("r") {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}

func TestTracker_DetachUnknownIsNoop(t *testing.T) {
	tr := NewTracker()
	tr.Attach("r", member("a", "A"), "h1")

	assert.False(t, tr.Detach("other", "a", "h1"))
	assert.False(t, tr.Detach("r", "ghost", "h1"))
	assert.False(t, tr.Detach("r", "a", "unknown-handle"))
	assert.Equal(t, 1, tr.HandleCount("r", "a"))
}

func TestTracker_RoomsAreIndependent(t *testing.T) {
	tr := NewTracker()
	a := member("a", "A")

	tr.Attach("r1", a, "h1")
	tr.Attach("r2", a, "h1")
	tr.Detach("r1", "a", "h1")

	assert.Empty(t, tr.ListMembers("r1"))
	assert.Len(t, tr.ListMembers("r2"), 1)
	assert.Equal(t, []string{"r2"}, tr.Rooms())
	assert.Equal(t, []string{"h1"}, tr.Handles("r2"))
}

func TestTracker_ConcurrentAttachDetach(t *testing.T) {
	tr := NewTracker()
	m := member("busy", "Busy")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h := fmt.Sprintf("h%d", i)
			tr.Attach("r", m, h)
			tr.ListMembers("r")
			tr.Detach("r", m.ID, h)
		}(i)
	}
	wg.Wait()

	assert.Empty(t, tr.Rooms())
}
