// Package presence tracks which members are connected to which rooms.
//
// State lives in process memory only and starts empty. A member may be
// attached through several connection handles at once; the member stays
// listed until the last of them detaches.
package presence

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"roomchat/internal/models"
)

type entry struct {
	member  models.Member
	handles map[string]struct{}
	order   uint64
}

type Tracker struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*entry // roomID -> memberID -> entry
	seq   uint64
}

func NewTracker() *Tracker {
	return &Tracker{rooms: make(map[string]map[string]*entry)}
}

// Attach adds handle to member's entry in roomID, creating the entry if
// needed. A repeat attach keeps the snapshot stored by the first one.
// It reports whether a new member entry was created.
func (t *Tracker) Attach(roomID string, member models.Member, handle string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	room := t.rooms[roomID]
	if room == nil {
		room = make(map[string]*entry)
		t.rooms[roomID] = room
	}

	if e, ok := room[member.ID]; ok {
		e.handles[handle] = struct{}{}
		return false
	}

	t.seq++
	room[member.ID] = &entry{
		member:  member,
		handles: map[string]struct{}{handle: {}},
		order:   t.seq,
	}
	log.Debug().Str("module", "presence").Str("room", roomID).Str("member", member.ID).Msg("member attached")
	return true
}

// Detach removes handle from the member's entry. Empty entries and empty
// rooms are dropped. It reports whether the member entry was removed.
func (t *Tracker) Detach(roomID, memberID, handle string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	room := t.rooms[roomID]
	if room == nil {
		return false
	}
	e, ok := room[memberID]
	if !ok {
		return false
	}

	delete(e.handles, handle)
	if len(e.handles) > 0 {
		return false
	}

	delete(room, memberID)
	if len(room) == 0 {
		delete(t.rooms, roomID)
	}
	log.Debug().Str("module", "presence").Str("room", roomID).Str("member", memberID).Msg("member detached")
	return true
}

// ListMembers returns the attached members of roomID in first-attach order.
// The result is never nil.
func (t *Tracker) ListMembers(roomID string) []models.Member {
	t.mu.RLock()
	defer t.mu.RUnlock()

	room := t.rooms[roomID]
	entries := make([]*entry, 0, len(room))
	for _, e := range room {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].order < entries[j].order })

	members := make([]models.Member, len(entries))
	for i, e := range entries {
		members[i] = e.member
	}
	return members
}

// Handles returns every connection handle attached to roomID.
func (t *Tracker) Handles(roomID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var handles []string
	for _, e := range t.rooms[roomID] {
		for h := range e.handles {
			handles = append(handles, h)
		}
	}
	return handles
}

func (t *Tracker) HandleCount(roomID, memberID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if e, ok := t.rooms[roomID][memberID]; ok {
		return len(e.handles)
	}
	return 0
}

func (t *Tracker) Rooms() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rooms := make([]string, 0, len(t.rooms))
	for id := range t.rooms {
		rooms = append(rooms, id)
	}
	sort.Strings(rooms)
	return rooms
}
