package websocket

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"roomchat/internal/models"
	"roomchat/internal/presence"
	"roomchat/pkg/logger"
)

// Hub is the registry of live connections and the room fan-out. Presence
// lives in the tracker; the hub lock orders every attach, detach and
// delivery so that all connections in a room see events in one order.
type Hub struct {
	mu      sync.Mutex
	clients map[string]*Client
	tracker *presence.Tracker
	log     zerolog.Logger
}

func NewHub(tracker *presence.Tracker) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		tracker: tracker,
		log:     logger.Module("websocket.hub"),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.handle] = c
	h.mu.Unlock()

	h.log.Debug().Str("handle", c.handle).Str("user", c.identity.ID).Msg("client registered")
}

// Unregister closes c and detaches it from every room it was in, then
// refreshes presence in those rooms. Safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if c.closed {
		h.mu.Unlock()
		return
	}
	c.closed = true
	delete(h.clients, c.handle)

	var changed []string
	for roomID := range c.rooms {
		if h.tracker.Detach(roomID, c.identity.ID, c.handle) {
			changed = append(changed, roomID)
		}
	}
	c.rooms = nil
	close(c.send)
	h.mu.Unlock()

	h.log.Debug().Str("handle", c.handle).Str("user", c.identity.ID).Int("rooms", len(changed)).Msg("client unregistered")
	for _, roomID := range changed {
		h.BroadcastPresence(roomID)
	}
}

// Attach puts c into roomID's presence as member. It reports false when c
// has already gone away, in which case nothing is recorded.
func (h *Hub) Attach(roomID string, c *Client, member models.Member) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.closed {
		return false
	}
	h.tracker.Attach(roomID, member, c.handle)
	c.rooms[roomID] = struct{}{}
	return true
}

// Detach removes c from roomID. It reports whether c was attached.
func (h *Hub) Detach(roomID string, c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := c.rooms[roomID]; !ok {
		return false
	}
	delete(c.rooms, roomID)
	h.tracker.Detach(roomID, c.identity.ID, c.handle)
	return true
}

func (h *Hub) IsAttached(roomID string, c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := c.rooms[roomID]
	return ok
}

// RoomUsers lists the members currently connected to roomID.
func (h *Hub) RoomUsers(roomID string) []models.Member {
	return h.tracker.ListMembers(roomID)
}

func (h *Hub) BroadcastPresence(roomID string) {
	h.mu.Lock()
	event := models.RoomUsersEvent{
		Type:   models.EventRoomUsers,
		RoomID: roomID,
		Users:  h.tracker.ListMembers(roomID),
	}
	slow := h.deliverLocked(roomID, event)
	h.mu.Unlock()

	h.drop(slow)
}

// BroadcastMessage pushes msg to every connection attached to roomID.
func (h *Hub) BroadcastMessage(roomID string, msg *models.Message) {
	h.mu.Lock()
	slow := h.deliverLocked(roomID, models.NewMessageEvent{Type: models.EventNewMessage, Message: msg})
	h.mu.Unlock()

	h.drop(slow)
}

// SendTo queues v for c alone.
func (h *Hub) SendTo(c *Client, v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error().Err(err).Msg("marshal event")
		return false
	}

	h.mu.Lock()
	if c.closed {
		h.mu.Unlock()
		return false
	}
	ok := c.enqueue(data)
	h.mu.Unlock()

	if !ok {
		h.drop([]*Client{c})
	}
	return ok
}

// CloseAll terminates every live connection. Their read loops then
// unregister them as usual.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.conn.Close()
	}
	h.log.Info().Int("clients", len(clients)).Msg("closed all connections")
}

func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// deliverLocked sends v to roomID's connections and returns those whose
// buffers were full.
func (h *Hub) deliverLocked(roomID string, v any) []*Client {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error().Err(err).Str("room", roomID).Msg("marshal event")
		return nil
	}

	var slow []*Client
	for _, handle := range h.tracker.Handles(roomID) {
		c, ok := h.clients[handle]
		if !ok || c.closed {
			continue
		}
		if !c.enqueue(data) {
			slow = append(slow, c)
		}
	}
	return slow
}

func (h *Hub) drop(slow []*Client) {
	for _, c := range slow {
		h.log.Warn().Str("handle", c.handle).Str("user", c.identity.ID).Msg("send buffer full, dropping client")
		h.Unregister(c)
		c.disconnect()
	}
}
