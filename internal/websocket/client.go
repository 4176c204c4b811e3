package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"roomchat/internal/models"
	"roomchat/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 16 * 1024
	sendBuffer     = 256
)

// Client is one live websocket connection.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	handle   string
	identity *models.Identity
	log      zerolog.Logger

	// guarded by hub.mu
	rooms  map[string]struct{}
	closed bool
}

func NewClient(hub *Hub, conn *websocket.Conn, identity *models.Identity) *Client {
	handle := uuid.NewString()
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		handle:   handle,
		identity: identity,
		rooms:    make(map[string]struct{}),
		log:      logger.Module("websocket.client").With().Str("handle", handle).Str("user", identity.ID).Logger(),
	}
}

func (c *Client) Handle() string { return c.handle }

func (c *Client) Identity() *models.Identity { return c.identity }

// enqueue must be called with hub.mu held and c open.
func (c *Client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// ReadPump decodes inbound frames and hands them to dispatch one at a time.
// It returns when the connection fails or closes, after unregistering c.
func (c *Client) ReadPump(ctx context.Context, dispatch func(context.Context, models.ClientEvent)) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("websocket read error")
			}
			return
		}

		var event models.ClientEvent
		if err := json.Unmarshal(data, &event); err != nil {
			c.log.Debug().Err(err).Msg("malformed frame")
			c.hub.SendTo(c, models.NotificationEvent{
				Type:    models.EventNotification,
				Message: "Malformed event",
			})
			continue
		}
		dispatch(ctx, event)
	}
}

// disconnect closes the socket so ReadPump stops reading from an evicted client.
func (c *Client) disconnect() {
	if c.conn != nil {
		c.conn.Close()
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug().Err(err).Msg("websocket write error")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
