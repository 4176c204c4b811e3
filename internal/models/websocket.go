package models

type EventType string

const (
	// inbound
	EventJoinRoom    EventType = "join_room"
	EventLeaveRoom   EventType = "leave_room"
	EventSendMessage EventType = "send_message"

	// outbound
	EventMessageHistory EventType = "message_history"
	EventNewMessage     EventType = "new_message"
	EventRoomUsers      EventType = "room_users"
	EventNotification   EventType = "notification"
)

// ClientEvent is any frame a client sends. Fields unused by a type are empty.
type ClientEvent struct {
	Type     EventType `json:"type"`
	RoomID   string    `json:"roomId"`
	Password string    `json:"password,omitempty"`
	Content  string    `json:"content,omitempty"`
}

type MessageHistoryEvent struct {
	Type     EventType  `json:"type"`
	RoomID   string     `json:"roomId"`
	Messages []*Message `json:"messages"`
}

type NewMessageEvent struct {
	Type    EventType `json:"type"`
	Message *Message  `json:"message"`
}

type RoomUsersEvent struct {
	Type   EventType `json:"type"`
	RoomID string    `json:"roomId"`
	Users  []Member  `json:"users"`
}

type NotificationEvent struct {
	Type    EventType `json:"type"`
	RoomID  string    `json:"roomId,omitempty"`
	Message string    `json:"message"`
	Code    string    `json:"code,omitempty"`
}
