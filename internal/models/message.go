package models

import "time"

// Message is a persisted chat message. Sender is a snapshot taken at send
// time and is never rewritten afterwards.
type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	Content   string    `json:"content"`
	Sender    Member    `json:"sender"`
	CreatedAt time.Time `json:"createdAt"`
}

type NewMessage struct {
	RoomID  string
	Content string
	Sender  Member
}

type SendMessageRequest struct {
	Content string `json:"content"`
}
