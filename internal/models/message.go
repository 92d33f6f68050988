package models

import "time"

// Message is an immutable chat record within a group. IDs are assigned by
// the store at append time and are strictly increasing per group.
type Message struct {
	ID        int64     `db:"id" json:"id"`
	GroupID   int       `db:"group_id" json:"group_id"`
	SenderUID int       `db:"sender_id" json:"sender_uid"`
	Text      string    `db:"content" json:"text"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// RoomEvent is emitted over websocket connections subscribed to a group.
type RoomEvent struct {
	Type    string   `json:"type"`
	Message *Message `json:"message,omitempty"`
}

// EventMessageNew is the event type carrying a freshly persisted message.
const EventMessageNew = "message:new"
