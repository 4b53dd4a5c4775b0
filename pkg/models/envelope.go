package models

import (
	"encoding/json"
	"time"
)

type EventType string

// server -> client
const (
	EventConnectionEstablished EventType = "connection_established"
	EventNewMessage            EventType = "new_message"
	EventStatusChange          EventType = "status_change"
	EventMessageEdited         EventType = "message_edited"
	EventMessageDeleted        EventType = "message_deleted"
	EventPresenceChange        EventType = "presence_change"
	EventPresenceSnapshot      EventType = "presence_snapshot"
	EventMarkReadAck           EventType = "mark_read_ack"
	EventPong                  EventType = "pong"
	EventError                 EventType = "error"
)

// client -> server; typing flows both ways
const (
	EventAck      EventType = "ack"
	EventMarkRead EventType = "mark_read"
	EventTyping   EventType = "typing"
	EventPing     EventType = "ping"
)

// Envelope is the frame format of the push channel.
type Envelope struct {
	Type      EventType       `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEnvelope marshals data into an envelope of the given type.
func NewEnvelope(t EventType, data any, at time.Time) (Envelope, error) {
	env := Envelope{Type: t, Timestamp: at}
	if data == nil {
		return env, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	env.Data = b
	return env, nil
}

// Decode unmarshals the envelope payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return json.Unmarshal([]byte("{}"), v)
	}
	return json.Unmarshal(e.Data, v)
}

type ConnectionEstablished struct {
	UserEmail    string `json:"user_email"`
	ConnectionID string `json:"connection_id"`
	Message      string `json:"message"`
}

type StatusChange struct {
	MessageID   string        `json:"message_id"`
	Sender      string        `json:"sender"`
	Recipient   string        `json:"recipient"`
	From        MessageStatus `json:"from"`
	Status      MessageStatus `json:"status"`
	DeliveredAt *time.Time    `json:"delivered_at,omitempty"`
	ReadAt      *time.Time    `json:"read_at,omitempty"`
}

type MessageDeleted struct {
	MessageID string `json:"message_id"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
}

type PresenceChange struct {
	UserEmail string    `json:"user_email"`
	IsOnline  bool      `json:"is_online"`
	Timestamp time.Time `json:"timestamp"`
}

type PresenceSnapshot struct {
	Users []PresenceChange `json:"users"`
}

type Typing struct {
	UserEmail string `json:"user_email"`
	Recipient string `json:"recipient"`
	IsTyping  bool   `json:"is_typing"`
}

type MarkReadAck struct {
	Partner       string `json:"partner"`
	UpToMessageID string `json:"up_to_message_id,omitempty"`
	Updated       int    `json:"updated"`
}

type ErrorEvent struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// client payloads

type AckRequest struct {
	MessageID string `json:"message_id"`
}

type MarkReadRequest struct {
	Partner       string `json:"partner"`
	UpToMessageID string `json:"up_to_message_id,omitempty"`
}

type TypingRequest struct {
	Recipient string `json:"recipient"`
	IsTyping  bool   `json:"is_typing"`
}
