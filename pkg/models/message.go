package models

import "time"

// MessageStatus is the delivery state of a message. Transitions only move
// forward: sent -> delivered -> read.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// Rank orders statuses; unknown values rank below sent.
func (s MessageStatus) Rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

func (s MessageStatus) Valid() bool { return s.Rank() > 0 }

type Message struct {
	ID          string        `json:"id"`
	Sender      string        `json:"sender"`
	Recipient   string        `json:"recipient"`
	Content     string        `json:"content"`
	CreatedAt   time.Time     `json:"created_at"`
	ReplyTo     string        `json:"reply_to,omitempty"`
	Edited      bool          `json:"edited"`
	EditedAt    *time.Time    `json:"edited_at,omitempty"`
	Status      MessageStatus `json:"status"`
	DeliveredAt *time.Time    `json:"delivered_at,omitempty"`
	ReadAt      *time.Time    `json:"read_at,omitempty"`
	// Deleted messages keep their id reserved; content may be scrubbed later.
	Deleted       bool       `json:"deleted,omitempty"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
	IsBotResponse bool       `json:"is_bot_response,omitempty"`
}

// Delivered reports whether the message reached the recipient's client.
func (m *Message) Delivered() bool {
	return m.Status.Rank() >= StatusDelivered.Rank()
}

// Partner returns the other side of the conversation from viewer.
func (m *Message) Partner(viewer string) string {
	if m.Sender == viewer {
		return m.Recipient
	}
	return m.Sender
}

// Involves reports whether the message belongs to the a/b conversation.
func (m *Message) Involves(a, b string) bool {
	return (m.Sender == a && m.Recipient == b) || (m.Sender == b && m.Recipient == a)
}

// Before orders messages by creation time with id as tie-break.
func (m *Message) Before(o *Message) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.Before(o.CreatedAt)
	}
	return m.ID < o.ID
}

// SendRequest is the input of a durable send.
type SendRequest struct {
	Recipient string `json:"recipient"`
	Content   string `json:"content"`
	ReplyTo   string `json:"reply_to,omitempty"`
	// IsBotResponse is only honored when the sender is the bot identity.
	IsBotResponse bool `json:"-"`
}

// HistoryPage is one newest-first page of a conversation.
type HistoryPage struct {
	Partner       string    `json:"partner"`
	Messages      []Message `json:"messages"`
	Total         int       `json:"total"`
	Unread        int       `json:"unread"`
	Limit         int       `json:"limit"`
	Offset        int       `json:"offset"`
	HasMore       bool      `json:"has_more"`
	PartnerOnline bool      `json:"partner_online"`
}

// ChatSummary is the derived per-partner row of the chat list.
type ChatSummary struct {
	Partner       string    `json:"partner"`
	PartnerName   string    `json:"partner_name,omitempty"`
	LastMessage   *Message  `json:"last_message,omitempty"`
	LastTimestamp time.Time `json:"last_timestamp"`
	UnreadCount   int       `json:"unread_count"`
	Online        bool      `json:"online"`
}
