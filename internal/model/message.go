package model

import (
	"time"
)

// Sender represents the author of a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// Message represents a single message within a conversation. Ordering within
// a conversation is defined by arrival order, not CreatedAt, which may be
// absent for locally appended entries.
type Message struct {
	ID        string     `json:"id,omitempty"`
	Sender    Sender     `json:"sender"`
	Content   string     `json:"content"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// SendMessageRequest is the request body for sending a message.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// SendMessageResponse is the response body for a sent message. The service
// returns only the assistant reply paired to the submitted user message; the
// user message itself is appended client-side from the known input.
type SendMessageResponse struct {
	AI Message `json:"ai"`
}
