// Package model defines data structures for the chat portal protocol.
package model

import (
	"time"
)

// Status represents the lifecycle status of a conversation.
type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// DefaultTitle is used when a conversation is created without a title.
const DefaultTitle = "New Conversation"

// Conversation represents one chat session with the assistant backend.
// Status only ever moves active -> ended; EndedAt and AISummary are set
// exactly once, at the end transition.
type Conversation struct {
	ID        string     `json:"id"`
	Title     string     `json:"title,omitempty"`
	Status    Status     `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	AISummary *string    `json:"ai_summary,omitempty"`
}

// Ended reports whether the conversation has reached its terminal status.
func (c *Conversation) Ended() bool {
	return c.Status == StatusEnded
}

// CreateConversationRequest is the request body for creating a conversation.
type CreateConversationRequest struct {
	Title string `json:"title"`
}

// EndConversationResponse is the response body for ending a conversation.
type EndConversationResponse struct {
	Status  Status     `json:"status,omitempty"`
	EndedAt *time.Time `json:"ended_at,omitempty"`
	Summary string     `json:"summary"`
}

// StatusResponse is the response body of the service liveness endpoint.
type StatusResponse struct {
	Status string `json:"status"`
}
