// Package stubserver is a development backend implementing the chat service
// endpoints the client core talks to. It exists so the protocol can be
// exercised end to end without the real service; state is held in memory.
package stubserver

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chatportal/conversation-core/internal/model"
)

var (
	// ErrNotFound signals an unknown conversation id.
	ErrNotFound = errors.New("conversation not found")

	// ErrAlreadyEnded signals an operation on an ended conversation.
	ErrAlreadyEnded = errors.New("conversation already ended")
)

type record struct {
	conv     model.Conversation
	messages []model.Message
}

// Store holds conversations and their message logs in memory.
type Store struct {
	mu            sync.RWMutex
	order         []string
	conversations map[string]*record
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		conversations: make(map[string]*record),
	}
}

// Create opens a new active conversation. Any previously active conversation
// is marked ended first, so at most one conversation is active at a time.
func (s *Store) Create(title string) model.Conversation {
	if title == "" {
		title = model.DefaultTitle
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		rec := s.conversations[id]
		if rec.conv.Status == model.StatusActive {
			rec.conv.Status = model.StatusEnded
			endedAt := now
			rec.conv.EndedAt = &endedAt
		}
	}

	conv := model.Conversation{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Title:     title,
		Status:    model.StatusActive,
		StartedAt: now,
	}
	s.conversations[conv.ID] = &record{conv: conv}
	s.order = append(s.order, conv.ID)

	return conv
}

// List returns a copy of every conversation, newest first.
func (s *Store) List() []model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Conversation, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.conversations[s.order[i]].conv)
	}
	return out
}

// Get returns a copy of the conversation.
func (s *Store) Get(conversationID string) (model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.conversations[conversationID]
	if !ok {
		return model.Conversation{}, ErrNotFound
	}
	return rec.conv, nil
}

// Messages returns a copy of the conversation's log, oldest first.
func (s *Store) Messages(conversationID string) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.conversations[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]model.Message, len(rec.messages))
	copy(out, rec.messages)
	return out, nil
}

// AppendExchange appends one user/ai message pair as a single update and
// returns both stored messages.
func (s *Store) AppendExchange(conversationID, userContent, aiContent string) (model.Message, model.Message, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.conversations[conversationID]
	if !ok {
		return model.Message{}, model.Message{}, ErrNotFound
	}
	if rec.conv.Status == model.StatusEnded {
		return model.Message{}, model.Message{}, ErrAlreadyEnded
	}

	userAt := now
	userMsg := model.Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Sender:    model.SenderUser,
		Content:   userContent,
		CreatedAt: &userAt,
	}
	aiAt := time.Now()
	aiMsg := model.Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Sender:    model.SenderAI,
		Content:   aiContent,
		CreatedAt: &aiAt,
	}
	rec.messages = append(rec.messages, userMsg, aiMsg)

	return userMsg, aiMsg, nil
}

// End marks the conversation ended and records its summary. A second end is
// an error; the transition happens exactly once.
func (s *Store) End(conversationID, summary string) (model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.conversations[conversationID]
	if !ok {
		return model.Conversation{}, ErrNotFound
	}
	if rec.conv.Status == model.StatusEnded {
		return model.Conversation{}, ErrAlreadyEnded
	}

	endedAt := time.Now()
	rec.conv.Status = model.StatusEnded
	rec.conv.EndedAt = &endedAt
	rec.conv.AISummary = &summary

	return rec.conv, nil
}

const idleEndSummary = "Conversation ended due to inactivity."

// EndIdle ends every active conversation whose last activity (the newest
// message, or creation for an empty conversation) is older than the idle
// window. Returns how many conversations were ended.
func (s *Store) EndIdle(idleWindow time.Duration) int {
	now := time.Now()
	cutoff := now.Add(-idleWindow)

	s.mu.Lock()
	defer s.mu.Unlock()

	ended := 0
	for _, id := range s.order {
		rec := s.conversations[id]
		if rec.conv.Status != model.StatusActive {
			continue
		}
		last := rec.conv.StartedAt
		if n := len(rec.messages); n > 0 && rec.messages[n-1].CreatedAt != nil {
			last = *rec.messages[n-1].CreatedAt
		}
		if last.After(cutoff) {
			continue
		}
		endedAt := now
		summary := idleEndSummary
		rec.conv.Status = model.StatusEnded
		rec.conv.EndedAt = &endedAt
		rec.conv.AISummary = &summary
		ended++
	}
	return ended
}

// Stats computes dashboard aggregates. avgDurationMins is zero when no
// conversation has completed.
func (s *Store) Stats() (total, active, ended int, avgDurationMins float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum time.Duration
	for _, id := range s.order {
		rec := s.conversations[id]
		total++
		switch rec.conv.Status {
		case model.StatusActive:
			active++
		case model.StatusEnded:
			ended++
			if rec.conv.EndedAt != nil {
				sum += rec.conv.EndedAt.Sub(rec.conv.StartedAt)
			}
		}
	}
	if ended > 0 {
		avgDurationMins = sum.Minutes() / float64(ended)
	}
	return total, active, ended, avgDurationMins
}

// AllMessages returns every stored message in conversation creation order,
// oldest first within a conversation. Search corpus.
func (s *Store) AllMessages() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Message
	for _, id := range s.order {
		out = append(out, s.conversations[id].messages...)
	}
	return out
}
