// Package session implements the conversation lifecycle state machine. A
// Manager exclusively owns one conversation's status and message log and
// serializes user actions against the lifecycle: at most one turn is in
// flight at a time, an end request queues behind an outstanding turn, and a
// conversation only ever moves active -> ended.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chatportal/conversation-core/internal/model"
	"github.com/chatportal/conversation-core/pkg/logger"
	"github.com/chatportal/conversation-core/pkg/metrics"
)

// State is the lifecycle state of the managed conversation.
type State int

const (
	StateNoConversation State = iota
	StateActive
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateNoConversation:
		return "no_conversation"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Local precondition errors. These are resolved without a network call and
// leave the state machine untouched.
var (
	// ErrNoConversation signals an operation that needs an open conversation.
	ErrNoConversation = errors.New("no conversation in progress")

	// ErrConversationActive signals a start while a conversation is open.
	ErrConversationActive = errors.New("a conversation is already in progress")

	// ErrConversationEnded signals a send or end after the conversation
	// reached its terminal status.
	ErrConversationEnded = errors.New("conversation already ended")

	// ErrTurnInFlight is the busy signal: a second send issued while one is
	// outstanding is rejected rather than queued.
	ErrTurnInFlight = errors.New("a turn is already in flight")

	// ErrSessionReset signals that the session was reset while a request was
	// outstanding; the late response was discarded.
	ErrSessionReset = errors.New("session was reset")
)

// Transport is the slice of the chat service surface the manager drives.
type Transport interface {
	CreateConversation(ctx context.Context, title string) (*model.Conversation, error)
	FetchConversation(ctx context.Context, conversationID string) (*model.Conversation, error)
	PostMessage(ctx context.Context, conversationID, content string) (*model.SendMessageResponse, error)
	FetchMessages(ctx context.Context, conversationID string) ([]model.Message, error)
	EndConversation(ctx context.Context, conversationID string) (*model.EndConversationResponse, error)
}

// Manager owns one conversation's lifecycle. Safe for concurrent use; state
// is only mutated at request resolution, never while a request is pending,
// so observers never see a torn status or a half-applied exchange.
type Manager struct {
	transport Transport
	logger    *logger.Logger

	mu       sync.Mutex
	state    State
	gen      uint64
	conv     *model.Conversation
	messages []model.Message
	starting bool
	turn     chan struct{} // non-nil while a send awaits its reply
	ending   chan struct{} // non-nil while an end request is outstanding
}

// NewManager creates a lifecycle manager in the NoConversation state.
func NewManager(t Transport, log *logger.Logger) *Manager {
	return &Manager{
		transport: t,
		logger:    log,
		state:     StateNoConversation,
	}
}

// Start opens a new conversation. Legal only in NoConversation; on failure
// the manager stays in NoConversation with no partial state retained.
func (m *Manager) Start(ctx context.Context, title string) (*model.Conversation, error) {
	m.mu.Lock()
	if m.state != StateNoConversation || m.starting {
		m.mu.Unlock()
		return nil, ErrConversationActive
	}
	m.starting = true
	gen := m.gen
	m.mu.Unlock()

	conv, err := m.transport.CreateConversation(ctx, title)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.starting = false
	if m.gen != gen {
		return nil, ErrSessionReset
	}
	if err != nil {
		return nil, err
	}

	m.state = StateActive
	m.conv = conv
	m.messages = nil
	metrics.ConversationsStarted.Inc()
	m.logger.Info("conversation started",
		zap.String("conversation_id", conv.ID),
		zap.String("title", conv.Title),
	)

	c := *conv
	return &c, nil
}

// Resume adopts an existing conversation: its metadata comes from the
// service's detail endpoint and its message log is loaded in full. A
// conversation the service already ended resumes into Ended, read-only.
// Legal only in NoConversation.
func (m *Manager) Resume(ctx context.Context, conversationID string) (*model.Conversation, error) {
	m.mu.Lock()
	if m.state != StateNoConversation || m.starting {
		m.mu.Unlock()
		return nil, ErrConversationActive
	}
	m.starting = true
	gen := m.gen
	m.mu.Unlock()

	conv, err := m.transport.FetchConversation(ctx, conversationID)
	var msgs []model.Message
	if err == nil {
		msgs, err = m.transport.FetchMessages(ctx, conversationID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.starting = false
	if m.gen != gen {
		return nil, ErrSessionReset
	}
	if err != nil {
		return nil, err
	}

	if conv.Ended() {
		m.state = StateEnded
	} else {
		m.state = StateActive
	}
	m.conv = conv
	m.messages = msgs
	m.logger.Info("conversation resumed",
		zap.String("conversation_id", conv.ID),
		zap.String("status", string(conv.Status)),
		zap.Int("messages", len(msgs)),
	)

	c := *conv
	return &c, nil
}

// Send submits one user turn. Whitespace-only input is a silent no-op with
// no network call. On success the user message and its paired assistant
// reply land in the log as one atomic update; on failure the log is left
// untouched so the caller's unsent text is not lost.
func (m *Manager) Send(ctx context.Context, text string) (*model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	m.mu.Lock()
	switch m.state {
	case StateNoConversation:
		m.mu.Unlock()
		return nil, ErrNoConversation
	case StateEnded:
		m.mu.Unlock()
		return nil, ErrConversationEnded
	}
	if m.turn != nil {
		m.mu.Unlock()
		return nil, ErrTurnInFlight
	}
	turn := make(chan struct{})
	m.turn = turn
	gen := m.gen
	conversationID := m.conv.ID
	m.mu.Unlock()

	resp, err := m.transport.PostMessage(ctx, conversationID, text)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.turn == turn {
		m.turn = nil
	}
	close(turn)

	if m.gen != gen {
		return nil, ErrSessionReset
	}
	if err != nil {
		metrics.TurnsTotal.WithLabelValues("error").Inc()
		m.logger.Warn("turn failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return nil, err
	}

	userMsg := model.Message{Sender: model.SenderUser, Content: text}
	m.messages = append(m.messages, userMsg, resp.AI)
	metrics.TurnsTotal.WithLabelValues("success").Inc()
	m.logger.Debug("turn completed",
		zap.String("conversation_id", conversationID),
		zap.Int("log_size", len(m.messages)),
	)

	reply := resp.AI
	return &reply, nil
}

// End closes the conversation and records its summary. An end issued while a
// turn is in flight queues behind that turn's resolution rather than racing
// it. A concurrent end waits on the first; if the first succeeded the second
// resolves as ErrConversationEnded without a network call. On failure the
// conversation stays Active and End may be retried.
func (m *Manager) End(ctx context.Context) (string, error) {
	m.mu.Lock()
	for {
		switch m.state {
		case StateNoConversation:
			m.mu.Unlock()
			return "", ErrNoConversation
		case StateEnded:
			m.mu.Unlock()
			return "", ErrConversationEnded
		}

		var wait chan struct{}
		if m.turn != nil {
			wait = m.turn
		} else if m.ending != nil {
			wait = m.ending
		}
		if wait == nil {
			break
		}

		m.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		m.mu.Lock()
	}

	ending := make(chan struct{})
	m.ending = ending
	gen := m.gen
	conversationID := m.conv.ID
	m.mu.Unlock()

	resp, err := m.transport.EndConversation(ctx, conversationID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ending == ending {
		m.ending = nil
	}
	close(ending)

	if m.gen != gen {
		return "", ErrSessionReset
	}
	if err != nil {
		m.logger.Warn("end failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return "", err
	}

	m.state = StateEnded
	m.conv.Status = model.StatusEnded
	endedAt := time.Now()
	if resp.EndedAt != nil {
		endedAt = *resp.EndedAt
	}
	m.conv.EndedAt = &endedAt
	summary := resp.Summary
	m.conv.AISummary = &summary
	metrics.ConversationsEnded.Inc()
	m.logger.Info("conversation ended",
		zap.String("conversation_id", conversationID),
	)

	return resp.Summary, nil
}

// Reset discards the in-memory conversation entirely and returns to
// NoConversation. Not a network call; responses to requests issued before
// the reset are discarded rather than applied to the new session.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conv != nil {
		m.logger.Info("session reset",
			zap.String("conversation_id", m.conv.ID),
		)
	}
	m.gen++
	m.state = StateNoConversation
	m.conv = nil
	m.messages = nil
	m.starting = false
	m.turn = nil
	m.ending = nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// TurnInFlight reports whether a send is currently awaiting its reply.
func (m *Manager) TurnInFlight() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.turn != nil
}

// Conversation returns a copy of the managed conversation, or nil when no
// conversation is open.
func (m *Manager) Conversation() *model.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conv == nil {
		return nil
	}
	c := *m.conv
	return &c
}

// Messages returns a defensive copy of the message log, oldest first.
func (m *Manager) Messages() []model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Message, len(m.messages))
	copy(out, m.messages)
	return out
}
