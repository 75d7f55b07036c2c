package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatportal/conversation-core/internal/model"
	"github.com/chatportal/conversation-core/internal/transport"
	"github.com/chatportal/conversation-core/pkg/logger"
)

// fakeTransport is a scriptable Transport. The release channels, when set,
// block the corresponding call until signalled, which lets tests hold a
// request in flight.
type fakeTransport struct {
	mu          sync.Mutex
	createCalls int
	sendCalls   int
	endCalls    int
	fetchCalls  int

	createErr error
	sendErr   error
	endErr    error
	fetchErr  error
	detailErr error

	summary string
	msgs    []model.Message
	conv    *model.Conversation

	sendStarted chan struct{}
	sendRelease chan struct{}
	endStarted  chan struct{}
	endRelease  chan struct{}
}

func (f *fakeTransport) CreateConversation(_ context.Context, title string) (*model.Conversation, error) {
	f.mu.Lock()
	f.createCalls++
	err := f.createErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &model.Conversation{
		ID:        "conv-1",
		Title:     title,
		Status:    model.StatusActive,
		StartedAt: time.Now(),
	}, nil
}

func (f *fakeTransport) PostMessage(_ context.Context, _, content string) (*model.SendMessageResponse, error) {
	f.mu.Lock()
	f.sendCalls++
	started := f.sendStarted
	release := f.sendRelease
	err := f.sendErr
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}
	if err != nil {
		return nil, err
	}
	return &model.SendMessageResponse{
		AI: model.Message{Sender: model.SenderAI, Content: "re: " + content},
	}, nil
}

func (f *fakeTransport) FetchConversation(_ context.Context, conversationID string) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	if f.conv != nil {
		c := *f.conv
		return &c, nil
	}
	return &model.Conversation{
		ID:        conversationID,
		Title:     "Recovered Chat",
		Status:    model.StatusActive,
		StartedAt: time.Now().Add(-time.Hour),
	}, nil
}

func (f *fakeTransport) FetchMessages(_ context.Context, _ string) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.msgs, nil
}

func (f *fakeTransport) EndConversation(_ context.Context, _ string) (*model.EndConversationResponse, error) {
	f.mu.Lock()
	f.endCalls++
	started := f.endStarted
	release := f.endRelease
	err := f.endErr
	summary := f.summary
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}
	if err != nil {
		return nil, err
	}
	return &model.EndConversationResponse{
		Status:  model.StatusEnded,
		Summary: summary,
	}, nil
}

func (f *fakeTransport) calls() (create, send, end, fetch int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls, f.sendCalls, f.endCalls, f.fetchCalls
}

func newManager(t *testing.T) (*Manager, *fakeTransport) {
	t.Helper()
	ft := &fakeTransport{summary: "a summary"}
	return NewManager(ft, logger.NewNop()), ft
}

func startActive(t *testing.T, m *Manager) {
	t.Helper()
	_, err := m.Start(context.Background(), "test chat")
	require.NoError(t, err)
	require.Equal(t, StateActive, m.State())
}

func TestStart(t *testing.T) {
	m, ft := newManager(t)

	conv, err := m.Start(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, "conv-1", conv.ID)
	assert.Equal(t, model.StatusActive, conv.Status)
	assert.Equal(t, StateActive, m.State())
	assert.Empty(t, m.Messages())

	create, _, _, _ := ft.calls()
	assert.Equal(t, 1, create)
}

func TestStart_FailureStaysNoConversation(t *testing.T) {
	m, ft := newManager(t)
	ft.createErr = transport.ErrServiceUnavailable

	_, err := m.Start(context.Background(), "x")
	require.ErrorIs(t, err, transport.ErrServiceUnavailable)
	assert.Equal(t, StateNoConversation, m.State())
	assert.Nil(t, m.Conversation())
}

func TestStart_WhileActiveRejected(t *testing.T) {
	m, _ := newManager(t)
	startActive(t, m)

	_, err := m.Start(context.Background(), "again")
	assert.ErrorIs(t, err, ErrConversationActive)
}

func TestSend_AppendsPairAtomically(t *testing.T) {
	m, _ := newManager(t)
	startActive(t, m)

	reply, err := m.Send(context.Background(), "hello")
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "re: hello", reply.Content)

	msgs := m.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, model.SenderUser, msgs[0].Sender)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, model.SenderAI, msgs[1].Sender)
	assert.Equal(t, "re: hello", msgs[1].Content)
}

func TestSend_TrimsInput(t *testing.T) {
	m, _ := newManager(t)
	startActive(t, m)

	_, err := m.Send(context.Background(), "  hello  ")
	require.NoError(t, err)

	msgs := m.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].Content)
}

func TestSend_WhitespaceOnlyIsSilentNoop(t *testing.T) {
	m, ft := newManager(t)
	startActive(t, m)

	reply, err := m.Send(context.Background(), "   \t\n  ")
	require.NoError(t, err)
	assert.Nil(t, reply)
	assert.Empty(t, m.Messages())

	_, send, _, _ := ft.calls()
	assert.Equal(t, 0, send)
}

func TestSend_WithoutConversation(t *testing.T) {
	m, ft := newManager(t)

	_, err := m.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrNoConversation)

	_, send, _, _ := ft.calls()
	assert.Equal(t, 0, send)
}

func TestSend_AfterEndedRejectedLocally(t *testing.T) {
	m, ft := newManager(t)
	startActive(t, m)

	_, err := m.End(context.Background())
	require.NoError(t, err)

	_, err = m.Send(context.Background(), "again")
	assert.ErrorIs(t, err, ErrConversationEnded)

	_, send, _, _ := ft.calls()
	assert.Equal(t, 0, send)
}

func TestSend_FailureLeavesLogUntouched(t *testing.T) {
	m, ft := newManager(t)
	startActive(t, m)
	ft.sendErr = transport.ErrServiceUnavailable

	_, err := m.Send(context.Background(), "hello")
	require.ErrorIs(t, err, transport.ErrServiceUnavailable)
	assert.Empty(t, m.Messages())
	assert.Equal(t, StateActive, m.State())
	assert.False(t, m.TurnInFlight())
}

func TestSend_SecondTurnRejectedWhileInFlight(t *testing.T) {
	m, ft := newManager(t)
	startActive(t, m)

	ft.sendStarted = make(chan struct{}, 1)
	ft.sendRelease = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := m.Send(context.Background(), "first")
		done <- err
	}()

	<-ft.sendStarted
	assert.True(t, m.TurnInFlight())

	_, err := m.Send(context.Background(), "second")
	assert.ErrorIs(t, err, ErrTurnInFlight)

	close(ft.sendRelease)
	require.NoError(t, <-done)

	// Only the first turn reached the transport and landed in the log.
	_, send, _, _ := ft.calls()
	assert.Equal(t, 1, send)
	msgs := m.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
}

func TestEnd_RecordsSummaryAndEndedAtOnce(t *testing.T) {
	m, ft := newManager(t)
	startActive(t, m)

	summary, err := m.End(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a summary", summary)
	assert.Equal(t, StateEnded, m.State())

	conv := m.Conversation()
	require.NotNil(t, conv)
	assert.Equal(t, model.StatusEnded, conv.Status)
	require.NotNil(t, conv.EndedAt)
	require.NotNil(t, conv.AISummary)
	assert.Equal(t, "a summary", *conv.AISummary)

	// Second end is rejected locally, no network call.
	_, err = m.End(context.Background())
	assert.ErrorIs(t, err, ErrConversationEnded)
	_, _, end, _ := ft.calls()
	assert.Equal(t, 1, end)
}

func TestEnd_FailureStaysActiveAndRetryable(t *testing.T) {
	m, ft := newManager(t)
	startActive(t, m)
	ft.endErr = transport.ErrServiceUnavailable

	_, err := m.End(context.Background())
	require.ErrorIs(t, err, transport.ErrServiceUnavailable)
	assert.Equal(t, StateActive, m.State())

	ft.mu.Lock()
	ft.endErr = nil
	ft.mu.Unlock()

	summary, err := m.End(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a summary", summary)
	assert.Equal(t, StateEnded, m.State())
}

func TestEnd_QueuesBehindInFlightTurn(t *testing.T) {
	m, ft := newManager(t)
	startActive(t, m)

	ft.sendStarted = make(chan struct{}, 1)
	ft.sendRelease = make(chan struct{})

	sendDone := make(chan error, 1)
	go func() {
		_, err := m.Send(context.Background(), "last words")
		sendDone <- err
	}()
	<-ft.sendStarted

	endDone := make(chan error, 1)
	go func() {
		_, err := m.End(context.Background())
		endDone <- err
	}()

	// The end request must not reach the transport while the turn is out.
	time.Sleep(20 * time.Millisecond)
	_, _, end, _ := ft.calls()
	assert.Equal(t, 0, end)

	close(ft.sendRelease)
	require.NoError(t, <-sendDone)
	require.NoError(t, <-endDone)

	// The queued end landed after the turn: the pair is in the log.
	assert.Equal(t, StateEnded, m.State())
	msgs := m.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "last words", msgs[0].Content)
}

func TestEnd_ConcurrentLoserIsRedundant(t *testing.T) {
	m, ft := newManager(t)
	startActive(t, m)

	ft.endStarted = make(chan struct{}, 1)
	ft.endRelease = make(chan struct{})

	winner := make(chan error, 1)
	go func() {
		_, err := m.End(context.Background())
		winner <- err
	}()
	<-ft.endStarted

	loser := make(chan error, 1)
	go func() {
		_, err := m.End(context.Background())
		loser <- err
	}()

	close(ft.endRelease)
	require.NoError(t, <-winner)
	assert.ErrorIs(t, <-loser, ErrConversationEnded)

	// Only one end reached the transport.
	_, _, end, _ := ft.calls()
	assert.Equal(t, 1, end)
}

func TestReset_DiscardsConversation(t *testing.T) {
	m, _ := newManager(t)
	startActive(t, m)
	_, err := m.Send(context.Background(), "hello")
	require.NoError(t, err)

	m.Reset()

	assert.Equal(t, StateNoConversation, m.State())
	assert.Nil(t, m.Conversation())
	assert.Empty(t, m.Messages())
}

func TestReset_DiscardsInFlightTurn(t *testing.T) {
	m, ft := newManager(t)
	startActive(t, m)

	ft.sendStarted = make(chan struct{}, 1)
	ft.sendRelease = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := m.Send(context.Background(), "hello")
		done <- err
	}()
	<-ft.sendStarted

	m.Reset()
	close(ft.sendRelease)

	assert.ErrorIs(t, <-done, ErrSessionReset)
	assert.Equal(t, StateNoConversation, m.State())
	assert.Empty(t, m.Messages())
}

func TestResume(t *testing.T) {
	m, ft := newManager(t)
	ft.msgs = []model.Message{
		{Sender: model.SenderUser, Content: "hi"},
		{Sender: model.SenderAI, Content: "hello"},
	}

	conv, err := m.Resume(context.Background(), "conv-9")
	require.NoError(t, err)
	assert.Equal(t, "conv-9", conv.ID)
	assert.Equal(t, StateActive, m.State())

	// Metadata comes from the service, not fabricated locally.
	assert.Equal(t, "Recovered Chat", conv.Title)
	assert.False(t, conv.StartedAt.IsZero())

	msgs := m.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Content)
}

func TestResume_ServerEndedConversationIsReadOnly(t *testing.T) {
	m, ft := newManager(t)
	endedAt := time.Now().Add(-time.Minute)
	ft.conv = &model.Conversation{
		ID:      "conv-9",
		Title:   "Old Chat",
		Status:  model.StatusEnded,
		EndedAt: &endedAt,
	}
	ft.msgs = []model.Message{
		{Sender: model.SenderUser, Content: "bye"},
	}

	conv, err := m.Resume(context.Background(), "conv-9")
	require.NoError(t, err)
	assert.Equal(t, model.StatusEnded, conv.Status)
	assert.Equal(t, StateEnded, m.State())
	require.Len(t, m.Messages(), 1)

	// Ended is discovered at resume time, not via a rejected send.
	_, err = m.Send(context.Background(), "hello?")
	assert.ErrorIs(t, err, ErrConversationEnded)
	_, _, _, fetch := ft.calls()
	assert.Equal(t, 1, fetch)
}

func TestResume_DetailFailureStaysNoConversation(t *testing.T) {
	m, ft := newManager(t)
	ft.detailErr = &transport.RequestRejectedError{StatusCode: 404}

	_, err := m.Resume(context.Background(), "missing")
	require.ErrorIs(t, err, transport.ErrRequestRejected)
	assert.Equal(t, StateNoConversation, m.State())
	// The message log is never requested when the detail fetch fails.
	_, _, _, fetch := ft.calls()
	assert.Zero(t, fetch)
}

func TestResume_FailureStaysNoConversation(t *testing.T) {
	m, ft := newManager(t)
	ft.fetchErr = &transport.RequestRejectedError{StatusCode: 404}

	_, err := m.Resume(context.Background(), "missing")
	require.ErrorIs(t, err, transport.ErrRequestRejected)
	assert.Equal(t, StateNoConversation, m.State())
}

func TestStatusIsMonotonic(t *testing.T) {
	m, _ := newManager(t)
	startActive(t, m)
	_, err := m.End(context.Background())
	require.NoError(t, err)

	// No exposed operation moves ended back to active.
	_, err = m.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrConversationEnded)
	_, err = m.End(context.Background())
	assert.ErrorIs(t, err, ErrConversationEnded)
	_, err = m.Start(context.Background(), "new")
	assert.ErrorIs(t, err, ErrConversationActive)
	_, err = m.Resume(context.Background(), "conv-1")
	assert.ErrorIs(t, err, ErrConversationActive)
	assert.Equal(t, StateEnded, m.State())
}

func TestScenario_GreetingExchange(t *testing.T) {
	ft := &fakeTransport{summary: "greeting exchange"}
	m := NewManager(ft, logger.NewNop())

	_, err := m.Start(context.Background(), "New Chat")
	require.NoError(t, err)

	reply, err := m.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "re: hello", reply.Content)
	require.Len(t, m.Messages(), 2)

	summary, err := m.End(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "greeting exchange", summary)

	_, err = m.Send(context.Background(), "again")
	assert.ErrorIs(t, err, ErrConversationEnded)
}

func TestMessagesReturnsCopy(t *testing.T) {
	m, _ := newManager(t)
	startActive(t, m)
	_, err := m.Send(context.Background(), "hello")
	require.NoError(t, err)

	msgs := m.Messages()
	msgs[0].Content = "tampered"

	assert.Equal(t, "hello", m.Messages()[0].Content)
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{
		StateNoConversation: "no_conversation",
		StateActive:         "active",
		StateEnded:          "ended",
		State(42):           "unknown",
	} {
		assert.Equal(t, want, fmt.Sprint(state))
	}
}
