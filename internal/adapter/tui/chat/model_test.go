package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatstream/internal/adapter/tui/components"
	"chatstream/internal/adapter/tui/theme"
	"chatstream/internal/domain"
)

type fakeSession struct {
	mu        sync.Mutex
	snap      domain.Snapshot
	sent      []string
	cancels   int
	dismissed int
	loadErr   error
	sendErr   error
}

func (f *fakeSession) Load(context.Context) error { return f.loadErr }

func (f *fakeSession) Send(_ context.Context, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, content)
	return f.sendErr
}

func (f *fakeSession) Cancel() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	return true
}

func (f *fakeSession) DismissError() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dismissed++
}

func (f *fakeSession) Snapshot() domain.Snapshot { return f.snap }

func newTestModel(t *testing.T, s *fakeSession) ChatModel {
	t.Helper()
	m := NewChatModel(context.Background(), ChatModelDeps{Session: s, ChatID: "c-1", Title: "Docs"})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(ChatModel)
}

func update(t *testing.T, m ChatModel, msg tea.Msg) (ChatModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	cm, ok := next.(ChatModel)
	require.True(t, ok)
	return cm, cmd
}

func TestChatModel_RendersStreamingSnapshot(t *testing.T) {
	m := newTestModel(t, &fakeSession{})

	m, _ = update(t, m, SnapshotMsg{Snapshot: domain.Snapshot{
		ChatID: "c-1",
		Messages: []domain.Message{
			{ID: "m-1", Role: domain.RoleUser, Content: "earlier question"},
			{ID: domain.PlaceholderPrefix + "1", Role: domain.RoleUser, Content: "what is new"},
		},
		Stream: domain.StreamState{Phase: domain.PhaseStreaming, PartialContent: "Partial answer", StatusLabel: "thinking"},
	}})

	view := m.View()
	assert.Contains(t, view, "Docs")
	assert.Contains(t, view, "earlier question")
	assert.Contains(t, view, "what is new")
	assert.Contains(t, view, "Partial answer")
	assert.Equal(t, "Thinking"+theme.SymbolEllipsis, m.statusBar.Activity)
	assert.Equal(t, domain.PhaseStreaming, m.statusBar.Phase)

	last := m.chatView.Messages.Messages[len(m.chatView.Messages.Messages)-1]
	assert.True(t, last.Streaming)
	assert.True(t, m.chatView.Messages.Messages[1].Pending)
}

func TestChatModel_SubmitRunsSend(t *testing.T) {
	s := &fakeSession{}
	m := newTestModel(t, s)

	m, cmd := update(t, m, components.InputSubmitMsg{Value: "hello"})
	require.NotNil(t, cmd)
	assert.True(t, m.busy)

	done, ok := cmd().(SendDoneMsg)
	require.True(t, ok)
	assert.NoError(t, done.Err)
	assert.Equal(t, []string{"hello"}, s.sent)

	m, _ = update(t, m, done)
	assert.False(t, m.busy)
}

func TestChatModel_SubmitIgnoredWhileBusy(t *testing.T) {
	m := newTestModel(t, &fakeSession{})
	m, _ = update(t, m, components.InputSubmitMsg{Value: "one"})

	_, cmd := update(t, m, components.InputSubmitMsg{Value: "two"})
	assert.Nil(t, cmd)
}

func TestChatModel_CtrlCCancelsThenQuits(t *testing.T) {
	s := &fakeSession{}
	m := newTestModel(t, s)
	m, _ = update(t, m, components.InputSubmitMsg{Value: "hello"})

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.Nil(t, cmd)
	assert.Equal(t, 1, s.cancels)
	assert.False(t, m.quitting)

	m, _ = update(t, m, CancelledMsg{})
	m, _ = update(t, m, SendDoneMsg{})
	assert.Contains(t, m.View(), "Request cancelled.")

	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
	assert.True(t, m.quitting)
}

func TestChatModel_FatalErrorShowsMessageAndHints(t *testing.T) {
	m := newTestModel(t, &fakeSession{})
	m, _ = update(t, m, components.InputSubmitMsg{Value: "hello"})

	m, _ = update(t, m, FatalMsg{Message: "model overloaded"})
	m, _ = update(t, m, SendDoneMsg{Err: domain.NewDomainError("Stream.Error", domain.ErrStreamFailed, "model overloaded")})

	view := m.View()
	assert.Contains(t, view, "model overloaded")
	assert.Contains(t, view, "Suggestions:")
}

func TestChatModel_EscDismissesError(t *testing.T) {
	s := &fakeSession{}
	m := newTestModel(t, s)
	m, _ = update(t, m, SnapshotMsg{Snapshot: domain.Snapshot{LastError: "API Error: 500"}})

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, 1, s.dismissed)
}

func TestChatModel_NoticesStayAnchored(t *testing.T) {
	m := newTestModel(t, &fakeSession{})
	m, _ = update(t, m, SnapshotMsg{Snapshot: domain.Snapshot{Messages: []domain.Message{
		{ID: "m-1", Role: domain.RoleUser, Content: "q1"},
	}}})
	m, _ = update(t, m, CancelledMsg{})
	m, _ = update(t, m, SnapshotMsg{Snapshot: domain.Snapshot{Messages: []domain.Message{
		{ID: "m-1", Role: domain.RoleUser, Content: "q1"},
		{ID: "m-2", Role: domain.RoleUser, Content: "q2"},
		{ID: "m-3", Role: domain.RoleAssistant, Content: "a2"},
	}}})

	var ids []string
	for _, msg := range m.chatView.Messages.Messages {
		ids = append(ids, msg.ID)
	}
	assert.Equal(t, []string{"m-1", "notice-0", "m-2", "m-3"}, ids)
}

func TestChatModel_SlashCommands(t *testing.T) {
	m := newTestModel(t, &fakeSession{})

	m, _ = update(t, m, components.InputSubmitMsg{Value: "/cancel"})
	assert.Contains(t, m.View(), "No active request to cancel.")

	m, _ = update(t, m, components.InputSubmitMsg{Value: "/clear"})
	assert.Empty(t, m.notices)

	m, _ = update(t, m, components.InputSubmitMsg{Value: "/bogus"})
	assert.Contains(t, m.View(), "Unknown command: /bogus")

	m, _ = update(t, m, components.InputSubmitMsg{Value: "/?"})
	assert.Contains(t, m.View(), "/reload")

	_, cmd := update(t, m, components.InputSubmitMsg{Value: "/quit"})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestChatModel_LoadFailure(t *testing.T) {
	s := &fakeSession{loadErr: domain.NewSubSystemError("transport", "Loader.LoadConversation", domain.ErrNotFound, "API Error: 404")}
	m := newTestModel(t, s)

	m, cmd := update(t, m, components.InputSubmitMsg{Value: "/reload"})
	require.NotNil(t, cmd)
	assert.True(t, m.loading)

	m, _ = update(t, m, cmd())
	assert.False(t, m.loading)
	assert.Contains(t, m.View(), "Chat Not Found")
}

func TestBridge_DropsBeforeAttach(t *testing.T) {
	b := NewBridge()
	done := make(chan struct{})
	go func() {
		b.Render(domain.Snapshot{})
		b.FatalError("x")
		b.Cancelled()
		b.Sent(domain.Message{}, domain.Message{})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("unattached bridge blocked")
	}
}

func TestIsMouseEscapeLeak(t *testing.T) {
	for _, s := range []string{"<65;38;21M", "<0;1;1m", "[M", "[32;10;5M"} {
		assert.True(t, isMouseEscapeLeak(s), s)
	}
	for _, s := range []string{"hello", "<abc>", "[", "M"} {
		assert.False(t, isMouseEscapeLeak(s), s)
	}
}
