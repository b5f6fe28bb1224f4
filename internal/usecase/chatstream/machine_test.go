package chatstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatstream/internal/domain"
)

func history() *domain.Conversation {
	return &domain.Conversation{ID: "c-1", Messages: []domain.Message{
		{ID: "m-1", ChatID: "c-1", Role: domain.RoleUser, Content: "earlier"},
		{ID: "m-2", ChatID: "c-1", Role: domain.RoleAssistant, Content: "reply"},
	}}
}

func placeholderMsg(id string) domain.Message {
	return domain.Message{ID: domain.PlaceholderPrefix + id, ChatID: "c-1", Role: domain.RoleUser, Content: "question"}
}

func countPlaceholders(msgs []domain.Message) int {
	n := 0
	for _, m := range msgs {
		if m.IsPlaceholder() {
			n++
		}
	}
	return n
}

func TestMachine_BeginAppendsPlaceholderLast(t *testing.T) {
	m := NewMachine(history())
	require.NoError(t, m.Begin(placeholderMsg("1")))

	snap := m.Snapshot()
	assert.Equal(t, domain.PhaseSending, snap.Stream.Phase)
	require.Len(t, snap.Messages, 3)
	assert.Equal(t, "temp-1", snap.Messages[2].ID)
	assert.Equal(t, 1, countPlaceholders(snap.Messages))
}

func TestMachine_BeginRejectsWhileActive(t *testing.T) {
	m := NewMachine(history())
	require.NoError(t, m.Begin(placeholderMsg("1")))

	assert.ErrorIs(t, m.Begin(placeholderMsg("2")), domain.ErrRequestInFlight)
	assert.Equal(t, 1, countPlaceholders(m.Snapshot().Messages))
	assert.ErrorIs(t, m.Reset(nil), domain.ErrRequestInFlight)
}

func TestMachine_FirstTokenLatch(t *testing.T) {
	m := NewMachine(history())
	require.NoError(t, m.Begin(placeholderMsg("1")))

	assert.True(t, m.Apply(domain.StatusUpdate{Label: "thinking"}))
	assert.Equal(t, domain.PhaseSending, m.Phase())
	assert.Equal(t, "thinking", m.Snapshot().Stream.StatusLabel)

	m.Apply(domain.TokenAppend{Text: "Hel"})
	assert.Equal(t, domain.PhaseStreaming, m.Phase())
	assert.Empty(t, m.Snapshot().Stream.StatusLabel)

	m.Apply(domain.StatusUpdate{Label: "searching"})
	m.Apply(domain.TokenAppend{Text: "lo"})
	snap := m.Snapshot()
	assert.Equal(t, domain.PhaseStreaming, snap.Stream.Phase)
	assert.Equal(t, "Hello", snap.Stream.PartialContent)
	assert.Empty(t, snap.Stream.StatusLabel)
}

func TestMachine_CompletedRetiresPlaceholder(t *testing.T) {
	m := NewMachine(history())
	require.NoError(t, m.Begin(placeholderMsg("1")))
	m.Apply(domain.TokenAppend{Text: "Hi"})

	m.Apply(domain.Completed{
		UserMessage: domain.Message{ID: "u-9", Role: domain.RoleUser, Content: "question"},
		AIMessage:   domain.Message{ID: "a-9", Role: domain.RoleAssistant, Content: "Hi"},
	})

	snap := m.Snapshot()
	assert.Equal(t, domain.PhaseIdle, snap.Stream.Phase)
	assert.Equal(t, domain.StreamState{}, snap.Stream)
	require.Len(t, snap.Messages, 4)
	assert.Equal(t, []string{"m-1", "m-2", "u-9", "a-9"}, ids(snap.Messages))
	assert.Zero(t, countPlaceholders(snap.Messages))
	_, ok := m.Placeholder()
	assert.False(t, ok)
}

func TestMachine_CompletedKeepsIDsUnique(t *testing.T) {
	m := NewMachine(history())
	require.NoError(t, m.Begin(placeholderMsg("1")))
	m.Apply(domain.Completed{
		UserMessage: domain.Message{ID: "m-2", Content: "replayed"},
		AIMessage:   domain.Message{ID: "a-1"},
	})

	snap := m.Snapshot()
	assert.Equal(t, []string{"m-1", "m-2", "a-1"}, ids(snap.Messages))
	assert.Equal(t, "replayed", snap.Messages[1].Content)
}

func TestMachine_FailRollsBackThroughErroring(t *testing.T) {
	before := history()
	m := NewMachine(before)
	require.NoError(t, m.Begin(placeholderMsg("1")))
	m.Apply(domain.TokenAppend{Text: "partial"})

	m.Apply(domain.Failed{Message: "model overloaded"})
	snap := m.Snapshot()
	assert.Equal(t, domain.PhaseErroring, snap.Stream.Phase)
	assert.Equal(t, "model overloaded", snap.LastError)
	assert.Empty(t, snap.Stream.PartialContent)
	assert.Equal(t, before.Messages, snap.Messages)

	// Nothing applies while erroring.
	assert.False(t, m.Apply(domain.TokenAppend{Text: "late"}))

	m.Settle()
	assert.Equal(t, domain.PhaseIdle, m.Phase())
	assert.Equal(t, "model overloaded", m.Snapshot().LastError)

	m.DismissError()
	assert.Empty(t, m.Snapshot().LastError)
}

func TestMachine_CancelRestoresList(t *testing.T) {
	before := history()
	m := NewMachine(before)
	require.NoError(t, m.Begin(placeholderMsg("1")))
	m.Apply(domain.StatusUpdate{Label: "thinking"})
	m.Apply(domain.TokenAppend{Text: "abc"})

	assert.True(t, m.Cancel())
	snap := m.Snapshot()
	assert.Equal(t, domain.StreamState{}, snap.Stream)
	assert.Equal(t, before.Messages, snap.Messages)
	assert.Empty(t, snap.LastError)

	assert.False(t, m.Cancel(), "second cancel is a no-op")
}

func TestMachine_IgnoresActionsWhenIdle(t *testing.T) {
	m := NewMachine(history())
	assert.False(t, m.Apply(domain.TokenAppend{Text: "x"}))
	assert.False(t, m.Apply(domain.StatusUpdate{Label: "x"}))
	m.Fail("nope")
	assert.Equal(t, domain.PhaseIdle, m.Phase())
	assert.Empty(t, m.Snapshot().LastError)
}

func TestMachine_BeginClearsPreviousError(t *testing.T) {
	m := NewMachine(history())
	m.SetError("Chat or user not found")
	require.NoError(t, m.Begin(placeholderMsg("1")))
	assert.Empty(t, m.Snapshot().LastError)
}

func TestMachine_SnapshotIsACopy(t *testing.T) {
	m := NewMachine(history())
	snap := m.Snapshot()
	snap.Messages[0].Content = "mutated"
	assert.Equal(t, "earlier", m.Snapshot().Messages[0].Content)
}

func ids(msgs []domain.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}
