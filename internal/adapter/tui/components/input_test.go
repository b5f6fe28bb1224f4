package components

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatstream/internal/domain"
)

var testCommands = CommandTable{
	{Name: "help", Aliases: []string{"?"}, Summary: "Show help"},
	{Name: "cancel", Summary: "Cancel"},
	{Name: "clear", Summary: "Clear"},
	{Name: "quit", Aliases: []string{"exit"}, Summary: "Quit"},
}

func typeText(m InputAreaModel, s string) InputAreaModel {
	for _, r := range s {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

func press(m InputAreaModel, k tea.KeyType) (InputAreaModel, tea.Cmd) {
	return m.Update(tea.KeyMsg{Type: k})
}

func TestCommandTable_Lookup(t *testing.T) {
	c, ok := testCommands.Lookup("/EXIT")
	require.True(t, ok)
	assert.Equal(t, "quit", c.Name)

	_, ok = testCommands.Lookup("bogus")
	assert.False(t, ok)
}

func TestCommandTable_CompleteAndHelp(t *testing.T) {
	var names []string
	for _, c := range testCommands.Complete("/c") {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"cancel", "clear"}, names)
	assert.Contains(t, testCommands.Help(), "/cancel")
}

func TestParseCommand(t *testing.T) {
	name, args, ok := ParseCommand("  /Reload now ")
	require.True(t, ok)
	assert.Equal(t, "reload", name)
	assert.Equal(t, []string{"now"}, args)

	_, _, ok = ParseCommand("hello /there")
	assert.False(t, ok)
}

func TestCommandPopup_Navigation(t *testing.T) {
	p := NewCommandPopup(testCommands)
	p.Filter("/c")
	require.True(t, p.Visible())
	assert.Equal(t, 4, p.Height())

	p.Move(-1)
	assert.Equal(t, "/clear", p.Accept())
	assert.False(t, p.Visible())

	p.Filter("/cancel now")
	assert.False(t, p.Visible())
}

func TestInputArea_SubmitAndHistory(t *testing.T) {
	m := NewInputArea(testCommands)
	m.SetWidth(80)

	m = typeText(m, "first")
	m, cmd := press(m, tea.KeyEnter)
	require.NotNil(t, cmd)
	assert.Equal(t, InputSubmitMsg{Value: "first"}, cmd())
	assert.Empty(t, m.Value())

	m = typeText(m, "second")
	m, _ = press(m, tea.KeyEnter)
	assert.Equal(t, []string{"first", "second"}, m.History())

	m = typeText(m, "draft")
	m, _ = press(m, tea.KeyUp)
	assert.Equal(t, "second", m.Value())
	m, _ = press(m, tea.KeyUp)
	assert.Equal(t, "first", m.Value())
	m, _ = press(m, tea.KeyDown)
	m, _ = press(m, tea.KeyDown)
	assert.Equal(t, "draft", m.Value())
}

func TestInputArea_PopupAcceptsCommand(t *testing.T) {
	m := NewInputArea(testCommands)
	m.SetWidth(80)

	m = typeText(m, "/he")
	require.True(t, m.Popup.Visible())
	m, cmd := press(m, tea.KeyEnter)
	assert.Nil(t, cmd)
	assert.Equal(t, "/help ", m.Value())
	assert.False(t, m.Popup.Visible())
}

func TestInputArea_LockIgnoresKeys(t *testing.T) {
	m := NewInputArea(testCommands)
	m.Lock("Waiting")
	assert.True(t, m.Locked())

	m = typeText(m, "ignored")
	_, cmd := press(m, tea.KeyEnter)
	assert.Nil(t, cmd)
	assert.Empty(t, m.Value())

	m.Unlock()
	m = typeText(m, "ok")
	assert.Equal(t, "ok", m.Value())
}

func TestChatView_FollowAndMarker(t *testing.T) {
	cv := NewChatView()
	cv.SetSize(80, 6)

	many := make([]ChatMessage, 0, 20)
	for i := 0; i < 20; i++ {
		many = append(many, ChatMessage{ID: string(rune('a' + i)), Role: RoleUser, Content: "line"})
	}
	cv.SetMessages(many)
	assert.True(t, cv.Viewport.AtBottom())

	cv, _ = cv.Update(tea.KeyMsg{Type: tea.KeyPgUp})
	require.False(t, cv.Following())

	cv.SetMessages(append(many, ChatMessage{ID: "new", Role: RoleUser, Content: "newest"}))
	assert.Contains(t, cv.View(), "new messages below")

	cv.Follow()
	assert.True(t, cv.Following())
	assert.NotContains(t, cv.View(), "new messages below")
}

func TestStatusBar_ShowsPhaseAndDropsHints(t *testing.T) {
	sb := NewStatusBar()
	sb.Chat = "Docs"
	sb.Phase = domain.PhaseStreaming
	sb.Activity = "Thinking"
	sb.Hints = []KeyHint{{Key: "Enter", Desc: "Send"}, {Key: "Ctrl+C", Desc: "Cancel"}}

	sb.SetWidth(120)
	view := sb.View()
	assert.Contains(t, view, "streaming")
	assert.Contains(t, view, "Thinking")
	assert.Contains(t, view, "Docs")
	assert.Contains(t, view, "Ctrl+C")

	sb.SetWidth(40)
	narrow := sb.View()
	assert.Contains(t, narrow, "streaming")
	assert.NotContains(t, narrow, "Ctrl+C")
}
