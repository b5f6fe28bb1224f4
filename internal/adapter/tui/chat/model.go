package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"chatstream/internal/adapter/tui/components"
	"chatstream/internal/adapter/tui/theme"
	"chatstream/internal/adapter/tui/uxerror"
	"chatstream/internal/domain"
)

// Session is the part of chatstream.Session the model drives.
type Session interface {
	Load(ctx context.Context) error
	Send(ctx context.Context, content string) error
	Cancel() bool
	DismissError()
	Snapshot() domain.Snapshot
}

// ChatModelDeps are dependencies injected into the chat model.
type ChatModelDeps struct {
	Session Session
	Logger  *slog.Logger
	ChatID  string
	Title   string
	// LoadOnStart fetches the conversation when the program starts.
	LoadOnStart bool
}

// notice is a local line shown after the committed message at anchor.
type notice struct {
	anchor int
	msg    components.ChatMessage
}

// commands are the slash commands of the chat UI.
var commands = components.CommandTable{
	{Name: "help", Aliases: []string{"?"}, Summary: "Show commands and key bindings"},
	{Name: "cancel", Summary: "Cancel the reply in progress"},
	{Name: "reload", Summary: "Reload the conversation from the server"},
	{Name: "dismiss", Summary: "Dismiss the last error"},
	{Name: "clear", Summary: "Clear local notices"},
	{Name: "quit", Aliases: []string{"exit", "q"}, Summary: "Exit chatstream"},
}

const keyHelp = `Keys:
  Enter        Send message
  Alt+Enter    New line
  Up/Down      Recall sent messages
  Esc          Dismiss error
  Ctrl+C       Cancel reply, or quit when idle
  PgUp/PgDn    Scroll
  End          Jump to newest`

// ChatModel is the root Bubble Tea model for the chat TUI.
type ChatModel struct {
	deps ChatModelDeps
	ctx  context.Context

	chatView  components.ChatViewModel
	input     components.InputAreaModel
	statusBar components.StatusBarModel
	spinner   spinner.Model

	snap    domain.Snapshot
	notices []notice
	busy    bool // true while a Send goroutine is running
	loading bool
	width   int
	height  int

	quitting bool
}

// NewChatModel creates the root chat model.
func NewChatModel(ctx context.Context, deps ChatModelDeps) ChatModel {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(theme.ColorBusy)

	sb := components.NewStatusBar()
	sb.Chat = chatLabel(deps)
	sb.Hints = defaultHints()

	chatView := components.NewChatView()
	chatView.SetMaxMessages(1000)

	return ChatModel{
		deps:      deps,
		ctx:       ctx,
		chatView:  chatView,
		input:     components.NewInputArea(commands),
		statusBar: sb,
		spinner:   s,
		snap:      deps.Session.Snapshot(),
		loading:   deps.LoadOnStart,
	}
}

// Init starts the spinner and, when configured, the conversation load.
func (m ChatModel) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick}
	if m.deps.LoadOnStart {
		cmds = append(cmds, loadCmd(m.ctx, m.deps.Session))
	}
	return tea.Batch(cmds...)
}

// Update handles all incoming messages.
func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		m.syncView()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case components.InputSubmitMsg:
		return m.handleSubmit(msg.Value)

	case SnapshotMsg:
		m.snap = msg.Snapshot
		m.statusBar.Phase = m.snap.Stream.Phase
		m.statusBar.Activity = statusText(m.snap.Stream)
		m.syncView()
		return m, nil

	case FatalMsg:
		m.addNotice(components.RoleError, msg.Message)
		return m, nil

	case CancelledMsg:
		m.addNotice(components.RoleSystem, "Request cancelled.")
		return m, nil

	case SentMsg:
		m.deps.Logger.Debug("exchange rendered", "ai_message_id", msg.AI.ID)
		return m, nil

	case SendDoneMsg:
		m.busy = false
		m.input.Unlock()
		m.statusBar.Activity = ""
		m.statusBar.Hints = defaultHints()
		if msg.Err != nil {
			if hints := uxerror.Humanize(msg.Err).Hints; len(hints) > 0 {
				m.addNotice(components.RoleSystem, renderHints(hints))
			}
		}
		return m, nil

	case LoadedMsg:
		m.loading = false
		if msg.Err != nil {
			m.addNotice(components.RoleError, uxerror.Humanize(msg.Err).Render())
		}
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	if !m.busy {
		if _, isMouse := msg.(tea.MouseMsg); !isMouse {
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	var cmd tea.Cmd
	m.chatView, cmd = m.chatView.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// View renders the entire chat UI.
func (m ChatModel) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}
	if m.width == 0 {
		return "  Initializing..."
	}

	header := theme.Bold.Render(chatLabel(m.deps))
	switch {
	case m.loading:
		header += " " + theme.TextMuted.Render("loading"+theme.SymbolEllipsis)
	case m.busy:
		header += " " + m.spinner.View() + " " + theme.TextMuted.Render(m.statusBar.Activity)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.chatView.View(),
		components.Divider(m.width),
		m.input.View(),
		m.statusBar.View(),
	)
}

func chatLabel(deps ChatModelDeps) string {
	if deps.Title != "" {
		return deps.Title
	}
	return "chat " + deps.ChatID
}

// layout recalculates sizes for all sub-models.
func (m *ChatModel) layout() {
	headerH := 1
	inputH := 3 + m.input.Popup.Height()
	statusH := 1
	dividerH := 1
	contentH := max(m.height-headerH-inputH-statusH-dividerH, 5)

	m.statusBar.SetWidth(m.width)
	m.chatView.SetSize(m.width, contentH)
	m.input.SetWidth(m.width)
}

// syncView rebuilds the message list from the latest snapshot and the
// local notices.
func (m *ChatModel) syncView() {
	msgs := m.snap.Messages
	out := make([]components.ChatMessage, 0, len(msgs)+len(m.notices)+1)
	n := 0
	flush := func(upTo int) {
		for n < len(m.notices) && m.notices[n].anchor <= upTo {
			out = append(out, m.notices[n].msg)
			n++
		}
	}
	for i, dm := range msgs {
		flush(i)
		out = append(out, fromDomain(dm))
	}
	if m.snap.Stream.Phase.Active() {
		out = append(out, components.ChatMessage{
			ID:        "streaming",
			Role:      components.RoleAssistant,
			Content:   m.snap.Stream.PartialContent,
			Streaming: true,
		})
	}
	flush(len(msgs))
	m.chatView.SetMessages(out)
}

func fromDomain(dm domain.Message) components.ChatMessage {
	role := components.RoleUser
	if dm.Role == domain.RoleAssistant {
		role = components.RoleAssistant
	}
	return components.ChatMessage{
		ID:        dm.ID,
		Role:      role,
		Content:   dm.Content,
		Timestamp: dm.CreatedAt,
		Citations: dm.Citations,
		Pending:   dm.IsPlaceholder(),
	}
}

func (m *ChatModel) addNotice(role components.MessageRole, content string) {
	m.notices = append(m.notices, notice{
		anchor: committedCount(m.snap),
		msg: components.ChatMessage{
			ID:      fmt.Sprintf("notice-%d", len(m.notices)),
			Role:    role,
			Content: content,
		},
	})
	m.syncView()
}

// committedCount is the number of server-confirmed messages in snap.
func committedCount(snap domain.Snapshot) int {
	n := len(snap.Messages)
	if n > 0 && snap.Messages[n-1].IsPlaceholder() {
		n--
	}
	return n
}

// isMouseEscapeLeak detects mouse escape sequences that leaked through as
// key input instead of tea.MouseMsg (SGR, X11 and URXVT formats).
func isMouseEscapeLeak(s string) bool {
	if len(s) >= 5 && (s[0] == '<' || s[0] == '[') {
		last := s[len(s)-1]
		if last == 'M' || last == 'm' {
			digits := true
			for _, r := range s[1 : len(s)-1] {
				if r != ';' && (r < '0' || r > '9') {
					digits = false
					break
				}
			}
			if digits {
				return true
			}
		}
	}
	return len(s) >= 2 && s[0] == '[' && (s[1] == 'M' || s[1] == 'm')
}

// handleKey processes keyboard input.
func (m ChatModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if isMouseEscapeLeak(msg.String()) {
		return m, nil
	}

	switch msg.Type {
	case tea.KeyCtrlC:
		if m.busy {
			m.deps.Session.Cancel()
			return m, nil
		}
		m.quitting = true
		return m, tea.Quit

	case tea.KeyEsc:
		if m.snap.LastError != "" {
			return m, dismissCmd(m.deps.Session)
		}

	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.chatView, cmd = m.chatView.Update(msg)
		return m, cmd

	case tea.KeyEnd:
		m.chatView.Follow()
		return m, nil
	}

	popupH := m.input.Popup.Height()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.input.Popup.Height() != popupH {
		m.layout()
	}
	return m, cmd
}

// handleSubmit processes user input submission.
func (m ChatModel) handleSubmit(value string) (tea.Model, tea.Cmd) {
	if name, _, ok := components.ParseCommand(value); ok {
		return m.handleSlashCommand(name)
	}
	if m.busy {
		return m, nil
	}

	m.busy = true
	m.input.Lock("Waiting for the reply (Ctrl+C to cancel)")
	m.statusBar.Phase = domain.PhaseSending
	m.statusBar.Activity = "Sending" + theme.SymbolEllipsis
	m.statusBar.Hints = busyHints()

	return m, sendCmd(m.ctx, m.deps.Session, value)
}

// handleSlashCommand runs the command called name.
func (m ChatModel) handleSlashCommand(name string) (tea.Model, tea.Cmd) {
	cmd, ok := commands.Lookup(name)
	if !ok {
		m.addNotice(components.RoleSystem, fmt.Sprintf("Unknown command: /%s. Type /help for available commands.", name))
		return m, nil
	}

	switch cmd.Name {
	case "help":
		m.addNotice(components.RoleSystem, commands.Help()+"\n\n"+keyHelp)

	case "quit":
		m.quitting = true
		m.deps.Session.Cancel()
		return m, tea.Quit

	case "cancel":
		if !m.busy || !m.deps.Session.Cancel() {
			m.addNotice(components.RoleSystem, "No active request to cancel.")
		}

	case "reload":
		if m.busy {
			m.addNotice(components.RoleSystem, "Wait for the current reply before reloading.")
			return m, nil
		}
		m.loading = true
		return m, loadCmd(m.ctx, m.deps.Session)

	case "dismiss":
		return m, dismissCmd(m.deps.Session)

	case "clear":
		m.notices = nil
		m.syncView()
	}
	return m, nil
}

func statusText(st domain.StreamState) string {
	switch st.Phase {
	case domain.PhaseSending, domain.PhaseStreaming:
		if st.StatusLabel != "" {
			return strings.ToUpper(st.StatusLabel[:1]) + st.StatusLabel[1:] + theme.SymbolEllipsis
		}
		if st.Phase == domain.PhaseSending {
			return "Sending" + theme.SymbolEllipsis
		}
		return "Streaming" + theme.SymbolEllipsis
	default:
		return ""
	}
}

func renderHints(hints []string) string {
	var sb strings.Builder
	sb.WriteString("Suggestions:")
	for _, h := range hints {
		sb.WriteString("\n  " + theme.SymbolBullet + " " + h)
	}
	return sb.String()
}

func defaultHints() []components.KeyHint {
	return []components.KeyHint{
		{Key: "Enter", Desc: "Send"},
		{Key: "Alt+Enter", Desc: "Newline"},
		{Key: "/help", Desc: "Commands"},
		{Key: "Ctrl+C", Desc: "Quit"},
	}
}

func busyHints() []components.KeyHint {
	return []components.KeyHint{
		{Key: "Ctrl+C", Desc: "Cancel"},
		{Key: "PgUp/PgDn", Desc: "Scroll"},
		{Key: "End", Desc: "Newest"},
	}
}

// Run starts the TUI and blocks until it exits. bridge must be the
// session's renderer. The in-flight request, if any, is cancelled on exit.
func Run(ctx context.Context, bridge *Bridge, deps ChatModelDeps) error {
	model := NewChatModel(ctx, deps)
	program := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	bridge.Attach(program)
	defer deps.Session.Cancel()

	go func() {
		<-ctx.Done()
		program.Send(QuitMsg{})
	}()

	_, err := program.Run()
	return err
}
