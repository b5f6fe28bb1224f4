// Package render provides a line-oriented renderer for non-interactive use.
// It prints assistant tokens as they arrive and reports the exchange
// outcome, styled with lipgloss and optionally rendered as markdown.
package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"chatstream/internal/adapter/tui/theme"
	"chatstream/internal/domain"
)

var (
	statusStyle   = lipgloss.NewStyle().Faint(true)
	errorStyle    = theme.TextError
	cancelStyle   = lipgloss.NewStyle().Foreground(theme.ColorBusy)
	citationStyle = theme.Citation
)

// Options configures a WriterRenderer.
type Options struct {
	// Markdown renders the final reply with glamour instead of streaming
	// raw tokens.
	Markdown bool
	// ShowStatus prints progress labels such as "thinking" to Err.
	ShowStatus bool
	// Width is the markdown wrap width. Zero means 80.
	Width int
}

// WriterRenderer implements domain.Renderer and domain.SentNotifier on top
// of two writers: Out receives the reply, Err receives status and errors.
type WriterRenderer struct {
	mu      sync.Mutex
	out     io.Writer
	errOut  io.Writer
	opts    Options
	md      *glamour.TermRenderer
	printed string
	status  string
}

// NewWriterRenderer creates a renderer writing to out and errOut.
func NewWriterRenderer(out, errOut io.Writer, opts Options) (*WriterRenderer, error) {
	if opts.Width <= 0 {
		opts.Width = 80
	}
	r := &WriterRenderer{out: out, errOut: errOut, opts: opts}
	if opts.Markdown {
		md, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(opts.Width),
		)
		if err != nil {
			return nil, fmt.Errorf("markdown renderer: %w", err)
		}
		r.md = md
	}
	return r, nil
}

// Render prints the part of the partial reply not yet written.
func (r *WriterRenderer) Render(snap domain.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := snap.Stream
	if r.opts.ShowStatus && st.StatusLabel != "" && st.StatusLabel != r.status {
		fmt.Fprintln(r.errOut, statusStyle.Render(theme.SymbolEllipsis+" "+st.StatusLabel))
	}
	r.status = st.StatusLabel

	if r.opts.Markdown || st.Phase != domain.PhaseStreaming {
		return
	}
	if strings.HasPrefix(st.PartialContent, r.printed) {
		io.WriteString(r.out, st.PartialContent[len(r.printed):])
		r.printed = st.PartialContent
	}
}

// Sent writes whatever the server's final reply adds beyond the streamed
// tokens, then the citations.
func (r *WriterRenderer) Sent(_, ai domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.md != nil:
		rendered, err := r.md.Render(ai.Content)
		if err != nil {
			rendered = ai.Content + "\n"
		}
		io.WriteString(r.out, rendered)
	case strings.HasPrefix(ai.Content, r.printed):
		io.WriteString(r.out, ai.Content[len(r.printed):]+"\n")
	default:
		io.WriteString(r.out, "\n")
	}
	for i, c := range ai.Citations {
		fmt.Fprintln(r.out, citationStyle.Render(formatCitation(i+1, c)))
	}
	r.reset()
}

// FatalError reports a failed request on Err.
func (r *WriterRenderer) FatalError(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.printed != "" {
		io.WriteString(r.out, "\n")
	}
	fmt.Fprintln(r.errOut, errorStyle.Render("Error: "+message))
	r.reset()
}

// Cancelled reports an abandoned request on Err.
func (r *WriterRenderer) Cancelled() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.printed != "" {
		io.WriteString(r.out, "\n")
	}
	fmt.Fprintln(r.errOut, cancelStyle.Render("Request cancelled."))
	r.reset()
}

func (r *WriterRenderer) reset() {
	r.printed = ""
	r.status = ""
}

func formatCitation(n int, c domain.Citation) string {
	label := c.Title
	if label == "" {
		label = c.DocumentID
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%d] %s", n, label)
	if c.Page > 0 {
		fmt.Fprintf(&sb, ", p. %d", c.Page)
	}
	if c.URL != "" {
		sb.WriteString(" <" + c.URL + ">")
	}
	return sb.String()
}

// WriteHistory prints the committed messages of conv, one block per message.
func WriteHistory(w io.Writer, conv *domain.Conversation) {
	if conv == nil || len(conv.Messages) == 0 {
		fmt.Fprintln(w, statusStyle.Render("(no messages)"))
		return
	}
	for i, m := range conv.Messages {
		if i > 0 {
			fmt.Fprintln(w)
		}
		header := theme.UserLabel.Render(theme.SymbolUser)
		if m.Role == domain.RoleAssistant {
			header = theme.BotLabel.Render(theme.SymbolBot)
		}
		if !m.CreatedAt.IsZero() {
			header += " " + statusStyle.Render(m.CreatedAt.Local().Format("Jan 2 15:04"))
		}
		fmt.Fprintln(w, header)
		fmt.Fprintln(w, m.Content)
		for j, c := range m.Citations {
			fmt.Fprintln(w, citationStyle.Render(formatCitation(j+1, c)))
		}
	}
}

var (
	_ domain.Renderer     = (*WriterRenderer)(nil)
	_ domain.SentNotifier = (*WriterRenderer)(nil)
)
