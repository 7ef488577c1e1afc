package tui

import (
	"fmt"
	"strings"

	markdown "github.com/MichaelMure/go-term-markdown"
	gomarkdown "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/parser"

	"github.com/kalambet/parley/internal/chat"
	"github.com/kalambet/parley/internal/session"
)

const emptyTranscript = "No messages yet. Start chatting!"

// renderMarkdown renders assistant text for the terminal at width columns.
func renderMarkdown(content string, width int) string {
	if width < 20 {
		width = 20
	}
	p := parser.NewWithExtensions(markdown.Extensions())
	r := markdown.NewRenderer(width, 0)
	doc := p.Parse([]byte(content))
	return strings.TrimRight(string(gomarkdown.Render(doc, r)), "\n")
}

// renderTranscript lays out the history of s. User text is shown as typed;
// assistant text goes through the markdown renderer.
func renderTranscript(s session.State, width int) string {
	var b strings.Builder

	if s.Err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Could not load %s history: %v", s.Mode, s.Err)))
		b.WriteString("\n\n")
	}
	if len(s.History) == 0 {
		b.WriteString(dimStyle.Render(emptyTranscript))
		return b.String()
	}

	for _, m := range s.History {
		switch {
		case m.Role == chat.RoleUser:
			fmt.Fprintf(&b, "%s\n%s\n\n", userStyle.Render("You"), m.Content)
		case strings.HasPrefix(m.Content, "Error: "):
			fmt.Fprintf(&b, "%s\n%s\n\n", assistantStyle.Render("Assistant"), errorStyle.Render(m.Content))
		default:
			fmt.Fprintf(&b, "%s\n%s\n\n", assistantStyle.Render("Assistant"), renderMarkdown(m.Content, width))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// lastReply returns the newest assistant message that is not an error entry.
func lastReply(history []chat.Message) (string, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if m.Role == chat.RoleAssistant && !strings.HasPrefix(m.Content, "Error: ") {
			return m.Content, true
		}
	}
	return "", false
}
