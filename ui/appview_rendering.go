package ui

import (
	"fmt"
	"strings"
	"time"

	markdown "github.com/MichaelMure/go-term-markdown"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	gomarkdown "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/parser"
	"github.com/mattn/go-runewidth"

	"cmdai/config"
	"cmdai/model"
)

const streamingCursor = "▌"

func (a *AppView) updateViewportContent(gotoBottom bool) {
	if len(a.conversation.Messages) == 0 && a.stream == nil {
		a.viewport.SetContent(DimStyle.Render("No messages yet. Start chatting!"))
		return
	}

	var content strings.Builder
	for i, msg := range a.conversation.Messages {
		body, ok := a.rendered[i]
		if !ok {
			body = a.wrap(msg.Content)
		}
		content.WriteString(a.renderMessage(msg.Role, msg.Timestamp, msg.Model, body))
	}

	if a.stream != nil {
		body := a.wrap(a.stream.reply.String()) + streamingCursor
		content.WriteString(a.renderMessage(model.RoleAssistant, time.Now(), a.stream.model, body))
	}

	a.viewport.SetContent(content.String())
	if gotoBottom {
		a.viewport.GotoBottom()
	}
}

func (a *AppView) renderMessage(role model.Role, ts time.Time, modelID, body string) string {
	var header string
	switch role {
	case model.RoleUser:
		header = UserStyle.Render("You")
	case model.RoleAssistant:
		header = AssistantStyle.Render("Assistant")
		if modelID != "" {
			header += DimStyle.Render(" (" + modelID + ")")
		}
	default:
		header = DimStyle.Render("System")
	}
	header = DimStyle.Render(ts.Format("[15:04]")) + " " + header

	pad := strings.Repeat(" ", a.cfg.MessagePadding)
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")
	for _, line := range strings.Split(body, "\n") {
		b.WriteString(pad)
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}

// wrap soft-wraps plain text to the chat width minus padding.
func (a *AppView) wrap(text string) string {
	width := a.chatWidth() - a.cfg.MessagePadding
	if width <= 0 {
		return text
	}
	return lipgloss.NewStyle().Width(width).Render(text)
}

func (a AppView) renderSidebar() string {
	width := a.sidebarWidth()
	inner := width - 1

	var b strings.Builder
	b.WriteString(TitleStyle.Render("cmdai"))
	b.WriteString("\n\n")
	b.WriteString(DimStyle.Render("Model"))
	b.WriteString("\n")
	b.WriteString(AssistantStyle.Render(runewidth.Truncate(a.currentModel, inner, "…")))
	b.WriteString("\n\n")
	b.WriteString(DimStyle.Render(fmt.Sprintf("Conversations (%d)", len(a.conversations))))
	b.WriteString("\n")

	// title, model, blank, conversations header, footer
	rows := max(a.height-6, 1)
	start, end := scrollWindow(len(a.conversations), a.selectedConv, rows)
	for i := start; i < end; i++ {
		conv := a.conversations[i]

		marker := "  "
		if conv.ID == a.conversation.ID {
			marker = "• "
		}
		line := marker + runewidth.Truncate(conv.Title, inner-2, "…")

		switch {
		case a.focus == focusSidebar && i == a.selectedConv:
			line = SelectedStyle.Render(line)
		case conv.ID == a.conversation.ID:
			line = HighlightStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return SidebarStyle.
		Width(width).
		Height(a.height - 1).
		Render(b.String())
}

func (a AppView) renderFooter() string {
	if a.status != "" {
		if a.statusErr {
			return ErrorStyle.Render(a.status)
		}
		return StatusStyle.Render(a.status)
	}

	if a.stream != nil {
		return StatusStyle.Render(FormatFooter("Esc", "Cancel", "Ctrl+Y", "Copy", "Ctrl+Q", "Quit"))
	}
	if a.focus == focusSidebar {
		return StatusStyle.Render(FormatFooter("j/k", "Navigate", "Enter", "Open", "Ctrl+D", "Delete", "Ctrl+X", "Clear all", "Tab", "Chat"))
	}
	return StatusStyle.Render(FormatFooter(
		"Enter", "Send",
		"Ctrl+N", "New",
		"Ctrl+O", "Models",
		"Tab", "Conversations",
		"Ctrl+Y", "Copy",
		"Alt+H", "Help",
		"Ctrl+Q", "Quit",
	))
}

// renderMarkdown renders a finalized assistant message off the update loop.
func renderMarkdown(conversationID string, index int, content string, width int) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		rendered := RenderMarkdown(content, width)
		config.DebugLog.Debug().
			Int("message", index).
			Int("chars", len(content)).
			Dur("elapsed", time.Since(start)).
			Msg("rendered markdown")
		return markdownRenderedMsg{ConversationID: conversationID, MessageIndex: index, Rendered: rendered}
	}
}

// renderAllMarkdown re-renders every assistant message of the conversation.
func (a AppView) renderAllMarkdown() tea.Cmd {
	var cmds []tea.Cmd
	for i, msg := range a.conversation.Messages {
		if msg.Role == model.RoleAssistant {
			cmds = append(cmds, renderMarkdown(a.conversation.ID, i, msg.Content, a.chatWidth()))
		}
	}
	return tea.Batch(cmds...)
}

// RenderMarkdown renders markdown for a terminal of the given width. Plain
// URLs are left for the terminal to detect.
func RenderMarkdown(content string, width int) string {
	if width < 20 {
		width = 20
	}
	ext := markdown.Extensions() &^ parser.Autolink
	p := parser.NewWithExtensions(ext)
	doc := p.Parse([]byte(content))
	r := markdown.NewRenderer(width, 0)
	return strings.TrimRight(string(gomarkdown.Render(doc, r)), "\n")
}
