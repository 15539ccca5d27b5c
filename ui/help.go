package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

func (a AppView) renderHelpModal(width, height int) string {
	green := lipgloss.NewStyle().
		Bold(true).
		Foreground(successColor)

	title := green.Render("cmdai - Keyboard Shortcuts")

	blue := lipgloss.NewStyle().Foreground(accentColor)
	line := func(key, action string) string {
		return fmt.Sprintf("• %-13s %s", key, action)
	}

	globalActions := lipgloss.JoinVertical(
		lipgloss.Left,
		blue.Render("## Global Actions"),
		line("Ctrl+N", "New conversation"),
		line("Ctrl+O", "Model selection"),
		line("Tab", "Conversation list"),
		line("Alt+H / F1", "Toggle this help"),
		line("Ctrl+Q", "Quit"),
	)

	conversations := lipgloss.JoinVertical(
		lipgloss.Left,
		blue.Render("## Conversation List"),
		line("j / k", "Move down / up"),
		line("g / G", "First / last"),
		line("Enter", "Open conversation"),
		line("Ctrl+D", "Delete selected"),
		line("Ctrl+X", "Delete all (press twice)"),
	)

	chatNavigation := lipgloss.JoinVertical(
		lipgloss.Left,
		blue.Render("## Chat Navigation"),
		line("PgDn / PgUp", "Full page down / up"),
		line("Alt+↓ / Alt+↑", "Half page down / up"),
		line("Alt+G", "Jump to bottom"),
	)

	chatActions := lipgloss.JoinVertical(
		lipgloss.Left,
		blue.Render("## Chat Actions"),
		line("Enter", "Send message"),
		line("Alt+Enter", "New line"),
		line("Esc", "Cancel response"),
		line("Ctrl+Y", "Copy last response"),
	)

	tips := lipgloss.JoinVertical(
		lipgloss.Left,
		blue.Render("## Models"),
		"• Bare ids run on Ollama",
		"• openai/, anthropic/ and openrouter/",
		"  ids need an API key",
	)

	column1 := lipgloss.JoinVertical(
		lipgloss.Left,
		globalActions,
		"",
		conversations,
	)

	column2 := lipgloss.JoinVertical(
		lipgloss.Left,
		chatNavigation,
		"",
		chatActions,
		"",
		tips,
	)

	columnStyle := lipgloss.NewStyle().Width(42).PaddingLeft(4)

	twoColumns := lipgloss.JoinHorizontal(
		lipgloss.Top,
		columnStyle.Render(column1),
		"  ",
		columnStyle.Render(column2),
	)

	footer := lipgloss.NewStyle().
		Foreground(dimColor).
		Render("Press Alt+H or Esc to close this help")

	content := lipgloss.JoinVertical(
		lipgloss.Center,
		title,
		"",
		twoColumns,
		"",
		footer,
	)

	helpBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor).
		Padding(1, 2).
		Width(min(width-2, 96))

	return lipgloss.Place(
		width,
		height,
		lipgloss.Center,
		lipgloss.Center,
		helpBox.Render(content),
	)
}
