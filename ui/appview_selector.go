package ui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/sahilm/fuzzy"
)

// selectorState is the model picker. Typing filters the list fuzzily.
type selectorState struct {
	active   bool
	filter   textinput.Model
	filtered []string
	selected int
}

func newSelectorState() selectorState {
	filter := textinput.New()
	filter.Prompt = "Filter: "
	filter.CharLimit = 64
	return selectorState{filter: filter}
}

// refilter recomputes the visible list from models and the filter text.
func (s *selectorState) refilter(models []string) {
	query := s.filter.Value()
	if query == "" {
		s.filtered = slices.Clone(models)
	} else {
		matches := fuzzy.Find(query, models)
		s.filtered = make([]string, len(matches))
		for i, match := range matches {
			s.filtered[i] = models[match.Index]
		}
	}

	if s.selected >= len(s.filtered) {
		s.selected = max(len(s.filtered)-1, 0)
	}
}

// selectorModels is the list offered by the picker. Until the catalog
// arrives it is just the default model.
func (a AppView) selectorModels() []string {
	if len(a.models) == 0 {
		return []string{a.cfg.DefaultModel}
	}
	return a.models
}

func (a *AppView) openSelector() {
	a.selector.active = true
	a.selector.filter.SetValue("")
	a.selector.filter.Focus()
	a.selector.refilter(a.selectorModels())
	a.selector.selected = max(slices.Index(a.selector.filtered, a.currentModel), 0)
	a.textarea.Blur()
}

func (a *AppView) closeSelector() {
	a.selector.active = false
	a.selector.filter.Blur()
	if a.stream == nil && a.focus == focusInput {
		a.textarea.Focus()
	}
}

func (a AppView) handleSelectorKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	s := &a.selector

	switch msg.String() {
	case "ctrl+c":
		a.cancelStream()
		return a, tea.Quit

	case "esc":
		a.closeSelector()
		return a, nil

	case "enter":
		if len(s.filtered) == 0 {
			return a, nil
		}
		choice := s.filtered[s.selected]
		a.closeSelector()
		return a, a.selectModel(choice)

	case "up", "ctrl+k", "ctrl+p":
		if s.selected > 0 {
			s.selected--
		}
		return a, nil

	case "down", "ctrl+j", "ctrl+n":
		if s.selected < len(s.filtered)-1 {
			s.selected++
		}
		return a, nil
	}

	var cmd tea.Cmd
	s.filter, cmd = s.filter.Update(msg)
	s.refilter(a.selectorModels())
	return a, cmd
}

// selectModel switches the active model and persists it as last_model.
func (a *AppView) selectModel(id string) tea.Cmd {
	if id == a.currentModel {
		return nil
	}
	a.currentModel = id
	a.conversation.Model = id
	return tea.Batch(
		persistLastModel(a.cfg, id),
		a.setStatus("Switched to "+id, false),
	)
}

func (a AppView) renderModelSelector() string {
	s := a.selector
	all := a.selectorModels()

	modalWidth := min(a.width-10, 80)
	modalHeight := a.height - 6

	titleSection := lipgloss.NewStyle().
		Bold(true).
		Align(lipgloss.Center).
		Width(modalWidth).
		Render("Select Model")

	var count string
	if len(s.filtered) == len(all) {
		count = fmt.Sprintf("%d models", len(all))
	} else {
		count = fmt.Sprintf("%d of %d models", len(s.filtered), len(all))
	}

	headerSection := lipgloss.NewStyle().
		Foreground(dimColor).
		Width(modalWidth).
		BorderTop(true).
		BorderBottom(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(dimColor).
		Render(s.filter.View() + "  " + count)

	maxLines := max(modalHeight-8, 1)

	var lines []string
	if len(s.filtered) == 0 {
		lines = append(lines, lipgloss.NewStyle().
			Foreground(dimColor).
			Italic(true).
			Align(lipgloss.Center).
			Width(modalWidth).
			Render("No matches found"))
	} else {
		start, end := scrollWindow(len(s.filtered), s.selected, maxLines)
		for i := start; i < end; i++ {
			id := s.filtered[i]

			indicator := "  "
			if i == s.selected {
				indicator = "▶ "
			}
			current := ""
			if id == a.currentModel {
				current = " (current)"
			}

			name := runewidth.Truncate(id, modalWidth-len(indicator)-len(current)-1, "...")

			style := lipgloss.NewStyle()
			switch {
			case i == s.selected:
				style = style.Foreground(successColor).Bold(true)
			case id == a.currentModel:
				style = style.Foreground(accentColor).Bold(true)
			}
			lines = append(lines, lipgloss.NewStyle().Width(modalWidth).Render(style.Render(indicator+name+current)))
		}
	}

	footerSection := lipgloss.NewStyle().
		Align(lipgloss.Center).
		Width(modalWidth).
		BorderTop(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(dimColor).
		Render(FormatFooter("Type", "Filter", "↑/↓", "Navigate", "Enter", "Select", "Esc", "Cancel"))

	sections := []string{titleSection, headerSection, ""}
	sections = append(sections, lines...)
	sections = append(sections, "", footerSection)

	return lipgloss.NewStyle().
		Width(a.width).
		Height(a.height).
		Align(lipgloss.Center, lipgloss.Center).
		Render(strings.Join(sections, "\n"))
}

// scrollWindow returns the [start, end) range of a list of n items that keeps
// selected roughly centered in a window of size rows.
func scrollWindow(n, selected, size int) (int, int) {
	if n <= size {
		return 0, n
	}
	switch {
	case selected < size/2:
		return 0, size
	case selected >= n-size/2:
		return n - size, n
	default:
		start := selected - size/2
		return start, start + size
	}
}
