package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"

	"cmdai/config"
	"cmdai/model"
)

func (a AppView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		widthChanged := msg.Width != a.width
		a.width = msg.Width
		a.height = msg.Height
		a.layout()
		a.ready = true
		a.updateViewportContent(false)
		if widthChanged {
			return a, a.renderAllMarkdown()
		}
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)

	case fragmentMsg:
		return a.handleFragment(msg)

	case streamDoneMsg:
		return a.finishStream(msg)

	case modelsListMsg:
		a.models = msg.Models
		if a.selector.active {
			a.selector.refilter(a.selectorModels())
		}
		return a, nil

	case conversationsListMsg:
		if msg.Err != nil {
			return a, a.setStatus(fmt.Sprintf("Could not list conversations: %v", msg.Err), true)
		}
		a.conversations = msg.Conversations
		if a.selectedConv >= len(a.conversations) {
			a.selectedConv = max(len(a.conversations)-1, 0)
		}
		return a, nil

	case conversationSavedMsg:
		if msg.Err != nil {
			return a, a.setStatus(fmt.Sprintf("Save failed: %v", msg.Err), true)
		}
		return a, listConversations(a.store)

	case conversationDeletedMsg:
		if msg.Err != nil {
			return a, a.setStatus(fmt.Sprintf("Delete failed: %v", msg.Err), true)
		}
		var cmds []tea.Cmd
		if msg.ID == a.conversation.ID {
			a.newConversation()
		}
		cmds = append(cmds, listConversations(a.store))
		if msg.Removed {
			cmds = append(cmds, a.setStatus("Conversation deleted", false))
		}
		return a, tea.Batch(cmds...)

	case conversationsClearedMsg:
		a.newConversation()
		if msg.Err != nil {
			return a, tea.Batch(listConversations(a.store), a.setStatus(fmt.Sprintf("Clear failed: %v", msg.Err), true))
		}
		return a, tea.Batch(listConversations(a.store), a.setStatus(fmt.Sprintf("Deleted %d conversations", msg.Removed), false))

	case lastModelSavedMsg:
		if msg.Err != nil {
			config.DebugLog.Warn().Str("model", msg.Model).Err(msg.Err).Msg("failed to persist last model")
			return a, a.setStatus(fmt.Sprintf("Could not save model choice: %v", msg.Err), true)
		}
		return a, nil

	case markdownRenderedMsg:
		if msg.ConversationID == a.conversation.ID {
			a.rendered[msg.MessageIndex] = msg.Rendered
			a.updateViewportContent(false)
		}
		return a, nil

	case clipboardMsg:
		if msg.Err != nil {
			return a, a.setStatus(fmt.Sprintf("Copy failed: %v", msg.Err), true)
		}
		return a, a.setStatus("Copied last reply", false)

	case statusClearMsg:
		if msg.Seq == a.statusSeq {
			a.status = ""
			a.statusErr = false
		}
		return a, nil
	}

	var cmd tea.Cmd
	a.textarea, cmd = a.textarea.Update(msg)
	return a, cmd
}

func (a AppView) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.selector.active {
		return a.handleSelectorKey(msg)
	}

	k := msg.String()
	if k != "ctrl+x" {
		a.pendingClear = false
	}

	if a.showHelp {
		switch k {
		case "ctrl+c", "ctrl+q":
			a.cancelStream()
			return a, tea.Quit
		case "esc", "alt+h", "f1", "q":
			a.showHelp = false
		}
		return a, nil
	}

	switch k {
	case "ctrl+c", "ctrl+q":
		a.cancelStream()
		return a, tea.Quit

	case "alt+h", "f1":
		a.showHelp = true
		return a, nil

	case "pgdown":
		a.viewport.PageDown()
		return a, nil
	case "pgup":
		a.viewport.PageUp()
		return a, nil
	case "alt+down":
		a.viewport.HalfPageDown()
		return a, nil
	case "alt+up":
		a.viewport.HalfPageUp()
		return a, nil
	case "alt+g":
		a.viewport.GotoBottom()
		return a, nil

	case "esc":
		if a.stream != nil {
			a.cancelStream()
			return a, nil
		}
		if a.focus == focusSidebar {
			a.focusInput()
		}
		return a, nil

	case "ctrl+o":
		a.openSelector()
		return a, nil

	case "ctrl+y":
		reply, ok := a.conversation.LastAssistantReply()
		if !ok {
			return a, a.setStatus("Nothing to copy yet", false)
		}
		return a, copyToClipboard(a.clipboard, reply)

	case "tab":
		if a.focus == focusSidebar {
			a.focusInput()
		} else {
			a.focus = focusSidebar
			a.textarea.Blur()
		}
		return a, nil
	}

	// The rest changes the active conversation and waits for the stream.
	if a.stream != nil {
		switch k {
		case "ctrl+n", "ctrl+d", "ctrl+x", "enter":
			return a, a.setStatus("Wait for the response to finish or press Esc", false)
		}
		return a, nil
	}

	switch k {
	case "ctrl+n":
		a.newConversation()
		a.focusInput()
		return a, nil

	case "ctrl+d":
		if len(a.conversations) == 0 {
			return a, nil
		}
		id := a.conversations[a.selectedConv].ID
		return a, deleteConversation(a.store, a.index, id)

	case "ctrl+x":
		if len(a.conversations) == 0 {
			return a, nil
		}
		if !a.pendingClear {
			a.pendingClear = true
			return a, a.setStatus("Press Ctrl+X again to delete all conversations", true)
		}
		a.pendingClear = false
		return a, clearConversations(a.store, a.index)
	}

	if a.focus == focusSidebar {
		return a.handleSidebarKey(k)
	}

	if k == "enter" {
		return a.sendMessage()
	}

	var cmd tea.Cmd
	a.textarea, cmd = a.textarea.Update(msg)
	return a, cmd
}

func (a AppView) handleSidebarKey(k string) (tea.Model, tea.Cmd) {
	switch k {
	case "j", "down":
		if a.selectedConv < len(a.conversations)-1 {
			a.selectedConv++
		}
	case "k", "up":
		if a.selectedConv > 0 {
			a.selectedConv--
		}
	case "g", "home":
		a.selectedConv = 0
	case "G", "end":
		a.selectedConv = max(len(a.conversations)-1, 0)
	case "enter":
		if len(a.conversations) == 0 {
			return a, nil
		}
		cmd := a.loadConversation(a.conversations[a.selectedConv])
		a.focusInput()
		return a, cmd
	}
	return a, nil
}

func (a *AppView) focusInput() {
	a.focus = focusInput
	a.textarea.Focus()
}

// newConversation starts an empty conversation on the current model.
func (a *AppView) newConversation() {
	a.conversation = model.NewConversation(a.currentModel)
	a.rendered = make(map[int]string)
	a.updateViewportContent(true)
}

// loadConversation makes conv active and switches to its model.
func (a *AppView) loadConversation(conv *model.Conversation) tea.Cmd {
	a.conversation = snapshot(conv)
	a.rendered = make(map[int]string)
	if conv.Model != "" {
		a.currentModel = conv.Model
	}
	a.updateViewportContent(true)

	config.DebugLog.Debug().Str("conversation", conv.ID).Str("model", conv.Model).Msg("loaded conversation")
	return tea.Batch(a.renderAllMarkdown(), textarea.Blink)
}

// setStatus shows text in the footer until it expires.
func (a *AppView) setStatus(text string, isErr bool) tea.Cmd {
	a.statusSeq++
	a.status = text
	a.statusErr = isErr
	return clearStatusAfter(a.statusSeq)
}
