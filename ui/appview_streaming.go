package ui

import (
	"context"
	"iter"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"cmdai/config"
	"cmdai/model"
)

// sendMessage appends the input as a user message and starts streaming the
// reply.
func (a AppView) sendMessage() (AppView, tea.Cmd) {
	text := strings.TrimSpace(a.textarea.Value())
	if text == "" || a.stream != nil {
		return a, nil
	}

	a.textarea.Reset()
	a.conversation.Model = a.currentModel
	a.conversation.AddMessage(model.NewUserMessage(text))

	cmd := a.startStream()
	a.updateViewportContent(true)
	return a, cmd
}

// startStream pulls the reply one fragment per command. Input is disabled
// until the stream ends.
func (a *AppView) startStream() tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	next, stop := iter.Pull(a.router.StreamChat(ctx, a.currentModel, a.conversation.ChatMessages()))

	a.streamSeq++
	a.stream = &activeStream{
		id:     a.streamSeq,
		model:  a.currentModel,
		next:   next,
		stop:   stop,
		cancel: cancel,
		reply:  &strings.Builder{},
	}
	a.textarea.Blur()

	config.DebugLog.Debug().
		Str("model", a.currentModel).
		Str("conversation", a.conversation.ID).
		Int("messages", len(a.conversation.Messages)).
		Msg("starting stream")

	return pullFragment(a.stream.id, next)
}

// pullFragment blocks on the next fragment in a command goroutine.
func pullFragment(id int, next func() (string, bool)) tea.Cmd {
	return func() tea.Msg {
		fragment, ok := next()
		if !ok {
			return streamDoneMsg{StreamID: id}
		}
		return fragmentMsg{StreamID: id, Fragment: fragment}
	}
}

func (a AppView) handleFragment(msg fragmentMsg) (AppView, tea.Cmd) {
	s := a.stream
	if s == nil || s.id != msg.StreamID {
		return a, nil
	}

	// After cancel the remaining fragments (including the error marker) are
	// drained but not shown.
	if !s.canceled {
		s.reply.WriteString(msg.Fragment)
		a.updateViewportContent(true)
	}
	return a, pullFragment(s.id, s.next)
}

// cancelStream aborts the request. The pending pull returns promptly once
// the context is canceled and the stream is finalized from streamDoneMsg.
func (a *AppView) cancelStream() {
	if a.stream == nil || a.stream.canceled {
		return
	}
	a.stream.canceled = true
	a.stream.cancel()
	config.DebugLog.Debug().Int("stream", a.stream.id).Msg("stream canceled by user")
}

// finishStream attaches the reply to the conversation, saves it and re-enables
// input.
func (a AppView) finishStream(msg streamDoneMsg) (AppView, tea.Cmd) {
	s := a.stream
	if s == nil || s.id != msg.StreamID {
		return a, nil
	}
	a.stream = nil
	s.stop()
	s.cancel()

	var cmds []tea.Cmd

	reply := s.reply.String()
	if reply != "" {
		a.conversation.AddMessage(model.NewAssistantMessage(reply, s.model))
		cmds = append(cmds, renderMarkdown(a.conversation.ID, len(a.conversation.Messages)-1, reply, a.chatWidth()))
	}

	config.DebugLog.Debug().
		Int("stream", s.id).
		Int("chars", len(reply)).
		Bool("canceled", s.canceled).
		Msg("stream finished")

	cmds = append(cmds, saveConversation(a.store, a.index, a.conversation))
	if s.canceled {
		cmds = append(cmds, a.setStatus("Response canceled", false))
	}

	a.textarea.Focus()
	a.updateViewportContent(true)
	return a, tea.Batch(cmds...)
}
