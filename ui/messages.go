package ui

import (
	"cmdai/model"
)

type modelsListMsg struct {
	Models []string
}

type conversationsListMsg struct {
	Conversations []*model.Conversation
	Err           error
}

// fragmentMsg carries one streamed fragment of the stream identified by StreamID.
type fragmentMsg struct {
	StreamID int
	Fragment string
}

type streamDoneMsg struct {
	StreamID int
}

type conversationSavedMsg struct {
	ID  string
	Err error
}

type conversationDeletedMsg struct {
	ID      string
	Removed bool
	Err     error
}

type conversationsClearedMsg struct {
	Removed int
	Err     error
}

type lastModelSavedMsg struct {
	Model string
	Err   error
}

type markdownRenderedMsg struct {
	ConversationID string
	MessageIndex   int
	Rendered       string
}

type clipboardMsg struct {
	Err error
}

// statusClearMsg clears the transient status line if it is still the one set
// at Seq.
type statusClearMsg struct {
	Seq int
}
