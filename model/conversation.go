package model

import (
	"time"

	"github.com/google/uuid"
)

// DefaultTitle is the title of a conversation before its first user message.
const DefaultTitle = "New Conversation"

// titleLimit is the number of characters of the first user message kept as a title.
const titleLimit = 50

// Conversation is an ordered message history bound to the model it talks to.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Model     string    `json:"model"`
}

// NewConversation starts an empty conversation for modelID.
func NewConversation(modelID string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        uuid.New().String(),
		Title:     DefaultTitle,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
		Model:     modelID,
	}
}

// AddMessage appends msg and bumps UpdatedAt. The first user message of an
// untitled conversation becomes its title.
func (c *Conversation) AddMessage(msg Message) {
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now()

	if len(c.Messages) == 1 && msg.Role == RoleUser && c.Title == DefaultTitle {
		c.Title = titleFrom(msg.Content)
	}
}

// ChatMessages projects the history to role/content pairs for a provider.
func (c *Conversation) ChatMessages() []ChatMessage {
	result := make([]ChatMessage, len(c.Messages))
	for i, msg := range c.Messages {
		result[i] = msg.ChatMessage()
	}
	return result
}

// LastAssistantReply returns the content of the most recent assistant message.
func (c *Conversation) LastAssistantReply() (string, bool) {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleAssistant {
			return c.Messages[i].Content, true
		}
	}
	return "", false
}

func titleFrom(content string) string {
	runes := []rune(content)
	if len(runes) <= titleLimit {
		return content
	}
	return string(runes[:titleLimit]) + "..."
}
