package testutil

import (
	"iter"

	"cmdai/model"
)

// TestMessages returns a sample conversation for testing
func TestMessages() []model.ChatMessage {
	return []model.ChatMessage{
		{Role: model.RoleSystem, Content: "You are terse."},
		{Role: model.RoleUser, Content: "Hello, how are you?"},
		{Role: model.RoleAssistant, Content: "I'm doing well, thank you!"},
		{Role: model.RoleUser, Content: "Can you help me with a task?"},
	}
}

// SingleUserMessage returns a single user message for simple tests
func SingleUserMessage(content string) []model.ChatMessage {
	return []model.ChatMessage{
		{Role: model.RoleUser, Content: content},
	}
}

// Collect drains a provider stream into its fragments and terminal error.
func Collect(seq iter.Seq2[string, error]) ([]string, error) {
	var fragments []string
	for fragment, err := range seq {
		if err != nil {
			return fragments, err
		}
		fragments = append(fragments, fragment)
	}
	return fragments, nil
}
