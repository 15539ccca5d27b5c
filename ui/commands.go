package ui

import (
	"context"
	"slices"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"cmdai/config"
	"cmdai/model"
	"cmdai/storage"
)

// modelListTimeout bounds the startup catalog fetch across all providers.
const modelListTimeout = 30 * time.Second

// statusTTL is how long a footer status message stays visible.
var statusTTL = 4 * time.Second

// fetchModels queries every provider for the model catalog.
func fetchModels(router Chatter) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), modelListTimeout)
		defer cancel()

		start := time.Now()
		models := router.ListModels(ctx)
		config.DebugLog.Debug().Int("models", len(models)).Dur("elapsed", time.Since(start)).Msg("fetched model catalog")
		return modelsListMsg{Models: models}
	}
}

// listConversations reads the saved conversation list.
func listConversations(store *storage.ConversationStorage) tea.Cmd {
	if store == nil {
		return nil
	}
	return func() tea.Msg {
		conversations, err := store.List()
		return conversationsListMsg{Conversations: conversations, Err: err}
	}
}

// snapshot copies conv so a command goroutine never shares the message slice
// the view keeps appending to.
func snapshot(conv *model.Conversation) *model.Conversation {
	c := *conv
	c.Messages = slices.Clone(conv.Messages)
	return &c
}

// saveConversation writes conv to disk and mirrors it into the search index.
// Index failures are logged; the file is the source of truth.
func saveConversation(store *storage.ConversationStorage, index *storage.SearchIndex, conv *model.Conversation) tea.Cmd {
	if store == nil {
		return nil
	}
	conv = snapshot(conv)
	return func() tea.Msg {
		if err := store.Save(conv); err != nil {
			config.DebugLog.Error().Str("conversation", conv.ID).Err(err).Msg("failed to save conversation")
			return conversationSavedMsg{ID: conv.ID, Err: err}
		}
		if index != nil {
			if err := index.Index(context.Background(), conv); err != nil {
				config.DebugLog.Warn().Str("conversation", conv.ID).Err(err).Msg("failed to index conversation")
			}
		}
		return conversationSavedMsg{ID: conv.ID}
	}
}

func deleteConversation(store *storage.ConversationStorage, index *storage.SearchIndex, id string) tea.Cmd {
	return func() tea.Msg {
		removed, err := store.Delete(id)
		if err == nil && index != nil {
			if err := index.Remove(context.Background(), id); err != nil {
				config.DebugLog.Warn().Str("conversation", id).Err(err).Msg("failed to remove conversation from index")
			}
		}
		return conversationDeletedMsg{ID: id, Removed: removed, Err: err}
	}
}

func clearConversations(store *storage.ConversationStorage, index *storage.SearchIndex) tea.Cmd {
	return func() tea.Msg {
		removed, err := store.DeleteAll()
		if index != nil {
			if err := index.Clear(context.Background()); err != nil {
				config.DebugLog.Warn().Err(err).Msg("failed to clear search index")
			}
		}
		return conversationsClearedMsg{Removed: removed, Err: err}
	}
}

// persistLastModel records id as last_model in the config file.
func persistLastModel(cfg *config.Config, id string) tea.Cmd {
	return func() tea.Msg {
		return lastModelSavedMsg{Model: id, Err: cfg.UpdateLastModel(id)}
	}
}

func copyToClipboard(write func(string) error, text string) tea.Cmd {
	return func() tea.Msg {
		return clipboardMsg{Err: write(text)}
	}
}

func clearStatusAfter(seq int) tea.Cmd {
	return tea.Tick(statusTTL, func(time.Time) tea.Msg {
		return statusClearMsg{Seq: seq}
	})
}
