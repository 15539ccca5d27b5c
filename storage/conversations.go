package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cmdai/config"
	"cmdai/model"

	"github.com/google/uuid"
)

// ErrInvalidID is returned for conversation IDs that cannot name a file.
var ErrInvalidID = errors.New("invalid conversation id")

const fileExt = ".json"

// ConversationStorage keeps one JSON file per conversation.
type ConversationStorage struct {
	dir string
}

// NewConversationStorage creates the storage directory if needed.
func NewConversationStorage(dir string) (*ConversationStorage, error) {
	// 0700 - user-only access
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create conversations directory: %w", err)
	}
	return &ConversationStorage{dir: dir}, nil
}

// Dir returns the storage directory.
func (s *ConversationStorage) Dir() string {
	return s.dir
}

func (s *ConversationStorage) path(id string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return filepath.Join(s.dir, id+fileExt), nil
}

// Save writes conv to <id>.json, assigning an ID when it has none.
func (s *ConversationStorage) Save(conv *model.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}

	path, err := s.path(conv.ID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	// Replace atomically.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write conversation file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write conversation file: %w", err)
	}

	config.DebugLog.Debug().Str("conversation", conv.ID).Int("messages", len(conv.Messages)).Msg("saved conversation")
	return nil
}

// Load reads a conversation. A missing conversation is (nil, nil).
func (s *ConversationStorage) Load(id string) (*model.Conversation, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation file: %w", err)
	}

	var conv model.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation: %w", err)
	}
	return &conv, nil
}

// List returns every readable conversation, most recently updated first.
// Corrupt files are skipped.
func (s *ConversationStorage) List() ([]*model.Conversation, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read conversations directory: %w", err)
	}

	var conversations []*model.Conversation
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}

		var conv model.Conversation
		if err := json.Unmarshal(data, &conv); err != nil {
			config.DebugLog.Debug().Str("file", entry.Name()).Err(err).Msg("skipping corrupt conversation")
			continue
		}
		conversations = append(conversations, &conv)
	}

	sort.SliceStable(conversations, func(i, j int) bool {
		return conversations[i].UpdatedAt.After(conversations[j].UpdatedAt)
	})

	return conversations, nil
}

// Delete removes a conversation and reports whether a file existed.
func (s *ConversationStorage) Delete(id string) (bool, error) {
	path, err := s.path(id)
	if err != nil {
		return false, err
	}

	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete conversation file: %w", err)
	}
	return true, nil
}

// DeleteAll removes every conversation file and returns how many were removed.
func (s *ConversationStorage) DeleteAll() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read conversations directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			return removed, fmt.Errorf("failed to delete conversation file: %w", err)
		}
		removed++
	}
	return removed, nil
}
