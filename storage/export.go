package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

// SanitizeFilename replaces characters that are invalid in filenames.
func SanitizeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ', '\n', '\r', '\t':
			return '-'
		}
		return r
	}, name)

	name = strings.Trim(name, "-.")

	if runes := []rune(name); len(runes) > 50 {
		name = string(runes[:50])
	}

	if name == "" {
		name = "conversation"
	}
	return name
}

// ExportPath returns the default export location for a conversation titled
// title: the user's download directory, stamped with now.
func ExportPath(title string, now time.Time) string {
	dir := xdg.UserDirs.Download
	if dir == "" {
		dir = filepath.Join(xdg.Home, "Downloads")
	}
	name := fmt.Sprintf("cmdai-%s-%s.json", SanitizeFilename(title), now.Format("20060102-150405"))
	return filepath.Join(dir, name)
}

// Export writes a conversation to path as indented JSON.
func (s *ConversationStorage) Export(id, path string) error {
	conv, err := s.Load(id)
	if err != nil {
		return fmt.Errorf("failed to load conversation: %w", err)
	}
	if conv == nil {
		return fmt.Errorf("conversation %q not found", id)
	}

	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// 0600 - exports contain conversation history
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
