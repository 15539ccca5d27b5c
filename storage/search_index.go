package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"cmdai/config"
	"cmdai/model"

	_ "modernc.org/sqlite"
)

// previewLimit is the number of characters of a matching message shown in results.
const previewLimit = 100

// MessageMatch is one message that matched a search.
type MessageMatch struct {
	ConversationID string
	Title          string
	MessageIndex   int
	Role           model.Role
	Preview        string
	Timestamp      time.Time
}

// SearchIndex mirrors saved conversations into SQLite for full-history search.
type SearchIndex struct {
	db *sql.DB
}

// OpenSearchIndex opens (or creates) the index database at path.
func OpenSearchIndex(path string) (*SearchIndex, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection; the busy_timeout pragma is per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	idx := &SearchIndex{db: db}
	if err := idx.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return idx, nil
}

func (si *SearchIndex) initialize() error {
	schema := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS messages (
		conversation_id TEXT NOT NULL,
		idx INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		content_lower TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		PRIMARY KEY (conversation_id, idx)
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at);
	`
	_, err := si.db.Exec(schema)
	return err
}

// Close closes the database.
func (si *SearchIndex) Close() error {
	return si.db.Close()
}

// Index replaces everything stored for conv.
func (si *SearchIndex) Index(ctx context.Context, conv *model.Conversation) error {
	tx, err := si.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteConversation(ctx, tx, conv.ID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO conversations (id, title, model, updated_at) VALUES (?, ?, ?, ?)`,
		conv.ID, conv.Title, conv.Model, conv.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to index conversation: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO messages (conversation_id, idx, role, content, content_lower, timestamp) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, msg := range conv.Messages {
		if msg.Role == model.RoleSystem {
			continue
		}
		_, err := stmt.ExecContext(ctx, conv.ID, i, string(msg.Role), msg.Content, strings.ToLower(msg.Content), msg.Timestamp.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to index message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit index: %w", err)
	}
	return nil
}

// Remove drops a conversation from the index.
func (si *SearchIndex) Remove(ctx context.Context, id string) error {
	tx, err := si.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteConversation(ctx, tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

func deleteConversation(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove conversation: %w", err)
	}
	return nil
}

// Clear empties the index.
func (si *SearchIndex) Clear(ctx context.Context) error {
	_, err := si.db.ExecContext(ctx, `DELETE FROM messages; DELETE FROM conversations;`)
	if err != nil {
		return fmt.Errorf("failed to clear index: %w", err)
	}
	return nil
}

// Rebuild re-indexes every conversation in store.
func (si *SearchIndex) Rebuild(ctx context.Context, store *ConversationStorage) error {
	conversations, err := store.List()
	if err != nil {
		return err
	}
	if err := si.Clear(ctx); err != nil {
		return err
	}
	for _, conv := range conversations {
		if err := si.Index(ctx, conv); err != nil {
			return err
		}
	}
	config.DebugLog.Debug().Int("conversations", len(conversations)).Msg("rebuilt search index")
	return nil
}

// Search returns messages containing query, case-insensitively, newest
// conversation first and in message order within a conversation. System
// messages are not indexed.
func (si *SearchIndex) Search(ctx context.Context, query string) ([]MessageMatch, error) {
	if query == "" {
		return []MessageMatch{}, nil
	}

	rows, err := si.db.QueryContext(ctx, `
		SELECT m.conversation_id, c.title, m.idx, m.role, m.content, m.timestamp
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE instr(m.content_lower, ?) > 0
		ORDER BY c.updated_at DESC, m.idx ASC`,
		strings.ToLower(query))
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer rows.Close()

	matches := []MessageMatch{}
	for rows.Next() {
		var (
			m       MessageMatch
			role    string
			content string
			ts      int64
		)
		if err := rows.Scan(&m.ConversationID, &m.Title, &m.MessageIndex, &role, &content, &ts); err != nil {
			return nil, fmt.Errorf("failed to read search result: %w", err)
		}
		m.Role = model.Role(role)
		m.Preview = preview(content)
		m.Timestamp = time.Unix(0, ts)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read search results: %w", err)
	}
	return matches, nil
}

func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLimit {
		return content
	}
	return string(runes[:previewLimit]) + "..."
}
