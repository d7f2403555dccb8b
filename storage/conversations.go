package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	"raider/model"
)

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// loadConversations reads the conversation list for a document inside
// tx. A missing row yields an empty list (the document simply has no
// conversations yet).
func loadConversations(tx *sql.Tx, key model.DocumentKey) ([]model.Conversation, error) {
	var raw string
	err := tx.QueryRow(
		`SELECT conversations FROM files WHERE path = ? AND is_url = ? AND name = ?`,
		key.Path, boolToInt(key.IsURL), key.Name,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var list []model.Conversation
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, err
	}
	return list, nil
}

func writeConversations(tx *sql.Tx, key model.DocumentKey, list []model.Conversation) error {
	raw, err := json.Marshal(list)
	if err != nil {
		return err
	}
	_, err = tx.Exec(
		`INSERT OR REPLACE INTO files (path, is_url, name, conversations, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		key.Path, boolToInt(key.IsURL), key.Name, string(raw), time.Now().UTC(),
	)
	return err
}

// UpsertConversation replaces the stored conversation with a matching id
// or appends it, in a single transaction.
func (s *Store) UpsertConversation(key model.DocumentKey, conv *model.Conversation) error {
	tx, err := s.db.Begin()
	if err != nil {
		return &model.PersistenceError{Op: "upsert", Err: err}
	}
	defer tx.Rollback()

	list, err := loadConversations(tx, key)
	if err != nil {
		return &model.PersistenceError{Op: "upsert", Err: err}
	}

	replaced := false
	for i := range list {
		if list[i].ID == conv.ID {
			list[i] = *conv
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, *conv)
	}

	if err := writeConversations(tx, key, list); err != nil {
		return &model.PersistenceError{Op: "upsert", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &model.PersistenceError{Op: "upsert", Err: err}
	}
	return nil
}

// Conversation returns the stored conversation with the given id, or nil
// when absent.
func (s *Store) Conversation(key model.DocumentKey, conversationID string) (*model.Conversation, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, &model.PersistenceError{Op: "get", Err: err}
	}
	defer tx.Rollback()

	list, err := loadConversations(tx, key)
	if err != nil {
		return nil, &model.PersistenceError{Op: "get", Err: err}
	}

	for i := range list {
		if list[i].ID == conversationID {
			conv := list[i]
			return &conv, nil
		}
	}
	return nil, nil
}

// Conversations returns every conversation stored for a document.
func (s *Store) Conversations(key model.DocumentKey) ([]model.Conversation, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, &model.PersistenceError{Op: "list", Err: err}
	}
	defer tx.Rollback()

	list, err := loadConversations(tx, key)
	if err != nil {
		return nil, &model.PersistenceError{Op: "list", Err: err}
	}
	return list, nil
}

// RemoveConversation deletes the conversation with the given id. Removing
// an absent id is a no-op.
func (s *Store) RemoveConversation(key model.DocumentKey, conversationID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return &model.PersistenceError{Op: "remove", Err: err}
	}
	defer tx.Rollback()

	list, err := loadConversations(tx, key)
	if err != nil {
		return &model.PersistenceError{Op: "remove", Err: err}
	}

	filtered := list[:0]
	for _, conv := range list {
		if conv.ID != conversationID {
			filtered = append(filtered, conv)
		}
	}

	if err := writeConversations(tx, key, filtered); err != nil {
		return &model.PersistenceError{Op: "remove", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &model.PersistenceError{Op: "remove", Err: err}
	}
	return nil
}
