package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/parley-ai/chat-platform/internal/model"
)

// CreateConversation creates a new conversation for userID.
func (s *Store) CreateConversation(ctx context.Context, userID, title string) (*model.Conversation, error) {
	now := time.Now().UTC()
	conv := &model.Conversation{
		ID:        uuid.Must(uuid.NewV7()).String(),
		UserID:    userID,
		Title:     title,
		Status:    model.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, title, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.UserID, conv.Title, conv.Status, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert conversation: %w", err)
	}

	return conv, nil
}

// GetOwned retrieves a conversation scoped to its owner. Missing, deleted
// and foreign conversations all return ErrNotFound.
func (s *Store) GetOwned(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.db.GetContext(ctx, &conv,
		`SELECT id, user_id, title, status, created_at, updated_at, deleted_at
		 FROM conversations
		 WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
		conversationID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetByID retrieves a conversation without owner scoping. Used by the
// worker, which runs on already-authorized jobs.
func (s *Store) GetByID(ctx context.Context, conversationID string) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.db.GetContext(ctx, &conv,
		`SELECT id, user_id, title, status, created_at, updated_at, deleted_at
		 FROM conversations
		 WHERE id = ? AND deleted_at IS NULL`,
		conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// List returns the user's conversations, most recently updated first.
func (s *Store) List(ctx context.Context, userID string) ([]model.Conversation, error) {
	conversations := []model.Conversation{}
	err := s.db.SelectContext(ctx, &conversations,
		`SELECT id, user_id, title, status, created_at, updated_at, deleted_at
		 FROM conversations
		 WHERE user_id = ? AND deleted_at IS NULL
		 ORDER BY updated_at DESC, id DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	return conversations, nil
}

// Rename updates the title of an owned conversation.
func (s *Store) Rename(ctx context.Context, userID, conversationID, title string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ?, updated_at = ?
		 WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
		title, time.Now().UTC(), conversationID, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SoftDelete marks an owned conversation deleted. Messages are retained
// for the audit trail; they become unreachable through the API.
func (s *Store) SoftDelete(ctx context.Context, userID, conversationID string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET deleted_at = ?, updated_at = ?
		 WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
		now, now, conversationID, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetStatus sets the conversation status. Only the worker calls this.
func (s *Store) SetStatus(ctx context.Context, conversationID string, status model.Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), conversationID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetTitle updates a title without owner scoping. Used by the worker's
// title auto-generation.
func (s *Store) SetTitle(ctx context.Context, conversationID, title string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`,
		title, time.Now().UTC(), conversationID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
