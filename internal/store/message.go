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

const insertMessage = `
INSERT INTO messages (id, conversation_id, role, content, token_count, created_at)
VALUES (?, ?, ?, ?, ?, ?)`

func newMessage(conversationID string, role model.Role, content string) *model.Message {
	return &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		TokenCount:     model.EstimateTokens(content),
		CreatedAt:      time.Now().UTC(),
	}
}

// AppendUserTurn persists the user's message and moves the conversation
// into processing, in one transaction. The status transition is
// conditional: if a turn job is already in flight the whole transaction
// is rolled back and ErrConversationBusy is returned, so a second send
// can never enqueue a concurrent generation or leave a stray message.
func (s *Store) AppendUserTurn(ctx context.Context, userID, conversationID, content string) (*model.Message, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE conversations SET status = ?, updated_at = ?
		 WHERE id = ? AND user_id = ? AND deleted_at IS NULL AND status != ?`,
		model.StatusProcessing, time.Now().UTC(), conversationID, userID, model.StatusProcessing)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Distinguish missing/foreign from busy.
		var status model.Status
		err := tx.GetContext(ctx, &status,
			`SELECT status FROM conversations
			 WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
			conversationID, userID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		return nil, ErrConversationBusy
	}

	msg := newMessage(conversationID, model.RoleUser, content)
	if _, err := tx.ExecContext(ctx, insertMessage,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.TokenCount, msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("could not insert user message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return msg, nil
}

// CompleteTurn persists the assistant's reply and sets the terminal
// status in one transaction, so a poll can never observe one without the
// other, and a crashed worker never leaves a reply behind without its
// status flip.
func (s *Store) CompleteTurn(ctx context.Context, conversationID, content string, status model.Status) (*model.Message, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	msg := newMessage(conversationID, model.RoleAssistant, content)
	if _, err := tx.ExecContext(ctx, insertMessage,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.TokenCount, msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("could not insert assistant message: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), conversationID); err != nil {
		return nil, fmt.Errorf("could not update status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return msg, nil
}

// Messages returns all messages of a conversation in chronological order.
func (s *Store) Messages(ctx context.Context, conversationID string) ([]model.Message, error) {
	messages := []model.Message{}
	err := s.db.SelectContext(ctx, &messages,
		`SELECT id, conversation_id, role, content, token_count, created_at
		 FROM messages
		 WHERE conversation_id = ?
		 ORDER BY created_at ASC, id ASC`,
		conversationID)
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// RecentMessages returns the last n messages in chronological order.
func (s *Store) RecentMessages(ctx context.Context, conversationID string, n int) ([]model.Message, error) {
	messages := []model.Message{}
	err := s.db.SelectContext(ctx, &messages,
		`SELECT * FROM (
			SELECT id, conversation_id, role, content, token_count, created_at
			FROM messages
			WHERE conversation_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		 ) ORDER BY created_at ASC, id ASC`,
		conversationID, n)
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// LastMessage returns the most recent message, or nil when the
// conversation is empty.
func (s *Store) LastMessage(ctx context.Context, conversationID string) (*model.Message, error) {
	var msg model.Message
	err := s.db.GetContext(ctx, &msg,
		`SELECT id, conversation_id, role, content, token_count, created_at
		 FROM messages
		 WHERE conversation_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// CountMessages returns the number of messages in a conversation.
func (s *Store) CountMessages(ctx context.Context, conversationID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, conversationID)
	return count, err
}
