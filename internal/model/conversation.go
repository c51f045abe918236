// Package model defines data structures for the chat platform.
package model

import (
	"time"
)

// Status represents the processing state of a conversation.
type Status string

const (
	// StatusActive means no job has ever run, or the conversation is
	// between turns.
	StatusActive Status = "active"
	// StatusProcessing means a turn job is enqueued or running.
	StatusProcessing Status = "processing"
	// StatusCompleted means the latest turn produced an assistant reply.
	StatusCompleted Status = "completed"
	// StatusError means the latest attempt failed but retries remain.
	StatusError Status = "error"
	// StatusFailed means all retries were exhausted.
	StatusFailed Status = "failed"
)

// Terminal reports whether the status resolves a dispatched job.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusFailed
}

// Conversation represents a conversation thread owned by one user.
type Conversation struct {
	ID        string     `json:"id" db:"id"`
	UserID    string     `json:"user_id" db:"user_id"`
	Title     string     `json:"title" db:"title"`
	Status    Status     `json:"status" db:"status"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"-" db:"deleted_at"`
}

// CreateConversationRequest is the request to create a new conversation.
type CreateConversationRequest struct {
	Title string `json:"title" validate:"required,max=200"`
}

// UpdateConversationRequest is the request to rename a conversation.
type UpdateConversationRequest struct {
	Title string `json:"title" validate:"required,max=200"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
}

// PollResponse is the response for the poll endpoint: the current status
// plus the most recent messages in chronological order.
type PollResponse struct {
	Status   Status    `json:"status"`
	Messages []Message `json:"messages"`
}

// AnnotationResponse is the response for the summary, topics and
// categorize endpoints. Exactly one of the value fields is set.
type AnnotationResponse struct {
	Summary  string   `json:"summary,omitempty"`
	Topics   []string `json:"topics,omitempty"`
	Category string   `json:"category,omitempty"`
	Cached   bool     `json:"cached"`
	Status   string   `json:"status,omitempty"`
}
