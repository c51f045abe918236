// Package queue provides job dispatch for asynchronous conversation
// work. Two dispatchers exist: an in-process goroutine pool and a NATS
// JetStream work queue for multi-process deployments.
package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the type of work a job carries.
type Kind string

const (
	// KindTurn generates the assistant reply for a newly sent user
	// message.
	KindTurn Kind = "turn"
	// KindSummary generates a conversation summary annotation.
	KindSummary Kind = "summary"
	// KindTopics extracts conversation topic annotations.
	KindTopics Kind = "topics"
	// KindCategorize assigns a conversation category annotation.
	KindCategorize Kind = "categorize"
)

// Job is one asynchronous unit of work. The user message for a turn job
// is already persisted by the time the job is enqueued; the job carries
// a copy only for cache key derivation.
type Job struct {
	ID             string    `json:"id"`
	Kind           Kind      `json:"kind"`
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Message        string    `json:"message,omitempty"`
	Model          string    `json:"model,omitempty"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
}

// NewJob creates a job with a fresh id and enqueue timestamp.
func NewJob(kind Kind, conversationID, userID, message string) Job {
	return Job{
		ID:             uuid.Must(uuid.NewV7()).String(),
		Kind:           kind,
		ConversationID: conversationID,
		UserID:         userID,
		Message:        message,
		EnqueuedAt:     time.Now().UTC(),
	}
}

// Handler processes one job to completion. Retry policy lives inside the
// handler; dispatchers deliver each job exactly once to it.
type Handler func(ctx context.Context, job Job)

// Dispatcher enqueues jobs for asynchronous execution.
type Dispatcher interface {
	// Enqueue hands a job to the worker pool. The job is durable (or at
	// least accepted) once Enqueue returns nil.
	Enqueue(ctx context.Context, job Job) error

	// Close stops consumption and releases resources.
	Close() error
}
