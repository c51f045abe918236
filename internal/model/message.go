package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message represents one turn in a conversation. Messages are append-only:
// they are never mutated after creation and are removed only when their
// conversation is deleted.
type Message struct {
	ID             string    `json:"id" db:"id"`
	ConversationID string    `json:"conversation_id" db:"conversation_id"`
	Role           Role      `json:"role" db:"role"`
	Content        string    `json:"content" db:"content"`
	TokenCount     int       `json:"token_count" db:"token_count"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// EstimateTokens returns a rough token count for text. One token is
// approximately four characters; the value is a non-authoritative
// estimate used for logging and cost accounting only.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// SendMessageRequest is the request to send a new user message.
type SendMessageRequest struct {
	Message string `json:"message" validate:"required,max=2000"`
	Model   string `json:"model,omitempty"`
}

// SendMessageResponse is the 202 response after a message is accepted
// and its turn job dispatched.
type SendMessageResponse struct {
	Status      Status   `json:"status"`
	UserMessage *Message `json:"user_message"`
}
