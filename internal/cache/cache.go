// Package cache provides the TTL response cache that short-circuits
// duplicate upstream completion calls, and the annotation result cache.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// ResponseCache stores generated replies keyed by conversation and exact
// message text. Entries are opportunistic: losing one only forces a
// regenerate.
type ResponseCache struct {
	ttl     time.Duration
	backend *gocache.Cache
}

// New creates a response cache with the given retention window.
func New(ttl time.Duration) *ResponseCache {
	return &ResponseCache{
		ttl:     ttl,
		backend: gocache.New(ttl, ttl/4),
	}
}

// Key derives a stable, collision-resistant cache key from the
// conversation id and the exact message bytes.
func Key(conversationID, message string) string {
	sum := sha256.Sum256([]byte(conversationID + ":" + message))
	return "ai_response:" + hex.EncodeToString(sum[:])
}

// Get returns the cached reply for key, if present.
func (c *ResponseCache) Get(key string) (string, bool) {
	v, ok := c.backend.Get(key)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// Put stores reply under key for the configured TTL.
func (c *ResponseCache) Put(key, reply string) {
	c.backend.Set(key, reply, c.ttl)
}

// GetStrings returns a cached string list, used for topic annotations.
func (c *ResponseCache) GetStrings(key string) ([]string, bool) {
	v, ok := c.backend.Get(key)
	if !ok {
		return nil, false
	}
	return v.([]string), true
}

// PutStrings stores a string list under key for the configured TTL.
func (c *ResponseCache) PutStrings(key string, values []string) {
	c.backend.Set(key, values, c.ttl)
}

// Annotation cache keys. Annotations are derived per conversation, not
// per message.

// SummaryKey returns the annotation cache key for a conversation summary.
func SummaryKey(conversationID string) string { return "conversation_summary:" + conversationID }

// TopicsKey returns the annotation cache key for conversation topics.
func TopicsKey(conversationID string) string { return "conversation_topics:" + conversationID }

// CategoryKey returns the annotation cache key for a conversation category.
func CategoryKey(conversationID string) string { return "conversation_category:" + conversationID }
