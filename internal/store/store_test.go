package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-ai/chat-platform/internal/model"
	"github.com/parley-ai/chat-platform/internal/store"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestCreateAndGetConversation(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	conv, err := st.CreateConversation(ctx, "user-1", "My chat")
	require.NoError(t, err)
	assert.NotEmpty(t, conv.ID)
	assert.Equal(t, "user-1", conv.UserID)
	assert.Equal(t, "My chat", conv.Title)
	assert.Equal(t, model.StatusActive, conv.Status)

	got, err := st.GetOwned(ctx, "user-1", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)
}

func TestGetOwnedEnforcesOwnership(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	conv, err := st.CreateConversation(ctx, "user-1", "Private")
	require.NoError(t, err)

	_, err = st.GetOwned(ctx, "user-2", conv.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListOrdersByRecency(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	first, err := st.CreateConversation(ctx, "user-1", "First")
	require.NoError(t, err)
	second, err := st.CreateConversation(ctx, "user-1", "Second")
	require.NoError(t, err)
	_, err = st.CreateConversation(ctx, "user-2", "Other user")
	require.NoError(t, err)

	// Touch the first conversation so it becomes the most recent.
	require.NoError(t, st.Rename(ctx, "user-1", first.ID, "First renamed"))

	list, err := st.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
}

func TestSoftDeleteHidesConversation(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	conv, err := st.CreateConversation(ctx, "user-1", "Doomed")
	require.NoError(t, err)

	require.NoError(t, st.SoftDelete(ctx, "user-1", conv.ID))

	_, err = st.GetOwned(ctx, "user-1", conv.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	list, err := st.List(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, list)

	// Deleting twice is a not-found, not a silent success.
	assert.ErrorIs(t, st.SoftDelete(ctx, "user-1", conv.ID), store.ErrNotFound)
}

func TestAppendUserTurn(t *testing.T) {
	ctx := context.Background()

	t.Run("persists message and flips status", func(t *testing.T) {
		st := newStore(t)
		conv, err := st.CreateConversation(ctx, "user-1", "Chat")
		require.NoError(t, err)

		msg, err := st.AppendUserTurn(ctx, "user-1", conv.ID, "hello there")
		require.NoError(t, err)
		assert.Equal(t, model.RoleUser, msg.Role)
		assert.Equal(t, "hello there", msg.Content)
		assert.Positive(t, msg.TokenCount)

		got, err := st.GetOwned(ctx, "user-1", conv.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusProcessing, got.Status)
	})

	t.Run("rejects a second send while processing", func(t *testing.T) {
		st := newStore(t)
		conv, err := st.CreateConversation(ctx, "user-1", "Chat")
		require.NoError(t, err)

		_, err = st.AppendUserTurn(ctx, "user-1", conv.ID, "first")
		require.NoError(t, err)

		_, err = st.AppendUserTurn(ctx, "user-1", conv.ID, "second")
		assert.ErrorIs(t, err, store.ErrConversationBusy)

		// The rejected send must not leave a message behind.
		count, err := st.CountMessages(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("unknown conversation is not found", func(t *testing.T) {
		st := newStore(t)
		_, err := st.AppendUserTurn(ctx, "user-1", "no-such-id", "hello")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("foreign conversation is not found, not busy", func(t *testing.T) {
		st := newStore(t)
		conv, err := st.CreateConversation(ctx, "user-1", "Chat")
		require.NoError(t, err)

		_, err = st.AppendUserTurn(ctx, "user-2", conv.ID, "hello")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestCompleteTurn(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	conv, err := st.CreateConversation(ctx, "user-1", "Chat")
	require.NoError(t, err)
	_, err = st.AppendUserTurn(ctx, "user-1", conv.ID, "question")
	require.NoError(t, err)

	msg, err := st.CompleteTurn(ctx, conv.ID, "answer", model.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAssistant, msg.Role)

	got, err := st.GetOwned(ctx, "user-1", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)

	messages, err := st.Messages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, model.RoleUser, messages[0].Role)
	assert.Equal(t, model.RoleAssistant, messages[1].Role)
}

func TestMessagesChronologicalOrder(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	conv, err := st.CreateConversation(ctx, "user-1", "Chat")
	require.NoError(t, err)

	contents := []string{"one", "two", "three", "four"}
	for i, c := range contents {
		if i%2 == 0 {
			_, err = st.AppendUserTurn(ctx, "user-1", conv.ID, c)
			require.NoError(t, err)
		} else {
			_, err = st.CompleteTurn(ctx, conv.ID, c, model.StatusCompleted)
			require.NoError(t, err)
		}
	}

	messages, err := st.Messages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, len(contents))
	for i, c := range contents {
		assert.Equal(t, c, messages[i].Content)
	}
}

func TestRecentMessagesWindow(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	conv, err := st.CreateConversation(ctx, "user-1", "Chat")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err = st.AppendUserTurn(ctx, "user-1", conv.ID, "question")
		require.NoError(t, err)
		_, err = st.CompleteTurn(ctx, conv.ID, "answer", model.StatusCompleted)
		require.NoError(t, err)
	}

	recent, err := st.RecentMessages(ctx, conv.ID, 4)
	require.NoError(t, err)
	require.Len(t, recent, 4)

	// The window holds the newest messages, oldest first.
	all, err := st.Messages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, all[len(all)-4].ID, recent[0].ID)
	assert.Equal(t, all[len(all)-1].ID, recent[3].ID)
}

func TestLastMessage(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	conv, err := st.CreateConversation(ctx, "user-1", "Chat")
	require.NoError(t, err)

	last, err := st.LastMessage(ctx, conv.ID)
	require.NoError(t, err)
	assert.Nil(t, last)

	_, err = st.AppendUserTurn(ctx, "user-1", conv.ID, "question")
	require.NoError(t, err)
	_, err = st.CompleteTurn(ctx, conv.ID, "answer", model.StatusCompleted)
	require.NoError(t, err)

	last, err = st.LastMessage(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, model.RoleAssistant, last.Role)
}

func TestSetStatusAndTitle(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	conv, err := st.CreateConversation(ctx, "user-1", "New Conversation")
	require.NoError(t, err)

	require.NoError(t, st.SetStatus(ctx, conv.ID, model.StatusFailed))
	require.NoError(t, st.SetTitle(ctx, conv.ID, "Autogenerated title"))

	got, err := st.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, "Autogenerated title", got.Title)
}
