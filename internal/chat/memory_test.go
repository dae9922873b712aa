package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCreateOrGetDirectIsSymmetric(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	c1, err := s.CreateOrGetDirect(ctx, "a", "b")
	require.NoError(t, err)
	c2, err := s.CreateOrGetDirect(ctx, "b", "a")
	require.NoError(t, err)

	assert.Equal(t, c1.ID, c2.ID)
	assert.Equal(t, []string{"a", "b"}, c2.Participants, "participants keep creation order")
	assert.False(t, c1.IsGroup)
}

func TestMemoryCreateOrGetDirectConcurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	ids := make([]string, 20)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := s.CreateOrGetDirect(ctx, "a", "b")
			if err == nil {
				ids[i] = c.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestMemoryAppendMessageResetsSeen(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	c, err := s.CreateOrGetDirect(ctx, "a", "b")
	require.NoError(t, err)
	require.NoError(t, s.MarkSeen(ctx, c.ID, "b"))

	at := time.Now().UTC().Add(time.Minute)
	got, err := s.AppendMessage(ctx, &Message{
		ID: "m1", ConversationID: c.ID, SenderID: "a", Type: MessageText, Text: "hi", Timestamp: at, Status: StatusSent,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, got.SeenBy)
	require.NotNil(t, got.LastMessage)
	assert.Equal(t, "hi", got.LastMessage.Text)
	assert.Equal(t, "a", got.LastMessage.SenderID)
	assert.True(t, got.UpdatedAt.Equal(at))
}

func TestMemoryAppendMessageUnknownConversation(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.AppendMessage(context.Background(), &Message{ID: "m1", ConversationID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)

	msgs, err := s.ListMessages(context.Background(), "missing", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestMemoryMarkSeenIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	c, err := s.CreateGroup(ctx, "  crew ", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, "crew", c.Name)

	require.NoError(t, s.MarkSeen(ctx, c.ID, "b"))
	require.NoError(t, s.MarkSeen(ctx, c.ID, "b"))

	got, err := s.GetConversation(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, got.SeenBy)

	assert.ErrorIs(t, s.MarkSeen(ctx, "missing", "b"), ErrNotFound)
}

func TestMemoryListMessagesNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	c, err := s.CreateOrGetDirect(ctx, "a", "b")
	require.NoError(t, err)

	base := time.Now().UTC()
	for i, id := range []string{"m1", "m2", "m3", "m4"} {
		_, err := s.AppendMessage(ctx, &Message{
			ID: id, ConversationID: c.ID, SenderID: "a", Type: MessageText, Text: id,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	page, err := s.ListMessages(ctx, c.ID, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "m4", page[0].ID)
	assert.Equal(t, "m3", page[1].ID)

	page, err = s.ListMessages(ctx, c.ID, 2, 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "m2", page[0].ID)
	assert.Equal(t, "m1", page[1].ID)

	page, err = s.ListMessages(ctx, c.ID, 10, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestMemoryListConversationsByRecency(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	older, err := s.CreateOrGetDirect(ctx, "a", "b")
	require.NoError(t, err)
	newer, err := s.CreateOrGetDirect(ctx, "a", "c")
	require.NoError(t, err)
	_, err = s.CreateOrGetDirect(ctx, "b", "c")
	require.NoError(t, err)

	_, err = s.AppendMessage(ctx, &Message{
		ID: "m1", ConversationID: older.ID, SenderID: "b", Type: MessageText, Text: "bump",
		Timestamp: time.Now().UTC().Add(time.Hour),
	})
	require.NoError(t, err)

	list, err := s.ListConversations(ctx, "a")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, older.ID, list[0].ID)
	assert.Equal(t, newer.ID, list[1].ID)
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	c, err := s.CreateOrGetDirect(ctx, "a", "b")
	require.NoError(t, err)

	c.Participants[0] = "mallory"
	got, err := s.GetConversation(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got.Participants)
}
