package notification

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relo/internal/apperr"
	"relo/internal/cache"
)

// countingStore records how often the unread count is recomputed.
type countingStore struct {
	*MemoryStore
	counts int
}

func (c *countingStore) CountUnread(ctx context.Context, recipientID string) (int, error) {
	c.counts++
	return c.MemoryStore.CountUnread(ctx, recipientID)
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) (string, error) { return "", errors.New("down") }
func (brokenCache) Set(context.Context, string, string, time.Duration) error {
	return errors.New("down")
}
func (brokenCache) Del(context.Context, ...string) error { return errors.New("down") }
func (brokenCache) Incr(context.Context, string) (int64, error) {
	return 0, errors.New("down")
}
func (brokenCache) SetIfEqual(context.Context, string, string, time.Duration, string, string) (bool, error) {
	return false, errors.New("down")
}

// racingStore creates a notification for the same recipient right after
// counting, the way a concurrent writer can land between count and fill.
type racingStore struct {
	*MemoryStore
	svc  *Service
	once bool
}

func (r *racingStore) CountUnread(ctx context.Context, recipientID string) (int, error) {
	n, err := r.MemoryStore.CountUnread(ctx, recipientID)
	if err != nil || r.once {
		return n, err
	}
	r.once = true
	_, err = r.svc.Create(ctx, &Notification{
		RecipientID: recipientID,
		SenderID:    uuid.NewString(),
		SenderName:  "Carol",
		Type:        TypePostComment,
		RelatedID:   "post-2",
		Content:     "Carol commented on your post",
	})
	return n, err
}

func newTestService(c cache.Cache) (*Service, *countingStore) {
	store := &countingStore{MemoryStore: NewMemoryStore()}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, c, log), store
}

func create(t *testing.T, svc *Service, recipient string, typ Type) *Notification {
	t.Helper()
	n, err := svc.Create(context.Background(), &Notification{
		RecipientID: recipient,
		SenderID:    uuid.NewString(),
		SenderName:  "Alice",
		Type:        typ,
		RelatedID:   "post-1",
		Content:     "Alice reacted to your post",
	})
	require.NoError(t, err)
	return n
}

func TestUnreadCountIsCachedAndInvalidated(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(cache.NewMemoryCache())
	bob := uuid.NewString()

	first := create(t, svc, bob, TypePostReaction)
	create(t, svc, bob, TypePostComment)

	n, err := svc.UnreadCount(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = svc.UnreadCount(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, store.counts, "second read is served from cache")

	require.NoError(t, svc.MarkRead(ctx, bob, first.ID))
	n, err = svc.UnreadCount(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, store.counts)

	create(t, svc, bob, TypePostShare)
	n, err = svc.UnreadCount(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = svc.MarkAllRead(ctx, bob)
	require.NoError(t, err)
	n, err = svc.UnreadCount(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestUnreadCountSurvivesCacheOutage(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(brokenCache{})
	bob := uuid.NewString()
	create(t, svc, bob, TypeFriendRequest)

	n, err := svc.UnreadCount(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUnreadCountDoesNotCacheStaleFill(t *testing.T) {
	ctx := context.Background()
	store := &racingStore{MemoryStore: NewMemoryStore()}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(store, cache.NewMemoryCache(), log)
	store.svc = svc
	bob := uuid.NewString()

	n, err := svc.UnreadCount(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "count taken before the concurrent create")

	n, err = svc.UnreadCount(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "stale count must not stick in the cache")
}

func TestMarkReadAndDeleteRequireOwnership(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(cache.NewMemoryCache())
	bob, eve := uuid.NewString(), uuid.NewString()
	n := create(t, svc, bob, TypePostReaction)

	assert.True(t, apperr.Is(svc.MarkRead(ctx, eve, n.ID), apperr.CodeNotFound))
	assert.True(t, apperr.Is(svc.Delete(ctx, eve, n.ID), apperr.CodeNotFound))
	assert.True(t, apperr.Is(svc.MarkRead(ctx, bob, uuid.NewString()), apperr.CodeNotFound))
	assert.True(t, apperr.Is(svc.Delete(ctx, bob, "nope"), apperr.CodeValidation))

	require.NoError(t, svc.Delete(ctx, bob, n.ID))
	list, err := svc.List(ctx, bob, ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestListOrderingAndFilters(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(cache.NewMemoryCache())
	base := time.Now().UTC()
	tick := 0
	svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	bob := uuid.NewString()

	oldest := create(t, svc, bob, TypePostReaction)
	middle := create(t, svc, bob, TypePostComment)
	newest := create(t, svc, bob, TypeFriendRequest)
	create(t, svc, uuid.NewString(), TypePostShare)
	require.NoError(t, svc.MarkRead(ctx, bob, middle.ID))

	all, err := svc.List(ctx, bob, ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{newest.ID, middle.ID, oldest.ID}, []string{all[0].ID, all[1].ID, all[2].ID})

	unread, err := svc.List(ctx, bob, ListOptions{UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, unread, 2)
	assert.Equal(t, newest.ID, unread[0].ID)
	assert.Equal(t, oldest.ID, unread[1].ID)

	page, err := svc.List(ctx, bob, ListOptions{Limit: 1, Skip: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, middle.ID, page[0].ID)
}

func TestNewViewMetadata(t *testing.T) {
	post := NewView(&Notification{ID: "n1", RecipientID: "u1", SenderID: "u2", SenderName: "Alice", Type: TypePostReaction, RelatedID: "p1", Content: "c"})
	assert.Equal(t, "p1", post.Metadata["postId"])
	assert.Equal(t, "Alice", post.Title)
	assert.Equal(t, "c", post.Message)
	assert.Equal(t, "u1", post.UserID)

	like := NewView(&Notification{Type: TypeLike, RelatedID: "p2"})
	assert.Equal(t, "p2", like.Metadata["postId"])

	friend := NewView(&Notification{Type: TypeFriendRequest, RelatedID: "r1"})
	assert.Equal(t, "r1", friend.Metadata["relatedId"])
	assert.NotContains(t, friend.Metadata, "postId")

	bare := NewView(&Notification{Type: TypeMessage})
	assert.NotContains(t, bare.Metadata, "relatedId")
}
