package notification

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"relo/internal/apperr"
	"relo/internal/cache"
	"relo/internal/httpx"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 100

	unreadTTL = 5 * time.Minute
)

func unreadKey(recipientID string) string {
	return "notif:unread:" + recipientID
}

// unreadGenKey is bumped on every change to a recipient's unread set. A
// recomputed count is only cached if the generation did not move meanwhile.
func unreadGenKey(recipientID string) string {
	return "notif:unread:gen:" + recipientID
}

type Service struct {
	store Store
	cache cache.Cache
	log   *slog.Logger
	now   func() time.Time
}

func NewService(store Store, c cache.Cache, log *slog.Logger) *Service {
	return &Service{
		store: store,
		cache: c,
		log:   log,
		now:   func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// Create stores n, filling in its id and timestamp.
func (s *Service) Create(ctx context.Context, n *Notification) (*Notification, error) {
	n.ID = uuid.NewString()
	n.CreatedAt = s.now()
	n.IsRead = false
	if err := s.store.Create(ctx, n); err != nil {
		return nil, apperr.Internal("create notification", err)
	}
	s.invalidate(ctx, n.RecipientID)
	return n, nil
}

func (s *Service) List(ctx context.Context, recipientID string, opts ListOptions) ([]*View, error) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultListLimit
	}
	opts.Limit = min(opts.Limit, MaxListLimit)

	rows, err := s.store.List(ctx, recipientID, opts)
	if err != nil {
		return nil, err
	}
	out := make([]*View, 0, len(rows))
	for _, n := range rows {
		out = append(out, NewView(n))
	}
	return out, nil
}

// UnreadCount serves the count from the cache and recomputes it on a miss.
// Cache failures fall back to the store.
func (s *Service) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	key := unreadKey(recipientID)
	raw, err := s.cache.Get(ctx, key)
	if err == nil {
		if n, convErr := strconv.Atoi(raw); convErr == nil {
			return n, nil
		}
	} else if !errors.Is(err, cache.ErrMiss) {
		s.log.Warn("unread cache get", "user_id", recipientID, "error", err)
	}

	gen, genErr := s.cache.Get(ctx, unreadGenKey(recipientID))
	if errors.Is(genErr, cache.ErrMiss) {
		gen, genErr = "", nil
	}

	n, err := s.store.CountUnread(ctx, recipientID)
	if err != nil {
		return 0, err
	}
	if genErr != nil {
		return n, nil
	}
	stored, err := s.cache.SetIfEqual(ctx, key, strconv.Itoa(n), unreadTTL, unreadGenKey(recipientID), gen)
	switch {
	case err != nil:
		s.log.Warn("unread cache set", "user_id", recipientID, "error", err)
	case !stored:
		s.log.Debug("unread count changed while counting", "user_id", recipientID)
	}
	return n, nil
}

func (s *Service) MarkRead(ctx context.Context, recipientID, id string) error {
	if err := httpx.ValidateVar("notification id", id, "required,uuid"); err != nil {
		return err
	}
	if err := s.store.MarkRead(ctx, id, recipientID); err != nil {
		return notFound(err)
	}
	s.invalidate(ctx, recipientID)
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	n, err := s.store.MarkAllRead(ctx, recipientID)
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx, recipientID)
	return n, nil
}

func (s *Service) Delete(ctx context.Context, recipientID, id string) error {
	if err := httpx.ValidateVar("notification id", id, "required,uuid"); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id, recipientID); err != nil {
		return notFound(err)
	}
	s.invalidate(ctx, recipientID)
	return nil
}

func (s *Service) invalidate(ctx context.Context, recipientID string) {
	if _, err := s.cache.Incr(ctx, unreadGenKey(recipientID)); err != nil {
		s.log.Warn("unread cache generation", "user_id", recipientID, "error", err)
	}
	if err := s.cache.Del(ctx, unreadKey(recipientID)); err != nil {
		s.log.Warn("unread cache invalidate", "user_id", recipientID, "error", err)
	}
}

func notFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound("notification", err)
	}
	return err
}
