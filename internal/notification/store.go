package notification

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sort"
	"sync"
)

// Store persists notifications. MarkRead and Delete return ErrNotFound when
// the row is absent or belongs to another recipient.
type Store interface {
	Create(ctx context.Context, n *Notification) error
	List(ctx context.Context, recipientID string, opts ListOptions) ([]*Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
	MarkRead(ctx context.Context, id, recipientID string) error
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
	Delete(ctx context.Context, id, recipientID string) error
}

// Repository is the Postgres Store.
type Repository struct {
	db *sql.DB
}

var _ Store = (*Repository)(nil)

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, n *Notification) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications
		(id, recipient_id, sender_id, sender_name, sender_avatar, type, related_id, content, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		n.ID, n.RecipientID, n.SenderID, n.SenderName, n.SenderAvatar, string(n.Type),
		n.RelatedID, n.Content, n.IsRead, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *Repository) List(ctx context.Context, recipientID string, opts ListOptions) ([]*Notification, error) {
	query := `SELECT id, recipient_id, sender_id, sender_name, sender_avatar, type, related_id, content, is_read, created_at
		FROM notifications WHERE recipient_id = $1`
	if opts.UnreadOnly {
		query += " AND is_read = FALSE"
	}
	query += " ORDER BY created_at DESC, id DESC OFFSET $2 LIMIT $3"

	rows, err := r.db.QueryContext(ctx, query, recipientID, opts.Skip, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := []*Notification{}
	for rows.Next() {
		var (
			n   Notification
			typ string
		)
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.SenderID, &n.SenderName, &n.SenderAvatar,
			&typ, &n.RelatedID, &n.Content, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Type = Type(typ)
		out = append(out, &n)
	}
	return out, rows.Err()
}

func (r *Repository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND is_read = FALSE", recipientID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

func (r *Repository) MarkRead(ctx context.Context, id, recipientID string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE notifications SET is_read = TRUE WHERE id = $1 AND recipient_id = $2", id, recipientID)
	return affectedOne(res, err, "mark read", id)
}

func (r *Repository) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE notifications SET is_read = TRUE WHERE recipient_id = $1 AND is_read = FALSE", recipientID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return res.RowsAffected()
}

func (r *Repository) Delete(ctx context.Context, id, recipientID string) error {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM notifications WHERE id = $1 AND recipient_id = $2", id, recipientID)
	return affectedOne(res, err, "delete", id)
}

func affectedOne(res sql.Result, err error, op, id string) error {
	if err != nil {
		return fmt.Errorf("%s notification: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s notification: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s notification %s: %w", op, id, ErrNotFound)
	}
	return nil
}

// MemoryStore keeps notifications in process.
type MemoryStore struct {
	mu   sync.RWMutex
	rows []*Notification
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Create(_ context.Context, n *Notification) error {
	cp := *n
	m.mu.Lock()
	m.rows = append(m.rows, &cp)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) List(_ context.Context, recipientID string, opts ListOptions) ([]*Notification, error) {
	m.mu.RLock()
	var matched []*Notification
	for _, n := range m.rows {
		if n.RecipientID == recipientID && (!opts.UnreadOnly || !n.IsRead) {
			cp := *n
			matched = append(matched, &cp)
		}
	}
	m.mu.RUnlock()

	// Newest first; later inserts win ties.
	slices.Reverse(matched)
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if opts.Skip >= len(matched) {
		return []*Notification{}, nil
	}
	end := min(opts.Skip+opts.Limit, len(matched))
	return matched[opts.Skip:end], nil
}

func (m *MemoryStore) CountUnread(_ context.Context, recipientID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, n := range m.rows {
		if n.RecipientID == recipientID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) MarkRead(_ context.Context, id, recipientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.find(id, recipientID)
	if i < 0 {
		return fmt.Errorf("mark read notification %s: %w", id, ErrNotFound)
	}
	m.rows[i].IsRead = true
	return nil
}

func (m *MemoryStore) MarkAllRead(_ context.Context, recipientID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, row := range m.rows {
		if row.RecipientID == recipientID && !row.IsRead {
			row.IsRead = true
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Delete(_ context.Context, id, recipientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.find(id, recipientID)
	if i < 0 {
		return fmt.Errorf("delete notification %s: %w", id, ErrNotFound)
	}
	m.rows = slices.Delete(m.rows, i, i+1)
	return nil
}

func (m *MemoryStore) find(id, recipientID string) int {
	return slices.IndexFunc(m.rows, func(n *Notification) bool {
		return n.ID == id && n.RecipientID == recipientID
	})
}
