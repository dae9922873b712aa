package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Database struct {
	Conn *sql.DB
}

func NewDatabase(ctx context.Context, dsn string) (*Database, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &Database{Conn: conn}, nil
}

func (d *Database) Close() error {
	return d.Conn.Close()
}

// Schema is applied in order by AutoMigrate. Every statement is idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		username VARCHAR(50) UNIQUE NOT NULL,
		email VARCHAR(255) NOT NULL DEFAULT '',
		password_hash VARCHAR(255) NOT NULL,
		display_name VARCHAR(100) NOT NULL DEFAULT '',
		avatar_url TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	// direct_key is the sorted participant pair of a non-group conversation
	// and NULL for groups, so the unique index only constrains direct chats.
	`CREATE TABLE IF NOT EXISTS conversations (
		id UUID PRIMARY KEY,
		name TEXT,
		is_group BOOLEAN NOT NULL DEFAULT FALSE,
		avatar_url TEXT,
		direct_key TEXT UNIQUE,
		last_message_type VARCHAR(10),
		last_message_text TEXT,
		last_message_sender UUID,
		last_message_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS conversation_participants (
		conversation_id UUID REFERENCES conversations(id) ON DELETE CASCADE,
		user_id UUID REFERENCES users(id) ON DELETE CASCADE,
		position INT NOT NULL,
		PRIMARY KEY (conversation_id, user_id)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_participants_user ON conversation_participants (user_id)`,

	`CREATE TABLE IF NOT EXISTS conversation_seen (
		conversation_id UUID REFERENCES conversations(id) ON DELETE CASCADE,
		user_id UUID NOT NULL,
		PRIMARY KEY (conversation_id, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS messages (
		id UUID PRIMARY KEY,
		conversation_id UUID REFERENCES conversations(id) ON DELETE CASCADE,
		sender_id UUID REFERENCES users(id) ON DELETE CASCADE,
		type VARCHAR(10) NOT NULL CHECK (type IN ('text', 'audio', 'file', 'media')),
		text TEXT,
		file_urls TEXT NOT NULL DEFAULT '[]',
		status VARCHAR(20) NOT NULL DEFAULT 'sent',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS notifications (
		id UUID PRIMARY KEY,
		recipient_id UUID REFERENCES users(id) ON DELETE CASCADE,
		sender_id UUID NOT NULL,
		sender_name TEXT NOT NULL DEFAULT '',
		sender_avatar TEXT NOT NULL DEFAULT '',
		type VARCHAR(20) NOT NULL,
		related_id TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications (recipient_id, created_at DESC)`,
}

func (d *Database) AutoMigrate(ctx context.Context) error {
	for _, query := range Schema {
		if _, err := d.Conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
