package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Connect opens the Postgres pool. Migrations run separately via Migrate.
func Connect(ctx context.Context, dsn string, maxOpen int) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxOpen / 2)
	}
	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
            username TEXT PRIMARY KEY,
            password TEXT NOT NULL,
            bio TEXT NOT NULL DEFAULT '',
            avatar_url TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT '',
            theme TEXT NOT NULL DEFAULT 'dark',
            wallpaper TEXT NOT NULL DEFAULT '',
            real_name TEXT NOT NULL DEFAULT '',
            location TEXT NOT NULL DEFAULT '',
            birth_date TEXT NOT NULL DEFAULT '',
            social_link TEXT NOT NULL DEFAULT '',
            is_admin BOOLEAN NOT NULL DEFAULT FALSE
        );`,
	`CREATE TABLE IF NOT EXISTS messages (
            id BIGSERIAL PRIMARY KEY,
            username TEXT NOT NULL,
            content TEXT NOT NULL,
            channel TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            is_edited BOOLEAN NOT NULL DEFAULT FALSE,
            reactions JSONB NOT NULL DEFAULT '{}',
            reply_to BIGINT,
            read_by JSONB NOT NULL DEFAULT '[]',
            mentions JSONB NOT NULL DEFAULT '[]',
            links JSONB NOT NULL DEFAULT '[]',
            forwarded_from TEXT,
            pinned BOOLEAN NOT NULL DEFAULT FALSE,
            timer INT NOT NULL DEFAULT 0,
            viewed_at TIMESTAMPTZ
        );`,
	`CREATE INDEX IF NOT EXISTS messages_channel_id_idx ON messages (channel, id DESC);`,
	`CREATE TABLE IF NOT EXISTS pins (
            id BIGSERIAL PRIMARY KEY,
            message_id BIGINT NOT NULL UNIQUE REFERENCES messages(id) ON DELETE CASCADE,
            channel TEXT NOT NULL,
            pinned_by TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE TABLE IF NOT EXISTS dms (
            id BIGSERIAL PRIMARY KEY,
            user1 TEXT NOT NULL,
            user2 TEXT NOT NULL,
            UNIQUE(user1, user2)
        );`,
	`CREATE TABLE IF NOT EXISTS friend_requests (
            id BIGSERIAL PRIMARY KEY,
            sender TEXT NOT NULL,
            receiver TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            UNIQUE(sender, receiver)
        );`,
	`CREATE TABLE IF NOT EXISTS groups (
            id BIGSERIAL PRIMARY KEY,
            name TEXT NOT NULL,
            owner TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE TABLE IF NOT EXISTS group_members (
            id BIGSERIAL PRIMARY KEY,
            group_id BIGINT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
            username TEXT NOT NULL,
            UNIQUE(group_id, username)
        );`,
}

// Migrate creates any missing tables. It is idempotent.
func Migrate(ctx context.Context, db *sqlx.DB, logger *zap.Logger) error {
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}
	logger.Info("database migrations applied", zap.Int("statements", len(migrations)))
	return nil
}
