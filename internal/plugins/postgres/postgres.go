package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"whisper/internal/config"
)

func New(ctx context.Context, cfg config.PostgresConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, err
	}
	// Pool tuning
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	// Health check
	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// schema covers only the tables the chat core touches. Users, friendships
// and memberships are normally owned by other services; the statements are
// idempotent so a shared database is left alone.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id          BIGSERIAL PRIMARY KEY,
		username    TEXT NOT NULL UNIQUE,
		avatar_url  TEXT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS friends (
		user_id     BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		friend_id   BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		status      TEXT NOT NULL DEFAULT 'pending',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (user_id, friend_id)
	)`,
	`CREATE TABLE IF NOT EXISTS group_members (
		group_id    BIGINT NOT NULL,
		user_id     BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		is_admin    BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (group_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS private_messages (
		id              BIGSERIAL PRIMARY KEY,
		sender_id       BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		receiver_id     BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		content         TEXT NOT NULL DEFAULT '',
		message_type    TEXT NOT NULL DEFAULT 'text',
		is_read         BOOLEAN NOT NULL DEFAULT FALSE,
		read_at         TIMESTAMPTZ,
		reply_to_id     BIGINT REFERENCES private_messages(id) ON DELETE SET NULL,
		file_url        TEXT,
		public_id       TEXT,
		resource_type   TEXT,
		voice_duration  DOUBLE PRECISION,
		file_size       BIGINT,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS private_messages_pair_idx
		ON private_messages (LEAST(sender_id, receiver_id), GREATEST(sender_id, receiver_id), created_at)`,
	`CREATE TABLE IF NOT EXISTS group_messages (
		id                 BIGSERIAL PRIMARY KEY,
		group_id           BIGINT NOT NULL,
		sender_id          BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		forwarded_by_id    BIGINT REFERENCES users(id) ON DELETE SET NULL,
		forwarded_at       TIMESTAMPTZ,
		parent_message_id  BIGINT REFERENCES group_messages(id) ON DELETE SET NULL,
		reply_to_id        BIGINT REFERENCES group_messages(id) ON DELETE SET NULL,
		content            TEXT NOT NULL DEFAULT '',
		message_type       TEXT NOT NULL DEFAULT 'text',
		file_url           TEXT,
		public_id          TEXT,
		resource_type      TEXT,
		voice_duration     DOUBLE PRECISION,
		file_size          BIGINT,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at         TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS group_messages_group_idx ON group_messages (group_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS group_message_seen (
		message_id  BIGINT NOT NULL REFERENCES group_messages(id) ON DELETE CASCADE,
		user_id     BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		seen_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (message_id, user_id)
	)`,
}

// Migrate creates any missing table.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	return nil
}
