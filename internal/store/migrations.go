package store

import (
	"fmt"
)

func (s *Store) migrate() error {
	if err := s.migrateV1(); err != nil {
		return err
	}
	return s.migrateV2()
}

func (s *Store) migrateV1() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id               TEXT PRIMARY KEY,
		name             TEXT NOT NULL DEFAULT '',
		email            TEXT NOT NULL DEFAULT '',
		locale           TEXT NOT NULL DEFAULT '',
		accesses_version INTEGER NOT NULL DEFAULT 0,
		created_at       INTEGER NOT NULL,
		updated_at       INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS partner_accesses (
		user_id                    TEXT NOT NULL REFERENCES users(id),
		position                   INTEGER NOT NULL,
		id                         TEXT NOT NULL DEFAULT '',
		partner_id                 TEXT,
		partner_name               TEXT,
		partner_logo               TEXT,
		access_code                TEXT NOT NULL DEFAULT '',
		feature_live_chat          INTEGER NOT NULL DEFAULT 0,
		feature_therapy            INTEGER NOT NULL DEFAULT 0,
		therapy_sessions_remaining INTEGER NOT NULL DEFAULT 0,
		therapy_sessions_redeemed  INTEGER NOT NULL DEFAULT 0,
		created_at                 INTEGER,
		PRIMARY KEY (user_id, position)
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO meta(key, value) VALUES ('schema_version', '1');
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute migration v1: %w", err)
	}

	return nil
}

func (s *Store) migrateV2() error {
	var version string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&version)
	if err != nil || version >= "2" {
		return nil // already at v2+
	}

	schema := `
	CREATE TABLE IF NOT EXISTS analytics_dead_letters (
		id            TEXT PRIMARY KEY,
		event_name    TEXT NOT NULL,
		payload       TEXT NOT NULL,
		error         TEXT NOT NULL,
		created_at    INTEGER NOT NULL,
		retry_count   INTEGER NOT NULL DEFAULT 0,
		next_retry_at INTEGER,
		resolved_at   INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_dlq_unresolved ON analytics_dead_letters(next_retry_at) WHERE resolved_at IS NULL;
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute migration v2: %w", err)
	}

	if _, err := s.db.Exec(`INSERT OR REPLACE INTO meta(key, value) VALUES ('schema_version', '2')`); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}

	return nil
}
