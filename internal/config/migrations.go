package config

import "fmt"

// migrate creates the schema. Statements stick to the SQL subset shared by
// SQLite, PostgreSQL and MySQL: no AUTOINCREMENT, no partial indexes, times
// stored as BIGINT unix nanoseconds.
func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS admin_account (
			id INTEGER PRIMARY KEY,
			username VARCHAR(255) NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			salt VARCHAR(255) NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS api_tokens (
			id VARCHAR(64) PRIMARY KEY,
			token_hash VARCHAR(128) NOT NULL UNIQUE,
			prefix VARCHAR(32) NOT NULL,
			label VARCHAR(255) NOT NULL DEFAULT '',
			position INTEGER NOT NULL DEFAULT 0,
			revoked INTEGER NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS request_logs (
			id VARCHAR(64) PRIMARY KEY,
			ts BIGINT NOT NULL,
			kind VARCHAR(16) NOT NULL,
			method VARCHAR(16) NOT NULL,
			path VARCHAR(1024) NOT NULL,
			status INTEGER NOT NULL DEFAULT 0,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			client_ip VARCHAR(64) NOT NULL DEFAULT '',
			user_agent VARCHAR(255) NOT NULL DEFAULT '',
			principal VARCHAR(64) NOT NULL DEFAULT '',
			request_id VARCHAR(64) NOT NULL DEFAULT ''
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
