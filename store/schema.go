package store

import (
	"context"
	"fmt"
)

type migration struct {
	version    int
	statements []string
}

var migrations = []migration{
	{
		version: 1,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				email TEXT NOT NULL UNIQUE,
				password_hash TEXT NOT NULL,
				totp_secret TEXT,
				mfa_enabled BOOLEAN NOT NULL DEFAULT FALSE,
				mfa_enabled_at BIGINT,
				created_at BIGINT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS revoked_tokens (
				token_hash TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				token_type TEXT NOT NULL,
				reason TEXT NOT NULL,
				revoked_by TEXT,
				revoked_at BIGINT NOT NULL,
				expires_at BIGINT NOT NULL,
				ip_address TEXT,
				user_agent TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_revoked_tokens_expires_at ON revoked_tokens (expires_at)`,
			`CREATE TABLE IF NOT EXISTS csrf_tokens (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				token_hash TEXT NOT NULL UNIQUE,
				created_at BIGINT NOT NULL,
				expires_at BIGINT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_csrf_tokens_user_id ON csrf_tokens (user_id)`,
			`CREATE INDEX IF NOT EXISTS idx_csrf_tokens_expires_at ON csrf_tokens (expires_at)`,
			`CREATE TABLE IF NOT EXISTS login_attempts (
				id TEXT PRIMARY KEY,
				email_hash TEXT NOT NULL,
				ip_address TEXT NOT NULL,
				user_agent TEXT,
				success BOOLEAN NOT NULL,
				failure_reason TEXT,
				blocked_until BIGINT,
				attempted_at BIGINT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_login_attempts_ip ON login_attempts (ip_address, attempted_at)`,
			`CREATE INDEX IF NOT EXISTS idx_login_attempts_email ON login_attempts (email_hash, attempted_at)`,
			`CREATE TABLE IF NOT EXISTS security_events (
				id TEXT PRIMARY KEY,
				event_type TEXT NOT NULL,
				severity TEXT NOT NULL,
				user_id TEXT,
				ip_address TEXT,
				user_agent TEXT,
				event_data TEXT,
				detected_at BIGINT NOT NULL,
				resolved_at BIGINT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_security_events_type_ip ON security_events (event_type, ip_address, detected_at)`,
			`CREATE INDEX IF NOT EXISTS idx_security_events_detected_at ON security_events (detected_at)`,
			`CREATE TABLE IF NOT EXISTS mfa_backup_codes (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				code_hash TEXT NOT NULL,
				created_at BIGINT NOT NULL,
				used_at BIGINT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_mfa_backup_codes_user ON mfa_backup_codes (user_id, code_hash)`,
		},
	},
}

// Migrate applies every pending migration. Safe to call on every start.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at BIGINT NOT NULL
	)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.GetContext(ctx, &current, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
		for _, stmt := range m.statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d: %w", m.version, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			s.q(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`),
			m.version, toMillis(timeNow()),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
	}
	return nil
}
