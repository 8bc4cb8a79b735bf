package store

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// User is the subset of the account table the session core reads and writes.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	TOTPSecret   string
	MFAEnabled   bool
	MFAEnabledAt *time.Time
	CreatedAt    time.Time
}

type userRow struct {
	ID           string         `db:"id"`
	Email        string         `db:"email"`
	PasswordHash string         `db:"password_hash"`
	TOTPSecret   sql.NullString `db:"totp_secret"`
	MFAEnabled   bool           `db:"mfa_enabled"`
	MFAEnabledAt sql.NullInt64  `db:"mfa_enabled_at"`
	CreatedAt    int64          `db:"created_at"`
}

func (r userRow) model() User {
	return User{
		ID:           r.ID,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		TOTPSecret:   r.TOTPSecret.String,
		MFAEnabled:   r.MFAEnabled,
		MFAEnabledAt: timePtr(r.MFAEnabledAt),
		CreatedAt:    fromMillis(r.CreatedAt),
	}
}

const userColumns = `id, email, password_hash, totp_secret, mfa_enabled, mfa_enabled_at, created_at`

// CreateUser inserts u. An existing email returns ErrConflict.
func (s *Store) CreateUser(ctx context.Context, u User) error {
	n, err := s.execCount(ctx, "create_user", `
		INSERT INTO users (id, email, password_hash, mfa_enabled, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (email) DO NOTHING`,
		u.ID, normalizeEmail(u.Email), u.PasswordHash, false, toMillis(u.CreatedAt))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return s.getUser(ctx, "get_user_by_email", `SELECT `+userColumns+` FROM users WHERE email = ?`, normalizeEmail(email))
}

func (s *Store) GetUserByID(ctx context.Context, id string) (User, error) {
	return s.getUser(ctx, "get_user_by_id", `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (s *Store) getUser(ctx context.Context, op, query string, arg string) (User, error) {
	var row userRow
	err := s.do(ctx, op, func(ctx context.Context) error {
		return s.db.GetContext(ctx, &row, s.q(query), arg)
	})
	if err != nil {
		return User{}, err
	}
	return row.model(), nil
}

// EnableMFA persists the TOTP secret and marks the user enrolled.
func (s *Store) EnableMFA(ctx context.Context, userID, secret string, at time.Time) error {
	n, err := s.execCount(ctx, "enable_mfa",
		`UPDATE users SET totp_secret = ?, mfa_enabled = ?, mfa_enabled_at = ? WHERE id = ?`,
		secret, true, toMillis(at), userID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DisableMFA clears the secret and deletes every backup code in one transaction.
func (s *Store) DisableMFA(ctx context.Context, userID string) error {
	return s.do(ctx, "disable_mfa", func(ctx context.Context) error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx, s.q(
			`UPDATE users SET totp_secret = NULL, mfa_enabled = ?, mfa_enabled_at = NULL WHERE id = ?`),
			false, userID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM mfa_backup_codes WHERE user_id = ?`), userID); err != nil {
			return err
		}
		return tx.Commit()
	})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
