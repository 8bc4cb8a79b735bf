package store

import (
	"context"
	"time"
)

// CSRFToken is a persisted double-submit token. Only the hash of the value is kept.
type CSRFToken struct {
	ID        string
	UserID    string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type csrfRow struct {
	ID        string `db:"id"`
	UserID    string `db:"user_id"`
	TokenHash string `db:"token_hash"`
	CreatedAt int64  `db:"created_at"`
	ExpiresAt int64  `db:"expires_at"`
}

func (s *Store) InsertCSRFToken(ctx context.Context, tok CSRFToken) error {
	return s.do(ctx, "insert_csrf_token", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, s.q(`
			INSERT INTO csrf_tokens (id, user_id, token_hash, created_at, expires_at)
			VALUES (?, ?, ?, ?, ?)`),
			tok.ID, tok.UserID, tok.TokenHash, toMillis(tok.CreatedAt), toMillis(tok.ExpiresAt))
		return err
	})
}

// GetCSRFToken returns the token with hash tokenHash that is unexpired at now.
func (s *Store) GetCSRFToken(ctx context.Context, tokenHash string, now time.Time) (CSRFToken, error) {
	var row csrfRow
	err := s.do(ctx, "get_csrf_token", func(ctx context.Context) error {
		return s.db.GetContext(ctx, &row, s.q(`
			SELECT id, user_id, token_hash, created_at, expires_at
			FROM csrf_tokens WHERE token_hash = ? AND expires_at > ?`),
			tokenHash, toMillis(now))
	})
	if err != nil {
		return CSRFToken{}, err
	}
	return CSRFToken{
		ID:        row.ID,
		UserID:    row.UserID,
		TokenHash: row.TokenHash,
		CreatedAt: fromMillis(row.CreatedAt),
		ExpiresAt: fromMillis(row.ExpiresAt),
	}, nil
}

func (s *Store) DeleteCSRFToken(ctx context.Context, tokenHash string) (int64, error) {
	return s.execCount(ctx, "delete_csrf_token",
		`DELETE FROM csrf_tokens WHERE token_hash = ?`, tokenHash)
}

// DeleteCSRFTokensForUser removes every token of userID in one statement.
func (s *Store) DeleteCSRFTokensForUser(ctx context.Context, userID string) (int64, error) {
	return s.execCount(ctx, "delete_csrf_tokens_user",
		`DELETE FROM csrf_tokens WHERE user_id = ?`, userID)
}

func (s *Store) PurgeExpiredCSRFTokens(ctx context.Context, now time.Time) (int64, error) {
	return s.execCount(ctx, "purge_csrf_tokens",
		`DELETE FROM csrf_tokens WHERE expires_at <= ?`, toMillis(now))
}
