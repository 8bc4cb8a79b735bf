package store

import (
	"context"
	"database/sql"
	"time"
)

// RevokedToken is a revocation record keyed by the SHA-256 of the token.
type RevokedToken struct {
	TokenHash string
	UserID    string
	TokenType string
	Reason    string
	RevokedBy string
	RevokedAt time.Time
	ExpiresAt time.Time
	IPAddress string
	UserAgent string
}

type revokedRow struct {
	TokenHash string         `db:"token_hash"`
	UserID    string         `db:"user_id"`
	TokenType string         `db:"token_type"`
	Reason    string         `db:"reason"`
	RevokedBy sql.NullString `db:"revoked_by"`
	RevokedAt int64          `db:"revoked_at"`
	ExpiresAt int64          `db:"expires_at"`
	IPAddress sql.NullString `db:"ip_address"`
	UserAgent sql.NullString `db:"user_agent"`
}

func (r revokedRow) model() RevokedToken {
	return RevokedToken{
		TokenHash: r.TokenHash,
		UserID:    r.UserID,
		TokenType: r.TokenType,
		Reason:    r.Reason,
		RevokedBy: r.RevokedBy.String,
		RevokedAt: fromMillis(r.RevokedAt),
		ExpiresAt: fromMillis(r.ExpiresAt),
		IPAddress: r.IPAddress.String,
		UserAgent: r.UserAgent.String,
	}
}

// InsertRevocation stores rec unless its hash is already present. It reports
// whether a new row was written.
func (s *Store) InsertRevocation(ctx context.Context, rec RevokedToken) (bool, error) {
	var inserted bool
	err := s.do(ctx, "insert_revocation", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, s.q(`
			INSERT INTO revoked_tokens (token_hash, user_id, token_type, reason, revoked_by, revoked_at, expires_at, ip_address, user_agent)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (token_hash) DO NOTHING`),
			rec.TokenHash,
			rec.UserID,
			rec.TokenType,
			rec.Reason,
			nullString(rec.RevokedBy),
			toMillis(rec.RevokedAt),
			toMillis(rec.ExpiresAt),
			nullString(rec.IPAddress),
			nullString(rec.UserAgent),
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		inserted = n == 1
		return nil
	})
	return inserted, err
}

// GetRevocation returns the record for tokenHash or ErrNotFound.
func (s *Store) GetRevocation(ctx context.Context, tokenHash string) (RevokedToken, error) {
	var row revokedRow
	err := s.do(ctx, "get_revocation", func(ctx context.Context) error {
		return s.db.GetContext(ctx, &row, s.q(`
			SELECT token_hash, user_id, token_type, reason, revoked_by, revoked_at, expires_at, ip_address, user_agent
			FROM revoked_tokens WHERE token_hash = ?`), tokenHash)
	})
	if err != nil {
		return RevokedToken{}, err
	}
	return row.model(), nil
}

func (s *Store) DeleteRevocation(ctx context.Context, tokenHash string) error {
	return s.do(ctx, "delete_revocation", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM revoked_tokens WHERE token_hash = ?`), tokenHash)
		return err
	})
}

// PurgeExpiredRevocations deletes records whose token expired before cutoff.
// Callers that verify with clock leeway pass now minus that leeway.
func (s *Store) PurgeExpiredRevocations(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.execCount(ctx, "purge_revocations",
		`DELETE FROM revoked_tokens WHERE expires_at < ?`, toMillis(cutoff))
}

func (s *Store) execCount(ctx context.Context, op, query string, args ...any) (int64, error) {
	var n int64
	err := s.do(ctx, op, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, s.q(query), args...)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}
