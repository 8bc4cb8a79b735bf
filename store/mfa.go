package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ReplaceBackupCodes swaps the user's backup code set for hashes in one transaction.
func (s *Store) ReplaceBackupCodes(ctx context.Context, userID string, hashes []string, now time.Time) error {
	return s.do(ctx, "replace_backup_codes", func(ctx context.Context) error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM mfa_backup_codes WHERE user_id = ?`), userID); err != nil {
			return err
		}
		insert := s.q(`INSERT INTO mfa_backup_codes (id, user_id, code_hash, created_at) VALUES (?, ?, ?, ?)`)
		for _, h := range hashes {
			if _, err := tx.ExecContext(ctx, insert, uuid.NewString(), userID, h, toMillis(now)); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// ConsumeBackupCode marks the unused code matching codeHash as used. It
// reports false when no unused match exists. The conditional update makes
// concurrent consumers race on one row; at most one wins.
func (s *Store) ConsumeBackupCode(ctx context.Context, userID, codeHash string, now time.Time) (bool, error) {
	n, err := s.execCount(ctx, "consume_backup_code", `
		UPDATE mfa_backup_codes SET used_at = ?
		WHERE user_id = ? AND code_hash = ? AND used_at IS NULL`,
		toMillis(now), userID, codeHash)
	return n > 0, err
}

func (s *Store) CountUnusedBackupCodes(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.do(ctx, "count_backup_codes", func(ctx context.Context) error {
		return s.db.GetContext(ctx, &n, s.q(
			`SELECT COUNT(*) FROM mfa_backup_codes WHERE user_id = ? AND used_at IS NULL`), userID)
	})
	return n, err
}
