package store

import (
	"context"
	"database/sql"
	"time"
)

// LoginAttempt is an append-only record of one credential check.
type LoginAttempt struct {
	ID            string
	EmailHash     string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	BlockedUntil  *time.Time
	AttemptedAt   time.Time
}

func (s *Store) InsertLoginAttempt(ctx context.Context, a LoginAttempt) error {
	return s.do(ctx, "insert_login_attempt", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, s.q(`
			INSERT INTO login_attempts (id, email_hash, ip_address, user_agent, success, failure_reason, blocked_until, attempted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			a.ID,
			a.EmailHash,
			a.IPAddress,
			nullString(a.UserAgent),
			a.Success,
			nullString(a.FailureReason),
			nullMillis(a.BlockedUntil),
			toMillis(a.AttemptedAt),
		)
		return err
	})
}

// CountFailedAttempts counts failures from ip at or after since.
func (s *Store) CountFailedAttempts(ctx context.Context, ip string, since time.Time) (int, error) {
	var n int
	err := s.do(ctx, "count_failed_attempts", func(ctx context.Context) error {
		return s.db.GetContext(ctx, &n, s.q(`
			SELECT COUNT(*) FROM login_attempts
			WHERE ip_address = ? AND success = ? AND attempted_at >= ?`),
			ip, false, toMillis(since))
	})
	return n, err
}

// RecentSuccessIPs returns the addresses of the newest limit successful logins
// for emailHash at or after since, newest first.
func (s *Store) RecentSuccessIPs(ctx context.Context, emailHash string, since time.Time, limit int) ([]string, error) {
	var ips []string
	err := s.do(ctx, "recent_success_ips", func(ctx context.Context) error {
		return s.db.SelectContext(ctx, &ips, s.q(`
			SELECT ip_address FROM login_attempts
			WHERE email_hash = ? AND success = ? AND attempted_at >= ?
			ORDER BY attempted_at DESC
			LIMIT ?`),
			emailHash, true, toMillis(since), limit)
	})
	return ips, err
}

// BlockIP stamps until onto the failed attempts from ip since the window start.
func (s *Store) BlockIP(ctx context.Context, ip string, since, until time.Time) (int64, error) {
	return s.execCount(ctx, "block_ip", `
		UPDATE login_attempts SET blocked_until = ?
		WHERE ip_address = ? AND success = ? AND attempted_at >= ?`,
		toMillis(until), ip, false, toMillis(since))
}

// BlockedUntil returns the latest block expiry for ip that is still in the future.
func (s *Store) BlockedUntil(ctx context.Context, ip string, now time.Time) (time.Time, bool, error) {
	var until sql.NullInt64
	err := s.do(ctx, "blocked_until", func(ctx context.Context) error {
		return s.db.GetContext(ctx, &until, s.q(`
			SELECT MAX(blocked_until) FROM login_attempts
			WHERE ip_address = ? AND blocked_until > ?`),
			ip, toMillis(now))
	})
	if err != nil || !until.Valid {
		return time.Time{}, false, err
	}
	return fromMillis(until.Int64), true, nil
}

// PurgeLoginAttempts deletes attempts older than before.
func (s *Store) PurgeLoginAttempts(ctx context.Context, before time.Time) (int64, error) {
	return s.execCount(ctx, "purge_login_attempts",
		`DELETE FROM login_attempts WHERE attempted_at < ?`, toMillis(before))
}
