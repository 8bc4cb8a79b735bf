package store

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// SecurityEvent is an append-only audit record. Only ResolvedAt changes after insert.
type SecurityEvent struct {
	ID         string
	Type       string
	Severity   string
	UserID     string
	IPAddress  string
	UserAgent  string
	Data       string
	DetectedAt time.Time
	ResolvedAt *time.Time
}

type eventRow struct {
	ID         string         `db:"id"`
	Type       string         `db:"event_type"`
	Severity   string         `db:"severity"`
	UserID     sql.NullString `db:"user_id"`
	IPAddress  sql.NullString `db:"ip_address"`
	UserAgent  sql.NullString `db:"user_agent"`
	Data       sql.NullString `db:"event_data"`
	DetectedAt int64          `db:"detected_at"`
	ResolvedAt sql.NullInt64  `db:"resolved_at"`
}

func (r eventRow) model() SecurityEvent {
	return SecurityEvent{
		ID:         r.ID,
		Type:       r.Type,
		Severity:   r.Severity,
		UserID:     r.UserID.String,
		IPAddress:  r.IPAddress.String,
		UserAgent:  r.UserAgent.String,
		Data:       r.Data.String,
		DetectedAt: fromMillis(r.DetectedAt),
		ResolvedAt: timePtr(r.ResolvedAt),
	}
}

// EventFilter narrows ListSecurityEvents. Zero fields are ignored.
type EventFilter struct {
	Type           string
	Severity       string
	UserID         string
	IPAddress      string
	Since          time.Time
	Until          time.Time
	UnresolvedOnly bool
	Limit          int
}

const maxEventPage = 500

func (s *Store) InsertSecurityEvent(ctx context.Context, e SecurityEvent) error {
	return s.do(ctx, "insert_security_event", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, s.q(`
			INSERT INTO security_events (id, event_type, severity, user_id, ip_address, user_agent, event_data, detected_at, resolved_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			e.ID,
			e.Type,
			e.Severity,
			nullString(e.UserID),
			nullString(e.IPAddress),
			nullString(e.UserAgent),
			nullString(e.Data),
			toMillis(e.DetectedAt),
			nullMillis(e.ResolvedAt),
		)
		return err
	})
}

// CountEvents counts events of eventType for ip at or after since.
func (s *Store) CountEvents(ctx context.Context, eventType, ip string, since time.Time) (int, error) {
	var n int
	err := s.do(ctx, "count_events", func(ctx context.Context) error {
		return s.db.GetContext(ctx, &n, s.q(`
			SELECT COUNT(*) FROM security_events
			WHERE event_type = ? AND ip_address = ? AND detected_at >= ?`),
			eventType, ip, toMillis(since))
	})
	return n, err
}

// ListSecurityEvents returns events matching f, newest first.
func (s *Store) ListSecurityEvents(ctx context.Context, f EventFilter) ([]SecurityEvent, error) {
	var (
		conds []string
		args  []any
	)
	if f.Type != "" {
		conds = append(conds, "event_type = ?")
		args = append(args, f.Type)
	}
	if f.Severity != "" {
		conds = append(conds, "severity = ?")
		args = append(args, f.Severity)
	}
	if f.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.IPAddress != "" {
		conds = append(conds, "ip_address = ?")
		args = append(args, f.IPAddress)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "detected_at >= ?")
		args = append(args, toMillis(f.Since))
	}
	if !f.Until.IsZero() {
		conds = append(conds, "detected_at < ?")
		args = append(args, toMillis(f.Until))
	}
	if f.UnresolvedOnly {
		conds = append(conds, "resolved_at IS NULL")
	}
	limit := f.Limit
	if limit <= 0 || limit > maxEventPage {
		limit = maxEventPage
	}

	query := `SELECT id, event_type, severity, user_id, ip_address, user_agent, event_data, detected_at, resolved_at FROM security_events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY detected_at DESC LIMIT ?"
	args = append(args, limit)

	var rows []eventRow
	err := s.do(ctx, "list_security_events", func(ctx context.Context) error {
		return s.db.SelectContext(ctx, &rows, s.q(query), args...)
	})
	if err != nil {
		return nil, err
	}
	out := make([]SecurityEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

// ResolveSecurityEvent sets resolved_at once. Unknown or already resolved ids
// return ErrNotFound.
func (s *Store) ResolveSecurityEvent(ctx context.Context, id string, at time.Time) error {
	n, err := s.execCount(ctx, "resolve_security_event",
		`UPDATE security_events SET resolved_at = ? WHERE id = ? AND resolved_at IS NULL`,
		toMillis(at), id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeResolvedEvents deletes resolved events detected before the cutoff.
func (s *Store) PurgeResolvedEvents(ctx context.Context, before time.Time) (int64, error) {
	return s.execCount(ctx, "purge_security_events",
		`DELETE FROM security_events WHERE resolved_at IS NOT NULL AND detected_at < ?`,
		toMillis(before))
}
