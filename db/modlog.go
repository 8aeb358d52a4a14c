package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/onnwee/moddeck/moderation"
)

// ModerationLogSink archives moderation audit entries to Postgres. The
// in-memory log caps out; the table is the durable record.
type ModerationLogSink struct {
	DB *sql.DB
}

func (s *ModerationLogSink) SaveModerationLog(ctx context.Context, entry moderation.LogEntry) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO moderation_log(
			at, action, channel, target, moderator, via, success, outcome, detail)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		entry.Time, string(entry.Action), entry.Channel, entry.Target,
		entry.Moderator, entry.Via, entry.Success, entry.Outcome, entry.Detail)
	if err != nil {
		return fmt.Errorf("insert moderation log: %w", err)
	}
	return nil
}

// ModerationLogSince returns archived entries at or after the given time,
// newest-first, capped at limit. Used by the export endpoint, which reaches
// past the in-memory cap.
func ModerationLogSince(ctx context.Context, dbx *sql.DB, since time.Time, limit int) ([]moderation.LogEntry, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := dbx.QueryContext(ctx, `SELECT at, action, channel, target, moderator, via, success, outcome, detail
		FROM moderation_log WHERE at >= $1 ORDER BY at DESC LIMIT $2`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query moderation log: %w", err)
	}
	defer rows.Close()

	var out []moderation.LogEntry
	for rows.Next() {
		var e moderation.LogEntry
		var action string
		if err := rows.Scan(&e.Time, &action, &e.Channel, &e.Target, &e.Moderator, &e.Via, &e.Success, &e.Outcome, &e.Detail); err != nil {
			return nil, err
		}
		e.Action = moderation.ActionKind(action)
		out = append(out, e)
	}
	return out, rows.Err()
}
