package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/onnwee/moddeck/store"
	"github.com/onnwee/moddeck/telemetry"
)

// SaveChannelSnapshot persists a channel's held messages and counters so a
// restart (or a part/re-join) can restore the tab without replaying chat.
// Rows are upserted on (channel, message_id); moderation flags are refreshed
// on conflict so a later snapshot wins.
func SaveChannelSnapshot(ctx context.Context, dbx *sql.DB, st *store.Store, channel string) error {
	msgs := st.Messages(channel)

	tx, err := dbx.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chat_messages(
			channel, message_id, username, display_name, color, body, role,
			is_mention, reply_to_username, reply_to_text, recurrence,
			deleted, timed_out, banned, payload, sent_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT(channel, message_id) DO UPDATE SET
			deleted=EXCLUDED.deleted,
			timed_out=EXCLUDED.timed_out,
			banned=EXCLUDED.banned,
			payload=EXCLUDED.payload`)
	if err != nil {
		return fmt.Errorf("prepare snapshot insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range msgs {
		payload, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal message %s: %w", m.ID, err)
		}
		var replyUser, replyText string
		if m.ReplyTo != nil {
			replyUser = m.ReplyTo.Username
			replyText = m.ReplyTo.Text
		}
		if _, err := stmt.ExecContext(ctx,
			m.Channel, m.ID, m.Username, m.DisplayName, m.Color, m.Text, string(m.Role),
			m.IsMention, replyUser, replyText, m.Recurrence,
			m.Deleted, m.TimedOut, m.Banned, payload, m.Timestamp,
		); err != nil {
			return fmt.Errorf("insert message %s: %w", m.ID, err)
		}
	}

	var messageCount, mentionCount int
	for _, sum := range st.Summaries() {
		if sum.Name == channel {
			messageCount = sum.MessageCount
			mentionCount = sum.MentionCount
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO channel_state(channel, message_count, mention_count, updated_at)
		VALUES($1,$2,$3,NOW())
		ON CONFLICT(channel) DO UPDATE SET
			message_count=GREATEST(channel_state.message_count, EXCLUDED.message_count),
			mention_count=GREATEST(channel_state.mention_count, EXCLUDED.mention_count),
			updated_at=NOW()`, channel, messageCount, mentionCount); err != nil {
		return fmt.Errorf("upsert channel state: %w", err)
	}

	return tx.Commit()
}

// LoadChannelSnapshot returns the most recent persisted messages for a
// channel (oldest-first, capped at limit) together with the lifetime
// counters. A channel with no rows returns an empty slice and zero counters,
// not an error.
func LoadChannelSnapshot(ctx context.Context, dbx *sql.DB, channel string, limit int) ([]*store.Message, int, int, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := dbx.QueryContext(ctx, `SELECT payload FROM (
			SELECT id, payload FROM chat_messages WHERE channel=$1 ORDER BY id DESC LIMIT $2
		) recent ORDER BY id ASC`, channel, limit)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("query snapshot: %w", err)
	}
	defer rows.Close()

	var msgs []*store.Message
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, 0, 0, err
		}
		var m store.Message
		if err := json.Unmarshal(payload, &m); err != nil {
			slog.Warn("skipping undecodable snapshot row", slog.String("channel", channel), slog.Any("err", err))
			continue
		}
		msgs = append(msgs, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, 0, err
	}

	var messageCount, mentionCount int
	err = dbx.QueryRowContext(ctx,
		`SELECT message_count, mention_count FROM channel_state WHERE channel=$1`, channel).
		Scan(&messageCount, &mentionCount)
	if err != nil && err != sql.ErrNoRows {
		return nil, 0, 0, err
	}
	return msgs, messageCount, mentionCount, nil
}

// RestoreChannel loads a channel's snapshot and applies it to the in-memory
// store. Intended for the join path: the channel must already exist in the
// store.
func RestoreChannel(ctx context.Context, dbx *sql.DB, st *store.Store, channel string, limit int) error {
	msgs, messageCount, mentionCount, err := LoadChannelSnapshot(ctx, dbx, channel, limit)
	if err != nil {
		return err
	}
	st.Restore(channel, msgs, messageCount, mentionCount)
	if len(msgs) > 0 {
		slog.Info("restored channel from snapshot",
			slog.String("channel", channel),
			slog.Int("messages", len(msgs)),
			slog.Int("message_count", messageCount),
			slog.Int("mention_count", mentionCount))
	}
	return nil
}

// StartSnapshotJob periodically persists every joined channel until ctx is
// canceled. One channel failing does not stop the sweep.
func StartSnapshotJob(ctx context.Context, dbx *sql.DB, st *store.Store, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				snapshotAll(ctx, dbx, st)
			}
		}
	}()
}

func snapshotAll(ctx context.Context, dbx *sql.DB, st *store.Store) {
	for _, channel := range st.Channels() {
		opCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err := SaveChannelSnapshot(opCtx, dbx, st, channel)
		cancel()
		if err != nil {
			telemetry.IncSnapshotFailed()
			slog.Error("channel snapshot failed", slog.String("channel", channel), slog.Any("err", err))
			continue
		}
		telemetry.IncSnapshotSaved()
	}
}
