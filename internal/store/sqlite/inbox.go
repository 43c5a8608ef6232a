package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"overseer/internal/store"
)

type inboxRepo struct {
	conn *sql.DB
}

func (r *inboxRepo) Create(ctx context.Context, i *store.TaskInboxItem) error {
	_, err := r.conn.ExecContext(ctx, `
		INSERT INTO task_inbox_items (id, channel_id, message, source, consumed, created_at)
		VALUES (?,?,?,?,?,?)`,
		i.ID, nullString(i.ChannelID), i.Message, i.Source, i.Consumed, i.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task inbox item: %w", err)
	}
	return nil
}

// ListUnconsumedForChannel returns items scoped to channelID plus global
// (channel_id IS NULL) items, in FIFO order (spec.md §3).
func (r *inboxRepo) ListUnconsumedForChannel(ctx context.Context, channelID string) ([]*store.TaskInboxItem, error) {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT id, channel_id, message, source, consumed, created_at
		FROM task_inbox_items
		WHERE consumed = 0 AND (channel_id = ? OR channel_id IS NULL)
		ORDER BY created_at`, channelID)
	if err != nil {
		return nil, fmt.Errorf("query task inbox items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*store.TaskInboxItem
	for rows.Next() {
		var i store.TaskInboxItem
		var chID sql.NullString
		if err := rows.Scan(&i.ID, &chID, &i.Message, &i.Source, &i.Consumed, &i.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task inbox item: %w", err)
		}
		i.ChannelID = fromNullString(chID)
		out = append(out, &i)
	}
	return out, rows.Err()
}

func (r *inboxRepo) MarkConsumed(ctx context.Context, id string) error {
	return execAffectingOneRow(ctx, r.conn, "UPDATE task_inbox_items SET consumed = 1 WHERE id = ?", id)
}
