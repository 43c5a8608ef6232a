package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"overseer/internal/store"
)

type steeringRepo struct {
	conn *sql.DB
}

func (r *steeringRepo) Create(ctx context.Context, m *store.SteeringMessage) error {
	_, err := r.conn.ExecContext(ctx, `
		INSERT INTO steering_messages (id, session_id, channel_id, message, source, consumed, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		m.ID, m.SessionID, nullString(m.ChannelID), m.Message, m.Source, m.Consumed, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert steering message: %w", err)
	}
	return nil
}

func (r *steeringRepo) ListUnconsumed(ctx context.Context, sessionID string) ([]*store.SteeringMessage, error) {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT id, session_id, channel_id, message, source, consumed, created_at
		FROM steering_messages WHERE session_id = ? AND consumed = 0 ORDER BY created_at`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query steering messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*store.SteeringMessage
	for rows.Next() {
		var m store.SteeringMessage
		var channelID sql.NullString
		if err := rows.Scan(&m.ID, &m.SessionID, &channelID, &m.Message, &m.Source, &m.Consumed, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan steering message: %w", err)
		}
		m.ChannelID = fromNullString(channelID)
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (r *steeringRepo) MarkConsumed(ctx context.Context, id string) error {
	return execAffectingOneRow(ctx, r.conn, "UPDATE steering_messages SET consumed = 1 WHERE id = ?", id)
}
