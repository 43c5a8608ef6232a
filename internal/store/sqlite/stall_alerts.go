package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"overseer/internal/store"
)

type stallAlertRepo struct {
	conn *sql.DB
}

const stallAlertColumns = `
	id, session_id, last_tool, last_activity_at, idle_seconds, nudge_count,
	status, progress_snapshot, created_at, updated_at`

func (r *stallAlertRepo) Create(ctx context.Context, a *store.StallAlert) error {
	progress, err := marshalProgress(a.ProgressSnapshot)
	if err != nil {
		return err
	}
	_, err = r.conn.ExecContext(ctx, `
		INSERT INTO stall_alerts (`+stallAlertColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.SessionID, nullString(a.LastTool), a.LastActivityAt, a.IdleSeconds, a.NudgeCount,
		a.Status, progress, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert stall alert: %w", err)
	}
	return nil
}

func scanStallAlert(scan func(dest ...any) error) (*store.StallAlert, error) {
	var a store.StallAlert
	var lastTool sql.NullString
	var progress sql.NullString

	err := scan(&a.ID, &a.SessionID, &lastTool, &a.LastActivityAt, &a.IdleSeconds, &a.NudgeCount,
		&a.Status, &progress, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan stall alert: %w", err)
	}

	a.LastTool = fromNullString(lastTool)
	steps, err := unmarshalProgress(progress)
	if err != nil {
		return nil, err
	}
	a.ProgressSnapshot = steps
	return &a, nil
}

func (r *stallAlertRepo) Get(ctx context.Context, id string) (*store.StallAlert, error) {
	row := r.conn.QueryRowContext(ctx, "SELECT"+stallAlertColumns+" FROM stall_alerts WHERE id = ?", id)
	return scanStallAlert(row.Scan)
}

func (r *stallAlertRepo) Update(ctx context.Context, a *store.StallAlert) error {
	progress, err := marshalProgress(a.ProgressSnapshot)
	if err != nil {
		return err
	}
	return execAffectingOneRow(ctx, r.conn, `
		UPDATE stall_alerts SET
			last_tool=?, last_activity_at=?, idle_seconds=?, nudge_count=?,
			status=?, progress_snapshot=?, updated_at=?
		WHERE id=?`,
		nullString(a.LastTool), a.LastActivityAt, a.IdleSeconds, a.NudgeCount,
		a.Status, progress, a.UpdatedAt, a.ID,
	)
}

func (r *stallAlertRepo) GetOpenBySession(ctx context.Context, sessionID string) (*store.StallAlert, error) {
	row := r.conn.QueryRowContext(ctx, "SELECT"+stallAlertColumns+
		" FROM stall_alerts WHERE session_id = ? AND status IN ('pending','nudged') ORDER BY created_at DESC LIMIT 1", sessionID)
	return scanStallAlert(row.Scan)
}

func (r *stallAlertRepo) ListBySession(ctx context.Context, sessionID string) ([]*store.StallAlert, error) {
	rows, err := r.conn.QueryContext(ctx, "SELECT"+stallAlertColumns+" FROM stall_alerts WHERE session_id = ? ORDER BY created_at", sessionID)
	if err != nil {
		return nil, fmt.Errorf("query stall alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*store.StallAlert
	for rows.Next() {
		a, err := scanStallAlert(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
