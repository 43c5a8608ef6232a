package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"overseer/internal/store"
)

type sessionRepo struct {
	conn *sql.DB
}

func (r *sessionRepo) Create(ctx context.Context, s *store.Session) error {
	progress, err := marshalProgress(s.ProgressSnapshot)
	if err != nil {
		return err
	}

	_, err = r.conn.ExecContext(ctx, `
		INSERT INTO sessions (
			id, owner_user_id, workspace_root, status, prompt, mode, protocol_mode,
			channel_id, thread_ts, connectivity_status, progress_snapshot, nudge_count,
			stall_paused, last_tool, last_activity_at, created_at, updated_at,
			terminated_at, restart_of
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.OwnerUserID, s.WorkspaceRoot, s.Status, nullString(s.Prompt), s.Mode, s.ProtocolMode,
		nullString(s.ChannelID), nullString(s.ThreadTS), s.ConnectivityStatus, progress, s.NudgeCount,
		s.StallPaused, nullString(s.LastTool), nullTime(s.LastActivityAt), s.CreatedAt, s.UpdatedAt,
		nullTime(s.TerminatedAt), nullString(s.RestartOf),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *sessionRepo) scanRow(row *sql.Row) (*store.Session, error) {
	var s store.Session
	var prompt, channelID, threadTS, lastTool, restartOf sql.NullString
	var progress sql.NullString
	var lastActivityAt, terminatedAt sql.NullTime

	err := row.Scan(
		&s.ID, &s.OwnerUserID, &s.WorkspaceRoot, &s.Status, &prompt, &s.Mode, &s.ProtocolMode,
		&channelID, &threadTS, &s.ConnectivityStatus, &progress, &s.NudgeCount,
		&s.StallPaused, &lastTool, &lastActivityAt, &s.CreatedAt, &s.UpdatedAt,
		&terminatedAt, &restartOf,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	s.Prompt = fromNullString(prompt)
	s.ChannelID = fromNullString(channelID)
	s.ThreadTS = fromNullString(threadTS)
	s.LastTool = fromNullString(lastTool)
	s.RestartOf = fromNullString(restartOf)
	s.LastActivityAt = fromNullTime(lastActivityAt)
	s.TerminatedAt = fromNullTime(terminatedAt)

	steps, err := unmarshalProgress(progress)
	if err != nil {
		return nil, err
	}
	s.ProgressSnapshot = steps

	return &s, nil
}

const sessionColumns = `
	id, owner_user_id, workspace_root, status, prompt, mode, protocol_mode,
	channel_id, thread_ts, connectivity_status, progress_snapshot, nudge_count,
	stall_paused, last_tool, last_activity_at, created_at, updated_at,
	terminated_at, restart_of`

func (r *sessionRepo) Get(ctx context.Context, id string) (*store.Session, error) {
	row := r.conn.QueryRowContext(ctx, "SELECT"+sessionColumns+" FROM sessions WHERE id = ?", id)
	return r.scanRow(row)
}

func (r *sessionRepo) Update(ctx context.Context, s *store.Session) error {
	progress, err := marshalProgress(s.ProgressSnapshot)
	if err != nil {
		return err
	}

	return execAffectingOneRow(ctx, r.conn, `
		UPDATE sessions SET
			owner_user_id=?, workspace_root=?, status=?, prompt=?, mode=?, protocol_mode=?,
			channel_id=?, thread_ts=?, connectivity_status=?, progress_snapshot=?, nudge_count=?,
			stall_paused=?, last_tool=?, last_activity_at=?, updated_at=?,
			terminated_at=?, restart_of=?
		WHERE id=?`,
		s.OwnerUserID, s.WorkspaceRoot, s.Status, nullString(s.Prompt), s.Mode, s.ProtocolMode,
		nullString(s.ChannelID), nullString(s.ThreadTS), s.ConnectivityStatus, progress, s.NudgeCount,
		s.StallPaused, nullString(s.LastTool), nullTime(s.LastActivityAt), s.UpdatedAt,
		nullTime(s.TerminatedAt), nullString(s.RestartOf), s.ID,
	)
}

func (r *sessionRepo) Delete(ctx context.Context, id string) error {
	return execAffectingOneRow(ctx, r.conn, "DELETE FROM sessions WHERE id = ?", id)
}

func (r *sessionRepo) queryList(ctx context.Context, query string, args ...any) ([]*store.Session, error) {
	rows, err := r.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*store.Session
	for rows.Next() {
		var s store.Session
		var prompt, channelID, threadTS, lastTool, restartOf sql.NullString
		var progress sql.NullString
		var lastActivityAt, terminatedAt sql.NullTime

		if err := rows.Scan(
			&s.ID, &s.OwnerUserID, &s.WorkspaceRoot, &s.Status, &prompt, &s.Mode, &s.ProtocolMode,
			&channelID, &threadTS, &s.ConnectivityStatus, &progress, &s.NudgeCount,
			&s.StallPaused, &lastTool, &lastActivityAt, &s.CreatedAt, &s.UpdatedAt,
			&terminatedAt, &restartOf,
		); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}

		s.Prompt = fromNullString(prompt)
		s.ChannelID = fromNullString(channelID)
		s.ThreadTS = fromNullString(threadTS)
		s.LastTool = fromNullString(lastTool)
		s.RestartOf = fromNullString(restartOf)
		s.LastActivityAt = fromNullTime(lastActivityAt)
		s.TerminatedAt = fromNullTime(terminatedAt)

		steps, err := unmarshalProgress(progress)
		if err != nil {
			return nil, err
		}
		s.ProgressSnapshot = steps

		out = append(out, &s)
	}
	return out, rows.Err()
}

func (r *sessionRepo) ListByStatus(ctx context.Context, status store.SessionStatus) ([]*store.Session, error) {
	return r.queryList(ctx, "SELECT"+sessionColumns+" FROM sessions WHERE status = ? ORDER BY created_at", status)
}

func (r *sessionRepo) ListActive(ctx context.Context) ([]*store.Session, error) {
	return r.ListByStatus(ctx, store.SessionActive)
}

func (r *sessionRepo) ListTerminatedBefore(ctx context.Context, cutoff time.Time) ([]*store.Session, error) {
	return r.queryList(ctx,
		"SELECT"+sessionColumns+" FROM sessions WHERE status = ? AND terminated_at < ? ORDER BY terminated_at",
		store.SessionTerminated, cutoff)
}

func (r *sessionRepo) CountActive(ctx context.Context) (int, error) {
	var n int
	err := r.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions WHERE status = ?", store.SessionActive).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active sessions: %w", err)
	}
	return n, nil
}
