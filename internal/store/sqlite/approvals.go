package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"overseer/internal/store"
)

type approvalRepo struct {
	conn *sql.DB
}

const approvalColumns = `
	id, session_id, title, description, diff_content, file_path, risk_level,
	status, original_hash, chat_ts, created_at, consumed_at`

func (r *approvalRepo) Create(ctx context.Context, a *store.ApprovalRequest) error {
	_, err := r.conn.ExecContext(ctx, `
		INSERT INTO approval_requests (`+approvalColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.SessionID, a.Title, nullString(a.Description), a.DiffContent, a.FilePath, a.RiskLevel,
		a.Status, a.OriginalHash, nullString(a.ChatTS), a.CreatedAt, nullTime(a.ConsumedAt),
	)
	if err != nil {
		return fmt.Errorf("insert approval request: %w", err)
	}
	return nil
}

func scanApproval(scan func(dest ...any) error) (*store.ApprovalRequest, error) {
	var a store.ApprovalRequest
	var description, chatTS sql.NullString
	var consumedAt sql.NullTime

	err := scan(&a.ID, &a.SessionID, &a.Title, &description, &a.DiffContent, &a.FilePath, &a.RiskLevel,
		&a.Status, &a.OriginalHash, &chatTS, &a.CreatedAt, &consumedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan approval request: %w", err)
	}

	a.Description = fromNullString(description)
	a.ChatTS = fromNullString(chatTS)
	a.ConsumedAt = fromNullTime(consumedAt)
	return &a, nil
}

func (r *approvalRepo) Get(ctx context.Context, id string) (*store.ApprovalRequest, error) {
	row := r.conn.QueryRowContext(ctx, "SELECT"+approvalColumns+" FROM approval_requests WHERE id = ?", id)
	return scanApproval(row.Scan)
}

func (r *approvalRepo) Update(ctx context.Context, a *store.ApprovalRequest) error {
	return execAffectingOneRow(ctx, r.conn, `
		UPDATE approval_requests SET
			title=?, description=?, diff_content=?, file_path=?, risk_level=?,
			status=?, original_hash=?, chat_ts=?, consumed_at=?
		WHERE id=?`,
		a.Title, nullString(a.Description), a.DiffContent, a.FilePath, a.RiskLevel,
		a.Status, a.OriginalHash, nullString(a.ChatTS), nullTime(a.ConsumedAt), a.ID,
	)
}

func (r *approvalRepo) listWhere(ctx context.Context, where string, args ...any) ([]*store.ApprovalRequest, error) {
	rows, err := r.conn.QueryContext(ctx, "SELECT"+approvalColumns+" FROM approval_requests WHERE "+where+" ORDER BY created_at", args...)
	if err != nil {
		return nil, fmt.Errorf("query approval requests: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*store.ApprovalRequest
	for rows.Next() {
		a, err := scanApproval(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *approvalRepo) ListBySession(ctx context.Context, sessionID string) ([]*store.ApprovalRequest, error) {
	return r.listWhere(ctx, "session_id = ?", sessionID)
}

func (r *approvalRepo) ListPendingBySession(ctx context.Context, sessionID string) ([]*store.ApprovalRequest, error) {
	return r.listWhere(ctx, "session_id = ? AND status = ?", sessionID, store.ApprovalPending)
}
