package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"overseer/internal/store"
)

type checkpointRepo struct {
	conn *sql.DB
}

const checkpointColumns = `
	id, session_id, label, session_state, file_hashes, workspace_root,
	progress_snapshot, created_at`

func (r *checkpointRepo) Create(ctx context.Context, c *store.Checkpoint) error {
	progress, err := marshalProgress(c.ProgressSnapshot)
	if err != nil {
		return err
	}
	hashes, err := marshalFileHashes(c.FileHashes)
	if err != nil {
		return err
	}

	_, err = r.conn.ExecContext(ctx, `
		INSERT INTO checkpoints (`+checkpointColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		c.ID, c.SessionID, nullString(c.Label), string(c.SessionState), hashes, c.WorkspaceRoot,
		progress, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	return nil
}

func scanCheckpoint(scan func(dest ...any) error) (*store.Checkpoint, error) {
	var c store.Checkpoint
	var label sql.NullString
	var sessionState, fileHashes string
	var progress sql.NullString

	err := scan(&c.ID, &c.SessionID, &label, &sessionState, &fileHashes, &c.WorkspaceRoot, &progress, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan checkpoint: %w", err)
	}

	c.Label = fromNullString(label)
	c.SessionState = []byte(sessionState)

	hashes, err := unmarshalFileHashes(fileHashes)
	if err != nil {
		return nil, err
	}
	c.FileHashes = hashes

	steps, err := unmarshalProgress(progress)
	if err != nil {
		return nil, err
	}
	c.ProgressSnapshot = steps

	return &c, nil
}

func (r *checkpointRepo) Get(ctx context.Context, id string) (*store.Checkpoint, error) {
	row := r.conn.QueryRowContext(ctx, "SELECT"+checkpointColumns+" FROM checkpoints WHERE id = ?", id)
	return scanCheckpoint(row.Scan)
}

func (r *checkpointRepo) ListBySession(ctx context.Context, sessionID string) ([]*store.Checkpoint, error) {
	rows, err := r.conn.QueryContext(ctx, "SELECT"+checkpointColumns+" FROM checkpoints WHERE session_id = ? ORDER BY created_at", sessionID)
	if err != nil {
		return nil, fmt.Errorf("query checkpoints: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*store.Checkpoint
	for rows.Next() {
		c, err := scanCheckpoint(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *checkpointRepo) LatestBySession(ctx context.Context, sessionID string) (*store.Checkpoint, error) {
	row := r.conn.QueryRowContext(ctx, "SELECT"+checkpointColumns+
		" FROM checkpoints WHERE session_id = ? ORDER BY created_at DESC LIMIT 1", sessionID)
	return scanCheckpoint(row.Scan)
}
