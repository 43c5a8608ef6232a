// Package sqlite is the on-disk Store backend (spec.md §4.1), grounded on
// the teacher's pkg/persistence connection and schema idiom but reworked as
// an instance rather than a process-wide singleton, and without automatic
// migration.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go sqlite driver

	"overseer/internal/store"
	"overseer/pkg/logx"
)

// DB is an on-disk store.Store backend.
type DB struct {
	conn   *sql.DB
	logger *logx.Logger
}

var _ store.Store = (*DB)(nil)

// Open connects to the sqlite database at path, enabling WAL mode and a
// busy timeout, and checks (but never migrates) the schema.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000", path,
	))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// SQLite supports exactly one writer; serialize through one connection.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := checkOrCreateSchema(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("schema check: %w", err)
	}

	logger := logx.NewLogger("store.sqlite")
	logger.Info("database opened: %s", path)

	return &DB{conn: conn, logger: logger}, nil
}

func (d *DB) Close() error {
	if d.conn == nil {
		return nil
	}
	return d.conn.Close()
}

func (d *DB) Sessions() store.SessionRepo       { return &sessionRepo{conn: d.conn} }
func (d *DB) Approvals() store.ApprovalRepo     { return &approvalRepo{conn: d.conn} }
func (d *DB) Prompts() store.PromptRepo         { return &promptRepo{conn: d.conn} }
func (d *DB) StallAlerts() store.StallAlertRepo { return &stallAlertRepo{conn: d.conn} }
func (d *DB) Checkpoints() store.CheckpointRepo { return &checkpointRepo{conn: d.conn} }
func (d *DB) Steering() store.SteeringRepo      { return &steeringRepo{conn: d.conn} }
func (d *DB) Inbox() store.InboxRepo            { return &inboxRepo{conn: d.conn} }

// execAffectingOneRow is a small helper shared by the repo files: run a statement
// and translate "0 rows affected" into store.ErrNotFound, the way the
// teacher's DatabaseOperations wraps sql.Result checks.
func execAffectingOneRow(ctx context.Context, conn *sql.DB, query string, args ...any) error {
	res, err := conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
