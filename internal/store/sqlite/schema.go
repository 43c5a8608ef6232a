package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
)

// CurrentSchemaVersion is the schema version this binary expects. Unlike the
// teacher's persistence package, this store does not migrate: a mismatch is
// a hard failure at startup (spec.md §4.1 — "reject-and-exit on mismatch, no
// automatic migration").
const CurrentSchemaVersion = 1

// checkOrCreateSchema creates the schema on a fresh database, or validates
// the version on an existing one. It never alters an existing schema.
func checkOrCreateSchema(db *sql.DB) error {
	version, err := readSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if version == 0 {
		return createSchema(db)
	}

	if version != CurrentSchemaVersion {
		return fmt.Errorf("schema version mismatch: database has version %d, binary expects %d (no automatic migration)", version, CurrentSchemaVersion)
	}

	return nil
}

func readSchemaVersion(db *sql.DB) (int, error) {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	)`)
	if err != nil {
		return 0, fmt.Errorf("create schema_version table: %w", err)
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("scan schema version: %w", err)
	}
	return version, nil
}

//nolint:maintidx // table DDL is inherently long; splitting obscures the schema
func createSchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("pragma %s: %w", pragma, err)
		}
	}

	tables := []string{
		`CREATE TABLE sessions (
			id TEXT PRIMARY KEY,
			owner_user_id TEXT NOT NULL,
			workspace_root TEXT NOT NULL,
			status TEXT NOT NULL CHECK (status IN ('created','active','paused','terminated','interrupted')),
			prompt TEXT,
			mode TEXT NOT NULL CHECK (mode IN ('remote','local','hybrid')),
			protocol_mode TEXT NOT NULL CHECK (protocol_mode IN ('pull','push')),
			channel_id TEXT,
			thread_ts TEXT,
			connectivity_status TEXT NOT NULL CHECK (connectivity_status IN ('online','offline','stalled')),
			progress_snapshot TEXT,
			nudge_count INTEGER NOT NULL DEFAULT 0,
			stall_paused INTEGER NOT NULL DEFAULT 0 CHECK (stall_paused IN (0,1)),
			last_tool TEXT,
			last_activity_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			terminated_at DATETIME,
			restart_of TEXT REFERENCES sessions(id)
		)`,

		`CREATE TABLE approval_requests (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			description TEXT,
			diff_content TEXT NOT NULL,
			file_path TEXT NOT NULL,
			risk_level TEXT NOT NULL CHECK (risk_level IN ('low','high','critical')),
			status TEXT NOT NULL CHECK (status IN ('pending','approved','rejected','expired','consumed','interrupted')),
			original_hash TEXT NOT NULL,
			chat_ts TEXT,
			created_at DATETIME NOT NULL,
			consumed_at DATETIME
		)`,

		`CREATE TABLE continuation_prompts (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			prompt_text TEXT NOT NULL,
			prompt_type TEXT NOT NULL CHECK (prompt_type IN ('continuation','clarification','error_recovery','resource_warning')),
			elapsed_seconds INTEGER,
			actions_taken TEXT,
			decision TEXT CHECK (decision IS NULL OR decision IN ('continue','refine','stop')),
			instruction TEXT,
			created_at DATETIME NOT NULL,
			resolved_at DATETIME
		)`,

		`CREATE TABLE stall_alerts (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			last_tool TEXT,
			last_activity_at DATETIME NOT NULL,
			idle_seconds INTEGER NOT NULL,
			nudge_count INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL CHECK (status IN ('pending','nudged','self_recovered','escalated','dismissed')),
			progress_snapshot TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		`CREATE TABLE checkpoints (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			label TEXT,
			session_state TEXT NOT NULL,
			file_hashes TEXT NOT NULL,
			workspace_root TEXT NOT NULL,
			progress_snapshot TEXT,
			created_at DATETIME NOT NULL
		)`,

		`CREATE TABLE steering_messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			channel_id TEXT,
			message TEXT NOT NULL,
			source TEXT NOT NULL CHECK (source IN ('slack','ipc')),
			consumed INTEGER NOT NULL DEFAULT 0 CHECK (consumed IN (0,1)),
			created_at DATETIME NOT NULL
		)`,

		`CREATE TABLE task_inbox_items (
			id TEXT PRIMARY KEY,
			channel_id TEXT,
			message TEXT NOT NULL,
			source TEXT NOT NULL CHECK (source IN ('slack','ipc')),
			consumed INTEGER NOT NULL DEFAULT 0 CHECK (consumed IN (0,1)),
			created_at DATETIME NOT NULL
		)`,
	}

	for _, ddl := range tables {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	indices := []string{
		"CREATE INDEX idx_sessions_status ON sessions(status)",
		"CREATE INDEX idx_sessions_terminated_at ON sessions(terminated_at)",
		"CREATE INDEX idx_approvals_session ON approval_requests(session_id)",
		"CREATE INDEX idx_approvals_status ON approval_requests(session_id, status)",
		"CREATE INDEX idx_prompts_session ON continuation_prompts(session_id)",
		"CREATE INDEX idx_stall_alerts_session ON stall_alerts(session_id)",
		"CREATE INDEX idx_stall_alerts_status ON stall_alerts(session_id, status)",
		"CREATE INDEX idx_checkpoints_session ON checkpoints(session_id, created_at)",
		"CREATE INDEX idx_steering_session ON steering_messages(session_id, consumed, created_at)",
		"CREATE INDEX idx_inbox_channel ON task_inbox_items(channel_id, consumed, created_at)",
	}
	for _, idx := range indices {
		if _, err := db.Exec(idx); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}

	if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", CurrentSchemaVersion); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}

	return nil
}
