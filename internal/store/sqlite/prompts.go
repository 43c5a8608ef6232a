package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"overseer/internal/store"
)

type promptRepo struct {
	conn *sql.DB
}

const promptColumns = `
	id, session_id, prompt_text, prompt_type, elapsed_seconds, actions_taken,
	decision, instruction, created_at, resolved_at`

func (r *promptRepo) Create(ctx context.Context, p *store.ContinuationPrompt) error {
	_, err := r.conn.ExecContext(ctx, `
		INSERT INTO continuation_prompts (`+promptColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.SessionID, p.PromptText, p.PromptType, nullInt(p.ElapsedSeconds), nullString(p.ActionsTaken),
		nullDecision(p.Decision), nullString(p.Instruction), p.CreatedAt, nullTime(p.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("insert continuation prompt: %w", err)
	}
	return nil
}

func nullDecision(d *store.PromptDecision) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*d), Valid: true}
}

func scanPrompt(scan func(dest ...any) error) (*store.ContinuationPrompt, error) {
	var p store.ContinuationPrompt
	var actionsTaken, decision, instruction sql.NullString
	var elapsed sql.NullInt64
	var resolvedAt sql.NullTime

	err := scan(&p.ID, &p.SessionID, &p.PromptText, &p.PromptType, &elapsed, &actionsTaken,
		&decision, &instruction, &p.CreatedAt, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan continuation prompt: %w", err)
	}

	p.ElapsedSeconds = fromNullInt(elapsed)
	p.ActionsTaken = fromNullString(actionsTaken)
	p.Instruction = fromNullString(instruction)
	p.ResolvedAt = fromNullTime(resolvedAt)
	if decision.Valid {
		d := store.PromptDecision(decision.String)
		p.Decision = &d
	}
	return &p, nil
}

func (r *promptRepo) Get(ctx context.Context, id string) (*store.ContinuationPrompt, error) {
	row := r.conn.QueryRowContext(ctx, "SELECT"+promptColumns+" FROM continuation_prompts WHERE id = ?", id)
	return scanPrompt(row.Scan)
}

func (r *promptRepo) Update(ctx context.Context, p *store.ContinuationPrompt) error {
	return execAffectingOneRow(ctx, r.conn, `
		UPDATE continuation_prompts SET
			prompt_text=?, prompt_type=?, elapsed_seconds=?, actions_taken=?,
			decision=?, instruction=?, resolved_at=?
		WHERE id=?`,
		p.PromptText, p.PromptType, nullInt(p.ElapsedSeconds), nullString(p.ActionsTaken),
		nullDecision(p.Decision), nullString(p.Instruction), nullTime(p.ResolvedAt), p.ID,
	)
}

func (r *promptRepo) ListBySession(ctx context.Context, sessionID string) ([]*store.ContinuationPrompt, error) {
	rows, err := r.conn.QueryContext(ctx, "SELECT"+promptColumns+" FROM continuation_prompts WHERE session_id = ? ORDER BY created_at", sessionID)
	if err != nil {
		return nil, fmt.Errorf("query continuation prompts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*store.ContinuationPrompt
	for rows.Next() {
		p, err := scanPrompt(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
