package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"overseer/internal/store"
)

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func fromNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time
	return &v
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func fromNullInt(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

func marshalProgress(steps []store.ProgressStep) (sql.NullString, error) {
	if steps == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(steps)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal progress snapshot: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalProgress(ns sql.NullString) ([]store.ProgressStep, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var steps []store.ProgressStep
	if err := json.Unmarshal([]byte(ns.String), &steps); err != nil {
		return nil, fmt.Errorf("unmarshal progress snapshot: %w", err)
	}
	return steps, nil
}

func marshalFileHashes(hashes map[string]string) (string, error) {
	if hashes == nil {
		hashes = map[string]string{}
	}
	data, err := json.Marshal(hashes)
	if err != nil {
		return "", fmt.Errorf("marshal file hashes: %w", err)
	}
	return string(data), nil
}

func unmarshalFileHashes(raw string) (map[string]string, error) {
	hashes := map[string]string{}
	if raw == "" {
		return hashes, nil
	}
	if err := json.Unmarshal([]byte(raw), &hashes); err != nil {
		return nil, fmt.Errorf("unmarshal file hashes: %w", err)
	}
	return hashes, nil
}
