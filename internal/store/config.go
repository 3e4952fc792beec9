package store

import (
	"context"
	"database/sql"
	"errors"
)

// GetConfig reads a single key from the config table, returning
// ("", false, nil) if unset.
func (s *Store) GetConfig(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapSQLErr("get config", err)
	}
	return value, true, nil
}

// SetConfig upserts a single key.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return wrapSQLErr("set config", err)
	}
	return nil
}

// AllConfig returns the full config table as a map, for init/export.
func (s *Store) AllConfig(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM config`)
	if err != nil {
		return nil, wrapSQLErr("list config", err)
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, wrapSQLErr("scan config row", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}
