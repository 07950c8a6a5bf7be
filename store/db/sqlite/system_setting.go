package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/subpilot/subpilot/store"
)

func (d *DB) UpsertSystemSetting(ctx context.Context, upsert *store.SystemSetting) (*store.SystemSetting, error) {
	stmt := `INSERT INTO system_setting (key, value)
		VALUES (` + placeholders(2) + `)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := d.db.ExecContext(ctx, stmt, upsert.Key, upsert.Value); err != nil {
		return nil, fmt.Errorf("failed to upsert system_setting: %w", err)
	}
	return upsert, nil
}

func (d *DB) GetSystemSetting(ctx context.Context, key string) (*store.SystemSetting, error) {
	setting := &store.SystemSetting{}
	if err := d.db.QueryRowContext(ctx,
		`SELECT key, value FROM system_setting WHERE key = ?`, key,
	).Scan(&setting.Key, &setting.Value); err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get system_setting: %w", err)
	}
	return setting, nil
}
