package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/subpilot/subpilot/store"
)

func (d *DB) UpsertBrandSettings(ctx context.Context, upsert *store.BrandSettings) (*store.BrandSettings, error) {
	upsert.UpdatedTs = time.Now().Unix()

	stmt := `INSERT INTO brand_settings (user_id, brand_name, tone, sender_name, sender_email, signature, updated_ts)
		VALUES (` + placeholders(7) + `)
		ON CONFLICT(user_id) DO UPDATE SET
			brand_name = excluded.brand_name,
			tone = excluded.tone,
			sender_name = excluded.sender_name,
			sender_email = excluded.sender_email,
			signature = excluded.signature,
			updated_ts = excluded.updated_ts
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt,
		upsert.UserID,
		upsert.BrandName,
		upsert.Tone,
		upsert.SenderName,
		upsert.SenderEmail,
		upsert.Signature,
		upsert.UpdatedTs,
	).Scan(&upsert.ID); err != nil {
		return nil, fmt.Errorf("failed to upsert brand_settings: %w", err)
	}

	return upsert, nil
}

func (d *DB) GetBrandSettings(ctx context.Context, userID int32) (*store.BrandSettings, error) {
	settings := &store.BrandSettings{}
	if err := d.db.QueryRowContext(ctx,
		`SELECT id, user_id, brand_name, tone, sender_name, sender_email, signature, updated_ts
		FROM brand_settings WHERE user_id = ?`,
		userID,
	).Scan(
		&settings.ID,
		&settings.UserID,
		&settings.BrandName,
		&settings.Tone,
		&settings.SenderName,
		&settings.SenderEmail,
		&settings.Signature,
		&settings.UpdatedTs,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get brand_settings: %w", err)
	}

	return settings, nil
}
