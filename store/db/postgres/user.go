package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/subpilot/subpilot/store"
)

func (d *DB) CreateUser(ctx context.Context, create *store.User) (*store.User, error) {
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}

	stmt := `INSERT INTO "user" (email, display_name, access_token_hash, created_ts)
		VALUES (` + placeholders(4) + `)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.Email,
		create.DisplayName,
		create.AccessTokenHash,
		create.CreatedTs,
	).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return create, nil
}

func (d *DB) GetUser(ctx context.Context, find *store.FindUser) (*store.User, error) {
	where, args := []string{"TRUE"}, []any{}
	if find.ID != nil {
		where, args = append(where, fmt.Sprintf("id = %s", placeholder(len(args)+1))), append(args, *find.ID)
	}
	if find.Email != nil {
		where, args = append(where, fmt.Sprintf("email = %s", placeholder(len(args)+1))), append(args, *find.Email)
	}

	query := `SELECT id, email, display_name, access_token_hash, created_ts
		FROM "user" WHERE ` + strings.Join(where, " AND ")

	user := &store.User{}
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.AccessTokenHash,
		&user.CreatedTs,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}
