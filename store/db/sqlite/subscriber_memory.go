package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/subpilot/subpilot/store"
)

func (d *DB) CreateSubscriberMemory(ctx context.Context, create *store.SubscriberMemory) (*store.SubscriberMemory, error) {
	now := time.Now().Unix()
	if create.CreatedTs == 0 {
		create.CreatedTs = now
	}
	if create.UpdatedTs == 0 {
		create.UpdatedTs = now
	}

	stmt := `INSERT INTO subscriber_memory (user_id, subscriber_id, memory_type, key, content, created_ts, updated_ts)
		VALUES (` + placeholders(7) + `)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.UserID,
		create.SubscriberID,
		string(create.MemoryType),
		create.Key,
		create.Content,
		create.CreatedTs,
		create.UpdatedTs,
	).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create subscriber_memory: %w", err)
	}

	return create, nil
}

// UpsertSubscriberPreference updates the preference row matching
// (user, subscriber, key) or inserts it. Preferences have no unique index
// (facts and interactions share the table), so the upsert is a manual
// update-then-insert inside one transaction.
func (d *DB) UpsertSubscriberPreference(ctx context.Context, upsert *store.SubscriberMemory) (*store.SubscriberMemory, error) {
	now := time.Now().Unix()
	upsert.MemoryType = store.MemoryTypePreference
	upsert.UpdatedTs = now

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	var createdTs int64
	err = tx.QueryRowContext(ctx,
		`SELECT id, created_ts FROM subscriber_memory
		WHERE user_id = ? AND subscriber_id = ? AND memory_type = ? AND key = ?`,
		upsert.UserID, upsert.SubscriberID, string(store.MemoryTypePreference), upsert.Key,
	).Scan(&id, &createdTs)
	switch {
	case err == sql.ErrNoRows:
		if upsert.CreatedTs == 0 {
			upsert.CreatedTs = now
		}
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO subscriber_memory (user_id, subscriber_id, memory_type, key, content, created_ts, updated_ts)
			VALUES (`+placeholders(7)+`)
			RETURNING id`,
			upsert.UserID,
			upsert.SubscriberID,
			string(upsert.MemoryType),
			upsert.Key,
			upsert.Content,
			upsert.CreatedTs,
			upsert.UpdatedTs,
		).Scan(&upsert.ID); err != nil {
			return nil, fmt.Errorf("failed to insert preference: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to find preference: %w", err)
	default:
		if _, err := tx.ExecContext(ctx,
			`UPDATE subscriber_memory SET content = ?, updated_ts = ? WHERE id = ?`,
			upsert.Content, upsert.UpdatedTs, id,
		); err != nil {
			return nil, fmt.Errorf("failed to update preference: %w", err)
		}
		upsert.ID = id
		upsert.CreatedTs = createdTs
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit preference: %w", err)
	}

	return upsert, nil
}

func (d *DB) ListSubscriberMemories(ctx context.Context, find *store.FindSubscriberMemory) ([]*store.SubscriberMemory, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.UserID != nil {
		where, args = append(where, "user_id = ?"), append(args, *find.UserID)
	}
	if find.SubscriberID != nil {
		where, args = append(where, "subscriber_id = ?"), append(args, *find.SubscriberID)
	}
	if find.MemoryType != nil {
		where, args = append(where, "memory_type = ?"), append(args, string(*find.MemoryType))
	}

	query := `SELECT id, user_id, subscriber_id, memory_type, key, content, created_ts, updated_ts
		FROM subscriber_memory WHERE ` + strings.Join(where, " AND ") + ` ORDER BY updated_ts DESC, id DESC`
	if find.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", find.Limit)
		if find.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", find.Offset)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriber_memories: %w", err)
	}
	defer rows.Close()

	list := make([]*store.SubscriberMemory, 0)
	for rows.Next() {
		memory := &store.SubscriberMemory{}
		var memoryType string
		if err := rows.Scan(
			&memory.ID,
			&memory.UserID,
			&memory.SubscriberID,
			&memoryType,
			&memory.Key,
			&memory.Content,
			&memory.CreatedTs,
			&memory.UpdatedTs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan subscriber_memory: %w", err)
		}
		memory.MemoryType = store.MemoryType(memoryType)
		list = append(list, memory)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subscriber_memories: %w", err)
	}

	return list, nil
}
