package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/subpilot/subpilot/store"
)

func (d *DB) ReplacePatterns(ctx context.Context, replace *store.ReplacePatterns) error {
	// Batch analysis recomputes from scratch; delete + insert in one
	// transaction keeps readers from seeing a partial pattern set.
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM pattern WHERE user_id = $1 AND agent_type = $2`,
		replace.UserID, string(replace.AgentType),
	); err != nil {
		return fmt.Errorf("failed to delete patterns: %w", err)
	}

	now := time.Now().Unix()
	for _, pattern := range replace.Patterns {
		if pattern.ComputedTs == 0 {
			pattern.ComputedTs = now
		}
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO pattern (user_id, agent_type, trigger_event, strategy, action_type,
				success_rate, sample_size, score, computed_ts)
			VALUES (`+placeholders(9)+`)
			RETURNING id`,
			replace.UserID,
			string(replace.AgentType),
			pattern.Trigger,
			pattern.Strategy,
			pattern.ActionType,
			pattern.SuccessRate,
			pattern.SampleSize,
			pattern.Score,
			pattern.ComputedTs,
		).Scan(&pattern.ID); err != nil {
			return fmt.Errorf("failed to insert pattern: %w", err)
		}
		pattern.UserID = replace.UserID
		pattern.AgentType = replace.AgentType
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit patterns: %w", err)
	}

	return nil
}

func (d *DB) ListPatterns(ctx context.Context, find *store.FindPattern) ([]*store.Pattern, error) {
	where, args := []string{"TRUE"}, []any{}
	if find.UserID != nil {
		where, args = append(where, fmt.Sprintf("user_id = %s", placeholder(len(args)+1))), append(args, *find.UserID)
	}
	if find.AgentType != nil {
		where, args = append(where, fmt.Sprintf("agent_type = %s", placeholder(len(args)+1))), append(args, string(*find.AgentType))
	}
	if find.Trigger != nil {
		where, args = append(where, fmt.Sprintf("trigger_event = %s", placeholder(len(args)+1))), append(args, *find.Trigger)
	}

	query := `SELECT id, user_id, agent_type, trigger_event, strategy, action_type,
			success_rate, sample_size, score, computed_ts
		FROM pattern WHERE ` + strings.Join(where, " AND ") + ` ORDER BY score DESC, sample_size DESC`
	if find.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list patterns: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Pattern, 0)
	for rows.Next() {
		pattern := &store.Pattern{}
		var agentType string
		if err := rows.Scan(
			&pattern.ID,
			&pattern.UserID,
			&agentType,
			&pattern.Trigger,
			&pattern.Strategy,
			&pattern.ActionType,
			&pattern.SuccessRate,
			&pattern.SampleSize,
			&pattern.Score,
			&pattern.ComputedTs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", err)
		}
		pattern.AgentType = store.AgentType(agentType)
		list = append(list, pattern)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate patterns: %w", err)
	}

	return list, nil
}
