package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/subpilot/subpilot/store"
)

func (d *DB) UpsertAgentConfig(ctx context.Context, upsert *store.AgentConfig) (*store.AgentConfig, error) {
	now := time.Now().Unix()
	if upsert.CreatedTs == 0 {
		upsert.CreatedTs = now
	}
	upsert.UpdatedTs = now

	strategyJSON, err := json.Marshal(upsert.Strategy)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal strategy: %w", err)
	}
	rulesJSON, err := json.Marshal(upsert.Rules)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rules: %w", err)
	}

	stmt := `INSERT INTO agent_config (
			user_id, agent_type, active, confidence_policy, auto_approve_threshold,
			auto_approve_guard, strategy, rules, max_actions_per_day,
			max_emails_per_subscriber_week, max_offers_per_subscriber_year,
			send_hour_start, send_hour_end, timezone, exclude_weekends,
			created_ts, updated_ts
		)
		VALUES (` + placeholders(17) + `)
		ON CONFLICT(user_id, agent_type) DO UPDATE SET
			active = excluded.active,
			confidence_policy = excluded.confidence_policy,
			auto_approve_threshold = excluded.auto_approve_threshold,
			auto_approve_guard = excluded.auto_approve_guard,
			strategy = excluded.strategy,
			rules = excluded.rules,
			max_actions_per_day = excluded.max_actions_per_day,
			max_emails_per_subscriber_week = excluded.max_emails_per_subscriber_week,
			max_offers_per_subscriber_year = excluded.max_offers_per_subscriber_year,
			send_hour_start = excluded.send_hour_start,
			send_hour_end = excluded.send_hour_end,
			timezone = excluded.timezone,
			exclude_weekends = excluded.exclude_weekends,
			updated_ts = excluded.updated_ts
		RETURNING id, created_ts`
	if err := d.db.QueryRowContext(ctx, stmt,
		upsert.UserID,
		string(upsert.AgentType),
		boolToInt(upsert.Active),
		string(upsert.ConfidencePolicy),
		upsert.AutoApproveThreshold,
		upsert.AutoApproveGuard,
		string(strategyJSON),
		string(rulesJSON),
		upsert.MaxActionsPerDay,
		upsert.MaxEmailsPerSubscriberWeek,
		upsert.MaxOffersPerSubscriberYear,
		upsert.SendHourStart,
		upsert.SendHourEnd,
		upsert.Timezone,
		boolToInt(upsert.ExcludeWeekends),
		upsert.CreatedTs,
		upsert.UpdatedTs,
	).Scan(&upsert.ID, &upsert.CreatedTs); err != nil {
		return nil, fmt.Errorf("failed to upsert agent_config: %w", err)
	}

	return upsert, nil
}

func (d *DB) GetAgentConfig(ctx context.Context, find *store.FindAgentConfig) (*store.AgentConfig, error) {
	list, err := d.ListAgentConfigs(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, store.ErrNotFound
	}
	return list[0], nil
}

func (d *DB) ListAgentConfigs(ctx context.Context, find *store.FindAgentConfig) ([]*store.AgentConfig, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.UserID != nil {
		where, args = append(where, "user_id = ?"), append(args, *find.UserID)
	}
	if find.AgentType != nil {
		where, args = append(where, "agent_type = ?"), append(args, string(*find.AgentType))
	}

	query := `SELECT id, user_id, agent_type, active, confidence_policy,
			auto_approve_threshold, auto_approve_guard, strategy, rules,
			max_actions_per_day, max_emails_per_subscriber_week,
			max_offers_per_subscriber_year, send_hour_start, send_hour_end,
			timezone, exclude_weekends, created_ts, updated_ts
		FROM agent_config WHERE ` + strings.Join(where, " AND ") + ` ORDER BY id`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list agent_configs: %w", err)
	}
	defer rows.Close()

	list := make([]*store.AgentConfig, 0)
	for rows.Next() {
		config, err := scanAgentConfig(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, config)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate agent_configs: %w", err)
	}

	return list, nil
}

func scanAgentConfig(rows *sql.Rows) (*store.AgentConfig, error) {
	config := &store.AgentConfig{}
	var active, excludeWeekends int
	var agentType, policy, strategyJSON, rulesJSON string
	if err := rows.Scan(
		&config.ID,
		&config.UserID,
		&agentType,
		&active,
		&policy,
		&config.AutoApproveThreshold,
		&config.AutoApproveGuard,
		&strategyJSON,
		&rulesJSON,
		&config.MaxActionsPerDay,
		&config.MaxEmailsPerSubscriberWeek,
		&config.MaxOffersPerSubscriberYear,
		&config.SendHourStart,
		&config.SendHourEnd,
		&config.Timezone,
		&excludeWeekends,
		&config.CreatedTs,
		&config.UpdatedTs,
	); err != nil {
		return nil, fmt.Errorf("failed to scan agent_config: %w", err)
	}

	config.AgentType = store.AgentType(agentType)
	config.ConfidencePolicy = store.ConfidencePolicy(policy)
	config.Active = active != 0
	config.ExcludeWeekends = excludeWeekends != 0
	if err := json.Unmarshal([]byte(strategyJSON), &config.Strategy); err != nil {
		return nil, fmt.Errorf("failed to unmarshal strategy: %w", err)
	}
	if err := json.Unmarshal([]byte(rulesJSON), &config.Rules); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rules: %w", err)
	}
	return config, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
