package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/subpilot/subpilot/store"
)

const agentActionFields = `id, uid, user_id, subscriber_id, agent_type, trigger_event,
	action_type, description, subject, body, taken, confidence, status,
	created_ts, approved_ts, rejected_ts, executed_ts, expired_ts,
	approver_id, reject_reason, failure_reason, episode_uid`

func (d *DB) CreatePendingAgentAction(ctx context.Context, create *store.AgentAction, limits *store.ActionLimits) (*store.AgentAction, error) {
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	create.Status = store.ActionStatusPendingApproval

	takenJSON, err := json.Marshal(create.Taken)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal taken: %w", err)
	}

	// The limit counts and the insert run in one transaction so that two
	// concurrent events cannot both pass the check. The partial unique index
	// on (subscriber_id, trigger_event) enforces the pending dedup.
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if limits != nil {
		if err := d.checkLimitsTx(ctx, tx, create, limits); err != nil {
			return nil, err
		}
	}

	stmt := `INSERT INTO agent_action (
			uid, user_id, subscriber_id, agent_type, trigger_event, action_type,
			description, subject, body, taken, confidence, status, created_ts,
			episode_uid
		)
		VALUES (` + placeholders(14) + `)
		RETURNING id`
	if err := tx.QueryRowContext(ctx, stmt,
		create.UID,
		create.UserID,
		create.SubscriberID,
		string(create.AgentType),
		create.Trigger,
		create.ActionType,
		create.Description,
		create.Subject,
		create.Body,
		string(takenJSON),
		create.Confidence,
		string(create.Status),
		create.CreatedTs,
		create.EpisodeUID,
	).Scan(&create.ID); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrAlreadyPending
		}
		return nil, fmt.Errorf("failed to create agent_action: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit agent_action: %w", err)
	}

	return create, nil
}

func (d *DB) checkLimitsTx(ctx context.Context, tx *sql.Tx, create *store.AgentAction, limits *store.ActionLimits) error {
	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM agent_action WHERE user_id = $1 AND created_ts >= $2`,
		create.UserID, limits.DayStartTs,
	).Scan(&count); err != nil {
		return fmt.Errorf("failed to count daily actions: %w", err)
	}
	if count >= limits.MaxActionsPerDay {
		return &store.LimitExceededError{Limit: "daily_actions", Max: limits.MaxActionsPerDay, Count: count}
	}

	if contains(store.EmailActionTypes, create.ActionType) {
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM agent_action WHERE subscriber_id = $1 AND action_type = ANY($2) AND created_ts >= $3`,
			create.SubscriberID, pqStringArray(store.EmailActionTypes), limits.WeekStartTs,
		).Scan(&count); err != nil {
			return fmt.Errorf("failed to count weekly emails: %w", err)
		}
		if count >= limits.MaxEmailsPerSubscriberWeek {
			return &store.LimitExceededError{Limit: "weekly_subscriber_emails", Max: limits.MaxEmailsPerSubscriberWeek, Count: count}
		}
	}

	if contains(store.OfferActionTypes, create.ActionType) {
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM agent_action WHERE subscriber_id = $1 AND action_type = ANY($2) AND created_ts >= $3`,
			create.SubscriberID, pqStringArray(store.OfferActionTypes), limits.YearStartTs,
		).Scan(&count); err != nil {
			return fmt.Errorf("failed to count yearly offers: %w", err)
		}
		if count >= limits.MaxOffersPerSubscriberYear {
			return &store.LimitExceededError{Limit: "yearly_subscriber_offers", Max: limits.MaxOffersPerSubscriberYear, Count: count}
		}
	}

	return nil
}

func (d *DB) GetAgentAction(ctx context.Context, find *store.FindAgentAction) (*store.AgentAction, error) {
	list, err := d.ListAgentActions(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, store.ErrNotFound
	}
	return list[0], nil
}

func (d *DB) ListAgentActions(ctx context.Context, find *store.FindAgentAction) ([]*store.AgentAction, error) {
	where, args := []string{"TRUE"}, []any{}
	if find.ID != nil {
		where, args = append(where, fmt.Sprintf("id = %s", placeholder(len(args)+1))), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, fmt.Sprintf("uid = %s", placeholder(len(args)+1))), append(args, *find.UID)
	}
	if find.UserID != nil {
		where, args = append(where, fmt.Sprintf("user_id = %s", placeholder(len(args)+1))), append(args, *find.UserID)
	}
	if find.SubscriberID != nil {
		where, args = append(where, fmt.Sprintf("subscriber_id = %s", placeholder(len(args)+1))), append(args, *find.SubscriberID)
	}
	if find.AgentType != nil {
		where, args = append(where, fmt.Sprintf("agent_type = %s", placeholder(len(args)+1))), append(args, string(*find.AgentType))
	}
	if find.Trigger != nil {
		where, args = append(where, fmt.Sprintf("trigger_event = %s", placeholder(len(args)+1))), append(args, *find.Trigger)
	}
	if find.Status != nil {
		where, args = append(where, fmt.Sprintf("status = %s", placeholder(len(args)+1))), append(args, string(*find.Status))
	}
	if find.CreatedBefore != nil {
		where, args = append(where, fmt.Sprintf("created_ts < %s", placeholder(len(args)+1))), append(args, *find.CreatedBefore)
	}

	query := `SELECT ` + agentActionFields + `
		FROM agent_action WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_ts DESC, id DESC`
	if find.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", find.Limit)
		if find.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", find.Offset)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list agent_actions: %w", err)
	}
	defer rows.Close()

	list := make([]*store.AgentAction, 0)
	for rows.Next() {
		action, err := scanAgentAction(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, action)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate agent_actions: %w", err)
	}

	return list, nil
}

func (d *DB) UpdateAgentActionStatus(ctx context.Context, update *store.UpdateAgentActionStatus) (*store.AgentAction, error) {
	set, args := []string{}, []any{}
	set, args = append(set, fmt.Sprintf("status = %s", placeholder(len(args)+1))), append(args, string(update.Status))
	if update.ApprovedTs != nil {
		set, args = append(set, fmt.Sprintf("approved_ts = %s", placeholder(len(args)+1))), append(args, *update.ApprovedTs)
	}
	if update.RejectedTs != nil {
		set, args = append(set, fmt.Sprintf("rejected_ts = %s", placeholder(len(args)+1))), append(args, *update.RejectedTs)
	}
	if update.ExecutedTs != nil {
		set, args = append(set, fmt.Sprintf("executed_ts = %s", placeholder(len(args)+1))), append(args, *update.ExecutedTs)
	}
	if update.ExpiredTs != nil {
		set, args = append(set, fmt.Sprintf("expired_ts = %s", placeholder(len(args)+1))), append(args, *update.ExpiredTs)
	}
	if update.ApproverID != nil {
		set, args = append(set, fmt.Sprintf("approver_id = %s", placeholder(len(args)+1))), append(args, *update.ApproverID)
	}
	if update.RejectReason != nil {
		set, args = append(set, fmt.Sprintf("reject_reason = %s", placeholder(len(args)+1))), append(args, *update.RejectReason)
	}
	if update.FailureReason != nil {
		set, args = append(set, fmt.Sprintf("failure_reason = %s", placeholder(len(args)+1))), append(args, *update.FailureReason)
	}

	// Guarded transition: only applies when the action is still in the
	// expected state.
	stmt := fmt.Sprintf(`UPDATE agent_action SET %s WHERE id = %s AND status = %s`,
		strings.Join(set, ", "), placeholder(len(args)+1), placeholder(len(args)+2))
	args = append(args, update.ID, string(update.ExpectedStatus))

	result, err := d.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update agent_action status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		if _, err := d.GetAgentAction(ctx, &store.FindAgentAction{ID: &update.ID}); err != nil {
			return nil, err
		}
		return nil, store.ErrInvalidTransition
	}

	return d.GetAgentAction(ctx, &store.FindAgentAction{ID: &update.ID})
}

func (d *DB) UpdateAgentActionContent(ctx context.Context, update *store.UpdateAgentActionContent) (*store.AgentAction, error) {
	takenJSON, err := json.Marshal(update.Taken)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal taken: %w", err)
	}

	stmt := `UPDATE agent_action SET subject = $1, body = $2, description = $3, taken = $4 WHERE id = $5`
	result, err := d.db.ExecContext(ctx, stmt, update.Subject, update.Body, update.Description, string(takenJSON), update.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update agent_action content: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, store.ErrNotFound
	}

	return d.GetAgentAction(ctx, &store.FindAgentAction{ID: &update.ID})
}

func (d *DB) CountActionsCreatedSince(ctx context.Context, userID int32, sinceTs int64) (int, error) {
	var count int
	if err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM agent_action WHERE user_id = $1 AND created_ts >= $2`,
		userID, sinceTs,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count actions: %w", err)
	}
	return count, nil
}

func (d *DB) CountSubscriberActionsSince(ctx context.Context, subscriberID string, actionTypes []string, sinceTs int64) (int, error) {
	var count int
	if err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM agent_action WHERE subscriber_id = $1 AND action_type = ANY($2) AND created_ts >= $3`,
		subscriberID, pqStringArray(actionTypes), sinceTs,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count subscriber actions: %w", err)
	}
	return count, nil
}

func scanAgentAction(rows *sql.Rows) (*store.AgentAction, error) {
	action := &store.AgentAction{}
	var agentType, status, takenJSON string
	if err := rows.Scan(
		&action.ID,
		&action.UID,
		&action.UserID,
		&action.SubscriberID,
		&agentType,
		&action.Trigger,
		&action.ActionType,
		&action.Description,
		&action.Subject,
		&action.Body,
		&takenJSON,
		&action.Confidence,
		&status,
		&action.CreatedTs,
		&action.ApprovedTs,
		&action.RejectedTs,
		&action.ExecutedTs,
		&action.ExpiredTs,
		&action.ApproverID,
		&action.RejectReason,
		&action.FailureReason,
		&action.EpisodeUID,
	); err != nil {
		return nil, fmt.Errorf("failed to scan agent_action: %w", err)
	}

	action.AgentType = store.AgentType(agentType)
	action.Status = store.ActionStatus(status)
	if err := json.Unmarshal([]byte(takenJSON), &action.Taken); err != nil {
		return nil, fmt.Errorf("failed to unmarshal taken: %w", err)
	}
	return action, nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
