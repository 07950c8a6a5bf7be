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

func (d *DB) CreateEpisode(ctx context.Context, create *store.Episode) (*store.Episode, error) {
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}

	takenJSON, err := json.Marshal(create.Taken)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal taken: %w", err)
	}

	stmt := `INSERT INTO episode (
			uid, user_id, subscriber_id, agent_type, trigger_event, situation,
			taken, outcome, outcome_detail, created_ts
		)
		VALUES (` + placeholders(10) + `)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.UID,
		create.UserID,
		create.SubscriberID,
		string(create.AgentType),
		create.Trigger,
		create.SituationJSON,
		string(takenJSON),
		string(create.Outcome),
		create.OutcomeDetail,
		create.CreatedTs,
	).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create episode: %w", err)
	}

	return create, nil
}

func (d *DB) GetEpisode(ctx context.Context, find *store.FindEpisode) (*store.Episode, error) {
	list, err := d.ListEpisodes(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, store.ErrNotFound
	}
	return list[0], nil
}

func (d *DB) ListEpisodes(ctx context.Context, find *store.FindEpisode) ([]*store.Episode, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = ?"), append(args, *find.UID)
	}
	if find.UserID != nil {
		where, args = append(where, "user_id = ?"), append(args, *find.UserID)
	}
	if find.SubscriberID != nil {
		where, args = append(where, "subscriber_id = ?"), append(args, *find.SubscriberID)
	}
	if find.AgentType != nil {
		where, args = append(where, "agent_type = ?"), append(args, string(*find.AgentType))
	}
	if find.Trigger != nil {
		where, args = append(where, "trigger_event = ?"), append(args, *find.Trigger)
	}
	if find.Resolved != nil {
		if *find.Resolved {
			where = append(where, "outcome != ''")
		} else {
			where = append(where, "outcome = ''")
		}
	}

	query := `SELECT id, uid, user_id, subscriber_id, agent_type, trigger_event,
			situation, taken, outcome, outcome_detail, created_ts, resolved_ts
		FROM episode WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_ts DESC, id DESC`
	if find.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", find.Limit)
		if find.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", find.Offset)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list episodes: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Episode, 0)
	for rows.Next() {
		episode, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, episode)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate episodes: %w", err)
	}

	return list, nil
}

func (d *DB) ResolveEpisode(ctx context.Context, resolve *store.ResolveEpisode) (*store.Episode, error) {
	// Guarded on outcome still being empty so an episode resolves exactly once.
	stmt := `UPDATE episode SET outcome = ?, outcome_detail = ?, resolved_ts = ?
		WHERE uid = ? AND outcome = ''`
	result, err := d.db.ExecContext(ctx, stmt,
		string(resolve.Outcome),
		resolve.OutcomeDetail,
		resolve.ResolvedTs,
		resolve.UID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve episode: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		if _, err := d.GetEpisode(ctx, &store.FindEpisode{UID: &resolve.UID}); err != nil {
			return nil, err
		}
		return nil, store.ErrInvalidEpisodeState
	}

	return d.GetEpisode(ctx, &store.FindEpisode{UID: &resolve.UID})
}

func scanEpisode(rows *sql.Rows) (*store.Episode, error) {
	episode := &store.Episode{}
	var agentType, outcome, takenJSON string
	if err := rows.Scan(
		&episode.ID,
		&episode.UID,
		&episode.UserID,
		&episode.SubscriberID,
		&agentType,
		&episode.Trigger,
		&episode.SituationJSON,
		&takenJSON,
		&outcome,
		&episode.OutcomeDetail,
		&episode.CreatedTs,
		&episode.ResolvedTs,
	); err != nil {
		return nil, fmt.Errorf("failed to scan episode: %w", err)
	}

	episode.AgentType = store.AgentType(agentType)
	episode.Outcome = store.Outcome(outcome)
	if err := json.Unmarshal([]byte(takenJSON), &episode.Taken); err != nil {
		return nil, fmt.Errorf("failed to unmarshal taken: %w", err)
	}
	return episode, nil
}
