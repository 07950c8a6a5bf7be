package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/subpilot/subpilot/store"
)

func (d *DB) CreateFeedback(ctx context.Context, create *store.Feedback) (*store.Feedback, error) {
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}

	stmt := `INSERT INTO feedback (user_id, subscriber_id, feedback_type, rating, comment, created_ts)
		VALUES (` + placeholders(6) + `)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.UserID,
		create.SubscriberID,
		create.FeedbackType,
		create.Rating,
		create.Comment,
		create.CreatedTs,
	).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create feedback: %w", err)
	}

	return create, nil
}

func (d *DB) ListFeedback(ctx context.Context, find *store.FindFeedback) ([]*store.Feedback, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.UserID != nil {
		where, args = append(where, "user_id = ?"), append(args, *find.UserID)
	}
	if find.SubscriberID != nil {
		where, args = append(where, "subscriber_id = ?"), append(args, *find.SubscriberID)
	}
	if find.FeedbackType != nil {
		where, args = append(where, "feedback_type = ?"), append(args, *find.FeedbackType)
	}

	query := `SELECT id, user_id, subscriber_id, feedback_type, rating, comment, created_ts
		FROM feedback WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_ts DESC, id DESC`
	if find.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Feedback, 0)
	for rows.Next() {
		feedback := &store.Feedback{}
		if err := rows.Scan(
			&feedback.ID,
			&feedback.UserID,
			&feedback.SubscriberID,
			&feedback.FeedbackType,
			&feedback.Rating,
			&feedback.Comment,
			&feedback.CreatedTs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		list = append(list, feedback)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate feedback: %w", err)
	}

	return list, nil
}
