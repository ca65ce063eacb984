package channel

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Counts is the subscription side of a channel profile as seen by one viewer.
type Counts struct {
	Subscribers  int64
	SubscribedTo int64
	IsSubscribed bool
}

type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Counts aggregates the channel's subscribers, the channels it follows and
// whether viewerID follows it. An empty viewerID is never subscribed.
func (r *Repository) Counts(ctx context.Context, channelID, viewerID string) (Counts, error) {
	var viewer any
	if viewerID != "" {
		viewer = viewerID
	}

	var counts Counts
	err := r.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM subscriptions WHERE channel_id = $1),
			(SELECT COUNT(*) FROM subscriptions WHERE subscriber_id = $1),
			EXISTS (SELECT 1 FROM subscriptions WHERE channel_id = $1 AND subscriber_id = $2)
	`, channelID, viewer).Scan(&counts.Subscribers, &counts.SubscribedTo, &counts.IsSubscribed)
	if err != nil {
		return Counts{}, fmt.Errorf("query channel counts: %w", err)
	}
	return counts, nil
}

// Toggle removes the subscription if it exists and creates it otherwise. It
// reports whether the subscriber follows the channel afterwards.
func (r *Repository) Toggle(ctx context.Context, subscriberID, channelID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM subscriptions
		WHERE subscriber_id = $1 AND channel_id = $2
	`, subscriberID, channelID)
	if err != nil {
		return false, fmt.Errorf("delete subscription: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete subscription rows affected: %w", err)
	}
	if affected > 0 {
		return false, nil
	}

	id, err := uuid.NewV7()
	if err != nil {
		return false, fmt.Errorf("generate uuid v7: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, subscriber_id, channel_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (subscriber_id, channel_id) DO NOTHING
	`, id.String(), subscriberID, channelID, r.now().UTC())
	if err != nil {
		return false, fmt.Errorf("insert subscription: %w", err)
	}
	return true, nil
}
