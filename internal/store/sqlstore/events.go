package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/isdelr/chirper-be/internal/models"
)

type eventRow struct {
	ID        string         `db:"id"`
	Type      string         `db:"type"`
	ActorID   string         `db:"actor_id"`
	TweetID   sql.NullString `db:"tweet_id"`
	UserID    sql.NullString `db:"user_id"`
	Message   string         `db:"message"`
	CreatedAt time.Time      `db:"created_at"`
}

func (s *Store) CreateEvent(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO events (id, type, actor_id, tweet_id, user_id, message, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		event.ID, event.Type, event.ActorID, nullString(event.TweetID), nullString(event.UserID), event.Message, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}
	return nil
}

// ListRecentEvents retrieves the most recent events, newest first.
func (s *Store) ListRecentEvents(ctx context.Context, limit int) ([]models.Event, error) {
	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`SELECT id, type, actor_id, tweet_id, user_id, message, created_at FROM events ORDER BY created_at DESC, id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	events := make([]models.Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, models.Event{
			ID:        r.ID,
			Type:      r.Type,
			ActorID:   r.ActorID,
			TweetID:   stringPtr(r.TweetID),
			UserID:    stringPtr(r.UserID),
			Message:   r.Message,
			CreatedAt: r.CreatedAt,
		})
	}
	return events, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
