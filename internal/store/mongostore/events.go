package mongostore

import (
	"context"
	"fmt"
	"time"

	"github.com/isdelr/chirper-be/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type eventDoc struct {
	ID        primitive.ObjectID `bson:"_id"`
	Type      string             `bson:"type"`
	ActorID   string             `bson:"actorId,omitempty"`
	TweetID   *string            `bson:"tweetId,omitempty"`
	UserID    *string            `bson:"userId,omitempty"`
	Message   string             `bson:"message"`
	CreatedAt time.Time          `bson:"createdAt"`
}

func (s *Store) CreateEvent(ctx context.Context, event *models.Event) error {
	doc := eventDoc{
		ID:        primitive.NewObjectID(),
		Type:      event.Type,
		ActorID:   event.ActorID,
		TweetID:   event.TweetID,
		UserID:    event.UserID,
		Message:   event.Message,
		CreatedAt: event.CreatedAt,
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now()
	}
	if _, err := s.events.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}
	event.ID = doc.ID.Hex()
	event.CreatedAt = doc.CreatedAt
	return nil
}

func (s *Store) ListRecentEvents(ctx context.Context, limit int) ([]models.Event, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := s.events.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	var docs []eventDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}

	events := make([]models.Event, 0, len(docs))
	for _, d := range docs {
		events = append(events, models.Event{
			ID:        d.ID.Hex(),
			Type:      d.Type,
			ActorID:   d.ActorID,
			TweetID:   d.TweetID,
			UserID:    d.UserID,
			Message:   d.Message,
			CreatedAt: d.CreatedAt,
		})
	}
	return events, nil
}
