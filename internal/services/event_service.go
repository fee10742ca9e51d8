package services

import (
	"context"
	"time"

	"github.com/isdelr/chirper-be/internal/apperror"
	"github.com/isdelr/chirper-be/internal/models"
	"github.com/isdelr/chirper-be/internal/store"
	"github.com/isdelr/chirper-be/internal/websocket"
	"github.com/rs/zerolog/log"
)

const (
	defaultEventLimit = 20
	maxEventLimit     = 100
	eventWriteTimeout = 5 * time.Second
)

// EventServiceProvider defines the interface for event services.
type EventServiceProvider interface {
	Record(ctx context.Context, event models.Event)
	GetRecentEvents(ctx context.Context, limit int) ([]models.Event, error)
}

// Broadcaster fans messages out to live feed clients.
type Broadcaster interface {
	Broadcast(msg websocket.Message)
	BroadcastTo(userID string, msg websocket.Message)
}

// EventRecorder counts recorded events.
type EventRecorder interface {
	RecordEvent(eventType string)
}

// EventService persists activity events and pushes them to the live feed.
type EventService struct {
	store   store.EventStore
	hub     Broadcaster
	metrics EventRecorder
}

// NewEventService creates a new EventService.
func NewEventService(store store.EventStore, hub Broadcaster, metrics EventRecorder) *EventService {
	return &EventService{store: store, hub: hub, metrics: metrics}
}

// Record logs the event and broadcasts it. Failures are logged and never
// surface to the caller, whose mutation has already been committed.
func (s *EventService) Record(ctx context.Context, event models.Event) {
	// The request context may be cancelled as soon as the response is written.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventWriteTimeout)
	defer cancel()

	if err := s.store.CreateEvent(writeCtx, &event); err != nil {
		log.Error().Err(err).Str("type", event.Type).Msg("Failed to create event")
		return
	}
	s.metrics.RecordEvent(event.Type)

	s.hub.Broadcast(websocket.Message{Action: event.Type, Payload: event})
	if event.UserID != nil && *event.UserID != event.ActorID {
		s.hub.BroadcastTo(*event.UserID, websocket.Message{Action: websocket.ActionNotification, Payload: event})
	}
}

// GetRecentEvents retrieves the most recent events, newest first.
func (s *EventService) GetRecentEvents(ctx context.Context, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = defaultEventLimit
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	events, err := s.store.ListRecentEvents(ctx, limit)
	if err != nil {
		return nil, apperror.NewInternal("Failed to list events", err)
	}
	if events == nil {
		events = []models.Event{}
	}
	return events, nil
}

func stringPtr(s string) *string {
	return &s
}
