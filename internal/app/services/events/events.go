// Package events provides the user-scoped event log and the rule/release
// lifecycle events that the notification fan-out consumes.
package events

import (
	"context"

	core "github.com/r3e-network/vinylwatch/internal/app/core/service"
	"github.com/r3e-network/vinylwatch/internal/app/domain/event"
	"github.com/r3e-network/vinylwatch/internal/app/storage"
	"github.com/r3e-network/vinylwatch/pkg/logger"
)

// Subscriber is notified, best-effort, after an event is durably recorded.
// The notification fan-out (§4.5.1) subscribes here instead of the event
// log depending on it directly.
type Subscriber func(ctx context.Context, e event.Event) error

// Service records lifecycle events and lists the log.
type Service struct {
	Events      storage.EventStore
	Subscribers []Subscriber
	Log         *logger.Logger
}

// New builds an events.Service.
func New(store storage.EventStore) *Service {
	return &Service{Events: store, Log: logger.NewDefault("events")}
}

// Subscribe registers sub to run after every successfully recorded event.
func (s *Service) Subscribe(sub Subscriber) {
	s.Subscribers = append(s.Subscribers, sub)
}

// Record appends an event of the given type, owned by userID, then notifies
// every subscriber. A subscriber failure is logged, never returned: the
// event is already durably recorded by the time subscribers run.
func (s *Service) Record(ctx context.Context, userID string, typ event.Type, opts ...Option) (event.Event, error) {
	e := event.Event{UserID: userID, Type: typ}
	for _, opt := range opts {
		opt(&e)
	}
	created, err := s.Events.CreateEvent(ctx, e)
	if err != nil {
		return event.Event{}, err
	}
	for _, sub := range s.Subscribers {
		if err := sub(ctx, created); err != nil {
			s.Log.WithError(err).WithField("event_type", string(created.Type)).Warn("event subscriber failed")
		}
	}
	return created, nil
}

// List returns the most recent events for userID, newest first. limit is
// clamped to [1, core.MaxListLimit], defaulting to core.DefaultListLimit.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]event.Event, error) {
	limit = core.ClampLimit(limit, core.DefaultListLimit, core.MaxListLimit)
	return s.Events.ListEvents(ctx, userID, limit)
}

// Get fetches a single event by id.
func (s *Service) Get(ctx context.Context, id string) (event.Event, error) {
	return s.Events.GetEvent(ctx, id)
}

// Option customizes a recorded event before it is persisted.
type Option func(*event.Event)

// WithRule attaches a rule id.
func WithRule(ruleID string) Option {
	return func(e *event.Event) { e.RuleID = &ruleID }
}

// WithWatchRelease attaches a watch-release id.
func WithWatchRelease(watchReleaseID string) Option {
	return func(e *event.Event) { e.WatchReleaseID = &watchReleaseID }
}

// WithListing attaches a listing id.
func WithListing(listingID string) Option {
	return func(e *event.Event) { e.ListingID = &listingID }
}

// WithPayload sets the event's opaque payload.
func WithPayload(payload map[string]any) Option {
	return func(e *event.Event) { e.Payload = payload }
}
