package ingest

import (
	"context"

	"github.com/r3e-network/vinylwatch/internal/app/domain/event"
	"github.com/r3e-network/vinylwatch/internal/app/domain/match"
	"github.com/r3e-network/vinylwatch/internal/app/domain/rule"
	"github.com/r3e-network/vinylwatch/internal/app/storage"
)

// MatchCreator implements §4.3.2: insert a match row and a NEW_MATCH event
// for a (rule, listing) pair whose predicate held, skipping silently if one
// already exists.
type MatchCreator struct {
	Matches storage.MatchStore
	Events  storage.EventStore
}

// MatchOutcome reports what CreateMatch did for a single (rule, listing) pair.
type MatchOutcome struct {
	Match       match.WatchMatch
	MatchCreated bool
	Event       event.Event
	EventCreated bool
}

// CreateMatch inserts the match and its NEW_MATCH event. The match insert is
// idempotent on its (rule, listing) unique index and the event is written
// only when that insert created a new row, so concurrent callers racing on
// the same (rule, listing) converge to one match and one event.
func (c *MatchCreator) CreateMatch(ctx context.Context, r rule.WatchRule, listingID string, matchContext map[string]any) (MatchOutcome, error) {
	m, created, err := c.Matches.CreateMatchIfAbsent(ctx, match.WatchMatch{
		RuleID:       r.ID,
		ListingID:    listingID,
		MatchContext: matchContext,
	})
	if err != nil {
		return MatchOutcome{}, err
	}
	if !created {
		return MatchOutcome{Match: m, MatchCreated: false}, nil
	}

	// The match row above is already the idempotency boundary for this
	// (rule, listing) pair (MatchCreated is true at most once), so the event
	// is inserted unconditionally rather than through the watch_release_id
	// dedup path in CreateMatchEventIfAbsent, which guards the separate
	// release-match flow in release_match.go.
	lid := listingID
	e, err := c.Events.CreateEvent(ctx, event.Event{
		UserID:    r.UserID,
		Type:      event.TypeNewMatch,
		RuleID:    &r.ID,
		ListingID: &lid,
		Payload:   map[string]any{"rule_id": r.ID, "listing_id": listingID},
	})
	if err != nil {
		return MatchOutcome{}, err
	}

	return MatchOutcome{Match: m, MatchCreated: true, Event: e, EventCreated: true}, nil
}
