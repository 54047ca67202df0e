package ingest

import (
	"context"
	"strings"

	"github.com/r3e-network/vinylwatch/internal/app/domain/event"
	"github.com/r3e-network/vinylwatch/internal/app/domain/listing"
	"github.com/r3e-network/vinylwatch/internal/app/domain/release"
	"github.com/r3e-network/vinylwatch/internal/app/storage"
)

// conditionRank orders the common Discogs grading scale from worst to best,
// used to decide whether a listing's condition satisfies a release's
// min_condition floor.
var conditionRank = map[string]int{
	"p":    0,
	"fair": 1,
	"f":    1,
	"g":    2,
	"g+":   3,
	"vg":   4,
	"vg+":  5,
	"nm":   6,
	"m":    7,
}

// ConditionSatisfies reports whether actual meets minCondition on the
// Discogs grading scale. An unrecognized or empty minCondition never
// rejects; an unrecognized actual against a recognized floor always does.
func ConditionSatisfies(minCondition, actual string) bool {
	if minCondition == "" {
		return true
	}
	min, ok := conditionRank[strings.ToLower(minCondition)]
	if !ok {
		return true
	}
	got, ok := conditionRank[strings.ToLower(actual)]
	if !ok {
		return false
	}
	return got >= min
}

// ReleaseMatcher implements the release-targeted half of match creation:
// when a listing carries (or is enriched with, via §4.3.3) a discogs
// release/master id, it is checked against the given user's matching active
// WatchRelease rows and, on a satisfied predicate, produces a NEW_MATCH
// event keyed by (watch_release_id, listing_id).
type ReleaseMatcher struct {
	Releases storage.ReleaseStore
	Events   storage.EventStore
}

// MatchListing finds active WatchRelease rows owned by userID that target
// l's discogs release or master id and satisfy target_price/min_condition,
// emitting a NEW_MATCH event per satisfied release.
func (rm *ReleaseMatcher) MatchListing(ctx context.Context, userID string, l listing.Listing) ([]event.Event, error) {
	var candidates []release.WatchRelease

	if l.DiscogsReleaseID != nil {
		if wr, found, err := rm.Releases.FindReleaseByDiscogsReleaseID(ctx, userID, *l.DiscogsReleaseID); err != nil {
			return nil, err
		} else if found && wr.IsActive {
			candidates = append(candidates, wr)
		}
	}
	if l.DiscogsMasterID != nil {
		if wr, found, err := rm.Releases.FindReleaseByDiscogsMasterID(ctx, userID, *l.DiscogsMasterID); err != nil {
			return nil, err
		} else if found && wr.IsActive {
			candidates = append(candidates, wr)
		}
	}

	var events []event.Event
	for _, wr := range candidates {
		if wr.TargetPrice != nil && l.Price > *wr.TargetPrice {
			continue
		}
		if !ConditionSatisfies(wr.MinCondition, l.Condition) {
			continue
		}

		wrID := wr.ID
		lid := l.ID
		e, _, err := rm.Events.CreateMatchEventIfAbsent(ctx, event.Event{
			UserID:         userID,
			Type:           event.TypeNewMatch,
			WatchReleaseID: &wrID,
			ListingID:      &lid,
			Payload:        map[string]any{"watch_release_id": wr.ID, "listing_id": l.ID},
		})
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}
