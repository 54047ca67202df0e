package ingest

import (
	"context"
	"time"

	"github.com/r3e-network/vinylwatch/internal/app/storage"
)

// Backfiller implements the rule-change backfill: when a rule is created or
// (re)activated, scan listings already seen recently instead of waiting for
// the next scheduler tick to surface matches for them.
type Backfiller struct {
	Rules    storage.RuleStore
	Listings storage.ListingStore
	Matches  *MatchCreator

	// Enabled gates the whole feature; disabled by default in production,
	// mirroring the original's dev_backfill_on_rule_change flag.
	Enabled bool
	Days    int
	Limit   int
}

// NewBackfiller builds a Backfiller. days/limit of zero fall back to 7 and
// 500, the original's defaults.
func NewBackfiller(rules storage.RuleStore, listings storage.ListingStore, matches *MatchCreator, enabled bool, days, limit int) *Backfiller {
	if days <= 0 {
		days = 7
	}
	if limit <= 0 {
		limit = 500
	}
	return &Backfiller{Rules: rules, Listings: listings, Matches: matches, Enabled: enabled, Days: days, Limit: limit}
}

// Run scans listings last seen within b.Days and creates matches (with their
// NEW_MATCH events) for every one that satisfies ruleID's predicate, so a
// freshly created or re-enabled rule doesn't have to wait for the next
// scheduler tick to surface matches already sitting in the listings table.
// Returns the count of newly created matches.
func (b *Backfiller) Run(ctx context.Context, userID, ruleID string) (int, error) {
	if b == nil || !b.Enabled {
		return 0, nil
	}

	r, err := b.Rules.GetRule(ctx, ruleID)
	if err != nil {
		return 0, err
	}
	if r.UserID != userID || !r.IsActive {
		return 0, nil
	}

	since := time.Now().UTC().Add(-time.Duration(b.Days) * 24 * time.Hour)
	listings, err := b.Listings.ListRecentListings(ctx, since, b.Limit)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, l := range listings {
		normalized := l.NormalizedTitle
		if normalized == "" {
			normalized = NormalizeTitle(l.Title)
		}
		if !RuleMatchesListing(r, l, normalized, "") {
			continue
		}

		outcome, err := b.Matches.CreateMatch(ctx, r, l.ID, map[string]any{
			"reason": "backfill_recent_listings",
			"days":   b.Days,
		})
		if err != nil {
			return created, err
		}
		if outcome.MatchCreated {
			created++
		}
	}
	return created, nil
}
