package match

import "time"

// WatchMatch joins a listing to a rule whose predicate it satisfied. Unique
// per (rule_id, listing_id) — the idempotency key for match creation.
type WatchMatch struct {
	ID            string
	RuleID        string
	ListingID     string
	MatchedAt     time.Time
	MatchContext  map[string]any
}
