package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/r3e-network/vinylwatch/internal/app/domain/listing"
	"github.com/r3e-network/vinylwatch/internal/app/domain/release"
	"github.com/r3e-network/vinylwatch/internal/app/domain/rule"
	"github.com/r3e-network/vinylwatch/internal/app/domain/user"
	"github.com/r3e-network/vinylwatch/internal/app/storage"
)

func TestNormalizeTitle(t *testing.T) {
	cases := map[string]string{
		"Aphex Twin - Selected Ambient Works 85-92": "aphex twin selected ambient works 85 92",
		"  Boards_of_Canada!!  ":                    "boards of canada",
		"":                                          "",
	}
	for in, want := range cases {
		if got := NormalizeTitle(in); got != want {
			t.Errorf("NormalizeTitle(%q) = %q, want %q", in, got, want)
		}
	}
}

func float64Ptr(f float64) *float64 { return &f }

func TestRuleMatchesListing(t *testing.T) {
	base := listing.Listing{
		Provider:        "discogs",
		NormalizedTitle: "aphex twin selected ambient works",
		Price:           30,
		Currency:        "USD",
	}

	cases := []struct {
		name string
		r    rule.WatchRule
		l    listing.Listing
		want bool
	}{
		{
			name: "keyword and source match",
			r:    rule.WatchRule{Query: rule.Query{Keywords: []string{"aphex twin"}, Sources: []string{"discogs"}}},
			l:    base,
			want: true,
		},
		{
			name: "source not allowed",
			r:    rule.WatchRule{Query: rule.Query{Keywords: []string{"aphex twin"}, Sources: []string{"ebay"}}},
			l:    base,
			want: false,
		},
		{
			name: "keyword missing",
			r:    rule.WatchRule{Query: rule.Query{Keywords: []string{"boards of canada"}, Sources: []string{"discogs"}}},
			l:    base,
			want: false,
		},
		{
			name: "over max price in matching currency",
			r:    rule.WatchRule{Query: rule.Query{Sources: []string{"discogs"}, MaxPrice: float64Ptr(20), Currency: "USD"}},
			l:    base,
			want: false,
		},
		{
			name: "under max price in matching currency",
			r:    rule.WatchRule{Query: rule.Query{Sources: []string{"discogs"}, MaxPrice: float64Ptr(50), Currency: "USD"}},
			l:    base,
			want: true,
		},
		{
			name: "max price set but currency mismatch",
			r:    rule.WatchRule{Query: rule.Query{Sources: []string{"discogs"}, MaxPrice: float64Ptr(50), Currency: "EUR"}},
			l:    base,
			want: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := RuleMatchesListing(tc.r, tc.l, tc.l.NormalizedTitle, "USD"); got != tc.want {
				t.Errorf("RuleMatchesListing() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestUpsertListingCreatesOnFirstSight(t *testing.T) {
	mem := storage.NewMemory()
	store := &Store{Listings: mem, Snapshots: mem}

	result, err := store.UpsertListing(context.Background(), UpsertPayload{
		Provider:   "discogs",
		ExternalID: "d-1",
		Title:      "Aphex Twin - Selected Ambient Works",
		Price:      25,
		Currency:   "USD",
	})
	if err != nil {
		t.Fatalf("UpsertListing: %v", err)
	}
	if !result.CreatedListing || !result.CreatedSnapshot {
		t.Fatalf("expected both a new listing and a new snapshot, got %+v", result)
	}
	if result.Listing.NormalizedTitle != "aphex twin selected ambient works" {
		t.Fatalf("expected the title to be normalized, got %q", result.Listing.NormalizedTitle)
	}

	snaps, err := mem.ListSnapshots(context.Background(), result.Listing.ID)
	if err != nil {
		t.Fatalf("list snapshots: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("expected exactly one snapshot after creation, got %d", len(snaps))
	}
}

func TestUpsertListingSnapshotsOnlyOnPriceChange(t *testing.T) {
	mem := storage.NewMemory()
	store := &Store{Listings: mem, Snapshots: mem}

	payload := UpsertPayload{Provider: "discogs", ExternalID: "d-2", Title: "Boards of Canada - Music Has the Right to Children", Price: 40, Currency: "USD"}

	first, err := store.UpsertListing(context.Background(), payload)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	// Same price: re-seeing the listing should not snapshot again.
	second, err := store.UpsertListing(context.Background(), payload)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.CreatedListing {
		t.Fatalf("expected the second upsert to update, not create")
	}
	if second.CreatedSnapshot {
		t.Fatalf("expected no snapshot when the price is unchanged")
	}

	// Price change: must snapshot.
	payload.Price = 35
	third, err := store.UpsertListing(context.Background(), payload)
	if err != nil {
		t.Fatalf("third upsert: %v", err)
	}
	if !third.CreatedSnapshot {
		t.Fatalf("expected a snapshot on a price change")
	}

	snaps, err := mem.ListSnapshots(context.Background(), first.Listing.ID)
	if err != nil {
		t.Fatalf("list snapshots: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots (create + price change), got %d", len(snaps))
	}
}

func TestCreateMatchIsIdempotent(t *testing.T) {
	mem := storage.NewMemory()
	creator := &MatchCreator{Matches: mem, Events: mem}

	u, err := mem.CreateUser(context.Background(), user.User{Email: "a@example.com", IsActive: true})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	r, err := mem.CreateRule(context.Background(), rule.WatchRule{UserID: u.ID, Query: rule.Query{Keywords: []string{"x"}, Sources: []string{"discogs"}}})
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}

	first, err := creator.CreateMatch(context.Background(), r, "listing-1", nil)
	if err != nil {
		t.Fatalf("first CreateMatch: %v", err)
	}
	if !first.MatchCreated {
		t.Fatalf("expected the first call to create a match")
	}

	second, err := creator.CreateMatch(context.Background(), r, "listing-1", nil)
	if err != nil {
		t.Fatalf("second CreateMatch: %v", err)
	}
	if second.MatchCreated {
		t.Fatalf("expected the second call on the same (rule, listing) pair to be a no-op")
	}
}

func TestReleaseMatcherRespectsPriceAndCondition(t *testing.T) {
	mem := storage.NewMemory()
	matcher := &ReleaseMatcher{Releases: mem, Events: mem}

	u, err := mem.CreateUser(context.Background(), user.User{Email: "b@example.com", IsActive: true})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	wr, err := mem.CreateRelease(context.Background(), release.WatchRelease{
		UserID:           u.ID,
		DiscogsReleaseID: 555,
		IsActive:         true,
		TargetPrice:      float64Ptr(30),
		MinCondition:     "VG+",
	})
	if err != nil {
		t.Fatalf("create release: %v", err)
	}

	releaseID := 555

	tooExpensive := listing.Listing{ID: "listing-a", DiscogsReleaseID: &releaseID, Price: 50, Condition: "VG+"}
	events, err := matcher.MatchListing(context.Background(), u.ID, tooExpensive)
	if err != nil {
		t.Fatalf("match too expensive: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no match above target price, got %d events", len(events))
	}

	belowCondition := listing.Listing{ID: "listing-b", DiscogsReleaseID: &releaseID, Price: 20, Condition: "G"}
	events, err = matcher.MatchListing(context.Background(), u.ID, belowCondition)
	if err != nil {
		t.Fatalf("match below condition: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no match below min condition, got %d events", len(events))
	}

	satisfied := listing.Listing{ID: "listing-c", DiscogsReleaseID: &releaseID, Price: 20, Condition: "NM"}
	events, err = matcher.MatchListing(context.Background(), u.ID, satisfied)
	if err != nil {
		t.Fatalf("match satisfied: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected exactly one match, got %d", len(events))
	}
	if events[0].WatchReleaseID == nil || *events[0].WatchReleaseID != wr.ID {
		t.Fatalf("expected the event to reference the matched release")
	}
}

func TestBackfillerDisabledIsNoOp(t *testing.T) {
	mem := storage.NewMemory()
	b := NewBackfiller(mem, mem, &MatchCreator{Matches: mem, Events: mem}, false, 7, 500)

	u, err := mem.CreateUser(context.Background(), user.User{Email: "c@example.com", IsActive: true})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	r, err := mem.CreateRule(context.Background(), rule.WatchRule{UserID: u.ID, IsActive: true, Query: rule.Query{Keywords: []string{"x"}, Sources: []string{"discogs"}}})
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}

	created, err := b.Run(context.Background(), u.ID, r.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if created != 0 {
		t.Fatalf("expected a disabled backfiller to create nothing, got %d", created)
	}
}

func TestBackfillerScansRecentListingsForNewRule(t *testing.T) {
	mem := storage.NewMemory()
	b := NewBackfiller(mem, mem, &MatchCreator{Matches: mem, Events: mem}, true, 7, 500)

	u, err := mem.CreateUser(context.Background(), user.User{Email: "d@example.com", IsActive: true})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	recent, err := mem.CreateListing(context.Background(), listing.Listing{
		Provider: "discogs", ExternalID: "bf-1", Title: "Boards of Canada - Geogaddi",
		NormalizedTitle: "boards of canada geogaddi", Price: 25, Currency: "USD",
		FirstSeenAt: time.Now().UTC(), LastSeenAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}
	if _, err := mem.CreateListing(context.Background(), listing.Listing{
		Provider: "discogs", ExternalID: "bf-2", Title: "Aphex Twin - Drukqs",
		NormalizedTitle: "aphex twin drukqs", Price: 25, Currency: "USD",
		FirstSeenAt: time.Now().UTC(), LastSeenAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("create unrelated listing: %v", err)
	}

	r, err := mem.CreateRule(context.Background(), rule.WatchRule{
		UserID: u.ID, IsActive: true,
		Query: rule.Query{Keywords: []string{"boards of canada"}, Sources: []string{"discogs"}},
	})
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}

	created, err := b.Run(context.Background(), u.ID, r.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected exactly one backfilled match, got %d", created)
	}

	matches, err := mem.ListMatchesForRule(context.Background(), r.ID, 10)
	if err != nil {
		t.Fatalf("list matches: %v", err)
	}
	if len(matches) != 1 || matches[0].ListingID != recent.ID {
		t.Fatalf("expected the backfilled match to reference the matching listing, got %+v", matches)
	}

	// Running again must not duplicate the match.
	createdAgain, err := b.Run(context.Background(), u.ID, r.ID)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if createdAgain != 0 {
		t.Fatalf("expected the second backfill run to be idempotent, got %d new matches", createdAgain)
	}
}
