package rules

import (
	"context"
	"testing"
	"time"

	"github.com/r3e-network/vinylwatch/internal/app/domain/listing"
	"github.com/r3e-network/vinylwatch/internal/app/domain/rule"
	"github.com/r3e-network/vinylwatch/internal/app/domain/user"
	"github.com/r3e-network/vinylwatch/internal/app/services/events"
	"github.com/r3e-network/vinylwatch/internal/app/services/ingest"
	"github.com/r3e-network/vinylwatch/internal/app/storage"
)

func TestCreateBackfillsMatchesForRecentListings(t *testing.T) {
	mem := storage.NewMemory()
	eventsSvc := events.New(mem)
	backfiller := ingest.NewBackfiller(mem, mem, &ingest.MatchCreator{Matches: mem, Events: mem}, true, 7, 500)
	svc := New(mem, eventsSvc, backfiller, nil)

	u, err := mem.CreateUser(context.Background(), user.User{Email: "e@example.com", IsActive: true})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := mem.CreateListing(context.Background(), listing.Listing{
		Provider: "discogs", ExternalID: "rb-1", Title: "Boards of Canada - Geogaddi",
		NormalizedTitle: "boards of canada geogaddi", Price: 25, Currency: "USD",
		FirstSeenAt: time.Now().UTC(), LastSeenAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("create listing: %v", err)
	}

	created, err := svc.Create(context.Background(), u.ID, rule.WatchRule{
		Name:  "boc",
		Query: rule.Query{Keywords: []string{"boards of canada"}, Sources: []string{"discogs"}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	matches, err := mem.ListMatchesForRule(context.Background(), created.ID, 10)
	if err != nil {
		t.Fatalf("list matches: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected rule creation to backfill exactly one match against the pre-existing listing, got %d", len(matches))
	}
}

func TestCreateWithNilBackfillerDoesNotPanic(t *testing.T) {
	mem := storage.NewMemory()
	eventsSvc := events.New(mem)
	svc := New(mem, eventsSvc, nil, nil)

	u, err := mem.CreateUser(context.Background(), user.User{Email: "f@example.com", IsActive: true})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	if _, err := svc.Create(context.Background(), u.ID, rule.WatchRule{
		Name:  "nil backfill",
		Query: rule.Query{Keywords: []string{"x"}, Sources: []string{"discogs"}},
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}
}
