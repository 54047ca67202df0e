package runner

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/r3e-network/vinylwatch/internal/app/domain/event"
	"github.com/r3e-network/vinylwatch/internal/app/domain/rule"
	"github.com/r3e-network/vinylwatch/internal/app/domain/user"
	"github.com/r3e-network/vinylwatch/internal/app/services/ingest"
	"github.com/r3e-network/vinylwatch/internal/app/services/provider"
	"github.com/r3e-network/vinylwatch/internal/app/storage"
)

func newTestRunner(t *testing.T, mem *storage.Memory, searchCalls *int32) *Runner {
	t.Helper()

	ingestStore := &ingest.Store{Listings: mem, Snapshots: mem}
	matches := &ingest.MatchCreator{Matches: mem, Events: mem}
	releaseMatch := &ingest.ReleaseMatcher{Releases: mem, Events: mem}
	mapper := &ingest.Mapper{Releases: mem}

	logSinkFor := func(userID, providerName string) provider.RequestLogSink {
		if searchCalls != nil {
			atomic.AddInt32(searchCalls, 1)
		}
		return provider.NoopRequestLogSink
	}

	return New(mem, ingestStore, matches, releaseMatch, mapper, provider.NewFactory(provider.Config{}), logSinkFor, nil)
}

func newTestUser(t *testing.T, mem *storage.Memory, currency string) user.User {
	t.Helper()
	u, err := mem.CreateUser(context.Background(), user.User{
		Email:    "collector@example.com",
		Currency: currency,
		IsActive: true,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func TestRunSkipsInactiveRule(t *testing.T) {
	mem := storage.NewMemory()
	u := newTestUser(t, mem, "USD")
	r := newTestRunner(t, mem, nil)

	ruleRow := rule.WatchRule{
		UserID:   u.ID,
		IsActive: false,
		Query:    rule.Query{Keywords: []string{"aphex twin"}, Sources: []string{"mock"}},
	}

	summary, err := r.Run(context.Background(), ruleRow)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Fetched != 0 || summary.MatchesCreated != 0 {
		t.Fatalf("expected a no-op summary for an inactive rule, got %+v", summary)
	}
}

func TestRunHappyPathCreatesMatchAndNotifies(t *testing.T) {
	mem := storage.NewMemory()
	u := newTestUser(t, mem, "USD")
	r := newTestRunner(t, mem, nil)

	var notified []event.Event
	r.OnMatchEvent = func(_ context.Context, e event.Event) {
		notified = append(notified, e)
	}

	ruleRow, err := mem.CreateRule(context.Background(), rule.WatchRule{
		UserID:   u.ID,
		Name:     "Aphex Twin originals",
		IsActive: true,
		Query:    rule.Query{Keywords: []string{"aphex twin"}, Sources: []string{"mock"}, Currency: "USD"},
	})
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}

	summary, err := r.Run(context.Background(), ruleRow)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Fetched == 0 {
		t.Fatalf("expected the mock provider to return listings")
	}
	if summary.ListingsCreated == 0 || summary.SnapshotsCreated == 0 {
		t.Fatalf("expected new listings and snapshots to be created, got %+v", summary)
	}
	if summary.MatchesCreated == 0 {
		t.Fatalf("expected at least one match for keyword-matching mock listings, got %+v", summary)
	}
	if len(notified) != summary.MatchesCreated {
		t.Fatalf("expected OnMatchEvent to fire once per created match, got %d events for %d matches", len(notified), summary.MatchesCreated)
	}
	for _, e := range notified {
		if e.Type != event.TypeNewMatch {
			t.Fatalf("expected a NEW_MATCH event, got %q", e.Type)
		}
	}
}

func TestRunSearchCacheDedupesAcrossRulesSharingSourceAndKeywords(t *testing.T) {
	mem := storage.NewMemory()
	u := newTestUser(t, mem, "USD")

	var searchCalls int32
	r := newTestRunner(t, mem, &searchCalls)

	query := rule.Query{Keywords: []string{"boards of canada"}, Sources: []string{"mock"}, Currency: "USD"}

	ruleA, err := mem.CreateRule(context.Background(), rule.WatchRule{UserID: u.ID, Name: "Rule A", IsActive: true, Query: query})
	if err != nil {
		t.Fatalf("create rule A: %v", err)
	}
	ruleB, err := mem.CreateRule(context.Background(), rule.WatchRule{UserID: u.ID, Name: "Rule B", IsActive: true, Query: query})
	if err != nil {
		t.Fatalf("create rule B: %v", err)
	}

	if _, err := r.Run(context.Background(), ruleA); err != nil {
		t.Fatalf("run rule A: %v", err)
	}
	if _, err := r.Run(context.Background(), ruleB); err != nil {
		t.Fatalf("run rule B: %v", err)
	}

	if got := atomic.LoadInt32(&searchCalls); got != 1 {
		t.Fatalf("expected the second rule's identical (source, currency, keywords) search to hit the cache, got %d provider invocations", got)
	}
}

func TestRunPerSourceErrorIsolation(t *testing.T) {
	mem := storage.NewMemory()
	u := newTestUser(t, mem, "USD")
	r := newTestRunner(t, mem, nil)

	ruleRow, err := mem.CreateRule(context.Background(), rule.WatchRule{
		UserID:   u.ID,
		Name:     "Mixed sources",
		IsActive: true,
		Query:    rule.Query{Keywords: []string{"autechre"}, Sources: []string{"not-a-real-provider", "mock"}, Currency: "USD"},
	})
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}

	summary, err := r.Run(context.Background(), ruleRow)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Fetched == 0 {
		t.Fatalf("expected the working mock source to still be processed despite the unknown source failing, got %+v", summary)
	}
}
