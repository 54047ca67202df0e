package search

import (
	"context"
	"testing"

	"github.com/r3e-network/vinylwatch/internal/app/services/events"
	"github.com/r3e-network/vinylwatch/internal/app/services/provider"
	"github.com/r3e-network/vinylwatch/internal/app/services/rules"
	"github.com/r3e-network/vinylwatch/internal/app/storage"
)

func newTestService(t *testing.T) (*Service, *rules.Service) {
	t.Helper()
	mem := storage.NewMemory()
	eventsSvc := events.New(mem)
	rulesSvc := rules.New(mem, eventsSvc, nil, nil)
	svc := New(provider.NewFactory(provider.Config{}), rulesSvc, nil, nil)
	return svc, rulesSvc
}

func TestSearchPaginatesAndSortsByPrice(t *testing.T) {
	svc, _ := newTestService(t)

	resp, err := svc.Search(context.Background(), "u1", Query{
		Keywords:  []string{"aphex twin"},
		Providers: []string{"mock"},
		Page:      1,
		PageSize:  2,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("expected a page of 2 items, got %d", len(resp.Items))
	}
	if resp.Items[0].Price > resp.Items[1].Price {
		t.Fatalf("expected items sorted ascending by price, got %v then %v", resp.Items[0].Price, resp.Items[1].Price)
	}
	if len(resp.ProviderErrors) != 0 {
		t.Fatalf("expected no provider errors, got %v", resp.ProviderErrors)
	}
}

func TestSearchIsolatesUnknownProviderError(t *testing.T) {
	svc, _ := newTestService(t)

	resp, err := svc.Search(context.Background(), "u1", Query{
		Keywords:  []string{"aphex twin"},
		Providers: []string{"mock", "not-a-real-provider"},
		Page:      1,
		PageSize:  5,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Items) == 0 {
		t.Fatalf("expected the mock provider's results despite the other provider failing")
	}
	if _, ok := resp.ProviderErrors["not-a-real-provider"]; !ok {
		t.Fatalf("expected the unknown provider's failure to be reported, got %v", resp.ProviderErrors)
	}
}

func TestSearchFiltersByMinCondition(t *testing.T) {
	svc, _ := newTestService(t)

	// The mock client always returns VG+ condition listings; a floor above
	// that must filter everything out.
	resp, err := svc.Search(context.Background(), "u1", Query{
		Keywords:     []string{"aphex twin"},
		Providers:    []string{"mock"},
		MinCondition: "NM",
		Page:         1,
		PageSize:     10,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Items) != 0 {
		t.Fatalf("expected no results above the mock client's fixed VG+ condition, got %d", len(resp.Items))
	}
}

func TestSaveAsRulePersistsTheQuery(t *testing.T) {
	svc, _ := newTestService(t)

	created, err := svc.SaveAsRule(context.Background(), "u1", "aphex alert", Query{
		Keywords:  []string{"aphex twin"},
		Providers: []string{"discogs"},
	}, 120)
	if err != nil {
		t.Fatalf("SaveAsRule: %v", err)
	}
	if created.Name != "aphex alert" {
		t.Fatalf("expected the rule name to be persisted, got %q", created.Name)
	}
	if len(created.Query.Sources) != 1 || created.Query.Sources[0] != "discogs" {
		t.Fatalf("expected the rule sources to match the query providers, got %v", created.Query.Sources)
	}
}
