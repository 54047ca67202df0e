package users

import (
	"context"
	"testing"

	"github.com/r3e-network/vinylwatch/internal/app/domain/rule"
	"github.com/r3e-network/vinylwatch/internal/app/domain/user"
	"github.com/r3e-network/vinylwatch/internal/app/storage"
)

func TestDeactivateDisablesActiveRules(t *testing.T) {
	mem := storage.NewMemory()
	svc := New(mem, mem, mem, nil)

	u, err := mem.CreateUser(context.Background(), user.User{Email: "a@example.com", IsActive: true})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	r, err := mem.CreateRule(context.Background(), rule.WatchRule{
		UserID: u.ID, IsActive: true,
		Query: rule.Query{Keywords: []string{"x"}, Sources: []string{"discogs"}},
	})
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}

	updated, err := svc.Deactivate(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if updated.IsActive {
		t.Fatalf("expected the user to be deactivated")
	}

	disabled, err := mem.GetRule(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("get rule: %v", err)
	}
	if disabled.IsActive {
		t.Fatalf("expected deactivation to cascade-disable the user's active rules")
	}
}

func TestIntegrationSummaryCountsRulesPerProvider(t *testing.T) {
	mem := storage.NewMemory()
	svc := New(mem, mem, mem, nil)

	u, err := mem.CreateUser(context.Background(), user.User{Email: "b@example.com", IsActive: true})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := mem.CreateRule(context.Background(), rule.WatchRule{
		UserID: u.ID, Query: rule.Query{Keywords: []string{"x"}, Sources: []string{"discogs", "ebay"}},
	}); err != nil {
		t.Fatalf("create rule 1: %v", err)
	}
	if _, err := mem.CreateRule(context.Background(), rule.WatchRule{
		UserID: u.ID, Query: rule.Query{Keywords: []string{"y"}, Sources: []string{"discogs"}},
	}); err != nil {
		t.Fatalf("create rule 2: %v", err)
	}

	summary, err := svc.IntegrationSummary(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("IntegrationSummary: %v", err)
	}

	byProvider := make(map[string]ProviderIntegration, len(summary))
	for _, p := range summary {
		byProvider[p.Provider] = p
	}

	if got := byProvider["discogs"]; !got.Linked || got.WatchRuleCount != 2 {
		t.Fatalf("expected discogs linked with count 2, got %+v", got)
	}
	if got := byProvider["ebay"]; !got.Linked || got.WatchRuleCount != 1 {
		t.Fatalf("expected ebay linked with count 1, got %+v", got)
	}
	if got := byProvider["mock"]; got.Linked || got.WatchRuleCount != 0 {
		t.Fatalf("expected mock unlinked with count 0, got %+v", got)
	}
}
