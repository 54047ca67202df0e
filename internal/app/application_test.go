package app

import (
	"context"
	"testing"

	"github.com/r3e-network/vinylwatch/internal/app/domain/rule"
	"github.com/r3e-network/vinylwatch/internal/app/domain/user"
	"github.com/r3e-network/vinylwatch/pkg/config"
)

func TestApplicationLifecycle(t *testing.T) {
	cfg := config.New()
	cfg.Vault.MasterKey = "01234567890123456789012345678901"
	cfg.Scheduler.IntervalSeconds = 1

	application, err := New(cfg, Stores{}, nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}

	ctx := context.Background()
	if err := application.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() {
		if err := application.Stop(ctx); err != nil {
			t.Fatalf("stop: %v", err)
		}
	}()

	u, err := application.Users.Create(ctx, user.User{Email: "Collector@example.com", Currency: "USD"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.Email != "collector@example.com" {
		t.Fatalf("expected lowercased email, got %q", u.Email)
	}

	r, err := application.Rules.Create(ctx, u.ID, rule.WatchRule{
		Name: "Aphex Twin originals",
		Query: rule.Query{
			Keywords: []string{"aphex twin", "selected ambient"},
			Sources:  []string{"discogs", "ebay"},
		},
	})
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}
	if r.PollIntervalSeconds != 300 {
		t.Fatalf("expected default poll interval 300, got %d", r.PollIntervalSeconds)
	}

	events, err := application.Events.List(ctx, u.ID, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) == 0 {
		t.Fatalf("expected RULE_CREATED event to be recorded")
	}
}

func TestApplicationImportAndAccounts(t *testing.T) {
	cfg := config.New()
	cfg.Vault.MasterKey = "01234567890123456789012345678901"

	application, err := New(cfg, Stores{}, nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	ctx := context.Background()

	u, err := application.Users.Create(ctx, user.User{Email: "seller@example.com"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	if _, err := application.Accounts.Link(ctx, u.ID, "discogs", "extuser", "access-token", "refresh-token", "bearer", nil, nil); err != nil {
		t.Fatalf("link account: %v", err)
	}

	token, err := application.Accounts.AccessToken(ctx, u.ID, "discogs")
	if err != nil {
		t.Fatalf("access token: %v", err)
	}
	if token != "access-token" {
		t.Fatalf("expected decrypted token, got %q", token)
	}

	job, created, err := application.ImportEngine.EnsureImportJob(ctx, u.ID, "discogs", "wantlist", 0)
	if err != nil {
		t.Fatalf("ensure import job: %v", err)
	}
	if !created {
		t.Fatalf("expected a freshly created import job")
	}
	if job.Status != "running" {
		t.Fatalf("expected job to start running, got %q", job.Status)
	}
}

func TestApplicationOutboundRewrite(t *testing.T) {
	application, err := New(config.New(), Stores{}, nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	ctx := context.Background()

	u, err := application.Users.Create(ctx, user.User{Email: "buyer@example.com"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	rewritten, err := application.Outbound.RecordAndRewrite(ctx, u.ID, "listing-1", "ebay", "", "https://www.ebay.com/itm/123")
	if err != nil {
		t.Fatalf("record and rewrite: %v", err)
	}
	if rewritten == "" {
		t.Fatalf("expected a rewritten URL")
	}
}
