package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestStoreClaimDueRulesStampsClaimToken(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := New(db)

	now := time.Now().UTC()
	queryJSON := []byte(`{"keywords":["aphex twin"],"sources":["discogs"]}`)
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "name", "query", "is_active", "poll_interval_seconds",
		"last_run_at", "next_run_at", "claim_token", "created_at", "updated_at",
	}).AddRow("rule-1", "user-1", "Aphex Twin originals", queryJSON, true, 300, nil, nil, "claim-token-1", now, now)

	mock.ExpectQuery("WITH due AS").
		WithArgs(sqlmock.AnyArg(), 25, "claim-token-1").
		WillReturnRows(rows)

	claimed, err := store.ClaimDueRules(context.Background(), now, 25, "claim-token-1")
	if err != nil {
		t.Fatalf("ClaimDueRules: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("expected 1 claimed rule, got %d", len(claimed))
	}
	if claimed[0].ClaimToken != "claim-token-1" {
		t.Fatalf("expected claim token to round-trip, got %q", claimed[0].ClaimToken)
	}
	if len(claimed[0].Query.Keywords) != 1 || claimed[0].Query.Keywords[0] != "aphex twin" {
		t.Fatalf("expected query JSON to decode, got %+v", claimed[0].Query)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStoreClaimDueRulesEmptyWhenNoneDue(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := New(db)

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "name", "query", "is_active", "poll_interval_seconds",
		"last_run_at", "next_run_at", "claim_token", "created_at", "updated_at",
	})

	mock.ExpectQuery("WITH due AS").
		WithArgs(sqlmock.AnyArg(), 25, "claim-token-2").
		WillReturnRows(rows)

	claimed, err := store.ClaimDueRules(context.Background(), time.Now().UTC(), 25, "claim-token-2")
	if err != nil {
		t.Fatalf("ClaimDueRules: %v", err)
	}
	if len(claimed) != 0 {
		t.Fatalf("expected no claimed rules, got %d", len(claimed))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
