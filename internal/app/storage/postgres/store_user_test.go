package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/r3e-network/vinylwatch/internal/app/domain/user"
)

func TestStoreCreateUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := New(db)

	mock.ExpectExec("INSERT INTO watch_users").
		WithArgs(sqlmock.AnyArg(), "collector@example.com", "", "", "USD", true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	created, err := store.CreateUser(context.Background(), user.User{
		Email:    "collector@example.com",
		Currency: "USD",
		IsActive: true,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated ID")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStoreGetUserNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := New(db)

	mock.ExpectQuery("SELECT id, email, display_name, timezone, currency, is_active, created_at, updated_at").
		WithArgs("missing-id").
		WillReturnError(sql.ErrNoRows)

	if _, err := store.GetUser(context.Background(), "missing-id"); err == nil {
		t.Fatalf("expected an error for a missing user")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStoreGetUserByEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := New(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "email", "display_name", "timezone", "currency", "is_active", "created_at", "updated_at"}).
		AddRow("user-1", "collector@example.com", nil, nil, "USD", true, now, now)

	mock.ExpectQuery("SELECT id, email, display_name, timezone, currency, is_active, created_at, updated_at").
		WithArgs("Collector@example.com").
		WillReturnRows(rows)

	got, err := store.GetUserByEmail(context.Background(), "Collector@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if got.ID != "user-1" {
		t.Fatalf("expected user-1, got %q", got.ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
