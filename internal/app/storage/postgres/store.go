package postgres

import (
	"database/sql"
	"time"

	"github.com/r3e-network/vinylwatch/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var (
	_ storage.UserStore            = (*Store)(nil)
	_ storage.RuleStore             = (*Store)(nil)
	_ storage.ReleaseStore          = (*Store)(nil)
	_ storage.ListingStore          = (*Store)(nil)
	_ storage.SnapshotStore         = (*Store)(nil)
	_ storage.MatchStore            = (*Store)(nil)
	_ storage.EventStore            = (*Store)(nil)
	_ storage.NotificationStore     = (*Store)(nil)
	_ storage.PreferenceStore       = (*Store)(nil)
	_ storage.AccountLinkStore      = (*Store)(nil)
	_ storage.ImportJobStore        = (*Store)(nil)
	_ storage.ProviderRequestStore  = (*Store)(nil)
	_ storage.OutboundClickStore    = (*Store)(nil)
)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func fromNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func fromNullString(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return ns.String
}

func toNullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func fromNullInt(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

func toNullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func fromNullFloat(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}
