package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/r3e-network/vinylwatch/internal/app/domain/event"
)

const eventColumns = `id, user_id, type, watch_release_id, rule_id, listing_id, payload, created_at`

func (s *Store) CreateEvent(ctx context.Context, e event.Event) (event.Event, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	payloadJSON, err := json.Marshal(e.Payload)
	if err != nil {
		return event.Event{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, e.ID, e.UserID, string(e.Type), toNullString(derefString(e.WatchReleaseID)),
		toNullString(derefString(e.RuleID)), toNullString(derefString(e.ListingID)), payloadJSON, e.CreatedAt)
	if err != nil {
		return event.Event{}, err
	}
	return e, nil
}

func (s *Store) CreateMatchEventIfAbsent(ctx context.Context, e event.Event) (event.Event, bool, error) {
	if e.WatchReleaseID == nil || e.ListingID == nil {
		created, err := s.CreateEvent(ctx, e)
		return created, err == nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE user_id = $1 AND type = $2 AND watch_release_id = $3 AND listing_id = $4
	`, e.UserID, string(e.Type), *e.WatchReleaseID, *e.ListingID)
	existing, err := scanEvent(row)
	if err == nil {
		return existing, false, nil
	}
	if err != sql.ErrNoRows {
		return event.Event{}, false, err
	}

	created, err := s.CreateEvent(ctx, e)
	if err != nil {
		return event.Event{}, false, err
	}
	return created, true, nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (event.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	return scanEvent(row)
}

func (s *Store) ListEvents(ctx context.Context, userID string, limit int) ([]event.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM events WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEvent(row rowScanner) (event.Event, error) {
	var (
		e              event.Event
		typ            string
		watchReleaseID sql.NullString
		ruleID         sql.NullString
		listingID      sql.NullString
		payloadJSON    []byte
	)
	if err := row.Scan(&e.ID, &e.UserID, &typ, &watchReleaseID, &ruleID, &listingID, &payloadJSON, &e.CreatedAt); err != nil {
		return event.Event{}, err
	}
	e.Type = event.Type(typ)
	e.WatchReleaseID = nullStringPtr(watchReleaseID)
	e.RuleID = nullStringPtr(ruleID)
	e.ListingID = nullStringPtr(listingID)
	if len(payloadJSON) > 0 {
		_ = json.Unmarshal(payloadJSON, &e.Payload)
	}
	return e, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
