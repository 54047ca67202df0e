package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/r3e-network/vinylwatch/internal/app/domain/match"
)

func (s *Store) CreateMatchIfAbsent(ctx context.Context, wm match.WatchMatch) (match.WatchMatch, bool, error) {
	existing, err := s.getMatchByRuleListing(ctx, wm.RuleID, wm.ListingID)
	if err == nil {
		return existing, false, nil
	}
	if err != sql.ErrNoRows {
		return match.WatchMatch{}, false, err
	}

	if wm.ID == "" {
		wm.ID = uuid.NewString()
	}
	if wm.MatchedAt.IsZero() {
		wm.MatchedAt = time.Now().UTC()
	}

	contextJSON, err := json.Marshal(wm.MatchContext)
	if err != nil {
		return match.WatchMatch{}, false, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO watch_matches (id, rule_id, listing_id, matched_at, match_context)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (rule_id, listing_id) DO NOTHING
	`, wm.ID, wm.RuleID, wm.ListingID, wm.MatchedAt, contextJSON)
	if err != nil {
		return match.WatchMatch{}, false, err
	}

	created, err := s.getMatchByRuleListing(ctx, wm.RuleID, wm.ListingID)
	if err != nil {
		return match.WatchMatch{}, false, err
	}
	return created, created.ID == wm.ID, nil
}

func (s *Store) getMatchByRuleListing(ctx context.Context, ruleID, listingID string) (match.WatchMatch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, rule_id, listing_id, matched_at, match_context
		FROM watch_matches WHERE rule_id = $1 AND listing_id = $2
	`, ruleID, listingID)
	return scanMatch(row)
}

func (s *Store) ListMatchesForRule(ctx context.Context, ruleID string, limit int) ([]match.WatchMatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, rule_id, listing_id, matched_at, match_context
		FROM watch_matches WHERE rule_id = $1 ORDER BY matched_at DESC LIMIT $2
	`, ruleID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []match.WatchMatch
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMatch(row rowScanner) (match.WatchMatch, error) {
	var (
		m           match.WatchMatch
		contextJSON []byte
	)
	if err := row.Scan(&m.ID, &m.RuleID, &m.ListingID, &m.MatchedAt, &contextJSON); err != nil {
		return match.WatchMatch{}, err
	}
	if len(contextJSON) > 0 {
		_ = json.Unmarshal(contextJSON, &m.MatchContext)
	}
	return m, nil
}
