package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/r3e-network/vinylwatch/internal/app/domain/rule"
)

func (s *Store) CreateRule(ctx context.Context, r rule.WatchRule) (rule.WatchRule, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now

	queryJSON, err := json.Marshal(r.Query)
	if err != nil {
		return rule.WatchRule{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO watch_rules
			(id, user_id, name, query, is_active, poll_interval_seconds, last_run_at, next_run_at, claim_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, r.ID, r.UserID, r.Name, queryJSON, r.IsActive, r.PollIntervalSeconds,
		toNullTime(r.LastRunAt), toNullTime(r.NextRunAt), toNullString(r.ClaimToken), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return rule.WatchRule{}, err
	}
	return r, nil
}

func (s *Store) UpdateRule(ctx context.Context, r rule.WatchRule) (rule.WatchRule, error) {
	existing, err := s.GetRule(ctx, r.ID)
	if err != nil {
		return rule.WatchRule{}, err
	}
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = time.Now().UTC()

	queryJSON, err := json.Marshal(r.Query)
	if err != nil {
		return rule.WatchRule{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE watch_rules
		SET name = $2, query = $3, is_active = $4, poll_interval_seconds = $5,
		    last_run_at = $6, next_run_at = $7, claim_token = $8, updated_at = $9
		WHERE id = $1
	`, r.ID, r.Name, queryJSON, r.IsActive, r.PollIntervalSeconds,
		toNullTime(r.LastRunAt), toNullTime(r.NextRunAt), toNullString(r.ClaimToken), r.UpdatedAt)
	if err != nil {
		return rule.WatchRule{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return rule.WatchRule{}, sql.ErrNoRows
	}
	return r, nil
}

func (s *Store) GetRule(ctx context.Context, id string) (rule.WatchRule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, query, is_active, poll_interval_seconds, last_run_at, next_run_at, claim_token, created_at, updated_at
		FROM watch_rules WHERE id = $1
	`, id)
	return scanRule(row)
}

func (s *Store) ListRules(ctx context.Context, userID string) ([]rule.WatchRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, query, is_active, poll_interval_seconds, last_run_at, next_run_at, claim_token, created_at, updated_at
		FROM watch_rules WHERE user_id = $1 ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rule.WatchRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) DeleteRule(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM watch_rules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ClaimDueRules selects and stamps due rules with claimToken in a single
// statement so concurrent scheduler workers skip rows locked by one another
// (FOR UPDATE SKIP LOCKED), per §4.4.1's "claim with skip-locked semantics".
func (s *Store) ClaimDueRules(ctx context.Context, now time.Time, batchSize int, claimToken string) ([]rule.WatchRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH due AS (
			SELECT id FROM watch_rules
			WHERE is_active = true AND (next_run_at IS NULL OR next_run_at <= $1)
			ORDER BY next_run_at ASC NULLS FIRST, created_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE watch_rules
		SET claim_token = $3
		FROM due
		WHERE watch_rules.id = due.id
		RETURNING watch_rules.id, watch_rules.user_id, watch_rules.name, watch_rules.query,
		          watch_rules.is_active, watch_rules.poll_interval_seconds, watch_rules.last_run_at,
		          watch_rules.next_run_at, watch_rules.claim_token, watch_rules.created_at, watch_rules.updated_at
	`, now, batchSize, claimToken)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rule.WatchRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRule(row rowScanner) (rule.WatchRule, error) {
	var (
		r          rule.WatchRule
		queryRaw   []byte
		lastRun    sql.NullTime
		nextRun    sql.NullTime
		claimToken sql.NullString
	)
	if err := row.Scan(&r.ID, &r.UserID, &r.Name, &queryRaw, &r.IsActive, &r.PollIntervalSeconds,
		&lastRun, &nextRun, &claimToken, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return rule.WatchRule{}, err
	}
	if len(queryRaw) > 0 {
		_ = json.Unmarshal(queryRaw, &r.Query)
	}
	r.LastRunAt = fromNullTime(lastRun)
	r.NextRunAt = fromNullTime(nextRun)
	r.ClaimToken = fromNullString(claimToken)
	return r, nil
}
