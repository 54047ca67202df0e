package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/r3e-network/vinylwatch/internal/app/domain/providerrequest"
)

func (s *Store) CreateProviderRequest(ctx context.Context, r providerrequest.ProviderRequest) (providerrequest.ProviderRequest, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.Error = providerrequest.TruncateError(r.Error)

	metaJSON, err := json.Marshal(r.Meta)
	if err != nil {
		return providerrequest.ProviderRequest{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO provider_requests
			(id, user_id, provider, endpoint, method, status_code, duration_ms, error, meta, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, r.ID, r.UserID, r.Provider, r.Endpoint, r.Method, toNullInt(r.StatusCode),
		toNullInt64(r.DurationMS), toNullString(r.Error), metaJSON, r.CreatedAt)
	if err != nil {
		return providerrequest.ProviderRequest{}, err
	}
	return r, nil
}

func (s *Store) ListProviderRequests(ctx context.Context, userID string, limit int) ([]providerrequest.ProviderRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, provider, endpoint, method, status_code, duration_ms, error, meta, created_at
		FROM provider_requests WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []providerrequest.ProviderRequest
	for rows.Next() {
		var (
			r          providerrequest.ProviderRequest
			statusCode sql.NullInt64
			durationMS sql.NullInt64
			errText    sql.NullString
			metaJSON   []byte
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.Provider, &r.Endpoint, &r.Method, &statusCode,
			&durationMS, &errText, &metaJSON, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.StatusCode = fromNullInt(statusCode)
		if durationMS.Valid {
			v := durationMS.Int64
			r.DurationMS = &v
		}
		r.Error = fromNullString(errText)
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &r.Meta)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func toNullInt64(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}
