package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/r3e-network/vinylwatch/internal/app/domain/accountlink"
)

const accountLinkColumns = `id, user_id, provider, external_user_id, access_token, refresh_token,
	 access_token_expires_at, token_type, scopes, token_metadata, connected_at, created_at, updated_at`

func (s *Store) CreateAccountLink(ctx context.Context, l accountlink.ExternalAccountLink) (accountlink.ExternalAccountLink, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	l.CreatedAt, l.UpdatedAt = now, now
	if l.ConnectedAt.IsZero() {
		l.ConnectedAt = now
	}

	metaJSON, err := json.Marshal(l.TokenMetadata)
	if err != nil {
		return accountlink.ExternalAccountLink{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO account_links (`+accountLinkColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, l.ID, l.UserID, l.Provider, l.ExternalUserID, l.AccessToken, l.RefreshToken,
		toNullTime(l.AccessTokenExpiresAt), toNullString(l.TokenType), pq.Array(l.Scopes), metaJSON,
		l.ConnectedAt, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return accountlink.ExternalAccountLink{}, err
	}
	return l, nil
}

func (s *Store) UpdateAccountLink(ctx context.Context, l accountlink.ExternalAccountLink) (accountlink.ExternalAccountLink, error) {
	existing, err := s.getAccountLinkByID(ctx, l.ID)
	if err != nil {
		return accountlink.ExternalAccountLink{}, err
	}
	l.CreatedAt = existing.CreatedAt
	l.ConnectedAt = existing.ConnectedAt
	l.UpdatedAt = time.Now().UTC()

	metaJSON, err := json.Marshal(l.TokenMetadata)
	if err != nil {
		return accountlink.ExternalAccountLink{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE account_links
		SET external_user_id=$2, access_token=$3, refresh_token=$4, access_token_expires_at=$5,
		    token_type=$6, scopes=$7, token_metadata=$8, updated_at=$9
		WHERE id = $1
	`, l.ID, l.ExternalUserID, l.AccessToken, l.RefreshToken, toNullTime(l.AccessTokenExpiresAt),
		toNullString(l.TokenType), pq.Array(l.Scopes), metaJSON, l.UpdatedAt)
	if err != nil {
		return accountlink.ExternalAccountLink{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return accountlink.ExternalAccountLink{}, sql.ErrNoRows
	}
	return l, nil
}

func (s *Store) getAccountLinkByID(ctx context.Context, id string) (accountlink.ExternalAccountLink, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountLinkColumns+` FROM account_links WHERE id = $1`, id)
	return scanAccountLink(row)
}

func (s *Store) GetAccountLink(ctx context.Context, userID, provider string) (accountlink.ExternalAccountLink, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+accountLinkColumns+` FROM account_links WHERE user_id = $1 AND provider = $2
	`, userID, provider)
	l, err := scanAccountLink(row)
	if err == sql.ErrNoRows {
		return accountlink.ExternalAccountLink{}, false, nil
	}
	if err != nil {
		return accountlink.ExternalAccountLink{}, false, err
	}
	return l, true, nil
}

func (s *Store) ListAccountLinks(ctx context.Context, userID string) ([]accountlink.ExternalAccountLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+accountLinkColumns+` FROM account_links WHERE user_id = $1 ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []accountlink.ExternalAccountLink
	for rows.Next() {
		l, err := scanAccountLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanAccountLink(row rowScanner) (accountlink.ExternalAccountLink, error) {
	var (
		l         accountlink.ExternalAccountLink
		expiresAt sql.NullTime
		tokenType sql.NullString
		metaJSON  []byte
	)
	if err := row.Scan(&l.ID, &l.UserID, &l.Provider, &l.ExternalUserID, &l.AccessToken, &l.RefreshToken,
		&expiresAt, &tokenType, pq.Array(&l.Scopes), &metaJSON, &l.ConnectedAt, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return accountlink.ExternalAccountLink{}, err
	}
	l.AccessTokenExpiresAt = fromNullTime(expiresAt)
	l.TokenType = fromNullString(tokenType)
	if len(metaJSON) > 0 {
		_ = json.Unmarshal(metaJSON, &l.TokenMetadata)
	}
	return l, nil
}
