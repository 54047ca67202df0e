package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/r3e-network/vinylwatch/internal/app/domain/listing"
)

const listingColumns = `id, provider, external_id, url, title, normalized_title, price, currency, condition,
	 seller, location, status, discogs_release_id, discogs_master_id, first_seen_at, last_seen_at, raw,
	 created_at, updated_at`

func (s *Store) GetListingByProviderExternalID(ctx context.Context, provider, externalID string) (listing.Listing, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+listingColumns+` FROM listings WHERE provider = $1 AND external_id = $2
	`, provider, externalID)
	l, err := scanListing(row)
	if err == sql.ErrNoRows {
		return listing.Listing{}, false, nil
	}
	if err != nil {
		return listing.Listing{}, false, err
	}
	return l, true, nil
}

func (s *Store) GetListing(ctx context.Context, id string) (listing.Listing, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id)
	return scanListing(row)
}

func (s *Store) CreateListing(ctx context.Context, l listing.Listing) (listing.Listing, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	l.CreatedAt, l.UpdatedAt = now, now

	rawJSON, err := json.Marshal(l.Raw)
	if err != nil {
		return listing.Listing{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO listings
			(id, provider, external_id, url, title, normalized_title, price, currency, condition,
			 seller, location, status, discogs_release_id, discogs_master_id, first_seen_at, last_seen_at, raw,
			 created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`, l.ID, string(l.Provider), l.ExternalID, l.URL, l.Title, l.NormalizedTitle, l.Price, l.Currency,
		toNullString(l.Condition), toNullString(l.Seller), toNullString(l.Location), string(l.Status),
		toNullInt(l.DiscogsReleaseID), toNullInt(l.DiscogsMasterID), l.FirstSeenAt, l.LastSeenAt, rawJSON,
		l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return listing.Listing{}, err
	}
	return l, nil
}

func (s *Store) UpdateListing(ctx context.Context, l listing.Listing) (listing.Listing, error) {
	existing, err := s.GetListing(ctx, l.ID)
	if err != nil {
		return listing.Listing{}, err
	}
	l.CreatedAt = existing.CreatedAt
	l.FirstSeenAt = existing.FirstSeenAt
	l.UpdatedAt = time.Now().UTC()

	rawJSON, err := json.Marshal(l.Raw)
	if err != nil {
		return listing.Listing{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE listings
		SET url=$2, title=$3, normalized_title=$4, price=$5, currency=$6, condition=$7, seller=$8, location=$9,
		    status=$10, discogs_release_id=$11, discogs_master_id=$12, last_seen_at=$13, raw=$14, updated_at=$15
		WHERE id = $1
	`, l.ID, l.URL, l.Title, l.NormalizedTitle, l.Price, l.Currency, toNullString(l.Condition),
		toNullString(l.Seller), toNullString(l.Location), string(l.Status),
		toNullInt(l.DiscogsReleaseID), toNullInt(l.DiscogsMasterID), l.LastSeenAt, rawJSON, l.UpdatedAt)
	if err != nil {
		return listing.Listing{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return listing.Listing{}, sql.ErrNoRows
	}
	return l, nil
}

func (s *Store) ListRecentListings(ctx context.Context, since time.Time, limit int) ([]listing.Listing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+listingColumns+` FROM listings WHERE last_seen_at >= $1 ORDER BY last_seen_at DESC LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []listing.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanListing(row rowScanner) (listing.Listing, error) {
	var (
		l          listing.Listing
		condition  sql.NullString
		seller     sql.NullString
		location   sql.NullString
		releaseID  sql.NullInt64
		masterID   sql.NullInt64
		rawJSON    []byte
		provider   string
		status     string
	)
	if err := row.Scan(&l.ID, &provider, &l.ExternalID, &l.URL, &l.Title, &l.NormalizedTitle, &l.Price, &l.Currency,
		&condition, &seller, &location, &status, &releaseID, &masterID, &l.FirstSeenAt, &l.LastSeenAt, &rawJSON,
		&l.CreatedAt, &l.UpdatedAt); err != nil {
		return listing.Listing{}, err
	}
	l.Provider = listing.Provider(provider)
	l.Status = listing.Status(status)
	l.Condition = fromNullString(condition)
	l.Seller = fromNullString(seller)
	l.Location = fromNullString(location)
	l.DiscogsReleaseID = fromNullInt(releaseID)
	l.DiscogsMasterID = fromNullInt(masterID)
	if len(rawJSON) > 0 {
		_ = json.Unmarshal(rawJSON, &l.Raw)
	}
	return l, nil
}
