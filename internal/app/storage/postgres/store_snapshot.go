package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/r3e-network/vinylwatch/internal/app/domain/snapshot"
)

func (s *Store) CreateSnapshot(ctx context.Context, snap snapshot.PriceSnapshot) (snapshot.PriceSnapshot, error) {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.RecordedAt.IsZero() {
		snap.RecordedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO price_snapshots (id, listing_id, price, currency, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
	`, snap.ID, snap.ListingID, snap.Price, snap.Currency, snap.RecordedAt)
	if err != nil {
		return snapshot.PriceSnapshot{}, err
	}
	return snap, nil
}

func (s *Store) ListSnapshots(ctx context.Context, listingID string) ([]snapshot.PriceSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, listing_id, price, currency, recorded_at
		FROM price_snapshots WHERE listing_id = $1 ORDER BY recorded_at
	`, listingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []snapshot.PriceSnapshot
	for rows.Next() {
		var snap snapshot.PriceSnapshot
		if err := rows.Scan(&snap.ID, &snap.ListingID, &snap.Price, &snap.Currency, &snap.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}
