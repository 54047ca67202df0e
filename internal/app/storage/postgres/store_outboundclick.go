package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/r3e-network/vinylwatch/internal/app/domain/outboundclick"
)

func (s *Store) CreateOutboundClick(ctx context.Context, c outboundclick.OutboundClick) (outboundclick.OutboundClick, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outbound_clicks (id, user_id, listing_id, provider, referrer, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, c.ID, c.UserID, c.ListingID, c.Provider, c.Referrer, c.CreatedAt)
	if err != nil {
		return outboundclick.OutboundClick{}, err
	}
	return c, nil
}
