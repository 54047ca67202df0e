package ingest

import (
	"context"
	"time"

	"github.com/r3e-network/vinylwatch/internal/app/domain/listing"
	"github.com/r3e-network/vinylwatch/internal/app/domain/snapshot"
	"github.com/r3e-network/vinylwatch/internal/app/storage"
)

// Store bundles the two storage dependencies the ingest pipeline needs.
type Store struct {
	Listings  storage.ListingStore
	Snapshots storage.SnapshotStore
}

// UpsertPayload is a provider search result normalized for storage.
type UpsertPayload struct {
	Provider         listing.Provider
	ExternalID       string
	URL              string
	Title            string
	Price            float64
	Currency         string
	Condition        string
	Seller           string
	Location         string
	DiscogsReleaseID *int
	DiscogsMasterID  *int
	Raw              map[string]any
}

// UpsertResult reports what UpsertListing did.
type UpsertResult struct {
	Listing          listing.Listing
	CreatedListing   bool
	CreatedSnapshot  bool
}

// UpsertListing implements §4.3's upsert_listing: look up by
// (provider, external_id); create with an initial snapshot if absent;
// otherwise refresh mutable fields and snapshot only on a price change.
func (s *Store) UpsertListing(ctx context.Context, p UpsertPayload) (UpsertResult, error) {
	normalizedTitle := NormalizeTitle(p.Title)

	existing, found, err := s.Listings.GetListingByProviderExternalID(ctx, string(p.Provider), p.ExternalID)
	if err != nil {
		return UpsertResult{}, err
	}

	now := time.Now().UTC()

	if !found {
		l := listing.Listing{
			Provider:         p.Provider,
			ExternalID:       p.ExternalID,
			URL:              p.URL,
			Title:            p.Title,
			NormalizedTitle:  normalizedTitle,
			Price:            p.Price,
			Currency:         p.Currency,
			Condition:        p.Condition,
			Seller:           p.Seller,
			Location:         p.Location,
			Status:           listing.StatusActive,
			DiscogsReleaseID: p.DiscogsReleaseID,
			DiscogsMasterID:  p.DiscogsMasterID,
			FirstSeenAt:      now,
			LastSeenAt:       now,
			Raw:              p.Raw,
		}
		created, err := s.Listings.CreateListing(ctx, l)
		if err != nil {
			return UpsertResult{}, err
		}
		if _, err := s.Snapshots.CreateSnapshot(ctx, snapshot.PriceSnapshot{
			ListingID:  created.ID,
			Price:      created.Price,
			Currency:   created.Currency,
			RecordedAt: now,
		}); err != nil {
			return UpsertResult{}, err
		}
		return UpsertResult{Listing: created, CreatedListing: true, CreatedSnapshot: true}, nil
	}

	priceChanged := existing.Price != p.Price

	existing.URL = p.URL
	existing.Title = p.Title
	existing.NormalizedTitle = normalizedTitle
	existing.Condition = p.Condition
	existing.Seller = p.Seller
	existing.Location = p.Location
	existing.Currency = p.Currency
	if p.DiscogsReleaseID != nil {
		existing.DiscogsReleaseID = p.DiscogsReleaseID
	}
	if p.DiscogsMasterID != nil {
		existing.DiscogsMasterID = p.DiscogsMasterID
	}
	existing.Price = p.Price
	existing.LastSeenAt = now

	updated, err := s.Listings.UpdateListing(ctx, existing)
	if err != nil {
		return UpsertResult{}, err
	}

	createdSnapshot := false
	if priceChanged {
		if _, err := s.Snapshots.CreateSnapshot(ctx, snapshot.PriceSnapshot{
			ListingID:  updated.ID,
			Price:      updated.Price,
			Currency:   updated.Currency,
			RecordedAt: now,
		}); err != nil {
			return UpsertResult{}, err
		}
		createdSnapshot = true
	}

	return UpsertResult{Listing: updated, CreatedListing: false, CreatedSnapshot: createdSnapshot}, nil
}
