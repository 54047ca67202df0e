package snapshot

import "time"

// PriceSnapshot is an append-only historical price observation for a listing.
type PriceSnapshot struct {
	ID         string
	ListingID  string
	Price      float64
	Currency   string
	RecordedAt time.Time
}
