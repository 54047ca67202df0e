package listing

import "time"

// Provider identifies a marketplace source.
type Provider string

const (
	ProviderDiscogs Provider = "discogs"
	ProviderEBay    Provider = "ebay"
	ProviderMock    Provider = "mock"
)

// Status tracks listing lifecycle.
type Status string

const (
	StatusActive  Status = "active"
	StatusEnded   Status = "ended"
	StatusUnknown Status = "unknown"
)

// Listing is a canonical, deduplicated marketplace offer, globally
// identified by (provider, external_id).
type Listing struct {
	ID               string
	Provider         Provider
	ExternalID       string
	URL              string
	Title            string
	NormalizedTitle  string
	Price            float64
	Currency         string
	Condition        string
	Seller           string
	Location         string
	Status           Status
	DiscogsReleaseID *int
	DiscogsMasterID  *int
	FirstSeenAt      time.Time
	LastSeenAt       time.Time
	Raw              map[string]any
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
