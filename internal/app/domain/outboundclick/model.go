package outboundclick

import "time"

// OutboundClick records a user following an outbound affiliate link to a
// listing's provider page.
type OutboundClick struct {
	ID        string
	UserID    string
	ListingID string
	Provider  string
	Referrer  string
	CreatedAt time.Time
}
