// Package outbound implements the affiliate-link redirect described in §6:
// GET /outbound/ebay/{listing_id} records the click and rewrites the
// listing's URL with eBay affiliate parameters before the API layer issues
// its 307 redirect.
package outbound

import (
	"context"
	"net/url"

	"github.com/r3e-network/vinylwatch/internal/app/domain/outboundclick"
	"github.com/r3e-network/vinylwatch/internal/app/storage"
)

// ebayAffiliateParams are appended to the original listing URL, per §6.
var ebayAffiliateParams = map[string]string{
	"mkevt":  "1",
	"mkcid":  "1",
	"mkrid":  "711-53200-19255-0",
	"toolid": "10001",
}

// Service records outbound clicks and rewrites provider URLs for affiliate
// attribution.
type Service struct {
	Clicks   storage.OutboundClickStore
	CampID   string
	CustomID string
}

// New builds an outbound.Service. campID is the eBay campaign id (campid)
// appended to rewritten URLs when non-empty; customID is the optional eBay Partner
// Network customid passthrough.
func New(clicks storage.OutboundClickStore, campID, customID string) *Service {
	return &Service{Clicks: clicks, CampID: campID, CustomID: customID}
}

// RecordAndRewrite records the click and returns the affiliate-rewritten
// URL the caller should redirect to.
func (s *Service) RecordAndRewrite(ctx context.Context, userID, listingID, provider, referrer, listingURL string) (string, error) {
	if _, err := s.Clicks.CreateOutboundClick(ctx, outboundclick.OutboundClick{
		UserID:    userID,
		ListingID: listingID,
		Provider:  provider,
		Referrer:  referrer,
	}); err != nil {
		return "", err
	}
	return RewriteEBayURL(listingURL, s.CampID, s.CustomID)
}

// RewriteEBayURL appends the eBay affiliate query parameters to listingURL.
// campID and customID are omitted from the query when empty.
func RewriteEBayURL(listingURL, campID, customID string) (string, error) {
	u, err := url.Parse(listingURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range ebayAffiliateParams {
		q.Set(k, v)
	}
	if campID != "" {
		q.Set("campid", campID)
	}
	if customID != "" {
		q.Set("customid", customID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
