package ingest

import (
	"strings"

	"github.com/r3e-network/vinylwatch/internal/app/domain/listing"
	"github.com/r3e-network/vinylwatch/internal/app/domain/rule"
)

// RuleMatchesListing implements §4.3.1: predicate AND of source, max-price,
// and keyword containment. normalizedTitle is the listing's pre-computed
// NormalizeTitle(title).
func RuleMatchesListing(r rule.WatchRule, l listing.Listing, normalizedTitle, userCurrency string) bool {
	if !sourceAllowed(r.Query.Sources, l.Provider) {
		return false
	}

	if r.Query.MaxPrice != nil {
		currency := r.Query.Currency
		if currency == "" {
			currency = userCurrency
		}
		if currency == "" || !strings.EqualFold(currency, l.Currency) {
			return false
		}
		if l.Price > *r.Query.MaxPrice {
			return false
		}
	}

	for _, kw := range r.Query.Keywords {
		trimmed := strings.TrimSpace(kw)
		if trimmed == "" {
			continue
		}
		if !strings.Contains(normalizedTitle, strings.ToLower(trimmed)) {
			return false
		}
	}

	return true
}

func sourceAllowed(sources []string, provider listing.Provider) bool {
	for _, s := range sources {
		if strings.EqualFold(s, string(provider)) {
			return true
		}
	}
	return false
}
