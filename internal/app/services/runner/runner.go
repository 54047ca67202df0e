// Package runner executes a single watch rule against its configured
// provider sources and feeds matching listings through the ingest pipeline.
package runner

import (
	"context"
	"strings"
	"time"

	"github.com/r3e-network/vinylwatch/infrastructure/cache"
	"github.com/r3e-network/vinylwatch/internal/app/domain/event"
	"github.com/r3e-network/vinylwatch/internal/app/domain/listing"
	"github.com/r3e-network/vinylwatch/internal/app/domain/rule"
	"github.com/r3e-network/vinylwatch/internal/app/services/ingest"
	"github.com/r3e-network/vinylwatch/internal/app/services/provider"
	"github.com/r3e-network/vinylwatch/internal/app/storage"
	"github.com/r3e-network/vinylwatch/pkg/logger"
)

// searchCacheTTL bounds how long a (source, currency, keywords) provider search is
// reused across rules scheduled in the same tick, so rules sharing keywords
// don't each burn a separate rate-limited provider request.
const searchCacheTTL = 20 * time.Second

// Summary reports the outcome of a single rule run, per §4.4.2.
type Summary struct {
	RuleID           string
	Fetched          int
	ListingsCreated  int
	SnapshotsCreated int
	MatchesCreated   int
}

// Runner executes a single rule.
type Runner struct {
	Users        storage.UserStore
	Ingest       *ingest.Store
	Matches      *ingest.MatchCreator
	ReleaseMatch *ingest.ReleaseMatcher
	Mapper       *ingest.Mapper
	Providers    *provider.Factory
	LogSinkFor   func(userID, providerName string) provider.RequestLogSink
	// OnMatchEvent, if set, is called for every NEW_MATCH event produced
	// during the run (rule-path and release-path alike), feeding the
	// notification fan-out without coupling ingest to notify directly.
	OnMatchEvent func(ctx context.Context, e event.Event)
	Log          *logger.Logger

	searchCache *cache.TTLCache
}

// New builds a Runner. logSinkFor returns a request-log sink bound to a
// single (user, provider) invocation.
func New(users storage.UserStore, ingestStore *ingest.Store, matches *ingest.MatchCreator, releaseMatch *ingest.ReleaseMatcher, mapper *ingest.Mapper, providers *provider.Factory, logSinkFor func(userID, providerName string) provider.RequestLogSink, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.NewDefault("rule-runner")
	}
	return &Runner{
		Users:        users,
		Ingest:       ingestStore,
		Matches:      matches,
		ReleaseMatch: releaseMatch,
		Mapper:       mapper,
		Providers:    providers,
		LogSinkFor:   logSinkFor,
		Log:          log,
		searchCache:  cache.NewTTLCache(searchCacheTTL),
	}
}

// Run executes ruleRow end to end. Per §4.4.2: load the user, skip inactive
// rules, dedupe/lower-case the rule's sources, invoke each provider, and
// flow every returned listing through ingest, release enrichment, and match
// creation. A failure inside one source, or inside ingest for one listing,
// never aborts the rest.
func (r *Runner) Run(ctx context.Context, ruleRow rule.WatchRule) (Summary, error) {
	summary := Summary{RuleID: ruleRow.ID}
	if !ruleRow.IsActive {
		return summary, nil
	}

	u, err := r.Users.GetUser(ctx, ruleRow.UserID)
	if err != nil {
		return summary, err
	}

	limit := 50
	for _, source := range dedupeSources(ruleRow.Query.Sources) {
		summary = r.runSource(ctx, ruleRow, u.Currency, source, limit, summary)
	}

	return summary, nil
}

func (r *Runner) runSource(ctx context.Context, ruleRow rule.WatchRule, userCurrency, source string, limit int, summary Summary) Summary {
	query := provider.Query{
		Keywords: ruleRow.Query.Keywords,
		Sources:  []string{source},
		Currency: ruleRow.Query.Currency,
		Seed:     ruleRow.ID,
		Limit:    limit,
	}

	cacheKey := source + "|" + ruleRow.Query.Currency + "|" + strings.Join(ruleRow.Query.Keywords, ",")

	var listings []provider.Listing
	if cached, ok := r.searchCache.Get(ctx, cacheKey); ok {
		listings, _ = cached.([]provider.Listing)
	} else {
		sink := provider.NoopRequestLogSink
		if r.LogSinkFor != nil {
			sink = r.LogSinkFor(ruleRow.UserID, source)
		}

		client, err := r.Providers.Build(source, sink)
		if err != nil {
			r.Log.WithError(err).WithField("rule_id", ruleRow.ID).WithField("source", source).Warn("unknown provider source")
			return summary
		}

		fetched, err := client.Search(ctx, query)
		if err != nil {
			r.Log.WithError(err).WithField("rule_id", ruleRow.ID).WithField("source", source).Warn("provider search failed")
			return summary
		}
		listings = fetched
		r.searchCache.Set(ctx, cacheKey, listings)
	}

	summary.Fetched += len(listings)

	for _, pl := range listings {
		summary = r.ingestOne(ctx, ruleRow, userCurrency, pl, summary)
	}
	return summary
}

func (r *Runner) ingestOne(ctx context.Context, ruleRow rule.WatchRule, userCurrency string, pl provider.Listing, summary Summary) Summary {
	result, err := r.Ingest.UpsertListing(ctx, ingest.UpsertPayload{
		Provider:         providerType(pl.Provider),
		ExternalID:       pl.ExternalID,
		URL:              pl.URL,
		Title:            pl.Title,
		Price:            pl.Price,
		Currency:         pl.Currency,
		Condition:        pl.Condition,
		Seller:           pl.Seller,
		Location:         pl.Location,
		DiscogsReleaseID: pl.DiscogsReleaseID,
		Raw:              pl.Raw,
	})
	if err != nil {
		r.Log.WithError(err).WithField("rule_id", ruleRow.ID).WithField("external_id", pl.ExternalID).Warn("ingest listing failed")
		return summary
	}

	if result.CreatedListing {
		summary.ListingsCreated++
	}
	if result.CreatedSnapshot {
		summary.SnapshotsCreated++
	}

	l := result.Listing

	if l.DiscogsReleaseID == nil && r.Mapper != nil {
		decision, err := r.Mapper.Map(ctx, ruleRow.UserID, l)
		if err != nil {
			r.Log.WithError(err).WithField("listing_id", l.ID).Warn("mapper enrichment failed")
		} else if decision.Matched {
			l.DiscogsReleaseID = decision.DiscogsReleaseID
			l.DiscogsMasterID = decision.DiscogsMasterID
			if l.Raw == nil {
				l.Raw = map[string]any{}
			}
			l.Raw["matching"] = map[string]any{"discogs_mapping": decision}
			if updated, err := r.Ingest.Listings.UpdateListing(ctx, l); err == nil {
				l = updated
			}
		}
	}

	if r.ReleaseMatch != nil {
		releaseEvents, err := r.ReleaseMatch.MatchListing(ctx, ruleRow.UserID, l)
		if err != nil {
			r.Log.WithError(err).WithField("listing_id", l.ID).Warn("release match failed")
		}
		for _, e := range releaseEvents {
			r.notify(ctx, e)
		}
	}

	if !matchesRule(ruleRow, l, userCurrency) {
		return summary
	}

	outcome, err := r.Matches.CreateMatch(ctx, ruleRow, l.ID, nil)
	if err != nil {
		r.Log.WithError(err).WithField("rule_id", ruleRow.ID).WithField("listing_id", l.ID).Warn("match creation failed")
		return summary
	}
	if outcome.MatchCreated {
		summary.MatchesCreated++
		r.notify(ctx, outcome.Event)
	}

	return summary
}

func (r *Runner) notify(ctx context.Context, e event.Event) {
	if r.OnMatchEvent == nil {
		return
	}
	r.OnMatchEvent(ctx, e)
}

func providerType(name string) listing.Provider {
	return listing.Provider(strings.ToLower(name))
}

func matchesRule(ruleRow rule.WatchRule, l listing.Listing, userCurrency string) bool {
	return ingest.RuleMatchesListing(ruleRow, l, l.NormalizedTitle, userCurrency)
}

func dedupeSources(sources []string) []string {
	seen := make(map[string]bool, len(sources))
	var out []string
	for _, s := range sources {
		lower := strings.ToLower(strings.TrimSpace(s))
		if lower == "" || seen[lower] {
			continue
		}
		seen[lower] = true
		out = append(out, lower)
	}
	return out
}
