// Package search implements the ad-hoc, synchronous multi-provider search
// that lets a user see results immediately instead of waiting for the rule
// scheduler's next tick. Grounded on the original's run_search/
// save_search_alert (app/services/search.py): fan out to every requested
// (or all supported) provider, filter by price/condition, sort and
// paginate, then optionally persist the query as a watch rule.
package search

import (
	"context"
	"sort"

	"github.com/r3e-network/vinylwatch/internal/app/domain/rule"
	"github.com/r3e-network/vinylwatch/internal/app/services/ingest"
	"github.com/r3e-network/vinylwatch/internal/app/services/provider"
	"github.com/r3e-network/vinylwatch/internal/app/services/rules"
	"github.com/r3e-network/vinylwatch/pkg/logger"
)

// defaultProviders is used when a Query names none explicitly.
var defaultProviders = []string{"discogs", "ebay"}

// Query is an ad-hoc search request, independent of any stored watch rule.
type Query struct {
	Keywords     []string
	Providers    []string
	MinPrice     *float64
	MaxPrice     *float64
	MinCondition string
	Currency     string
	Page         int
	PageSize     int
}

// Result is one listing surfaced by a search, carrying its originating
// provider id before ingest assigns a canonical listing id.
type Result struct {
	Provider         string
	ExternalID       string
	URL              string
	Title            string
	Price            float64
	Currency         string
	Condition        string
	Seller           string
	Location         string
	DiscogsReleaseID *int
}

// Response is the paginated outcome of a Search call, including per-provider
// failures: one provider erroring never fails the whole search.
type Response struct {
	Items             []Result
	Page              int
	PageSize          int
	Total             int
	ProvidersSearched []string
	ProviderErrors    map[string]string
}

// Service runs ad-hoc searches directly against provider.Factory, bypassing
// the stored-listing ingest pipeline.
type Service struct {
	Providers  *provider.Factory
	Rules      *rules.Service
	LogSinkFor func(userID, providerName string) provider.RequestLogSink
	Log        *logger.Logger
}

// New builds a search.Service.
func New(providers *provider.Factory, rulesSvc *rules.Service, logSinkFor func(userID, providerName string) provider.RequestLogSink, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("search")
	}
	return &Service{Providers: providers, Rules: rulesSvc, LogSinkFor: logSinkFor, Log: log}
}

func resolveProviders(q Query) []string {
	if len(q.Providers) > 0 {
		return q.Providers
	}
	return defaultProviders
}

func passesFilters(r Result, q Query) bool {
	if q.MinPrice != nil && r.Price < *q.MinPrice {
		return false
	}
	if q.MaxPrice != nil && r.Price > *q.MaxPrice {
		return false
	}
	return ingest.ConditionSatisfies(q.MinCondition, r.Condition)
}

// Search fans q out to every resolved provider, filters and paginates the
// combined results. Page/PageSize default to 1/25 when unset.
func (s *Service) Search(ctx context.Context, userID string, q Query) (Response, error) {
	page := q.Page
	if page < 1 {
		page = 1
	}
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = 25
	}

	providers := resolveProviders(q)
	providersSearched := make([]string, 0, len(providers))
	providerErrors := map[string]string{}
	var all []Result

	perProviderLimit := page * pageSize

	for _, name := range providers {
		providersSearched = append(providersSearched, name)

		sink := provider.NoopRequestLogSink
		if s.LogSinkFor != nil {
			sink = s.LogSinkFor(userID, name)
		}
		client, err := s.Providers.Build(name, sink)
		if err != nil {
			s.Log.WithError(err).WithField("provider", name).Warn("search: unknown provider")
			providerErrors[name] = err.Error()
			continue
		}

		found, err := client.Search(ctx, provider.Query{
			Keywords: q.Keywords,
			Sources:  []string{name},
			Currency: q.Currency,
			Limit:    perProviderLimit,
		})
		if err != nil {
			s.Log.WithError(err).WithField("provider", name).Warn("search: provider search failed")
			providerErrors[name] = err.Error()
			continue
		}

		for _, pl := range found {
			all = append(all, Result{
				Provider:         pl.Provider,
				ExternalID:       pl.ExternalID,
				URL:              pl.URL,
				Title:            pl.Title,
				Price:            pl.Price,
				Currency:         pl.Currency,
				Condition:        pl.Condition,
				Seller:           pl.Seller,
				Location:         pl.Location,
				DiscogsReleaseID: pl.DiscogsReleaseID,
			})
		}
	}

	var filtered []Result
	for _, r := range all {
		if passesFilters(r, q) {
			filtered = append(filtered, r)
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].Price != filtered[j].Price {
			return filtered[i].Price < filtered[j].Price
		}
		if filtered[i].Provider != filtered[j].Provider {
			return filtered[i].Provider < filtered[j].Provider
		}
		return filtered[i].ExternalID < filtered[j].ExternalID
	})

	start := (page - 1) * pageSize
	if start > len(filtered) {
		start = len(filtered)
	}
	end := start + pageSize
	if end > len(filtered) {
		end = len(filtered)
	}

	return Response{
		Items:             filtered[start:end],
		Page:              page,
		PageSize:          pageSize,
		Total:             len(filtered),
		ProvidersSearched: providersSearched,
		ProviderErrors:    providerErrors,
	}, nil
}

// SaveAsRule persists q as a watch rule, the Go counterpart to the
// original's save_search_alert: the ad-hoc query becomes a recurring one.
func (s *Service) SaveAsRule(ctx context.Context, userID, name string, q Query, pollIntervalSeconds int) (rule.WatchRule, error) {
	return s.Rules.Create(ctx, userID, rule.WatchRule{
		Name: name,
		Query: rule.Query{
			Keywords:     q.Keywords,
			Sources:      resolveProviders(q),
			MaxPrice:     q.MaxPrice,
			MinCondition: q.MinCondition,
			Currency:     q.Currency,
		},
		PollIntervalSeconds: pollIntervalSeconds,
	})
}
