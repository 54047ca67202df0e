// Package provider implements the abstract marketplace-provider search
// contract and its concrete Discogs, eBay, and mock clients.
package provider

import (
	"context"
	"fmt"
)

// Query is the provider-agnostic search request. Seed carries the
// originating rule id so mock/test clients can produce deterministic,
// rule-scoped results.
type Query struct {
	Keywords []string
	Sources  []string
	Currency string
	Seed     string
	Limit    int
}

// Listing is a provider search result, prior to ingest normalization.
type Listing struct {
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
	Raw              map[string]any
}

// Error is a structured provider failure.
type Error struct {
	Message    string
	StatusCode *int
	Meta       map[string]string
	Endpoint   string
	Method     string
	DurationMS *int64
}

func (e *Error) Error() string {
	if e.StatusCode != nil {
		return fmt.Sprintf("provider: %s %s: %d %s", e.Method, e.Endpoint, *e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider: %s %s: %s", e.Method, e.Endpoint, e.Message)
}

// Client is the abstract provider search contract.
type Client interface {
	// Name identifies the provider (discogs, ebay, mock).
	Name() string
	Search(ctx context.Context, q Query) ([]Listing, error)
}

// RequestLog is one structured record of a single outbound attempt,
// including auth/token calls made on the client's behalf.
type RequestLog struct {
	Provider   string
	Endpoint   string
	Method     string
	StatusCode *int
	DurationMS int64
	Error      string
	Meta       map[string]string
}

// RequestLogSink receives one RequestLog per attempt.
type RequestLogSink interface {
	LogRequest(ctx context.Context, entry RequestLog)
}

// RequestLogSinkFunc adapts a function to RequestLogSink.
type RequestLogSinkFunc func(ctx context.Context, entry RequestLog)

func (f RequestLogSinkFunc) LogRequest(ctx context.Context, entry RequestLog) {
	f(ctx, entry)
}

// NoopRequestLogSink discards all entries.
var NoopRequestLogSink RequestLogSink = RequestLogSinkFunc(func(context.Context, RequestLog) {})

// countingSink wraps a sink and tracks whether any row was logged, so the
// caller can emit a single synthetic fallback row when the client logged
// nothing at all.
type countingSink struct {
	inner RequestLogSink
	count int
}

func newCountingSink(inner RequestLogSink) *countingSink {
	if inner == nil {
		inner = NoopRequestLogSink
	}
	return &countingSink{inner: inner}
}

func (c *countingSink) LogRequest(ctx context.Context, entry RequestLog) {
	c.count++
	c.inner.LogRequest(ctx, entry)
}

func (c *countingSink) loggedAny() bool {
	return c.count > 0
}
