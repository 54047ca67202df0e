package provider

import (
	"fmt"
	"net/http"

	"github.com/r3e-network/vinylwatch/infrastructure/ratelimit"
)

// Config holds the credentials and rate-limit settings for every supported
// provider. Zero-valued fields for a provider that is never exercised are
// harmless.
type Config struct {
	DiscogsToken     string
	DiscogsUserAgent string

	EBayClientID     string
	EBayClientSecret string
	EBayScope        string
	EBayMarketplace  string

	RateLimit ratelimit.RateLimitConfig
}

// Factory builds Client instances by provider name, each bound to a
// caller-supplied request-log sink.
type Factory struct {
	cfg Config
}

// NewFactory builds a provider Factory.
func NewFactory(cfg Config) *Factory {
	return &Factory{cfg: cfg}
}

// Build returns a Client for the named provider (discogs, ebay, mock).
func (f *Factory) Build(name string, sink RequestLogSink) (Client, error) {
	switch name {
	case "discogs":
		httpClient := ratelimit.NewRateLimitedClient(http.DefaultClient, f.cfg.RateLimit)
		return NewDiscogsClient(httpClient, f.cfg.DiscogsToken, f.cfg.DiscogsUserAgent, sink), nil
	case "ebay":
		httpClient := ratelimit.NewRateLimitedClient(http.DefaultClient, f.cfg.RateLimit)
		return NewEBayClient(httpClient, f.cfg.EBayClientID, f.cfg.EBayClientSecret, f.cfg.EBayScope, f.cfg.EBayMarketplace, sink), nil
	case "mock":
		return NewMockClient(sink), nil
	default:
		return nil, fmt.Errorf("provider: unknown source %q", name)
	}
}
