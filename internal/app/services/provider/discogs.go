package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/r3e-network/vinylwatch/infrastructure/ratelimit"
)

const discogsSearchEndpoint = "https://api.discogs.com/database/search"

// DiscogsClient implements Client against the Discogs database search API.
// Discogs search returns release-level metadata only; there is no price on
// these rows, so every listing carries Price 0.
type DiscogsClient struct {
	httpClient *ratelimit.RateLimitedClient
	token      string
	userAgent  string
	sink       RequestLogSink
	policy     backoffPolicy
}

// NewDiscogsClient builds a Discogs client. sink receives one RequestLog per
// HTTP attempt.
func NewDiscogsClient(httpClient *ratelimit.RateLimitedClient, token, userAgent string, sink RequestLogSink) *DiscogsClient {
	return &DiscogsClient{
		httpClient: httpClient,
		token:      token,
		userAgent:  userAgent,
		sink:       sink,
		policy:     defaultBackoffPolicy(),
	}
}

func (c *DiscogsClient) Name() string { return "discogs" }

func (c *DiscogsClient) Search(ctx context.Context, q Query) ([]Listing, error) {
	counting := newCountingSink(c.sink)

	perPage := q.Limit
	if perPage <= 0 || perPage > 50 {
		perPage = 50
	}

	query := url.Values{}
	query.Set("q", strings.Join(q.Keywords, " "))
	query.Set("type", "release")
	query.Set("per_page", strconv.Itoa(perPage))
	endpoint := discogsSearchEndpoint + "?" + query.Encode()

	result := doWithRetry(ctx, counting, c.Name(), discogsSearchEndpoint, http.MethodGet, c.policy, func(ctx context.Context) attemptResult {
		return c.attempt(ctx, endpoint)
	})

	if result.err != nil {
		if !counting.loggedAny() {
			c.sink.LogRequest(ctx, RequestLog{Provider: c.Name(), Endpoint: discogsSearchEndpoint, Method: http.MethodGet, Error: result.err.Error()})
		}
		return nil, &Error{Message: result.err.Error(), Endpoint: discogsSearchEndpoint, Method: http.MethodGet}
	}
	if result.resp == nil {
		return nil, &Error{Message: "no response", Endpoint: discogsSearchEndpoint, Method: http.MethodGet}
	}
	defer result.resp.Body.Close()

	if result.resp.StatusCode >= 400 {
		status := result.resp.StatusCode
		return nil, &Error{Message: "discogs search failed", StatusCode: &status, Endpoint: discogsSearchEndpoint, Method: http.MethodGet}
	}

	body, err := io.ReadAll(result.resp.Body)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("read body: %v", err), Endpoint: discogsSearchEndpoint, Method: http.MethodGet}
	}

	var decoded discogsSearchResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &Error{Message: fmt.Sprintf("decode response: %v", err), Endpoint: discogsSearchEndpoint, Method: http.MethodGet}
	}

	listings := make([]Listing, 0, len(decoded.Results))
	for _, r := range decoded.Results {
		raw := map[string]any{"id": r.ID, "uri": r.URI, "resource_url": r.ResourceURL, "title": r.Title}
		listingURL := r.URI
		if listingURL == "" {
			listingURL = r.ResourceURL
		}
		releaseID := r.ID
		listings = append(listings, Listing{
			Provider:         c.Name(),
			ExternalID:       strconv.Itoa(r.ID),
			URL:              listingURL,
			Title:            r.Title,
			Price:            0,
			Currency:         q.Currency,
			DiscogsReleaseID: &releaseID,
			Raw:              raw,
		})
	}
	return listings, nil
}

func (c *DiscogsClient) attempt(ctx context.Context, endpoint string) attemptResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return attemptResult{err: err}
	}
	req.Header.Set("Authorization", "Discogs token="+c.token)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return attemptResult{err: err}
	}

	status := resp.StatusCode
	result := attemptResult{resp: resp, statusCode: &status}
	result.retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	result.rateLimit = resp.Header.Get("X-Discogs-Ratelimit-Remaining")

	if retryableStatus(status) {
		// drain and close now; the caller does not consume this body on retry.
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		result.resp = nil
		result.err = fmt.Errorf("discogs responded %d", status)
	}
	return result
}

type discogsSearchResponse struct {
	Pagination struct {
		Pages int `json:"pages"`
		Page  int `json:"page"`
	} `json:"pagination"`
	Results []struct {
		ID          int    `json:"id"`
		URI         string `json:"uri"`
		ResourceURL string `json:"resource_url"`
		Title       string `json:"title"`
	} `json:"results"`
}
