package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/r3e-network/vinylwatch/infrastructure/ratelimit"
)

const (
	ebayOAuthEndpoint  = "https://api.ebay.com/identity/v1/oauth2/token"
	ebayBrowseEndpoint = "https://api.ebay.com/buy/browse/v1/item_summary/search"
)

// EBayClient implements Client against the eBay Browse API, obtaining a
// client-credentials bearer token before each search (cached until expiry).
type EBayClient struct {
	httpClient   *ratelimit.RateLimitedClient
	clientID     string
	clientSecret string
	scope        string
	marketplace  string
	sink         RequestLogSink
	policy       backoffPolicy

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewEBayClient builds an eBay Browse client.
func NewEBayClient(httpClient *ratelimit.RateLimitedClient, clientID, clientSecret, scope, marketplace string, sink RequestLogSink) *EBayClient {
	return &EBayClient{
		httpClient:   httpClient,
		clientID:     clientID,
		clientSecret: clientSecret,
		scope:        scope,
		marketplace:  marketplace,
		sink:         sink,
		policy:       defaultBackoffPolicy(),
	}
}

func (c *EBayClient) Name() string { return "ebay" }

func (c *EBayClient) Search(ctx context.Context, q Query) ([]Listing, error) {
	counting := newCountingSink(c.sink)

	token, err := c.bearerToken(ctx, counting)
	if err != nil {
		if !counting.loggedAny() {
			c.sink.LogRequest(ctx, RequestLog{Provider: c.Name(), Endpoint: ebayOAuthEndpoint, Method: http.MethodPost, Error: err.Error()})
		}
		return nil, &Error{Message: err.Error(), Endpoint: ebayOAuthEndpoint, Method: http.MethodPost}
	}

	limit := q.Limit
	if limit <= 0 || limit > 200 {
		limit = 200
	}

	query := url.Values{}
	query.Set("q", strings.Join(q.Keywords, " "))
	query.Set("limit", strconv.Itoa(limit))
	endpoint := ebayBrowseEndpoint + "?" + query.Encode()

	result := doWithRetry(ctx, counting, c.Name(), ebayBrowseEndpoint, http.MethodGet, c.policy, func(ctx context.Context) attemptResult {
		return c.searchAttempt(ctx, endpoint, token)
	})

	if result.err != nil {
		if !counting.loggedAny() {
			c.sink.LogRequest(ctx, RequestLog{Provider: c.Name(), Endpoint: ebayBrowseEndpoint, Method: http.MethodGet, Error: result.err.Error()})
		}
		return nil, &Error{Message: result.err.Error(), Endpoint: ebayBrowseEndpoint, Method: http.MethodGet}
	}
	if result.resp == nil {
		return nil, &Error{Message: "no response", Endpoint: ebayBrowseEndpoint, Method: http.MethodGet}
	}
	defer result.resp.Body.Close()

	if result.resp.StatusCode >= 400 {
		status := result.resp.StatusCode
		return nil, &Error{Message: "ebay browse search failed", StatusCode: &status, Endpoint: ebayBrowseEndpoint, Method: http.MethodGet}
	}

	body, err := io.ReadAll(result.resp.Body)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("read body: %v", err), Endpoint: ebayBrowseEndpoint, Method: http.MethodGet}
	}

	var decoded ebayBrowseResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &Error{Message: fmt.Sprintf("decode response: %v", err), Endpoint: ebayBrowseEndpoint, Method: http.MethodGet}
	}

	listings := make([]Listing, 0, len(decoded.ItemSummaries))
	for _, item := range decoded.ItemSummaries {
		if item.ItemID == "" || item.Title == "" || item.ItemWebURL == "" || item.Price.Value == "" {
			continue
		}
		price, err := strconv.ParseFloat(item.Price.Value, 64)
		if err != nil {
			continue
		}
		var condition, seller, location string
		condition = item.Condition
		if item.Seller.Username != "" {
			seller = item.Seller.Username
		}
		if item.ItemLocation.Country != "" {
			location = item.ItemLocation.Country
		}
		listings = append(listings, Listing{
			Provider:   c.Name(),
			ExternalID: item.ItemID,
			URL:        item.ItemWebURL,
			Title:      item.Title,
			Price:      price,
			Currency:   item.Price.Currency,
			Condition:  condition,
			Seller:     seller,
			Location:   location,
			Raw:        map[string]any{"itemId": item.ItemID, "title": item.Title},
		})
	}
	return listings, nil
}

func (c *EBayClient) bearerToken(ctx context.Context, sink *countingSink) (string, error) {
	c.mu.Lock()
	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	result := doWithRetry(ctx, sink, c.Name(), ebayOAuthEndpoint, http.MethodPost, c.policy, func(ctx context.Context) attemptResult {
		return c.tokenAttempt(ctx)
	})
	if result.err != nil {
		return "", result.err
	}
	if result.resp == nil {
		return "", fmt.Errorf("no response")
	}
	defer result.resp.Body.Close()

	if result.resp.StatusCode >= 400 {
		return "", fmt.Errorf("ebay oauth failed: %d", result.resp.StatusCode)
	}

	body, err := io.ReadAll(result.resp.Body)
	if err != nil {
		return "", fmt.Errorf("read oauth body: %w", err)
	}

	var decoded ebayTokenResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("decode oauth body: %w", err)
	}

	c.mu.Lock()
	c.token = decoded.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(decoded.ExpiresIn-30) * time.Second)
	c.mu.Unlock()

	return decoded.AccessToken, nil
}

func (c *EBayClient) tokenAttempt(ctx context.Context) attemptResult {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", c.scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ebayOAuthEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return attemptResult{err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	creds := base64.StdEncoding.EncodeToString([]byte(c.clientID + ":" + c.clientSecret))
	req.Header.Set("Authorization", "Basic "+creds)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return attemptResult{err: err}
	}

	status := resp.StatusCode
	result := attemptResult{resp: resp, statusCode: &status}
	result.retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))

	if retryableStatus(status) {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		result.resp = nil
		result.err = fmt.Errorf("ebay oauth responded %d", status)
	}
	return result
}

func (c *EBayClient) searchAttempt(ctx context.Context, endpoint, token string) attemptResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return attemptResult{err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-EBAY-C-MARKETPLACE-ID", c.marketplace)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return attemptResult{err: err}
	}

	status := resp.StatusCode
	result := attemptResult{resp: resp, statusCode: &status}
	result.retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	result.rateLimit = resp.Header.Get("x-ebay-c-remaining-request-limit")
	result.requestID = resp.Header.Get("x-ebay-c-request-id")

	if retryableStatus(status) {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		result.resp = nil
		result.err = fmt.Errorf("ebay browse responded %d", status)
	}
	return result
}

type ebayTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type ebayBrowseResponse struct {
	ItemSummaries []struct {
		ItemID     string `json:"itemId"`
		Title      string `json:"title"`
		ItemWebURL string `json:"itemWebUrl"`
		Condition  string `json:"condition"`
		Price      struct {
			Value    string `json:"value"`
			Currency string `json:"currency"`
		} `json:"price"`
		Seller struct {
			Username string `json:"username"`
		} `json:"seller"`
		ItemLocation struct {
			Country string `json:"country"`
		} `json:"itemLocation"`
	} `json:"itemSummaries"`
}
