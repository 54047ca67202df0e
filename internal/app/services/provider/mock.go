package provider

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
)

// MockClient produces deterministic synthetic listings seeded from
// Query.Seed (typically the originating rule id) for tests and local
// development without network access.
type MockClient struct {
	sink RequestLogSink
}

// NewMockClient builds a mock provider client.
func NewMockClient(sink RequestLogSink) *MockClient {
	return &MockClient{sink: sink}
}

func (c *MockClient) Name() string { return "mock" }

func (c *MockClient) Search(ctx context.Context, q Query) ([]Listing, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 5
	}

	seedBase := q.Seed
	if seedBase == "" {
		seedBase = strings.Join(q.Keywords, " ")
	}

	listings := make([]Listing, 0, limit)
	for i := 0; i < limit; i++ {
		seed := fmt.Sprintf("%s-%d", seedBase, i)
		h := fnv.New32a()
		_, _ = h.Write([]byte(seed))
		n := h.Sum32()

		title := strings.TrimSpace(strings.Join(q.Keywords, " "))
		if title == "" {
			title = "untitled release"
		}
		price := float64(n%9000) / 100.0

		listings = append(listings, Listing{
			Provider:   c.Name(),
			ExternalID: fmt.Sprintf("mock-%d", n),
			URL:        fmt.Sprintf("https://mock.invalid/listing/%d", n),
			Title:      fmt.Sprintf("%s (copy %d)", title, i+1),
			Price:      price,
			Currency:   q.Currency,
			Condition:  "VG+",
			Seller:     "mock-seller",
			Raw:        map[string]any{"seed": seed},
		})
	}

	if c.sink != nil {
		c.sink.LogRequest(ctx, RequestLog{
			Provider: c.Name(),
			Endpoint: "mock://search",
			Method:   "GET",
			Meta:     map[string]string{"count": fmt.Sprintf("%d", len(listings))},
		})
	}
	return listings, nil
}
