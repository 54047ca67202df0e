package rule

import "time"

// Query is the structured form of WatchRule.query. Even though it is stored
// as JSON, every recognized key is modeled explicitly here and validated at
// the boundary rather than passed through as a schemaless map.
type Query struct {
	Keywords     []string `json:"keywords"`
	Sources      []string `json:"sources"`
	MaxPrice     *float64 `json:"max_price,omitempty"`
	MinCondition string   `json:"min_condition,omitempty"`
	Currency     string   `json:"currency,omitempty"`
}

// WatchRule is a persistent saved search owned by a user.
type WatchRule struct {
	ID                  string
	UserID              string
	Name                string
	Query               Query
	IsActive            bool
	PollIntervalSeconds int
	LastRunAt           *time.Time
	NextRunAt           *time.Time
	ClaimToken          string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// MinPollIntervalSeconds and MaxPollIntervalSeconds bound WatchRule.poll_interval_seconds.
const (
	MinPollIntervalSeconds = 30
	MaxPollIntervalSeconds = 86400
)
