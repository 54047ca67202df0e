package accountlink

import "time"

// ExternalAccountLink binds a user to their account on an external
// marketplace provider, holding the OAuth token material (always encrypted
// at rest via the token vault). Unique by (user_id, provider).
type ExternalAccountLink struct {
	ID                   string
	UserID               string
	Provider             string
	ExternalUserID       string
	AccessToken          string
	RefreshToken         string
	AccessTokenExpiresAt *time.Time
	TokenType            string
	Scopes               []string
	TokenMetadata        map[string]string
	ConnectedAt          time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
