package ingest

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/r3e-network/vinylwatch/internal/app/domain/listing"
	"github.com/r3e-network/vinylwatch/internal/app/domain/release"
	"github.com/r3e-network/vinylwatch/internal/app/storage"
)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true,
	"lp": true, "ep": true, "vinyl": true, "record": true,
}

const (
	minConfidence = 0.82
	minMargin     = 0.10
)

func tokenize(s string) []string {
	normalized := NormalizeTitle(s)
	if normalized == "" {
		return nil
	}
	var out []string
	for _, tok := range strings.Fields(normalized) {
		if stopWords[tok] {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func overlap(candidate, listingTokens []string) float64 {
	if len(candidate) == 0 {
		return 0
	}
	set := make(map[string]bool, len(listingTokens))
	for _, t := range listingTokens {
		set[t] = true
	}
	matched := 0
	for _, t := range candidate {
		if set[t] {
			matched++
		}
	}
	return float64(matched) / float64(len(candidate))
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}

// extractListingArtist pulls the listing artist out of a provider's raw
// payload: a top-level "artist" string, or the name of the first entry in
// an "artists" list (either {"name": ...} or a bare string).
func extractListingArtist(raw map[string]any) string {
	if raw == nil {
		return ""
	}

	if artist, ok := raw["artist"].(string); ok {
		if trimmed := strings.TrimSpace(artist); trimmed != "" {
			return trimmed
		}
	}

	artists, ok := raw["artists"].([]any)
	if !ok || len(artists) == 0 {
		return ""
	}
	switch first := artists[0].(type) {
	case map[string]any:
		if name, ok := first["name"].(string); ok {
			return strings.TrimSpace(name)
		}
	case string:
		return strings.TrimSpace(first)
	}
	return ""
}

// mappingCandidate is one scored WatchRelease candidate for a listing.
type mappingCandidate struct {
	Release       release.WatchRelease
	TitleOverlap  float64
	ArtistOverlap float64
	Confidence    float64
}

// Mapper implements §4.3.3: when a listing has no discogs_release_id, score
// it against a user's active watch releases by title/artist token overlap
// and accept the top candidate if it clears both the confidence floor and
// the margin over the runner-up.
type Mapper struct {
	Releases storage.ReleaseStore
}

// MappingDecision is the record persisted into
// listing.raw.matching.discogs_mapping.
type MappingDecision struct {
	Matched             bool             `json:"matched"`
	Confidence          float64          `json:"confidence,omitempty"`
	Margin              float64          `json:"margin,omitempty"`
	ThresholdConfidence float64          `json:"threshold_confidence"`
	ThresholdMargin     float64          `json:"threshold_margin"`
	ListingTokens       []string         `json:"listing_tokens"`
	ListingArtistTokens []string         `json:"listing_artist_tokens,omitempty"`
	TopCandidates       []CandidateScore `json:"top_candidates,omitempty"`
	DiscogsReleaseID    *int             `json:"discogs_release_id,omitempty"`
	DiscogsMasterID     *int             `json:"discogs_master_id,omitempty"`
}

// CandidateScore is one scored candidate retained in the decision record.
type CandidateScore struct {
	WatchReleaseID string   `json:"watch_release_id"`
	TitleOverlap   float64  `json:"title_overlap"`
	ArtistOverlap  float64  `json:"artist_overlap"`
	Confidence     float64  `json:"confidence"`
	Tokens         []string `json:"tokens"`
}

// Map scores l against userID's active watch releases and returns the
// mapping decision. If accepted, the caller should set
// l.DiscogsReleaseID/DiscogsMasterID from the decision and persist
// l.Raw["matching"]["discogs_mapping"].
func (m *Mapper) Map(ctx context.Context, userID string, l listing.Listing) (MappingDecision, error) {
	listingTitleTokens := tokenize(l.Title)
	listingArtistTokens := tokenize(extractListingArtist(l.Raw))
	if len(listingArtistTokens) == 0 {
		listingArtistTokens = listingTitleTokens
	}

	releases, err := m.Releases.ListActiveReleases(ctx, userID)
	if err != nil {
		return MappingDecision{}, err
	}

	decision := MappingDecision{
		ThresholdConfidence: minConfidence,
		ThresholdMargin:     minMargin,
		ListingTokens:       listingTitleTokens,
		ListingArtistTokens: listingArtistTokens,
	}

	if len(releases) == 0 {
		return decision, nil
	}

	scored := make([]mappingCandidate, 0, len(releases))
	for _, wr := range releases {
		titleTokens := tokenize(wr.Title)
		artistTokens := tokenize(wr.Artist)

		titleOverlap := overlap(titleTokens, listingTitleTokens)
		artistOverlap := overlap(artistTokens, listingArtistTokens)
		confidence := round4(0.8*titleOverlap + 0.2*artistOverlap)

		scored = append(scored, mappingCandidate{
			Release:       wr,
			TitleOverlap:  round4(titleOverlap),
			ArtistOverlap: round4(artistOverlap),
			Confidence:    confidence,
		})
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Confidence > scored[j].Confidence })

	top := scored[0]
	second := 0.0
	if len(scored) > 1 {
		second = scored[1].Confidence
	}
	margin := round4(top.Confidence - second)

	for i, c := range scored {
		if i >= 5 {
			break
		}
		decision.TopCandidates = append(decision.TopCandidates, CandidateScore{
			WatchReleaseID: c.Release.ID,
			TitleOverlap:   c.TitleOverlap,
			ArtistOverlap:  c.ArtistOverlap,
			Confidence:     c.Confidence,
			Tokens:         tokenize(c.Release.Title),
		})
	}

	decision.Confidence = top.Confidence
	decision.Margin = margin

	if top.Confidence >= minConfidence && margin >= minMargin {
		decision.Matched = true
		releaseID := top.Release.DiscogsReleaseID
		decision.DiscogsReleaseID = &releaseID
		decision.DiscogsMasterID = top.Release.DiscogsMasterID
	}

	return decision, nil
}
