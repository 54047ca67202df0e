package rules

import (
	"context"
	"fmt"
	"sort"

	core "github.com/r3e-network/vinylwatch/internal/app/core/service"
	"github.com/r3e-network/vinylwatch/internal/app/domain/event"
	"github.com/r3e-network/vinylwatch/internal/app/domain/release"
	"github.com/r3e-network/vinylwatch/internal/app/services/events"
	"github.com/r3e-network/vinylwatch/internal/app/storage"
	"github.com/r3e-network/vinylwatch/pkg/logger"
)

// ReleaseService manages watch releases: creation, mutation, and the
// WATCH_RELEASE_* lifecycle events.
type ReleaseService struct {
	Releases storage.ReleaseStore
	Events   *events.Service
	Log      *logger.Logger
}

// NewReleaseService builds a ReleaseService.
func NewReleaseService(releaseStore storage.ReleaseStore, ev *events.Service, log *logger.Logger) *ReleaseService {
	if log == nil {
		log = logger.NewDefault("releases")
	}
	return &ReleaseService{Releases: releaseStore, Events: ev, Log: log}
}

// Create validates and persists a new watch release, emitting
// WATCH_RELEASE_CREATED.
func (s *ReleaseService) Create(ctx context.Context, userID string, r release.WatchRelease) (release.WatchRelease, error) {
	r.UserID = userID
	if err := normalizeAndValidateRelease(&r); err != nil {
		return release.WatchRelease{}, err
	}
	r.IsActive = true

	created, err := s.Releases.CreateRelease(ctx, r)
	if err != nil {
		return release.WatchRelease{}, err
	}
	s.emit(ctx, created.UserID, event.TypeWatchReleaseCreated, created.ID)
	return created, nil
}

// Update applies mutable fields from patch, emitting WATCH_RELEASE_UPDATED
// (and the enabled/disabled variant if active flips).
func (s *ReleaseService) Update(ctx context.Context, id string, patch release.WatchRelease) (release.WatchRelease, error) {
	existing, err := s.Releases.GetRelease(ctx, id)
	if err != nil {
		return release.WatchRelease{}, err
	}

	wasActive := existing.IsActive
	existing.MatchMode = patch.MatchMode
	existing.Title = patch.Title
	existing.Artist = patch.Artist
	existing.Year = patch.Year
	existing.TargetPrice = patch.TargetPrice
	existing.Currency = patch.Currency
	existing.MinCondition = patch.MinCondition
	existing.IsActive = patch.IsActive
	existing.DiscogsReleaseID = patch.DiscogsReleaseID
	existing.DiscogsMasterID = patch.DiscogsMasterID

	if err := normalizeAndValidateRelease(&existing); err != nil {
		return release.WatchRelease{}, err
	}

	updated, err := s.Releases.UpdateRelease(ctx, existing)
	if err != nil {
		return release.WatchRelease{}, err
	}

	s.emit(ctx, updated.UserID, event.TypeWatchReleaseUpdated, updated.ID)
	if wasActive && !updated.IsActive {
		s.emit(ctx, updated.UserID, event.TypeWatchReleaseDisabled, updated.ID)
	} else if !wasActive && updated.IsActive {
		s.emit(ctx, updated.UserID, event.TypeWatchReleaseEnabled, updated.ID)
	}
	return updated, nil
}

// Get fetches a single watch release.
func (s *ReleaseService) Get(ctx context.Context, id string) (release.WatchRelease, error) {
	return s.Releases.GetRelease(ctx, id)
}

// List returns userID's watch releases.
func (s *ReleaseService) List(ctx context.Context, userID string) ([]release.WatchRelease, error) {
	return s.Releases.ListReleases(ctx, userID)
}

// ImportedItem is one watch release surfaced by ListImported, carrying a
// ready-to-use Discogs deep link.
type ImportedItem struct {
	Release          release.WatchRelease
	OpenInDiscogsURL string
}

// ListImported returns userID's active watch releases that originated from
// the given Discogs import source ("wantlist" or "collection"), newest
// first, paginated. Grounded on the original implementation's
// list_imported_items: same ordering (updated_at desc, id desc as
// tiebreak), same per-item open_in_discogs_url convenience field. limit is
// clamped the same way every other list endpoint in this system is.
func (s *ReleaseService) ListImported(ctx context.Context, userID, source string, limit, offset int) ([]ImportedItem, error) {
	all, err := s.Releases.ListReleases(ctx, userID)
	if err != nil {
		return nil, err
	}

	limit = core.ClampLimit(limit, core.DefaultListLimit, core.MaxListLimit)
	if offset < 0 {
		offset = 0
	}

	var matched []release.WatchRelease
	for _, r := range all {
		if !r.IsActive {
			continue
		}
		if source == "wantlist" && !r.ImportedFromWantlist {
			continue
		}
		if source == "collection" && !r.ImportedFromCollection {
			continue
		}
		matched = append(matched, r)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}

	items := make([]ImportedItem, 0, len(matched))
	for _, r := range matched {
		items = append(items, ImportedItem{Release: r, OpenInDiscogsURL: DiscogsReleaseURL(r.DiscogsReleaseID)})
	}
	return items, nil
}

// DiscogsReleaseURL builds the public discogs.com page for a release id.
func DiscogsReleaseURL(discogsReleaseID int) string {
	return fmt.Sprintf("https://www.discogs.com/release/%d", discogsReleaseID)
}

func (s *ReleaseService) emit(ctx context.Context, userID string, typ event.Type, releaseID string) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Record(ctx, userID, typ, events.WithWatchRelease(releaseID)); err != nil {
		s.Log.WithError(err).WithField("watch_release_id", releaseID).Warn("emit watch release lifecycle event failed")
	}
}

// normalizeAndValidateRelease enforces: discogs_release_id required,
// master_release mode requires discogs_master_id, currency defaults to USD.
func normalizeAndValidateRelease(r *release.WatchRelease) error {
	if r.DiscogsReleaseID <= 0 {
		return core.NewValidationError("discogs_release_id", "is required")
	}
	if r.MatchMode == "" {
		r.MatchMode = release.MatchModeExactRelease
	}
	if r.MatchMode == release.MatchModeMasterRelease && r.DiscogsMasterID == nil {
		return core.NewValidationError("discogs_master_id", "is required when match_mode is master_release")
	}
	if r.Currency == "" {
		r.Currency = release.DefaultCurrency
	}
	if r.TargetPrice != nil && *r.TargetPrice < 0 {
		return core.NewValidationError("target_price", "must be >= 0")
	}
	return nil
}
