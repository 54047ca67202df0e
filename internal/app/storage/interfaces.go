package storage

import (
	"context"
	"time"

	"github.com/r3e-network/vinylwatch/internal/app/domain/accountlink"
	"github.com/r3e-network/vinylwatch/internal/app/domain/event"
	"github.com/r3e-network/vinylwatch/internal/app/domain/importjob"
	"github.com/r3e-network/vinylwatch/internal/app/domain/listing"
	"github.com/r3e-network/vinylwatch/internal/app/domain/match"
	"github.com/r3e-network/vinylwatch/internal/app/domain/notification"
	"github.com/r3e-network/vinylwatch/internal/app/domain/outboundclick"
	"github.com/r3e-network/vinylwatch/internal/app/domain/preference"
	"github.com/r3e-network/vinylwatch/internal/app/domain/providerrequest"
	"github.com/r3e-network/vinylwatch/internal/app/domain/release"
	"github.com/r3e-network/vinylwatch/internal/app/domain/rule"
	"github.com/r3e-network/vinylwatch/internal/app/domain/snapshot"
	"github.com/r3e-network/vinylwatch/internal/app/domain/user"
)

// UserStore persists users.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	UpdateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
	ListUsers(ctx context.Context) ([]user.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// RuleStore persists watch rules and implements the scheduler's claim
// semantics.
type RuleStore interface {
	CreateRule(ctx context.Context, r rule.WatchRule) (rule.WatchRule, error)
	UpdateRule(ctx context.Context, r rule.WatchRule) (rule.WatchRule, error)
	GetRule(ctx context.Context, id string) (rule.WatchRule, error)
	ListRules(ctx context.Context, userID string) ([]rule.WatchRule, error)
	DeleteRule(ctx context.Context, id string) error

	// ClaimDueRules selects up to batchSize active due rules
	// (next_run_at IS NULL OR next_run_at <= now), ordered by
	// next_run_at ASC NULLS FIRST, created_at ASC, and atomically stamps
	// them with claimToken so concurrent schedulers do not double-process
	// a rule within the same tick.
	ClaimDueRules(ctx context.Context, now time.Time, batchSize int, claimToken string) ([]rule.WatchRule, error)
}

// ReleaseStore persists watch releases.
type ReleaseStore interface {
	CreateRelease(ctx context.Context, r release.WatchRelease) (release.WatchRelease, error)
	UpdateRelease(ctx context.Context, r release.WatchRelease) (release.WatchRelease, error)
	GetRelease(ctx context.Context, id string) (release.WatchRelease, error)
	ListReleases(ctx context.Context, userID string) ([]release.WatchRelease, error)
	ListActiveReleases(ctx context.Context, userID string) ([]release.WatchRelease, error)

	// FindReleaseByDiscogsReleaseID looks up an exact_release row by
	// (user_id, discogs_release_id).
	FindReleaseByDiscogsReleaseID(ctx context.Context, userID string, discogsReleaseID int) (release.WatchRelease, bool, error)
	// FindReleaseByDiscogsMasterID looks up a master_release row by
	// (user_id, discogs_master_id).
	FindReleaseByDiscogsMasterID(ctx context.Context, userID string, discogsMasterID int) (release.WatchRelease, bool, error)
}

// ListingStore persists the canonical, deduplicated listing catalog.
type ListingStore interface {
	GetListingByProviderExternalID(ctx context.Context, provider, externalID string) (listing.Listing, bool, error)
	GetListing(ctx context.Context, id string) (listing.Listing, error)
	CreateListing(ctx context.Context, l listing.Listing) (listing.Listing, error)
	UpdateListing(ctx context.Context, l listing.Listing) (listing.Listing, error)
	// ListRecentListings returns listings last seen at or after since, newest
	// first, capped at limit. Backs the rule-backfill scan.
	ListRecentListings(ctx context.Context, since time.Time, limit int) ([]listing.Listing, error)
}

// SnapshotStore persists the append-only price-snapshot time series.
type SnapshotStore interface {
	CreateSnapshot(ctx context.Context, s snapshot.PriceSnapshot) (snapshot.PriceSnapshot, error)
	ListSnapshots(ctx context.Context, listingID string) ([]snapshot.PriceSnapshot, error)
}

// MatchStore persists (rule, listing) matches.
type MatchStore interface {
	// CreateMatchIfAbsent inserts a match for (ruleID, listingID) unless one
	// already exists, returning the row and whether it was newly created.
	CreateMatchIfAbsent(ctx context.Context, m match.WatchMatch) (match.WatchMatch, bool, error)
	ListMatchesForRule(ctx context.Context, ruleID string, limit int) ([]match.WatchMatch, error)
}

// EventStore persists the append-only, user-scoped event log.
type EventStore interface {
	CreateEvent(ctx context.Context, e event.Event) (event.Event, error)
	// CreateMatchEventIfAbsent inserts a NEW_MATCH event unless one already
	// exists for (user_id, type, watch_release_id, listing_id) when both
	// references are present, returning whether it was newly created.
	CreateMatchEventIfAbsent(ctx context.Context, e event.Event) (event.Event, bool, error)
	GetEvent(ctx context.Context, id string) (event.Event, error)
	ListEvents(ctx context.Context, userID string, limit int) ([]event.Event, error)
}

// NotificationStore persists per-(event, channel) notification rows.
type NotificationStore interface {
	// CreateNotificationIfAbsent inserts a pending notification for
	// (event_id, channel) unless one already exists.
	CreateNotificationIfAbsent(ctx context.Context, n notification.Notification) (notification.Notification, bool, error)
	GetNotification(ctx context.Context, id string) (notification.Notification, error)
	UpdateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error)
	ListPendingNotifications(ctx context.Context, limit int) ([]notification.Notification, error)
	ListNotifications(ctx context.Context, userID string, limit int) ([]notification.Notification, error)
}

// PreferenceStore persists per-user notification preferences.
type PreferenceStore interface {
	GetPreference(ctx context.Context, userID string) (preference.UserNotificationPreference, bool, error)
	UpsertPreference(ctx context.Context, p preference.UserNotificationPreference) (preference.UserNotificationPreference, error)
}

// AccountLinkStore persists external provider account links.
type AccountLinkStore interface {
	CreateAccountLink(ctx context.Context, l accountlink.ExternalAccountLink) (accountlink.ExternalAccountLink, error)
	UpdateAccountLink(ctx context.Context, l accountlink.ExternalAccountLink) (accountlink.ExternalAccountLink, error)
	GetAccountLink(ctx context.Context, userID, provider string) (accountlink.ExternalAccountLink, bool, error)
	ListAccountLinks(ctx context.Context, userID string) ([]accountlink.ExternalAccountLink, error)
}

// ImportJobStore persists Discogs import jobs and enforces single-flight
// admission.
type ImportJobStore interface {
	// CreateJobIfAbsent atomically inserts a running job for
	// (user_id, provider, import_scope) guarded by a partial-unique index
	// over in-flight statuses. On conflict it returns the existing
	// in-flight job with created=false.
	CreateJobIfAbsent(ctx context.Context, j importjob.ImportJob) (importjob.ImportJob, bool, error)
	GetJob(ctx context.Context, id string) (importjob.ImportJob, error)
	UpdateJob(ctx context.Context, j importjob.ImportJob) (importjob.ImportJob, error)
	DeleteJob(ctx context.Context, id string) error
	// FindRecentCompletedJob returns the most recent completed job for
	// (user_id, provider, import_scope) within the cooldown window, if any.
	FindRecentCompletedJob(ctx context.Context, userID, provider string, scope string, since time.Time) (importjob.ImportJob, bool, error)
	ListJobs(ctx context.Context, userID string) ([]importjob.ImportJob, error)
}

// ProviderRequestStore persists the append-only provider request log.
type ProviderRequestStore interface {
	CreateProviderRequest(ctx context.Context, r providerrequest.ProviderRequest) (providerrequest.ProviderRequest, error)
	ListProviderRequests(ctx context.Context, userID string, limit int) ([]providerrequest.ProviderRequest, error)
}

// OutboundClickStore persists outbound affiliate-link clicks.
type OutboundClickStore interface {
	CreateOutboundClick(ctx context.Context, c outboundclick.OutboundClick) (outboundclick.OutboundClick, error)
}
