package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

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

// Memory is a thread-safe in-memory persistence layer implementing every
// storage interface in this package. It is intended for tests and local
// development; it deliberately keeps implementations simple rather than
// optimized.
type Memory struct {
	mu sync.RWMutex

	users     map[string]user.User
	rules     map[string]rule.WatchRule
	releases  map[string]release.WatchRelease
	listings  map[string]listing.Listing
	snapshots map[string][]snapshot.PriceSnapshot
	matches   map[string]match.WatchMatch
	events    map[string]event.Event
	notifs    map[string]notification.Notification
	prefs     map[string]preference.UserNotificationPreference
	links     map[string]accountlink.ExternalAccountLink
	jobs      map[string]importjob.ImportJob
	preqs     []providerrequest.ProviderRequest
	clicks    []outboundclick.OutboundClick
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:     make(map[string]user.User),
		rules:     make(map[string]rule.WatchRule),
		releases:  make(map[string]release.WatchRelease),
		listings:  make(map[string]listing.Listing),
		snapshots: make(map[string][]snapshot.PriceSnapshot),
		matches:   make(map[string]match.WatchMatch),
		events:    make(map[string]event.Event),
		notifs:    make(map[string]notification.Notification),
		prefs:     make(map[string]preference.UserNotificationPreference),
		links:     make(map[string]accountlink.ExternalAccountLink),
		jobs:      make(map[string]importjob.ImportJob),
	}
}

func newID() string { return uuid.NewString() }

func matchKey(ruleID, listingID string) string { return ruleID + "|" + listingID }

func linkKey(userID, provider string) string { return userID + "|" + strings.ToLower(provider) }

// --- UserStore ---------------------------------------------------------

func (m *Memory) CreateUser(_ context.Context, u user.User) (user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = newID()
	}
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return user.User{}, fmt.Errorf("user with email %s already exists", u.Email)
		}
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	m.users[u.ID] = u
	return u, nil
}

func (m *Memory) UpdateUser(_ context.Context, u user.User) (user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.users[u.ID]
	if !ok {
		return user.User{}, fmt.Errorf("user %s not found", u.ID)
	}
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = time.Now().UTC()
	m.users[u.ID] = u
	return u, nil
}

func (m *Memory) GetUser(_ context.Context, id string) (user.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return user.User{}, fmt.Errorf("user %s not found", id)
	}
	return u, nil
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return user.User{}, fmt.Errorf("user with email %s not found", email)
}

func (m *Memory) ListUsers(_ context.Context) ([]user.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]user.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	for k, r := range m.rules {
		if r.UserID == id {
			delete(m.rules, k)
		}
	}
	for k, r := range m.releases {
		if r.UserID == id {
			delete(m.releases, k)
		}
	}
	for k, e := range m.events {
		if e.UserID == id {
			delete(m.events, k)
		}
	}
	for k, n := range m.notifs {
		if n.UserID == id {
			delete(m.notifs, k)
		}
	}
	for k, l := range m.links {
		if l.UserID == id {
			delete(m.links, k)
		}
	}
	for k, j := range m.jobs {
		if j.UserID == id {
			delete(m.jobs, k)
		}
	}
	delete(m.prefs, id)
	return nil
}

// --- RuleStore -----------------------------------------------------------

func (m *Memory) CreateRule(_ context.Context, r rule.WatchRule) (rule.WatchRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = newID()
	}
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	m.rules[r.ID] = r
	return r, nil
}

func (m *Memory) UpdateRule(_ context.Context, r rule.WatchRule) (rule.WatchRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.rules[r.ID]
	if !ok {
		return rule.WatchRule{}, fmt.Errorf("rule %s not found", r.ID)
	}
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = time.Now().UTC()
	m.rules[r.ID] = r
	return r, nil
}

func (m *Memory) GetRule(_ context.Context, id string) (rule.WatchRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rules[id]
	if !ok {
		return rule.WatchRule{}, fmt.Errorf("rule %s not found", id)
	}
	return r, nil
}

func (m *Memory) ListRules(_ context.Context, userID string) ([]rule.WatchRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]rule.WatchRule, 0)
	for _, r := range m.rules {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) DeleteRule(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rules, id)
	return nil
}

func (m *Memory) ClaimDueRules(_ context.Context, now time.Time, batchSize int, claimToken string) ([]rule.WatchRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []rule.WatchRule
	for _, r := range m.rules {
		if !r.IsActive {
			continue
		}
		if r.NextRunAt != nil && r.NextRunAt.After(now) {
			continue
		}
		due = append(due, r)
	}
	sort.Slice(due, func(i, j int) bool {
		a, b := due[i], due[j]
		switch {
		case a.NextRunAt == nil && b.NextRunAt != nil:
			return true
		case a.NextRunAt != nil && b.NextRunAt == nil:
			return false
		case a.NextRunAt != nil && b.NextRunAt != nil && !a.NextRunAt.Equal(*b.NextRunAt):
			return a.NextRunAt.Before(*b.NextRunAt)
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	})
	if batchSize > 0 && len(due) > batchSize {
		due = due[:batchSize]
	}
	claimed := make([]rule.WatchRule, 0, len(due))
	for _, r := range due {
		r.ClaimToken = claimToken
		m.rules[r.ID] = r
		claimed = append(claimed, r)
	}
	return claimed, nil
}

// --- ReleaseStore --------------------------------------------------------

func (m *Memory) CreateRelease(_ context.Context, r release.WatchRelease) (release.WatchRelease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = newID()
	}
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	m.releases[r.ID] = r
	return r, nil
}

func (m *Memory) UpdateRelease(_ context.Context, r release.WatchRelease) (release.WatchRelease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.releases[r.ID]
	if !ok {
		return release.WatchRelease{}, fmt.Errorf("release %s not found", r.ID)
	}
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = time.Now().UTC()
	m.releases[r.ID] = r
	return r, nil
}

func (m *Memory) GetRelease(_ context.Context, id string) (release.WatchRelease, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.releases[id]
	if !ok {
		return release.WatchRelease{}, fmt.Errorf("release %s not found", id)
	}
	return r, nil
}

func (m *Memory) ListReleases(_ context.Context, userID string) ([]release.WatchRelease, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]release.WatchRelease, 0)
	for _, r := range m.releases {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ListActiveReleases(ctx context.Context, userID string) ([]release.WatchRelease, error) {
	all, err := m.ListReleases(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]release.WatchRelease, 0, len(all))
	for _, r := range all {
		if r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) FindReleaseByDiscogsReleaseID(_ context.Context, userID string, discogsReleaseID int) (release.WatchRelease, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.releases {
		if r.UserID == userID && r.MatchMode == release.MatchModeExactRelease && r.DiscogsReleaseID == discogsReleaseID {
			return r, true, nil
		}
	}
	return release.WatchRelease{}, false, nil
}

func (m *Memory) FindReleaseByDiscogsMasterID(_ context.Context, userID string, discogsMasterID int) (release.WatchRelease, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.releases {
		if r.UserID == userID && r.MatchMode == release.MatchModeMasterRelease && r.DiscogsMasterID != nil && *r.DiscogsMasterID == discogsMasterID {
			return r, true, nil
		}
	}
	return release.WatchRelease{}, false, nil
}

// --- ListingStore --------------------------------------------------------

func (m *Memory) GetListingByProviderExternalID(_ context.Context, provider, externalID string) (listing.Listing, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.listings {
		if string(l.Provider) == provider && l.ExternalID == externalID {
			return l, true, nil
		}
	}
	return listing.Listing{}, false, nil
}

func (m *Memory) GetListing(_ context.Context, id string) (listing.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.listings[id]
	if !ok {
		return listing.Listing{}, fmt.Errorf("listing %s not found", id)
	}
	return l, nil
}

func (m *Memory) CreateListing(_ context.Context, l listing.Listing) (listing.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.ID == "" {
		l.ID = newID()
	}
	now := time.Now().UTC()
	l.CreatedAt, l.UpdatedAt = now, now
	m.listings[l.ID] = l
	return l, nil
}

func (m *Memory) UpdateListing(_ context.Context, l listing.Listing) (listing.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.listings[l.ID]
	if !ok {
		return listing.Listing{}, fmt.Errorf("listing %s not found", l.ID)
	}
	l.CreatedAt = existing.CreatedAt
	l.FirstSeenAt = existing.FirstSeenAt
	l.UpdatedAt = time.Now().UTC()
	m.listings[l.ID] = l
	return l, nil
}

func (m *Memory) ListRecentListings(_ context.Context, since time.Time, limit int) ([]listing.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]listing.Listing, 0, len(m.listings))
	for _, l := range m.listings {
		if l.LastSeenAt.Before(since) {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeenAt.After(out[j].LastSeenAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- SnapshotStore ---------------------------------------------------------

func (m *Memory) CreateSnapshot(_ context.Context, s snapshot.PriceSnapshot) (snapshot.PriceSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = newID()
	}
	m.snapshots[s.ListingID] = append(m.snapshots[s.ListingID], s)
	return s, nil
}

func (m *Memory) ListSnapshots(_ context.Context, listingID string) ([]snapshot.PriceSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]snapshot.PriceSnapshot, len(m.snapshots[listingID]))
	copy(out, m.snapshots[listingID])
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	return out, nil
}

// --- MatchStore ------------------------------------------------------------

func (m *Memory) CreateMatchIfAbsent(_ context.Context, wm match.WatchMatch) (match.WatchMatch, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := matchKey(wm.RuleID, wm.ListingID)
	if existing, ok := m.matches[key]; ok {
		return existing, false, nil
	}
	if wm.ID == "" {
		wm.ID = newID()
	}
	if wm.MatchedAt.IsZero() {
		wm.MatchedAt = time.Now().UTC()
	}
	m.matches[key] = wm
	return wm, true, nil
}

func (m *Memory) ListMatchesForRule(_ context.Context, ruleID string, limit int) ([]match.WatchMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]match.WatchMatch, 0)
	for _, wm := range m.matches {
		if wm.RuleID == ruleID {
			out = append(out, wm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MatchedAt.After(out[j].MatchedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- EventStore --------------------------------------------------------

func (m *Memory) CreateEvent(_ context.Context, e event.Event) (event.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		e.ID = newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	m.events[e.ID] = e
	return e, nil
}

func (m *Memory) CreateMatchEventIfAbsent(_ context.Context, e event.Event) (event.Event, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.WatchReleaseID != nil && e.ListingID != nil {
		for _, existing := range m.events {
			if existing.UserID == e.UserID && existing.Type == e.Type &&
				existing.WatchReleaseID != nil && existing.ListingID != nil &&
				*existing.WatchReleaseID == *e.WatchReleaseID && *existing.ListingID == *e.ListingID {
				return existing, false, nil
			}
		}
	}
	if e.ID == "" {
		e.ID = newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	m.events[e.ID] = e
	return e, true, nil
}

func (m *Memory) GetEvent(_ context.Context, id string) (event.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.events[id]
	if !ok {
		return event.Event{}, fmt.Errorf("event %s not found", id)
	}
	return e, nil
}

func (m *Memory) ListEvents(_ context.Context, userID string, limit int) ([]event.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]event.Event, 0)
	for _, e := range m.events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- NotificationStore ---------------------------------------------------

func (m *Memory) CreateNotificationIfAbsent(_ context.Context, n notification.Notification) (notification.Notification, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.notifs {
		if existing.EventID == n.EventID && existing.Channel == n.Channel {
			return existing, false, nil
		}
	}
	if n.ID == "" {
		n.ID = newID()
	}
	now := time.Now().UTC()
	n.CreatedAt, n.UpdatedAt = now, now
	m.notifs[n.ID] = n
	return n, true, nil
}

func (m *Memory) GetNotification(_ context.Context, id string) (notification.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.notifs[id]
	if !ok {
		return notification.Notification{}, fmt.Errorf("notification %s not found", id)
	}
	return n, nil
}

func (m *Memory) UpdateNotification(_ context.Context, n notification.Notification) (notification.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.notifs[n.ID]
	if !ok {
		return notification.Notification{}, fmt.Errorf("notification %s not found", n.ID)
	}
	n.CreatedAt = existing.CreatedAt
	n.UpdatedAt = time.Now().UTC()
	m.notifs[n.ID] = n
	return n, nil
}

func (m *Memory) ListPendingNotifications(_ context.Context, limit int) ([]notification.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]notification.Notification, 0)
	for _, n := range m.notifs {
		if n.Status == notification.StatusPending {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ListNotifications(_ context.Context, userID string, limit int) ([]notification.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]notification.Notification, 0)
	for _, n := range m.notifs {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- PreferenceStore -------------------------------------------------------

func (m *Memory) GetPreference(_ context.Context, userID string) (preference.UserNotificationPreference, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.prefs[userID]
	return p, ok, nil
}

func (m *Memory) UpsertPreference(_ context.Context, p preference.UserNotificationPreference) (preference.UserNotificationPreference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[p.UserID] = p
	return p, nil
}

// --- AccountLinkStore -------------------------------------------------------

func (m *Memory) CreateAccountLink(_ context.Context, l accountlink.ExternalAccountLink) (accountlink.ExternalAccountLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := linkKey(l.UserID, l.Provider)
	if _, ok := m.links[key]; ok {
		return accountlink.ExternalAccountLink{}, fmt.Errorf("account link for user %s provider %s already exists", l.UserID, l.Provider)
	}
	if l.ID == "" {
		l.ID = newID()
	}
	now := time.Now().UTC()
	l.CreatedAt, l.UpdatedAt = now, now
	m.links[key] = l
	return l, nil
}

func (m *Memory) UpdateAccountLink(_ context.Context, l accountlink.ExternalAccountLink) (accountlink.ExternalAccountLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := linkKey(l.UserID, l.Provider)
	existing, ok := m.links[key]
	if !ok {
		return accountlink.ExternalAccountLink{}, fmt.Errorf("account link for user %s provider %s not found", l.UserID, l.Provider)
	}
	l.CreatedAt = existing.CreatedAt
	l.UpdatedAt = time.Now().UTC()
	m.links[key] = l
	return l, nil
}

func (m *Memory) GetAccountLink(_ context.Context, userID, provider string) (accountlink.ExternalAccountLink, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.links[linkKey(userID, provider)]
	return l, ok, nil
}

func (m *Memory) ListAccountLinks(_ context.Context, userID string) ([]accountlink.ExternalAccountLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]accountlink.ExternalAccountLink, 0)
	for _, l := range m.links {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	return out, nil
}

// --- ImportJobStore -------------------------------------------------------

func (m *Memory) CreateJobIfAbsent(_ context.Context, j importjob.ImportJob) (importjob.ImportJob, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.jobs {
		if existing.UserID == j.UserID && existing.Provider == j.Provider && existing.ImportScope == j.ImportScope && existing.Status.InFlight() {
			return existing, false, nil
		}
	}
	if j.ID == "" {
		j.ID = newID()
	}
	now := time.Now().UTC()
	j.CreatedAt, j.UpdatedAt = now, now
	m.jobs[j.ID] = j
	return j, true, nil
}

func (m *Memory) GetJob(_ context.Context, id string) (importjob.ImportJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return importjob.ImportJob{}, fmt.Errorf("import job %s not found", id)
	}
	return j, nil
}

func (m *Memory) UpdateJob(_ context.Context, j importjob.ImportJob) (importjob.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.jobs[j.ID]
	if !ok {
		return importjob.ImportJob{}, fmt.Errorf("import job %s not found", j.ID)
	}
	j.CreatedAt = existing.CreatedAt
	j.UpdatedAt = time.Now().UTC()
	m.jobs[j.ID] = j
	return j, nil
}

func (m *Memory) DeleteJob(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
	return nil
}

func (m *Memory) FindRecentCompletedJob(_ context.Context, userID, provider string, scope string, since time.Time) (importjob.ImportJob, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best importjob.ImportJob
	var found bool
	for _, j := range m.jobs {
		if j.UserID != userID || j.Provider != provider || string(j.ImportScope) != scope {
			continue
		}
		if j.Status != importjob.StatusCompleted {
			continue
		}
		if j.CompletedAt == nil || j.CompletedAt.Before(since) {
			continue
		}
		if !found || j.CompletedAt.After(*best.CompletedAt) {
			best, found = j, true
		}
	}
	return best, found, nil
}

func (m *Memory) ListJobs(_ context.Context, userID string) ([]importjob.ImportJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]importjob.ImportJob, 0)
	for _, j := range m.jobs {
		if j.UserID == userID {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// --- ProviderRequestStore -------------------------------------------------

func (m *Memory) CreateProviderRequest(_ context.Context, r providerrequest.ProviderRequest) (providerrequest.ProviderRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = newID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	m.preqs = append(m.preqs, r)
	return r, nil
}

func (m *Memory) ListProviderRequests(_ context.Context, userID string, limit int) ([]providerrequest.ProviderRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]providerrequest.ProviderRequest, 0)
	for _, r := range m.preqs {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- OutboundClickStore -----------------------------------------------------

func (m *Memory) CreateOutboundClick(_ context.Context, c outboundclick.OutboundClick) (outboundclick.OutboundClick, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = newID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	m.clicks = append(m.clicks, c)
	return c, nil
}

var (
	_ UserStore           = (*Memory)(nil)
	_ RuleStore            = (*Memory)(nil)
	_ ReleaseStore         = (*Memory)(nil)
	_ ListingStore         = (*Memory)(nil)
	_ SnapshotStore        = (*Memory)(nil)
	_ MatchStore           = (*Memory)(nil)
	_ EventStore           = (*Memory)(nil)
	_ NotificationStore    = (*Memory)(nil)
	_ PreferenceStore      = (*Memory)(nil)
	_ AccountLinkStore     = (*Memory)(nil)
	_ ImportJobStore       = (*Memory)(nil)
	_ ProviderRequestStore = (*Memory)(nil)
	_ OutboundClickStore   = (*Memory)(nil)
)
