// Package users implements user CRUD and per-user notification preference
// management.
package users

import (
	"context"
	"strings"

	core "github.com/r3e-network/vinylwatch/internal/app/core/service"
	"github.com/r3e-network/vinylwatch/internal/app/domain/preference"
	"github.com/r3e-network/vinylwatch/internal/app/domain/user"
	"github.com/r3e-network/vinylwatch/internal/app/storage"
	"github.com/r3e-network/vinylwatch/pkg/logger"
)

// Service manages users and their notification preferences. Users are
// created externally (no self-registration flow lives in the core);
// deactivation disables the user's active rules as a side effect.
type Service struct {
	Users       storage.UserStore
	Rules       storage.RuleStore
	Preferences storage.PreferenceStore
	Log         *logger.Logger
}

// New builds a users.Service.
func New(userStore storage.UserStore, ruleStore storage.RuleStore, preferenceStore storage.PreferenceStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("users")
	}
	return &Service{Users: userStore, Rules: ruleStore, Preferences: preferenceStore, Log: log}
}

// Create validates and persists a new user.
func (s *Service) Create(ctx context.Context, u user.User) (user.User, error) {
	email, err := core.NormalizeRequired(u.Email, "email")
	if err != nil {
		return user.User{}, err
	}
	u.Email = strings.ToLower(email)
	u.IsActive = true
	return s.Users.CreateUser(ctx, u)
}

// Get fetches a single user.
func (s *Service) Get(ctx context.Context, id string) (user.User, error) {
	return s.Users.GetUser(ctx, id)
}

// GetByEmail fetches a user by case-insensitive email.
func (s *Service) GetByEmail(ctx context.Context, email string) (user.User, error) {
	return s.Users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
}

// Update applies mutable profile fields.
func (s *Service) Update(ctx context.Context, id string, patch user.User) (user.User, error) {
	existing, err := s.Users.GetUser(ctx, id)
	if err != nil {
		return user.User{}, err
	}
	existing.DisplayName = patch.DisplayName
	existing.Timezone = patch.Timezone
	existing.Currency = patch.Currency
	return s.Users.UpdateUser(ctx, existing)
}

// Deactivate marks a user inactive and disables every active rule they own,
// per the data model's cascade invariant.
func (s *Service) Deactivate(ctx context.Context, id string) (user.User, error) {
	existing, err := s.Users.GetUser(ctx, id)
	if err != nil {
		return user.User{}, err
	}
	if !existing.IsActive {
		return existing, nil
	}
	existing.IsActive = false
	updated, err := s.Users.UpdateUser(ctx, existing)
	if err != nil {
		return user.User{}, err
	}

	rules, err := s.Rules.ListRules(ctx, id)
	if err != nil {
		s.Log.WithError(err).WithField("user_id", id).Warn("list rules for deactivation failed")
		return updated, nil
	}
	for _, r := range rules {
		if !r.IsActive {
			continue
		}
		r.IsActive = false
		if _, err := s.Rules.UpdateRule(ctx, r); err != nil {
			s.Log.WithError(err).WithField("rule_id", r.ID).Warn("disable rule on user deactivation failed")
		}
	}
	return updated, nil
}

// Delete removes a user. Cascading deletion of owned entities is a storage
// concern (foreign-key ON DELETE CASCADE in Postgres).
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.Users.DeleteUser(ctx, id)
}

// List returns every user.
func (s *Service) List(ctx context.Context) ([]user.User, error) {
	return s.Users.ListUsers(ctx)
}

// GetPreference returns userID's stored preference, or the lazy default if
// none exists.
func (s *Service) GetPreference(ctx context.Context, userID string) (preference.UserNotificationPreference, error) {
	pref, ok, err := s.Preferences.GetPreference(ctx, userID)
	if err != nil {
		return preference.UserNotificationPreference{}, err
	}
	if !ok {
		return preference.Default(userID), nil
	}
	return pref, nil
}

// defaultProviders enumerates the providers summarized by IntegrationSummary.
var defaultProviders = []string{"discogs", "ebay", "mock"}

// ProviderIntegration reports how many of a user's watch rules reference a
// given provider source, a proxy for "is this integration actually in use".
type ProviderIntegration struct {
	Provider       string
	Linked         bool
	WatchRuleCount int
}

// IntegrationSummary implements the original's
// _integration_summary_for_user: one entry per known provider, counting how
// many of userID's watch rules name it as a source.
func (s *Service) IntegrationSummary(ctx context.Context, userID string) ([]ProviderIntegration, error) {
	counts := make(map[string]int, len(defaultProviders))
	for _, p := range defaultProviders {
		counts[p] = 0
	}

	rules, err := s.Rules.ListRules(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, r := range rules {
		for _, src := range r.Query.Sources {
			key := strings.ToLower(strings.TrimSpace(src))
			if _, ok := counts[key]; ok {
				counts[key]++
			}
		}
	}

	out := make([]ProviderIntegration, 0, len(defaultProviders))
	for _, p := range defaultProviders {
		out = append(out, ProviderIntegration{Provider: p, Linked: counts[p] > 0, WatchRuleCount: counts[p]})
	}
	return out, nil
}

// SetPreference upserts userID's notification preference.
func (s *Service) SetPreference(ctx context.Context, p preference.UserNotificationPreference) (preference.UserNotificationPreference, error) {
	if p.DeliveryFrequency == "" {
		p.DeliveryFrequency = preference.DeliveryInstant
	}
	if p.QuietHoursStart != nil && (*p.QuietHoursStart < 0 || *p.QuietHoursStart > 23) {
		return preference.UserNotificationPreference{}, core.NewValidationError("quiet_hours_start", "must be between 0 and 23")
	}
	if p.QuietHoursEnd != nil && (*p.QuietHoursEnd < 0 || *p.QuietHoursEnd > 23) {
		return preference.UserNotificationPreference{}, core.NewValidationError("quiet_hours_end", "must be between 0 and 23")
	}
	return s.Preferences.UpsertPreference(ctx, p)
}
