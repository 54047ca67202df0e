// Package rules implements watch-rule CRUD and lifecycle events.
package rules

import (
	"context"
	"fmt"
	"strings"

	core "github.com/r3e-network/vinylwatch/internal/app/core/service"
	"github.com/r3e-network/vinylwatch/internal/app/domain/event"
	"github.com/r3e-network/vinylwatch/internal/app/domain/rule"
	"github.com/r3e-network/vinylwatch/internal/app/services/events"
	"github.com/r3e-network/vinylwatch/internal/app/services/ingest"
	"github.com/r3e-network/vinylwatch/internal/app/storage"
	"github.com/r3e-network/vinylwatch/pkg/logger"
)

// defaultPollIntervalSeconds is applied when a rule omits one.
const defaultPollIntervalSeconds = 300

var validSources = map[string]bool{"discogs": true, "ebay": true, "mock": true}

// Service manages watch rules: creation, mutation, and the RULE_* lifecycle
// events that the notification fan-out consumes.
type Service struct {
	Rules    storage.RuleStore
	Events   *events.Service
	Backfill *ingest.Backfiller
	Log      *logger.Logger
}

// New builds a rules.Service. backfill may be nil, in which case a rule
// activation never triggers the recent-listings scan.
func New(ruleStore storage.RuleStore, ev *events.Service, backfill *ingest.Backfiller, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("rules")
	}
	return &Service{Rules: ruleStore, Events: ev, Backfill: backfill, Log: log}
}

// Create validates and persists a new watch rule, emitting RULE_CREATED.
func (s *Service) Create(ctx context.Context, userID string, r rule.WatchRule) (rule.WatchRule, error) {
	r.UserID = userID
	if err := s.normalizeAndValidate(&r); err != nil {
		return rule.WatchRule{}, err
	}
	r.IsActive = true

	created, err := s.Rules.CreateRule(ctx, r)
	if err != nil {
		return rule.WatchRule{}, err
	}

	s.emit(ctx, created.UserID, event.TypeRuleCreated, created.ID)
	s.backfill(ctx, created.UserID, created.ID)
	return created, nil
}

// Update applies mutable fields from patch onto the stored rule, emitting
// RULE_UPDATED (and RULE_ENABLED/RULE_DISABLED if active flips).
func (s *Service) Update(ctx context.Context, id string, patch rule.WatchRule) (rule.WatchRule, error) {
	existing, err := s.Rules.GetRule(ctx, id)
	if err != nil {
		return rule.WatchRule{}, err
	}

	wasActive := existing.IsActive
	existing.Name = patch.Name
	existing.Query = patch.Query
	existing.PollIntervalSeconds = patch.PollIntervalSeconds
	existing.IsActive = patch.IsActive

	if err := s.normalizeAndValidate(&existing); err != nil {
		return rule.WatchRule{}, err
	}

	updated, err := s.Rules.UpdateRule(ctx, existing)
	if err != nil {
		return rule.WatchRule{}, err
	}

	s.emit(ctx, updated.UserID, event.TypeRuleUpdated, updated.ID)
	if wasActive && !updated.IsActive {
		s.emit(ctx, updated.UserID, event.TypeRuleDisabled, updated.ID)
	} else if !wasActive && updated.IsActive {
		s.emit(ctx, updated.UserID, event.TypeRuleEnabled, updated.ID)
		s.backfill(ctx, updated.UserID, updated.ID)
	}
	return updated, nil
}

// SetActive toggles a rule's is_active flag without touching its query,
// emitting RULE_ENABLED/RULE_DISABLED.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (rule.WatchRule, error) {
	existing, err := s.Rules.GetRule(ctx, id)
	if err != nil {
		return rule.WatchRule{}, err
	}
	if existing.IsActive == active {
		return existing, nil
	}
	existing.IsActive = active

	updated, err := s.Rules.UpdateRule(ctx, existing)
	if err != nil {
		return rule.WatchRule{}, err
	}

	if active {
		s.emit(ctx, updated.UserID, event.TypeRuleEnabled, updated.ID)
		s.backfill(ctx, updated.UserID, updated.ID)
	} else {
		s.emit(ctx, updated.UserID, event.TypeRuleDisabled, updated.ID)
	}
	return updated, nil
}

// Delete removes a rule, emitting RULE_DELETED.
func (s *Service) Delete(ctx context.Context, id string) error {
	existing, err := s.Rules.GetRule(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Rules.DeleteRule(ctx, id); err != nil {
		return err
	}
	s.emit(ctx, existing.UserID, event.TypeRuleDeleted, existing.ID)
	return nil
}

// Get fetches a single rule.
func (s *Service) Get(ctx context.Context, id string) (rule.WatchRule, error) {
	return s.Rules.GetRule(ctx, id)
}

// List returns userID's rules.
func (s *Service) List(ctx context.Context, userID string) ([]rule.WatchRule, error) {
	return s.Rules.ListRules(ctx, userID)
}

func (s *Service) emit(ctx context.Context, userID string, typ event.Type, ruleID string) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Record(ctx, userID, typ, events.WithRule(ruleID)); err != nil {
		s.Log.WithError(err).WithField("rule_id", ruleID).Warn("emit rule lifecycle event failed")
	}
}

// backfill runs the recent-listings scan for a newly created or re-enabled
// rule, best-effort: a failure here must not fail the rule mutation that
// triggered it.
func (s *Service) backfill(ctx context.Context, userID, ruleID string) {
	if s.Backfill == nil {
		return
	}
	created, err := s.Backfill.Run(ctx, userID, ruleID)
	if err != nil {
		s.Log.WithError(err).WithField("rule_id", ruleID).Warn("rule backfill failed")
		return
	}
	if created > 0 {
		s.Log.WithField("rule_id", ruleID).WithField("matches_created", created).Info("rule backfill created matches")
	}
}

// normalizeAndValidate enforces the WatchRule invariants: name required,
// sources non-empty and all recognized, keywords non-empty after trim, poll
// interval within bounds.
func (s *Service) normalizeAndValidate(r *rule.WatchRule) error {
	name, err := core.NormalizeRequired(r.Name, "name")
	if err != nil {
		return err
	}
	r.Name = name

	if err := core.ValidateRequired(map[string]string{"user_id": r.UserID}); err != nil {
		return err
	}

	r.Query.Sources = core.NormalizeTags(r.Query.Sources)
	if len(r.Query.Sources) == 0 {
		return core.NewValidationError("query.sources", "at least one provider source is required")
	}
	for _, src := range r.Query.Sources {
		if !validSources[src] {
			return core.NewValidationError("query.sources", fmt.Sprintf("unknown provider %q", src))
		}
	}

	keywords := make([]string, 0, len(r.Query.Keywords))
	for _, k := range r.Query.Keywords {
		trimmed := strings.TrimSpace(k)
		if trimmed == "" {
			continue
		}
		keywords = append(keywords, trimmed)
	}
	if len(keywords) == 0 {
		return core.NewValidationError("query.keywords", "at least one non-empty keyword is required")
	}
	r.Query.Keywords = keywords

	if r.Query.MaxPrice != nil && *r.Query.MaxPrice < 0 {
		return core.NewValidationError("query.max_price", "must be >= 0")
	}

	if r.PollIntervalSeconds == 0 {
		r.PollIntervalSeconds = defaultPollIntervalSeconds
	}
	if r.PollIntervalSeconds < rule.MinPollIntervalSeconds || r.PollIntervalSeconds > rule.MaxPollIntervalSeconds {
		return core.NewValidationError("poll_interval_seconds", fmt.Sprintf("must be between %d and %d", rule.MinPollIntervalSeconds, rule.MaxPollIntervalSeconds))
	}

	return nil
}
