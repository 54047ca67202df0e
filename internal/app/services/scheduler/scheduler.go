// Package scheduler runs the periodic tick that claims due watch rules and
// hands each to the rule runner, per §4.4.1.
package scheduler

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	core "github.com/r3e-network/vinylwatch/internal/app/core/service"
	"github.com/r3e-network/vinylwatch/internal/app/domain/rule"
	"github.com/r3e-network/vinylwatch/internal/app/metrics"
	"github.com/r3e-network/vinylwatch/internal/app/services/runner"
	"github.com/r3e-network/vinylwatch/internal/app/storage"
	"github.com/r3e-network/vinylwatch/pkg/logger"
)

// RuleRunner invokes a single claimed rule. The concrete implementation
// lives in the runner package.
type RuleRunner interface {
	Run(ctx context.Context, ruleRow rule.WatchRule) (runner.Summary, error)
}

// Config tunes the scheduler's tick behavior.
type Config struct {
	Interval      time.Duration
	BatchSize     int
	NextRunJitter time.Duration
	RetryDelay    time.Duration
	RetryJitter   time.Duration

	// CronSchedule, when set, replaces the fixed Interval ticker with a
	// standard five-field cron expression (e.g. "*/1 * * * *") — for
	// operators who want tick times aligned to wall-clock boundaries
	// rather than a fixed period since the scheduler started.
	CronSchedule string
}

// DefaultConfig returns sensible tick settings.
func DefaultConfig() Config {
	return Config{
		Interval:      30 * time.Second,
		BatchSize:     25,
		NextRunJitter: 10 * time.Second,
		RetryDelay:    time.Minute,
		RetryJitter:   15 * time.Second,
	}
}

// Scheduler periodically claims due rules and dispatches them to a runner.
type Scheduler struct {
	rules  storage.RuleStore
	runner RuleRunner
	cfg    Config
	log    *logger.Logger
	hooks  *metrics.SchedulerHooks
	cron   cron.Schedule

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New builds a Scheduler. If cfg.CronSchedule is set it must parse as a
// standard five-field cron expression; New panics on a malformed
// expression since that is a startup-time configuration error.
func New(rules storage.RuleStore, ruleRunner RuleRunner, cfg Config, log *logger.Logger, hooks *metrics.SchedulerHooks) *Scheduler {
	if log == nil {
		log = logger.NewDefault("rule-scheduler")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}

	var sched cron.Schedule
	if cfg.CronSchedule != "" {
		parsed, err := cron.ParseStandard(cfg.CronSchedule)
		if err != nil {
			panic("scheduler: invalid cron schedule " + cfg.CronSchedule + ": " + err.Error())
		}
		sched = parsed
	}

	return &Scheduler{rules: rules, runner: ruleRunner, cfg: cfg, log: log, hooks: hooks, cron: sched}
}

// Name identifies this service for lifecycle orchestration.
func (s *Scheduler) Name() string { return "rule-scheduler" }

// Descriptor advertises the scheduler's architectural placement.
func (s *Scheduler) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:         "rule-scheduler",
		Domain:       "watch",
		Layer:        core.LayerEngine,
		Capabilities: []string{"schedule", "claim", "dispatch"},
	}
}

// Start begins the periodic tick loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	if s.cron != nil {
		go s.runCronLoop(runCtx)
	} else {
		go s.runTickerLoop(runCtx)
	}

	s.log.Info("rule scheduler started")
	return nil
}

func (s *Scheduler) runTickerLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) runCronLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		next := s.cron.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.tick(ctx)
		}
	}
}

// Stop halts the tick loop, waiting for any in-flight tick to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.log.Info("rule scheduler stopped")
	return nil
}

func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now().UTC()
	claimToken := newClaimToken()

	due, err := s.rules.ClaimDueRules(ctx, now, s.cfg.BatchSize, claimToken)
	if err != nil {
		s.log.WithError(err).Warn("claim due rules failed")
		return
	}

	processed, failed := 0, 0
	for _, r := range due {
		if r.NextRunAt != nil {
			lag := now.Sub(*r.NextRunAt)
			if s.hooks != nil {
				s.hooks.ObserveLag(lag)
			}
		}

		if err := s.runOne(ctx, now, r); err != nil {
			failed++
			s.log.WithError(err).WithField("rule_id", r.ID).Warn("rule run failed")
			continue
		}
		processed++
	}

	if s.hooks != nil {
		s.hooks.ObserveTick(processed, failed)
	}
}

func (s *Scheduler) runOne(ctx context.Context, now time.Time, r rule.WatchRule) error {
	_, runErr := s.runner.Run(ctx, r)

	updated := r
	if runErr == nil {
		updated.LastRunAt = &now
		next := now.Add(time.Duration(r.PollIntervalSeconds) * time.Second).Add(jitter(s.cfg.NextRunJitter))
		updated.NextRunAt = &next
	} else {
		next := now.Add(s.cfg.RetryDelay).Add(jitter(s.cfg.RetryJitter))
		updated.NextRunAt = &next
	}
	updated.ClaimToken = ""

	if _, err := s.rules.UpdateRule(ctx, updated); err != nil {
		s.log.WithError(err).WithField("rule_id", r.ID).Warn("persist rule schedule failed")
	}

	return runErr
}

func jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}

func newClaimToken() string {
	return time.Now().UTC().Format("20060102T150405.000000000")
}
