// Package app wires every marketplace-watch service together and supervises
// their lifecycle through a single system.Manager, the way cmd/appserver
// expects to consume it.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/r3e-network/vinylwatch/internal/app/domain/event"
	"github.com/r3e-network/vinylwatch/internal/app/metrics"
	"github.com/r3e-network/vinylwatch/internal/app/services/accounts"
	"github.com/r3e-network/vinylwatch/internal/app/services/events"
	"github.com/r3e-network/vinylwatch/internal/app/services/importengine"
	"github.com/r3e-network/vinylwatch/internal/app/services/ingest"
	"github.com/r3e-network/vinylwatch/internal/app/services/notify"
	"github.com/r3e-network/vinylwatch/internal/app/services/outbound"
	"github.com/r3e-network/vinylwatch/internal/app/services/provider"
	"github.com/r3e-network/vinylwatch/internal/app/services/rules"
	"github.com/r3e-network/vinylwatch/internal/app/services/runner"
	"github.com/r3e-network/vinylwatch/internal/app/services/scheduler"
	"github.com/r3e-network/vinylwatch/internal/app/services/search"
	"github.com/r3e-network/vinylwatch/internal/app/services/tokenvault"
	"github.com/r3e-network/vinylwatch/internal/app/services/users"
	"github.com/r3e-network/vinylwatch/internal/app/storage"
	"github.com/r3e-network/vinylwatch/internal/app/system"
	"github.com/r3e-network/vinylwatch/infrastructure/ratelimit"
	"github.com/r3e-network/vinylwatch/pkg/config"
	"github.com/r3e-network/vinylwatch/pkg/logger"

	"github.com/go-redis/redis/v8"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation, so tests and local runs work without a database.
type Stores struct {
	Users            storage.UserStore
	Rules            storage.RuleStore
	Releases         storage.ReleaseStore
	Listings         storage.ListingStore
	Snapshots        storage.SnapshotStore
	Matches          storage.MatchStore
	Events           storage.EventStore
	Notifications    storage.NotificationStore
	Preferences      storage.PreferenceStore
	AccountLinks     storage.AccountLinkStore
	ImportJobs       storage.ImportJobStore
	ProviderRequests storage.ProviderRequestStore
	OutboundClicks   storage.OutboundClickStore
}

func (s *Stores) applyDefaults(mem *storage.Memory) {
	if s == nil || mem == nil {
		return
	}
	if s.Users == nil {
		s.Users = mem
	}
	if s.Rules == nil {
		s.Rules = mem
	}
	if s.Releases == nil {
		s.Releases = mem
	}
	if s.Listings == nil {
		s.Listings = mem
	}
	if s.Snapshots == nil {
		s.Snapshots = mem
	}
	if s.Matches == nil {
		s.Matches = mem
	}
	if s.Events == nil {
		s.Events = mem
	}
	if s.Notifications == nil {
		s.Notifications = mem
	}
	if s.Preferences == nil {
		s.Preferences = mem
	}
	if s.AccountLinks == nil {
		s.AccountLinks = mem
	}
	if s.ImportJobs == nil {
		s.ImportJobs = mem
	}
	if s.ProviderRequests == nil {
		s.ProviderRequests = mem
	}
	if s.OutboundClicks == nil {
		s.OutboundClicks = mem
	}
}

// Application bundles every domain service and the system.Manager that
// starts/stops their background components (scheduler, delivery worker).
type Application struct {
	Users        *users.Service
	Rules        *rules.Service
	Releases     *rules.ReleaseService
	Accounts     *accounts.Service
	Outbound     *outbound.Service
	Search       *search.Service
	Events       *events.Service
	Fanout       *notify.Fanout
	Delivery     *notify.Worker
	Broker       notify.Broker
	ImportEngine *importengine.Engine
	Scheduler    *scheduler.Scheduler
	Runner       *runner.Runner
	Vault        *tokenvault.Vault

	Manager *system.Manager
	Log     *logger.Logger
}

// New builds the Application from cfg and stores. A nil *logger.Logger
// defaults to logger.NewDefault("vinylwatch"), the teacher's convention of
// every service accepting a logger at construction.
func New(cfg *config.Config, stores Stores, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("vinylwatch")
	}
	if cfg == nil {
		cfg = config.New()
	}

	mem := storage.NewMemory()
	stores.applyDefaults(mem)

	vault := tokenvault.New(cfg.Vault.KeyID, []byte(cfg.Vault.MasterKey))

	eventsSvc := events.New(stores.Events)
	usersSvc := users.New(stores.Users, stores.Rules, stores.Preferences, log)
	releasesSvc := rules.NewReleaseService(stores.Releases, eventsSvc, log)
	accountsSvc := accounts.New(stores.AccountLinks, vault)
	outboundSvc := outbound.New(stores.OutboundClicks, cfg.Providers.EBayCampID, cfg.Providers.EBayCustomID)

	providerFactory := provider.NewFactory(provider.Config{
		DiscogsToken:     cfg.Providers.DiscogsToken,
		DiscogsUserAgent: cfg.Providers.DiscogsUserAgent,
		EBayClientID:     cfg.Providers.EBayClientID,
		EBayClientSecret: cfg.Providers.EBayClientSecret,
		EBayScope:        cfg.Providers.EBayScope,
		EBayMarketplace:  cfg.Providers.EBayMarketplace,
		RateLimit: ratelimit.RateLimitConfig{
			RequestsPerSecond: cfg.Providers.RateLimitRequestsPerSecond,
			Burst:             cfg.Providers.RateLimitBurst,
		},
	})

	ingestStore := &ingest.Store{Listings: stores.Listings, Snapshots: stores.Snapshots}
	matchCreator := &ingest.MatchCreator{Matches: stores.Matches, Events: stores.Events}
	releaseMatcher := &ingest.ReleaseMatcher{Releases: stores.Releases, Events: stores.Events}
	mapper := &ingest.Mapper{Releases: stores.Releases}
	backfiller := ingest.NewBackfiller(stores.Rules, stores.Listings, matchCreator, cfg.Backfill.OnRuleChange, cfg.Backfill.Days, cfg.Backfill.Limit)
	rulesSvc := rules.New(stores.Rules, eventsSvc, backfiller, log)
	searchSvc := search.New(providerFactory, rulesSvc, providerLogSinkFor(stores.ProviderRequests), log)

	taskQueue := notify.NewLocalTaskQueue(256)
	fanout := notify.NewFanout(stores.Preferences, stores.Notifications, taskQueue)

	ruleRunner := runner.New(stores.Users, ingestStore, matchCreator, releaseMatcher, mapper, providerFactory, providerLogSinkFor(stores.ProviderRequests), log)
	ruleRunner.OnMatchEvent = func(ctx context.Context, e event.Event) {
		if err := fanout.HandleEvent(ctx, e); err != nil {
			log.WithError(err).WithField("event_id", e.ID).Warn("fan out match event failed")
		}
	}
	// Lifecycle events (rule/release created/enabled/disabled/deleted, import
	// job started/completed/failed) are recorded through events.Service, not
	// the ingest package's direct store writes, so they reach the fan-out via
	// its subscriber hook instead.
	eventsSvc.Subscribe(fanout.HandleEvent)

	schedulerCfg := scheduler.Config{
		Interval:      cfg.Scheduler.Interval(),
		BatchSize:     cfg.Scheduler.BatchSize,
		NextRunJitter: cfg.Scheduler.NextRunJitter(),
		RetryDelay:    cfg.Scheduler.RetryDelay(),
		RetryJitter:   cfg.Scheduler.RetryJitter(),
		CronSchedule:  cfg.Scheduler.CronSchedule,
	}
	sched := scheduler.New(stores.Rules, ruleRunner, schedulerCfg, log, metrics.NewSchedulerHooks())

	broker := buildBroker(cfg, log)

	var emailTransport notify.EmailTransport
	if cfg.Notify.SMTPHost != "" {
		emailTransport = notify.NewSMTPTransport(notify.SMTPConfig{
			Host:     cfg.Notify.SMTPHost,
			Port:     cfg.Notify.SMTPPort,
			Username: cfg.Notify.SMTPUser,
			Password: cfg.Notify.SMTPPass,
			From:     cfg.Notify.SMTPFrom,
		})
	}

	delivery := notify.NewWorker(stores.Notifications, stores.Preferences, stores.Users, broker, emailTransport, taskQueue, log)
	if cfg.Notify.MaxDeliveryAttempts > 0 {
		delivery.MaxAttempts = cfg.Notify.MaxDeliveryAttempts
	}

	importEngine := importengine.New(stores.ImportJobs, accountsSvc, stores.Releases, stores.ProviderRequests, eventsSvc, ratelimit.NewRateLimitedClient(http.DefaultClient, ratelimit.RateLimitConfig{
		RequestsPerSecond: cfg.Providers.RateLimitRequestsPerSecond,
		Burst:             cfg.Providers.RateLimitBurst,
	}), cfg.Providers.DiscogsUserAgent, log)

	mgr := system.NewManager()
	if err := mgr.Register(sched); err != nil {
		return nil, err
	}
	if err := mgr.Register(delivery); err != nil {
		return nil, err
	}

	return &Application{
		Users:        usersSvc,
		Rules:        rulesSvc,
		Releases:     releasesSvc,
		Accounts:     accountsSvc,
		Outbound:     outboundSvc,
		Search:       searchSvc,
		Events:       eventsSvc,
		Fanout:       fanout,
		Delivery:     delivery,
		Broker:       broker,
		ImportEngine: importEngine,
		Scheduler:    sched,
		Runner:       ruleRunner,
		Vault:        vault,
		Manager:      mgr,
		Log:          log,
	}, nil
}

// Start starts every registered background service (scheduler, delivery
// worker) in registration order.
func (a *Application) Start(ctx context.Context) error {
	return a.Manager.Start(ctx)
}

// Stop stops every registered background service in reverse registration
// order.
func (a *Application) Stop(ctx context.Context) error {
	return a.Manager.Stop(ctx)
}

func providerLogSinkFor(store storage.ProviderRequestStore) func(userID, providerName string) provider.RequestLogSink {
	return func(userID, providerName string) provider.RequestLogSink {
		return provider.NewStoreSink(store, userID)
	}
}

// buildBroker chooses the Redis-backed stream broker when an address is
// configured, otherwise the process-local one. Per SPEC_FULL.md's explicit
// forward-compatibility note, both implement the same Broker contract.
func buildBroker(cfg *config.Config, log *logger.Logger) notify.Broker {
	pingInterval := time.Duration(cfg.Notify.BrokerPingIntervalSeconds) * time.Second
	if cfg.Notify.RedisAddr == "" {
		return notify.NewLocalBroker(pingInterval)
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Notify.RedisAddr})
	log.WithField("addr", cfg.Notify.RedisAddr).Info("notify: using redis stream broker")
	return notify.NewRedisBroker(client, cfg.Notify.RedisChannelPrefix)
}
