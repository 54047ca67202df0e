package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string `json:"host" env:"SERVER_HOST"`
	Port int    `json:"port" env:"SERVER_PORT"`
}

// DatabaseConfig controls persistence.
type DatabaseConfig struct {
	Driver          string `json:"driver" env:"DATABASE_DRIVER"`
	DSN             string `json:"dsn" env:"DATABASE_DSN"`
	Host            string `json:"host" env:"DATABASE_HOST"`
	Port            int    `json:"port" env:"DATABASE_PORT"`
	User            string `json:"user" env:"DATABASE_USER"`
	Password        string `json:"password" env:"DATABASE_PASSWORD"`
	Name            string `json:"name" env:"DATABASE_NAME"`
	SSLMode         string `json:"sslmode" env:"DATABASE_SSLMODE"`
	MaxOpenConns    int    `json:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `json:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `json:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
	MigrateOnStart  bool   `json:"migrate_on_start" yaml:"migrate_on_start" env:"DATABASE_MIGRATE_ON_START"`
}

// LoggingConfig controls application logging.
type LoggingConfig struct {
	Level      string `json:"level" env:"LOG_LEVEL"`
	Format     string `json:"format" env:"LOG_FORMAT"`
	Output     string `json:"output" env:"LOG_OUTPUT"`
	FilePrefix string `json:"file_prefix" env:"LOG_FILE_PREFIX"`
}

// ProvidersConfig holds credentials for the marketplace providers.
type ProvidersConfig struct {
	DiscogsToken     string `json:"discogs_token" env:"PROVIDERS_DISCOGS_TOKEN"`
	DiscogsUserAgent string `json:"discogs_user_agent" env:"PROVIDERS_DISCOGS_USER_AGENT"`

	EBayClientID     string `json:"ebay_client_id" env:"PROVIDERS_EBAY_CLIENT_ID"`
	EBayClientSecret string `json:"ebay_client_secret" env:"PROVIDERS_EBAY_CLIENT_SECRET"`
	EBayScope        string `json:"ebay_scope" env:"PROVIDERS_EBAY_SCOPE"`
	EBayMarketplace  string `json:"ebay_marketplace" env:"PROVIDERS_EBAY_MARKETPLACE"`
	EBayCampID       string `json:"ebay_camp_id" env:"PROVIDERS_EBAY_CAMP_ID"`
	EBayCustomID     string `json:"ebay_custom_id" env:"PROVIDERS_EBAY_CUSTOM_ID"`

	RateLimitRequestsPerSecond float64 `json:"rate_limit_requests_per_second" env:"PROVIDERS_RATE_LIMIT_RPS"`
	RateLimitBurst             int     `json:"rate_limit_burst" env:"PROVIDERS_RATE_LIMIT_BURST"`
}

// SchedulerConfig tunes the rule-scheduler's tick behavior.
type SchedulerConfig struct {
	IntervalSeconds      int    `json:"interval_seconds" env:"SCHEDULER_INTERVAL_SECONDS"`
	BatchSize            int    `json:"batch_size" env:"SCHEDULER_BATCH_SIZE"`
	NextRunJitterSeconds int    `json:"next_run_jitter_seconds" env:"SCHEDULER_NEXT_RUN_JITTER_SECONDS"`
	RetryDelaySeconds    int    `json:"retry_delay_seconds" env:"SCHEDULER_RETRY_DELAY_SECONDS"`
	RetryJitterSeconds   int    `json:"retry_jitter_seconds" env:"SCHEDULER_RETRY_JITTER_SECONDS"`
	// CronSchedule, when non-empty, runs the tick loop on a standard
	// five-field cron expression instead of the fixed interval above.
	CronSchedule string `json:"cron_schedule" env:"SCHEDULER_CRON_SCHEDULE"`
}

// BackfillConfig controls the recent-listings scan run when a rule is
// created or re-enabled, so it doesn't have to wait for the next scheduler
// tick to surface matches already sitting in the listings table.
type BackfillConfig struct {
	OnRuleChange bool `json:"on_rule_change" env:"BACKFILL_ON_RULE_CHANGE"`
	Days         int  `json:"days" env:"BACKFILL_DAYS"`
	Limit        int  `json:"limit" env:"BACKFILL_LIMIT"`
}

// VaultConfig controls the token-vault envelope encryption key.
type VaultConfig struct {
	KeyID     string `json:"key_id" env:"VAULT_KEY_ID"`
	MasterKey string `json:"master_key" env:"VAULT_MASTER_KEY"`
}

// NotifyConfig controls the delivery worker and stream broker.
type NotifyConfig struct {
	SMTPHost string `json:"smtp_host" env:"NOTIFY_SMTP_HOST"`
	SMTPPort int    `json:"smtp_port" env:"NOTIFY_SMTP_PORT"`
	SMTPUser string `json:"smtp_user" env:"NOTIFY_SMTP_USER"`
	SMTPPass string `json:"smtp_pass" env:"NOTIFY_SMTP_PASS"`
	SMTPFrom string `json:"smtp_from" env:"NOTIFY_SMTP_FROM"`

	DefaultQuietHoursStart int `json:"default_quiet_hours_start" env:"NOTIFY_DEFAULT_QUIET_HOURS_START"`
	DefaultQuietHoursEnd   int `json:"default_quiet_hours_end" env:"NOTIFY_DEFAULT_QUIET_HOURS_END"`

	BrokerPingIntervalSeconds int    `json:"broker_ping_interval_seconds" env:"NOTIFY_BROKER_PING_INTERVAL_SECONDS"`
	RedisAddr                 string `json:"redis_addr" env:"NOTIFY_REDIS_ADDR"`
	RedisChannelPrefix        string `json:"redis_channel_prefix" env:"NOTIFY_REDIS_CHANNEL_PREFIX"`

	MaxDeliveryAttempts int `json:"max_delivery_attempts" env:"NOTIFY_MAX_DELIVERY_ATTEMPTS"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Logging   LoggingConfig   `json:"logging"`
	Providers ProvidersConfig `json:"providers"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Backfill  BackfillConfig  `json:"backfill"`
	Vault     VaultConfig     `json:"vault"`
	Notify    NotifyConfig    `json:"notify"`
}

// New returns a configuration populated with defaults.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
			MigrateOnStart:  true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stdout",
			FilePrefix: "vinylwatch",
		},
		Providers: ProvidersConfig{
			DiscogsUserAgent:           "vinylwatch/1.0",
			RateLimitRequestsPerSecond: 1,
			RateLimitBurst:             3,
		},
		Scheduler: SchedulerConfig{
			IntervalSeconds:      30,
			BatchSize:            25,
			NextRunJitterSeconds: 10,
			RetryDelaySeconds:    60,
			RetryJitterSeconds:   15,
		},
		Backfill: BackfillConfig{
			OnRuleChange: false,
			Days:         7,
			Limit:        500,
		},
		Vault: VaultConfig{
			KeyID: "default",
		},
		Notify: NotifyConfig{
			DefaultQuietHoursStart:    22,
			DefaultQuietHoursEnd:      8,
			BrokerPingIntervalSeconds: 30,
			RedisChannelPrefix:        "vinylwatch:notify",
			MaxDeliveryAttempts:       5,
		},
	}
}

// ConnectionString builds a PostgreSQL connection string using host parameters.
func (c DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Interval returns the scheduler tick interval as a time.Duration.
func (c SchedulerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// NextRunJitter returns the scheduler's next-run jitter as a time.Duration.
func (c SchedulerConfig) NextRunJitter() time.Duration {
	return time.Duration(c.NextRunJitterSeconds) * time.Second
}

// RetryDelay returns the scheduler's retry delay as a time.Duration.
func (c SchedulerConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

// RetryJitter returns the scheduler's retry jitter as a time.Duration.
func (c SchedulerConfig) RetryJitter() time.Duration {
	return time.Duration(c.RetryJitterSeconds) * time.Second
}

// Load loads configuration from file (if present) and environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	} else {
		_ = loadFromFile("configs/config.yaml", cfg)
	}

	if err := envdecode.Decode(cfg); err != nil {
		// envdecode returns an error when no tagged fields are present in the
		// environment; treat that case as "no overrides" so local runs work
		// without exporting vars.
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	applyDatabaseURLOverride(cfg)

	return cfg, nil
}

// LoadFile reads configuration from a YAML file.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}
	applyDatabaseURLOverride(cfg)
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return err
	}
	return nil
}

// LoadConfig is a helper used by tests to load JSON config snippets.
func LoadConfig(path string) (*Config, error) {
	cfg := New()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	applyDatabaseURLOverride(cfg)
	return cfg, nil
}

// applyDatabaseURLOverride aligns config loading with cmd/appserver: DATABASE_URL
// overrides any file-based DSN to reduce setup friction.
func applyDatabaseURLOverride(cfg *Config) {
	if cfg == nil {
		return
	}
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		cfg.Database.DSN = dsn
	}
}
