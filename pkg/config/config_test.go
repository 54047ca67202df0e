package config

import (
	"os"
	"testing"
)

func TestNewDefaults(t *testing.T) {
	cfg := New()

	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default server port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Scheduler.IntervalSeconds != 30 {
		t.Fatalf("expected default scheduler interval 30s, got %d", cfg.Scheduler.IntervalSeconds)
	}
	if cfg.Notify.MaxDeliveryAttempts != 5 {
		t.Fatalf("expected default max delivery attempts 5, got %d", cfg.Notify.MaxDeliveryAttempts)
	}
	if cfg.Notify.DefaultQuietHoursStart != 22 || cfg.Notify.DefaultQuietHoursEnd != 8 {
		t.Fatalf("unexpected default quiet hours: %#v", cfg.Notify)
	}
}

func TestSchedulerConfigDurations(t *testing.T) {
	cfg := SchedulerConfig{
		IntervalSeconds:      30,
		NextRunJitterSeconds: 10,
		RetryDelaySeconds:    60,
		RetryJitterSeconds:   15,
	}

	if cfg.Interval().Seconds() != 30 {
		t.Fatalf("unexpected interval: %v", cfg.Interval())
	}
	if cfg.NextRunJitter().Seconds() != 10 {
		t.Fatalf("unexpected next run jitter: %v", cfg.NextRunJitter())
	}
	if cfg.RetryDelay().Seconds() != 60 {
		t.Fatalf("unexpected retry delay: %v", cfg.RetryDelay())
	}
	if cfg.RetryJitter().Seconds() != 15 {
		t.Fatalf("unexpected retry jitter: %v", cfg.RetryJitter())
	}
}

func TestDatabaseConfigConnectionString(t *testing.T) {
	cfg := DatabaseConfig{Host: "localhost", Port: 5432, User: "vinylwatch", Password: "secret", Name: "vinylwatch", SSLMode: "disable"}
	got := cfg.ConnectionString()
	want := "host=localhost port=5432 user=vinylwatch password=secret dbname=vinylwatch sslmode=disable"
	if got != want {
		t.Fatalf("unexpected connection string: %s", got)
	}
}

func TestLoadConfigFromJSON(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "config-*.json")
	if err != nil {
		t.Fatalf("create temp config: %v", err)
	}
	if _, err := f.WriteString(`{"server":{"host":"127.0.0.1","port":9090}}`); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	f.Close()

	cfg, err := LoadConfig(f.Name())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9090 {
		t.Fatalf("unexpected server config: %#v", cfg.Server)
	}
}
