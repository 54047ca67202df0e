package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/r3e-network/vinylwatch/internal/app/domain/rule"
	"github.com/r3e-network/vinylwatch/internal/app/services/runner"
	"github.com/r3e-network/vinylwatch/internal/app/storage"
)

type fakeRunner struct {
	calls   int32
	failAll bool
}

func (f *fakeRunner) Run(ctx context.Context, ruleRow rule.WatchRule) (runner.Summary, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.failAll {
		return runner.Summary{}, context.DeadlineExceeded
	}
	return runner.Summary{RuleID: ruleRow.ID}, nil
}

func newTestRule(t *testing.T, mem *storage.Memory, pollSeconds int) rule.WatchRule {
	t.Helper()
	r, err := mem.CreateRule(context.Background(), rule.WatchRule{
		UserID:              "user-1",
		Name:                "Test rule",
		IsActive:            true,
		PollIntervalSeconds: pollSeconds,
		Query: rule.Query{
			Keywords: []string{"aphex twin"},
			Sources:  []string{"discogs"},
		},
	})
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}
	return r
}

func TestSchedulerTickClaimsAndDispatchesDueRules(t *testing.T) {
	mem := storage.NewMemory()
	newTestRule(t, mem, 300)

	fr := &fakeRunner{}
	sched := New(mem, fr, Config{Interval: time.Hour, BatchSize: 10}, nil, nil)

	sched.tick(context.Background())

	if atomic.LoadInt32(&fr.calls) != 1 {
		t.Fatalf("expected exactly 1 run, got %d", fr.calls)
	}
}

func TestSchedulerTickReschedulesOnFailure(t *testing.T) {
	mem := storage.NewMemory()
	r := newTestRule(t, mem, 300)

	fr := &fakeRunner{failAll: true}
	sched := New(mem, fr, Config{
		Interval:    time.Hour,
		BatchSize:   10,
		RetryDelay:  time.Minute,
		RetryJitter: 0,
	}, nil, nil)

	sched.tick(context.Background())

	updated, err := mem.GetRule(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("get rule: %v", err)
	}
	if updated.NextRunAt == nil {
		t.Fatalf("expected NextRunAt to be set after a failed run")
	}
	if !updated.NextRunAt.After(time.Now().UTC()) {
		t.Fatalf("expected NextRunAt to be pushed into the future on retry")
	}
}

func TestSchedulerSkipsInactiveAndNotYetDueRules(t *testing.T) {
	mem := storage.NewMemory()
	future := time.Now().UTC().Add(time.Hour)
	if _, err := mem.CreateRule(context.Background(), rule.WatchRule{
		UserID:              "user-1",
		Name:                "Not due yet",
		IsActive:            true,
		PollIntervalSeconds: 300,
		NextRunAt:           &future,
		Query:               rule.Query{Keywords: []string{"x"}, Sources: []string{"discogs"}},
	}); err != nil {
		t.Fatalf("create rule: %v", err)
	}
	if _, err := mem.CreateRule(context.Background(), rule.WatchRule{
		UserID:              "user-1",
		Name:                "Inactive",
		IsActive:            false,
		PollIntervalSeconds: 300,
		Query:               rule.Query{Keywords: []string{"y"}, Sources: []string{"discogs"}},
	}); err != nil {
		t.Fatalf("create inactive rule: %v", err)
	}

	fr := &fakeRunner{}
	sched := New(mem, fr, Config{Interval: time.Hour, BatchSize: 10}, nil, nil)

	sched.tick(context.Background())

	if atomic.LoadInt32(&fr.calls) != 0 {
		t.Fatalf("expected no runs for an inactive or not-yet-due rule, got %d", fr.calls)
	}
}

func TestNewPanicsOnInvalidCronSchedule(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected New to panic on an invalid cron schedule")
		}
	}()

	mem := storage.NewMemory()
	New(mem, &fakeRunner{}, Config{CronSchedule: "not a cron expression"}, nil, nil)
}

func TestNewAcceptsValidCronSchedule(t *testing.T) {
	mem := storage.NewMemory()
	sched := New(mem, &fakeRunner{}, Config{CronSchedule: "*/1 * * * *"}, nil, nil)
	if sched.cron == nil {
		t.Fatalf("expected a parsed cron schedule")
	}
}

func TestSchedulerStartStopWithCronSchedule(t *testing.T) {
	mem := storage.NewMemory()
	newTestRule(t, mem, 300)

	fr := &fakeRunner{}
	sched := New(mem, fr, Config{CronSchedule: "*/1 * * * *", BatchSize: 10}, nil, nil)

	ctx := context.Background()
	if err := sched.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := sched.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
