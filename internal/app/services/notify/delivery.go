package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	core "github.com/r3e-network/vinylwatch/internal/app/core/service"
	"github.com/r3e-network/vinylwatch/internal/app/domain/notification"
	"github.com/r3e-network/vinylwatch/internal/app/domain/preference"
	"github.com/r3e-network/vinylwatch/internal/app/storage"
	"github.com/r3e-network/vinylwatch/pkg/logger"
)

// EmailTransport sends a single email notification. Implementations should
// return a RetryableError for transient failures (rate limits, timeouts)
// so the worker backs off instead of discarding the notification.
type EmailTransport interface {
	Send(ctx context.Context, to, subject, body string) error
}

// RetryableError marks an EmailTransport failure as transient.
type RetryableError struct{ Err error }

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryable reports whether err should trigger the worker's exponential
// backoff rather than a terminal failure.
func IsRetryable(err error) bool {
	_, ok := err.(*RetryableError)
	return ok
}

// realtimePayload is the JSON body published to stream-broker subscribers.
type realtimePayload struct {
	NotificationID string    `json:"notification_id"`
	EventID        string    `json:"event_id"`
	EventType      string    `json:"event_type"`
	CreatedAt      time.Time `json:"created_at"`
}

// Worker implements §4.5.2: drain delivery tasks and dispatch by channel.
// Grounded on the oracle dispatcher's tick/backoff shape, minus its tracer.
type Worker struct {
	Notifications storage.NotificationStore
	Preferences   storage.PreferenceStore
	Users         storage.UserStore
	Broker        Broker
	Email         EmailTransport
	Queue         *LocalTaskQueue
	Log           *logger.Logger

	MaxAttempts int

	mu       sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	running  bool
	attempts map[string]int
}

// NewWorker builds a delivery worker.
func NewWorker(notifications storage.NotificationStore, preferences storage.PreferenceStore, users storage.UserStore, broker Broker, email EmailTransport, queue *LocalTaskQueue, log *logger.Logger) *Worker {
	if log == nil {
		log = logger.NewDefault("notification-delivery")
	}
	return &Worker{
		Notifications: notifications,
		Preferences:   preferences,
		Users:         users,
		Broker:        broker,
		Email:         email,
		Queue:         queue,
		Log:           log,
		MaxAttempts:   5,
		attempts:      make(map[string]int),
	}
}

func (w *Worker) Name() string { return "notification-delivery" }

func (w *Worker) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:         "notification-delivery",
		Domain:       "notify",
		Layer:        core.LayerEngine,
		Capabilities: []string{"deliver", "fanout"},
	}
}

// Start begins draining the task queue in the background.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case id, ok := <-w.Queue.Tasks():
				if !ok {
					return
				}
				w.deliver(runCtx, id)
			}
		}
	}()

	w.Log.Info("notification delivery worker started")
	return nil
}

// Stop halts the drain loop.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	cancel := w.cancel
	w.running = false
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	w.Log.Info("notification delivery worker stopped")
	return nil
}

// deliver implements the deliver_notification(notification_id) task handler.
func (w *Worker) deliver(ctx context.Context, id string) {
	n, err := w.Notifications.GetNotification(ctx, id)
	if err != nil {
		w.Log.WithError(err).WithField("notification_id", id).Warn("notification missing, treating as lost race")
		return
	}

	if n.Status == notification.StatusSent {
		return
	}

	pref, err := w.resolvePreference(ctx, n.UserID)
	if err != nil {
		w.Log.WithError(err).WithField("notification_id", id).Warn("resolve preference failed")
		return
	}

	tz := pref.TimezoneOverride
	if tz == "" {
		if u, err := w.Users.GetUser(ctx, n.UserID); err == nil {
			tz = u.Timezone
		}
	}

	if defer_ := deferSeconds(time.Now(), tz, pref); defer_ > 0 {
		w.Queue.Enqueue(ctx, id, defer_)
		return
	}

	var dispatchErr error
	switch n.Channel {
	case notification.ChannelEmail:
		dispatchErr = w.deliverEmail(ctx, n)
	case notification.ChannelRealtime:
		dispatchErr = w.deliverRealtime(ctx, n)
	default:
		w.Log.WithField("notification_id", id).WithField("channel", n.Channel).Warn("unknown notification channel")
		return
	}

	if dispatchErr == nil {
		now := time.Now().UTC()
		n.Status = notification.StatusSent
		n.DeliveredAt = &now
		if _, err := w.Notifications.UpdateNotification(ctx, n); err != nil {
			w.Log.WithError(err).WithField("notification_id", id).Warn("persist delivered notification failed")
		}
		w.clearAttempts(id)
		return
	}

	if IsRetryable(dispatchErr) && w.attemptCount(id) < w.MaxAttempts {
		backoff := w.nextBackoff(id)
		w.Log.WithError(dispatchErr).WithField("notification_id", id).Warn("retryable delivery failure, backing off")
		w.Queue.Enqueue(ctx, id, backoff)
		return
	}

	w.Log.WithError(dispatchErr).WithField("notification_id", id).Warn("notification delivery failed")
	now := time.Now().UTC()
	n.Status = notification.StatusFailed
	n.FailedAt = &now
	if _, err := w.Notifications.UpdateNotification(ctx, n); err != nil {
		w.Log.WithError(err).WithField("notification_id", id).Warn("persist failed notification failed")
	}
	w.clearAttempts(id)
}

func (w *Worker) deliverEmail(ctx context.Context, n notification.Notification) error {
	u, err := w.Users.GetUser(ctx, n.UserID)
	if err != nil {
		return err
	}
	subject := string(n.EventType)
	body := "Event " + string(n.EventType) + " for your vinylwatch account."
	return w.Email.Send(ctx, u.Email, subject, body)
}

func (w *Worker) deliverRealtime(ctx context.Context, n notification.Notification) error {
	payload := realtimePayload{
		NotificationID: n.ID,
		EventID:        n.EventID,
		EventType:      string(n.EventType),
		CreatedAt:      n.CreatedAt,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	w.Broker.Publish(ctx, n.UserID, body)
	return nil
}

func (w *Worker) resolvePreference(ctx context.Context, userID string) (preference.UserNotificationPreference, error) {
	pref, ok, err := w.Preferences.GetPreference(ctx, userID)
	if err != nil {
		return preference.UserNotificationPreference{}, err
	}
	if !ok {
		return preference.Default(userID), nil
	}
	return pref, nil
}

func (w *Worker) attemptCount(id string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.attempts[id]
}

func (w *Worker) nextBackoff(id string) time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts[id]++
	n := w.attempts[id]
	backoff := time.Duration(1<<uint(n)) * time.Second
	if backoff > 5*time.Minute {
		backoff = 5 * time.Minute
	}
	return backoff
}

func (w *Worker) clearAttempts(id string) {
	w.mu.Lock()
	delete(w.attempts, id)
	w.mu.Unlock()
}

// deferSeconds computes the delay before a notification may be delivered,
// from quiet hours and delivery_frequency, per §4.5.2. Hour boundaries are
// evaluated in tz (falling back to UTC if tz is empty or unrecognized).
func deferSeconds(now time.Time, tz string, pref preference.UserNotificationPreference) time.Duration {
	loc := time.UTC
	if tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	local := now.In(loc)

	if pref.QuietHoursStart != nil && pref.QuietHoursEnd != nil {
		if until, inQuiet := quietHoursRemaining(local, *pref.QuietHoursStart, *pref.QuietHoursEnd); inQuiet {
			return until
		}
	}

	switch pref.DeliveryFrequency {
	case preference.DeliveryHourly:
		nextHour := local.Truncate(time.Hour).Add(time.Hour)
		return nextHour.Sub(local)
	case preference.DeliveryDaily:
		anchor := 9
		if pref.QuietHoursEnd != nil {
			anchor = *pref.QuietHoursEnd
		}
		next := time.Date(local.Year(), local.Month(), local.Day(), anchor, 0, 0, 0, loc)
		if !next.After(local) {
			next = next.AddDate(0, 0, 1)
		}
		return next.Sub(local)
	default:
		return 0
	}
}

// quietHoursRemaining reports whether local falls within [start, end) hours
// (wrapping past midnight when end < start; equal start and end means no
// quiet window) and, if so, the delay until the quiet window ends.
func quietHoursRemaining(local time.Time, start, end int) (time.Duration, bool) {
	hour := local.Hour()
	inWindow := false
	if start == end {
		return 0, false
	}
	if start < end {
		inWindow = hour >= start && hour < end
	} else {
		inWindow = hour >= start || hour < end
	}
	if !inWindow {
		return 0, false
	}

	endTime := time.Date(local.Year(), local.Month(), local.Day(), end, 0, 0, 0, local.Location())
	if !endTime.After(local) {
		endTime = endTime.AddDate(0, 0, 1)
	}
	return endTime.Sub(local), true
}
