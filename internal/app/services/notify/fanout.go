package notify

import (
	"context"

	"github.com/r3e-network/vinylwatch/internal/app/domain/event"
	"github.com/r3e-network/vinylwatch/internal/app/domain/notification"
	"github.com/r3e-network/vinylwatch/internal/app/domain/preference"
	"github.com/r3e-network/vinylwatch/internal/app/storage"
)

// allChannels lists every channel a notification may fan out to, per §4.5.1.
var allChannels = []notification.Channel{notification.ChannelEmail, notification.ChannelRealtime}

// Fanout implements §4.5.1: for every user-visible event, resolve the
// user's preference, honor the event-type toggle, and insert one pending
// notification per enabled channel, each backed by an idempotent insert.
type Fanout struct {
	Preferences   storage.PreferenceStore
	Notifications storage.NotificationStore
	Queue         TaskQueue
}

// NewFanout builds a Fanout.
func NewFanout(preferences storage.PreferenceStore, notifications storage.NotificationStore, queue TaskQueue) *Fanout {
	return &Fanout{Preferences: preferences, Notifications: notifications, Queue: queue}
}

// HandleEvent fans e out to notifications if e.Type is user-visible and the
// user's preference allows it. Safe to call for every persisted event;
// non-user-visible types are a no-op.
func (f *Fanout) HandleEvent(ctx context.Context, e event.Event) error {
	if !e.Type.UserVisible() {
		return nil
	}

	pref, err := f.resolvePreference(ctx, e.UserID)
	if err != nil {
		return err
	}
	if !pref.AllowsEvent(e.Type) {
		return nil
	}

	for _, ch := range allChannels {
		if !pref.AllowsChannel(string(ch)) {
			continue
		}

		n := notification.Notification{
			UserID:    e.UserID,
			EventID:   e.ID,
			EventType: e.Type,
			Channel:   ch,
			Status:    notification.StatusPending,
		}
		created, _, err := f.Notifications.CreateNotificationIfAbsent(ctx, n)
		if err != nil {
			return err
		}
		if f.Queue != nil {
			f.Queue.Enqueue(ctx, created.ID, 0)
		}
	}
	return nil
}

// resolvePreference returns the user's stored preference, or the lazy
// default (every channel and event type enabled) if none exists.
func (f *Fanout) resolvePreference(ctx context.Context, userID string) (preference.UserNotificationPreference, error) {
	pref, ok, err := f.Preferences.GetPreference(ctx, userID)
	if err != nil {
		return preference.UserNotificationPreference{}, err
	}
	if !ok {
		return preference.Default(userID), nil
	}
	return pref, nil
}
