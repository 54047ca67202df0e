package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/r3e-network/vinylwatch/internal/app/domain/preference"
)

func (s *Store) GetPreference(ctx context.Context, userID string) (preference.UserNotificationPreference, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, email_enabled, realtime_enabled, quiet_hours_start, quiet_hours_end,
		       event_toggles, timezone_override, delivery_frequency
		FROM notification_preferences WHERE user_id = $1
	`, userID)
	p, err := scanPreference(row)
	if err == sql.ErrNoRows {
		return preference.UserNotificationPreference{}, false, nil
	}
	if err != nil {
		return preference.UserNotificationPreference{}, false, err
	}
	return p, true, nil
}

func (s *Store) UpsertPreference(ctx context.Context, p preference.UserNotificationPreference) (preference.UserNotificationPreference, error) {
	togglesJSON, err := json.Marshal(p.EventToggles)
	if err != nil {
		return preference.UserNotificationPreference{}, err
	}
	if p.DeliveryFrequency == "" {
		p.DeliveryFrequency = preference.DeliveryInstant
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notification_preferences
			(user_id, email_enabled, realtime_enabled, quiet_hours_start, quiet_hours_end,
			 event_toggles, timezone_override, delivery_frequency)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (user_id) DO UPDATE SET
			email_enabled = EXCLUDED.email_enabled,
			realtime_enabled = EXCLUDED.realtime_enabled,
			quiet_hours_start = EXCLUDED.quiet_hours_start,
			quiet_hours_end = EXCLUDED.quiet_hours_end,
			event_toggles = EXCLUDED.event_toggles,
			timezone_override = EXCLUDED.timezone_override,
			delivery_frequency = EXCLUDED.delivery_frequency
	`, p.UserID, p.EmailEnabled, p.RealtimeEnabled, toNullInt(p.QuietHoursStart), toNullInt(p.QuietHoursEnd),
		togglesJSON, toNullString(p.TimezoneOverride), string(p.DeliveryFrequency))
	if err != nil {
		return preference.UserNotificationPreference{}, err
	}
	return p, nil
}

func scanPreference(row rowScanner) (preference.UserNotificationPreference, error) {
	var (
		p                preference.UserNotificationPreference
		quietStart       sql.NullInt64
		quietEnd         sql.NullInt64
		togglesJSON      []byte
		timezoneOverride sql.NullString
		deliveryFreq     string
	)
	if err := row.Scan(&p.UserID, &p.EmailEnabled, &p.RealtimeEnabled, &quietStart, &quietEnd,
		&togglesJSON, &timezoneOverride, &deliveryFreq); err != nil {
		return preference.UserNotificationPreference{}, err
	}
	p.QuietHoursStart = fromNullInt(quietStart)
	p.QuietHoursEnd = fromNullInt(quietEnd)
	p.TimezoneOverride = fromNullString(timezoneOverride)
	p.DeliveryFrequency = preference.DeliveryFrequency(deliveryFreq)
	if len(togglesJSON) > 0 {
		_ = json.Unmarshal(togglesJSON, &p.EventToggles)
	}
	return p, nil
}
