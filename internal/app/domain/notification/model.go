package notification

import (
	"time"

	"github.com/r3e-network/vinylwatch/internal/app/domain/event"
)

// Channel identifies a notification transport.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelRealtime Channel = "realtime"
)

// Status tracks delivery lifecycle.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Notification is a (event, channel) delivery record. Unique by
// (event_id, channel).
type Notification struct {
	ID          string
	UserID      string
	EventID     string
	EventType   event.Type
	Channel     Channel
	Status      Status
	IsRead      bool
	DeliveredAt *time.Time
	FailedAt    *time.Time
	ReadAt      *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
