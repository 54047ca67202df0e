package event

import "time"

// Type is the stable wire string for an event kind.
type Type string

const (
	TypeRuleCreated  Type = "RULE_CREATED"
	TypeRuleUpdated  Type = "RULE_UPDATED"
	TypeRuleDisabled Type = "RULE_DISABLED"
	TypeRuleEnabled  Type = "RULE_ENABLED"
	TypeRuleDeleted  Type = "RULE_DELETED"

	TypeWatchReleaseCreated  Type = "WATCH_RELEASE_CREATED"
	TypeWatchReleaseUpdated  Type = "WATCH_RELEASE_UPDATED"
	TypeWatchReleaseDisabled Type = "WATCH_RELEASE_DISABLED"
	TypeWatchReleaseEnabled  Type = "WATCH_RELEASE_ENABLED"

	TypeListingFirstSeen Type = "LISTING_FIRST_SEEN"
	TypeListingPriceDrop Type = "LISTING_PRICE_DROP"
	TypeListingPriceRise Type = "LISTING_PRICE_RISE"
	TypeListingEnded     Type = "LISTING_ENDED"

	TypeNewMatch Type = "NEW_MATCH"

	TypeImportStarted   Type = "IMPORT_STARTED"
	TypeImportCompleted Type = "IMPORT_COMPLETED"
	TypeImportFailed    Type = "IMPORT_FAILED"
)

// UserVisible reports whether this event type should fan out to
// notifications. All current event types are user-visible; the switch keeps
// the decision explicit and in one place as the enum grows.
func (t Type) UserVisible() bool {
	switch t {
	case TypeRuleCreated, TypeRuleUpdated, TypeRuleDisabled, TypeRuleEnabled, TypeRuleDeleted,
		TypeWatchReleaseCreated, TypeWatchReleaseUpdated, TypeWatchReleaseDisabled, TypeWatchReleaseEnabled,
		TypeListingFirstSeen, TypeListingPriceDrop, TypeListingPriceRise, TypeListingEnded,
		TypeNewMatch,
		TypeImportStarted, TypeImportCompleted, TypeImportFailed:
		return true
	default:
		return false
	}
}

// Event is a durable, user-scoped log entry that may be materialized into
// notifications.
type Event struct {
	ID             string
	UserID         string
	Type           Type
	WatchReleaseID *string
	RuleID         *string
	ListingID      *string
	Payload        map[string]any
	CreatedAt      time.Time
}
