package importjob

import "time"

// Scope is the portion of the user's external catalog to import.
type Scope string

const (
	ScopeWantlist   Scope = "wantlist"
	ScopeCollection Scope = "collection"
	ScopeBoth       Scope = "both"
)

// Status is the import job state machine: pending -> running -> {completed, failed}.
// Terminal states are immutable.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// InFlight reports whether a job in this status counts against the
// single-flight (user, provider, scope) admission constraint.
func (s Status) InFlight() bool {
	return s == StatusPending || s == StatusRunning
}

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ImportJob tracks a single paginated ingestion of an external wantlist
// and/or collection into WatchRelease rows.
type ImportJob struct {
	ID                    string
	UserID                string
	ExternalAccountLinkID *string
	Provider              string
	ImportScope           Scope
	Status                Status
	Cursor                string
	Page                  int
	Processed             int
	Imported              int
	Created               int
	Updated               int
	ErrorCount            int
	Errors                []string
	StartedAt             *time.Time
	CompletedAt           *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}
