package user

import "time"

// User is the owner of watch rules, watch releases, and every other
// per-user entity in the system. Users are created externally (no
// self-registration flow lives in this core); deactivation disables the
// user's active rules as a side effect rather than deleting anything.
type User struct {
	ID          string
	Email       string
	DisplayName string
	Timezone    string
	Currency    string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
