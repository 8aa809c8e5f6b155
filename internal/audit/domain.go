package audit

import "time"

// EntityKind selects which append-only log collection a change belongs to.
type EntityKind string

const (
	// EntityUser scopes a change log to an actor profile.
	EntityUser EntityKind = "user"
	// EntityRole scopes a change log to a role's default set.
	EntityRole EntityKind = "role"
)

// Requestor captures the mutating actor's identity at mutation time. It
// is stored verbatim and never re-derived later.
type Requestor struct {
	ID    int64  `json:"requestorId"`
	Role  string `json:"requestorRole"`
	Email string `json:"requestorEmail"`
}

// ChangeLog is one immutable entry in a permission change log: the full
// snapshot at that moment plus the delta against the prior snapshot.
type ChangeLog struct {
	ID                 int64     `json:"id"`
	LoggedAt           time.Time `json:"logDateTime"`
	EntityID           string    `json:"entityId"`
	EntityName         string    `json:"entityName"`
	Permissions        []string  `json:"permissions"`
	PermissionsAdded   []string  `json:"permissionsAdded"`
	PermissionsRemoved []string  `json:"permissionsRemoved"`
	Requestor          Requestor `json:"requestor"`
}
