package roles

import "time"

// Role holds the default permission set granted to every actor of that
// role.
type Role struct {
	Name        string    `json:"roleName"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Preset is a named, reusable permission bundle scoped to a role. Pure
// data; applying one runs through the mutation orchestrator like any other
// role update.
type Preset struct {
	ID          int64     `json:"id"`
	RoleName    string    `json:"roleName"`
	PresetName  string    `json:"presetName"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
