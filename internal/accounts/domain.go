package accounts

import "time"

// Override carries an actor's individual permission adjustments layered on
// top of the role defaults. Front and back permissions are explicit
// grants; removed default permissions suppress role-derived grants for
// this actor only.
type Override struct {
	IsAcknowledged            bool     `json:"isAcknowledged"`
	FrontPermissions          []string `json:"frontPermissions"`
	BackPermissions           []string `json:"backPermissions"`
	RemovedDefaultPermissions []string `json:"removedDefaultPermissions"`
}

// User represents an actor profile.
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"isActive"`
	Override  Override  `json:"permissions"`
	Version   int64     `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
