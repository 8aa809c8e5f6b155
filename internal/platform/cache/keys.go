package cache

import "strconv"

// AllActorsKey holds the serialized list of every actor's profile view.
const AllActorsKey = "all-actors"

// ActorKey builds the cache key for one actor's permission view.
func ActorKey(id int64) string {
	return "actor-" + strconv.FormatInt(id, 10)
}

// RoleKey builds the cache key for a role's default permission set.
func RoleKey(name string) string {
	return "role-" + name
}
