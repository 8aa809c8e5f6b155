package permissions

import (
	"context"
	"errors"
	"log/slog"

	"github.com/stafflane/stafflane/internal/accounts"
	"github.com/stafflane/stafflane/internal/platform/cache"
	"github.com/stafflane/stafflane/internal/platform/httpx"
)

// RoleSource supplies a role's default permission set. Unknown roles
// resolve to an empty set.
type RoleSource interface {
	RoleDefaults(ctx context.Context, roleName string) ([]string, error)
}

// ActorSource supplies actor profiles by id.
type ActorSource interface {
	GetUser(ctx context.Context, id int64) (*accounts.User, error)
}

// Resolver computes effective permission sets and answers point queries.
// It never mutates its inputs and is safe for concurrent read paths: each
// call works on a snapshot of role and override data.
type Resolver struct {
	roles  RoleSource
	actors ActorSource
	cache  *cache.Store
	logger *slog.Logger
}

// NewResolver builds a Resolver instance.
func NewResolver(roles RoleSource, actors ActorSource, store *cache.Store, logger *slog.Logger) *Resolver {
	return &Resolver{roles: roles, actors: actors, cache: store, logger: logger}
}

// HasPermission reports whether key is in the actor's effective
// permission set. A nil actor holds nothing.
func (r *Resolver) HasPermission(ctx context.Context, actor *accounts.User, key string) bool {
	if actor == nil {
		return false
	}
	if containsKey(actor.Override.RemovedDefaultPermissions, key) {
		return false
	}
	if containsKey(actor.Override.FrontPermissions, key) || containsKey(actor.Override.BackPermissions, key) {
		return true
	}
	return containsKey(r.roleDefaults(ctx, actor.Role), key)
}

// HasIndividualPermission reports whether key appears in the actor's own
// front or back permissions, ignoring role defaults entirely. A missing
// actor grants nothing.
func (r *Resolver) HasIndividualPermission(ctx context.Context, actorID int64, key string) bool {
	actor, err := r.actors.GetUser(ctx, actorID)
	if err != nil {
		if !errors.Is(err, httpx.ErrNotFound) {
			r.logger.Warn("individual permission lookup", slog.Int64("actor", actorID), slog.Any("error", err))
		}
		return false
	}
	return containsKey(actor.Override.FrontPermissions, key) || containsKey(actor.Override.BackPermissions, key)
}

// EffectivePermissions computes the actor's full effective set.
func (r *Resolver) EffectivePermissions(ctx context.Context, actor *accounts.User) []string {
	if actor == nil {
		return nil
	}
	return Effective(r.roleDefaults(ctx, actor.Role), actor.Override)
}

// EffectivePermissionsByID loads the actor and computes its effective
// set, read through the per-actor cache key.
func (r *Resolver) EffectivePermissionsByID(ctx context.Context, actorID int64) ([]string, error) {
	if r.cache != nil {
		var cached []string
		ok, err := r.cache.GetJSON(ctx, cache.ActorKey(actorID), &cached)
		if err != nil {
			r.logger.Warn("actor cache read", slog.Int64("actor", actorID), slog.Any("error", err))
		} else if ok {
			return cached, nil
		}
	}

	actor, err := r.actors.GetUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	effective := r.EffectivePermissions(ctx, actor)

	if r.cache != nil {
		if err := r.cache.SetJSON(ctx, cache.ActorKey(actorID), effective, 0); err != nil {
			r.logger.Warn("actor cache populate", slog.Int64("actor", actorID), slog.Any("error", err))
		}
	}
	return effective, nil
}

// HasPermissionByID answers a point query for an actor that is not
// already in hand.
func (r *Resolver) HasPermissionByID(ctx context.Context, actorID int64, key string) (bool, error) {
	effective, err := r.EffectivePermissionsByID(ctx, actorID)
	if err != nil {
		return false, err
	}
	return containsKey(effective, key), nil
}

// roleDefaults resolves a role's default set, read through the role cache
// key under the store TTL. Lookup failures degrade to an empty set so a
// broken or unknown role never grants anything and never fails the check.
func (r *Resolver) roleDefaults(ctx context.Context, roleName string) []string {
	if roleName == "" {
		return nil
	}

	if r.cache != nil {
		var cached []string
		ok, err := r.cache.GetJSON(ctx, cache.RoleKey(roleName), &cached)
		if err != nil {
			r.logger.Warn("role cache read", slog.String("role", roleName), slog.Any("error", err))
		} else if ok {
			return cached
		}
	}

	defaults, err := r.roles.RoleDefaults(ctx, roleName)
	if err != nil {
		r.logger.Warn("role defaults lookup", slog.String("role", roleName), slog.Any("error", err))
		return nil
	}

	if r.cache != nil && defaults != nil {
		if err := r.cache.SetJSON(ctx, cache.RoleKey(roleName), defaults, 0); err != nil {
			r.logger.Warn("role cache populate", slog.String("role", roleName), slog.Any("error", err))
		}
	}
	return defaults
}
