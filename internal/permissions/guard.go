package permissions

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stafflane/stafflane/internal/accounts"
	"github.com/stafflane/stafflane/internal/platform/httpx"
	"github.com/stafflane/stafflane/internal/shared"
)

// Guard decides whether a requestor may overwrite a target's permission
// set. Every verdict is single-shot: nothing is cached and a rejection
// leaves no side effects. Stale approvals are a security defect, so the
// orchestrator re-runs the guard on every mutation attempt.
type Guard struct {
	resolver   *Resolver
	protection accounts.ProtectionPolicy
	logger     *slog.Logger
}

// NewGuard builds a Guard instance.
func NewGuard(resolver *Resolver, protection accounts.ProtectionPolicy, logger *slog.Logger) *Guard {
	return &Guard{resolver: resolver, protection: protection, logger: logger}
}

// AuthorizeUserMutation checks requestor identity and the base update
// permission. It needs no target, so it runs before the target is loaded
// and an unauthorized requestor cannot probe which ids exist.
func (g *Guard) AuthorizeUserMutation(ctx context.Context, requestor *accounts.User) error {
	if requestor == nil {
		return fmt.Errorf("permissions: missing requestor identity: %w", httpx.ErrUnauthorized)
	}
	if !g.resolver.HasPermission(ctx, requestor, shared.PermPutUserProfilePermissions) {
		return fmt.Errorf("permissions: not authorized to update permissions: %w", httpx.ErrForbidden)
	}
	return nil
}

// AuthorizeUserTarget runs the target-dependent checks on a loaded
// target: the protected-role elevation and the account-protection policy.
func (g *Guard) AuthorizeUserTarget(ctx context.Context, requestor, target *accounts.User) error {
	// Members of the protected role need a distinct elevated permission;
	// the base update permission alone is not enough.
	if target.Role == shared.RoleOwner && !g.resolver.HasPermission(ctx, requestor, shared.PermAddDeleteEditOwners) {
		return fmt.Errorf("permissions: not authorized to update owner permissions: %w", httpx.ErrForbidden)
	}

	allowed, err := g.protection.CanRequestorActOnTarget(ctx, requestor.ID, target.ID)
	if err != nil {
		return fmt.Errorf("permissions: account protection check: %w", err)
	}
	if !allowed {
		g.logger.Warn("account protection denied update",
			slog.Int64("requestor", requestor.ID),
			slog.Int64("target", target.ID),
		)
		return fmt.Errorf("permissions: not authorized to update this target: %w", httpx.ErrForbidden)
	}
	return nil
}

// AuthorizeUserUpdate runs the full verdict against an already-loaded
// target.
func (g *Guard) AuthorizeUserUpdate(ctx context.Context, requestor, target *accounts.User) error {
	if err := g.AuthorizeUserMutation(ctx, requestor); err != nil {
		return err
	}
	return g.AuthorizeUserTarget(ctx, requestor, target)
}

// AuthorizeRoleUpdate checks that requestor may rewrite a role's default
// permission set.
func (g *Guard) AuthorizeRoleUpdate(ctx context.Context, requestor *accounts.User, roleName string) error {
	if requestor == nil {
		return fmt.Errorf("permissions: missing requestor identity: %w", httpx.ErrUnauthorized)
	}
	if !g.resolver.HasPermission(ctx, requestor, shared.PermPutRolePermissions) {
		return fmt.Errorf("permissions: not authorized to update role permissions: %w", httpx.ErrForbidden)
	}
	if roleName == shared.RoleOwner && !g.resolver.HasPermission(ctx, requestor, shared.PermAddDeleteEditOwners) {
		return fmt.Errorf("permissions: not authorized to update the owner role: %w", httpx.ErrForbidden)
	}
	return nil
}
