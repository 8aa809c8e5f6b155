package permissions

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/stafflane/stafflane/internal/accounts"
	"github.com/stafflane/stafflane/internal/audit"
	"github.com/stafflane/stafflane/internal/observability"
	"github.com/stafflane/stafflane/internal/platform/cache"
	"github.com/stafflane/stafflane/internal/platform/httpx"
	"github.com/stafflane/stafflane/internal/roles"
	"github.com/stafflane/stafflane/internal/shared"
)

// ChangeRecorder appends an audit entry for a committed mutation.
type ChangeRecorder interface {
	Record(ctx context.Context, kind audit.EntityKind, entityID, entityName string, prior, next []string, requestor audit.Requestor) (*audit.ChangeLog, error)
}

// Notifier delivers fire-and-forget change notices to interested
// collaborators.
type Notifier interface {
	Notify(ctx context.Context, kind string, payload any) error
}

// RoleStore is the slice of the role registry the orchestrator mutates.
type RoleStore interface {
	GetRole(ctx context.Context, name string) (*roles.Role, error)
	UpdateRolePermissions(ctx context.Context, name string, permissions []string) (*roles.Role, error)
	GetPreset(ctx context.Context, id int64) (*roles.Preset, error)
}

// Service is the single entry point for permission mutations. It
// sequences guard -> persist -> audit -> cache invalidation and holds a
// per-entity lock across the whole sequence so concurrent writers against
// the same target cannot lose updates or skew audit deltas.
type Service struct {
	accounts accounts.RepositoryPort
	roles    RoleStore
	guard    *Guard
	resolver *Resolver
	recorder ChangeRecorder
	notifier Notifier
	cache    *cache.Store
	locks    *shared.KeyMutex
	validate *validator.Validate
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewService builds the orchestrator.
func NewService(
	accountsRepo accounts.RepositoryPort,
	roleStore RoleStore,
	guard *Guard,
	resolver *Resolver,
	recorder ChangeRecorder,
	notifier Notifier,
	store *cache.Store,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Service {
	return &Service{
		accounts: accountsRepo,
		roles:    roleStore,
		guard:    guard,
		resolver: resolver,
		recorder: recorder,
		notifier: notifier,
		cache:    store,
		locks:    shared.NewKeyMutex(),
		validate: validator.New(),
		metrics:  metrics,
		logger:   logger,
	}
}

// ChangeNotice is the payload delivered to the notification collaborator
// after a committed mutation.
type ChangeNotice struct {
	EntityKind string   `json:"entityKind"`
	EntityID   string   `json:"entityId"`
	EntityName string   `json:"entityName"`
	Added      []string `json:"added"`
	Removed    []string `json:"removed"`
	Requestor  string   `json:"requestor"`
}

// EventPermissionsChanged identifies permission change notices.
const EventPermissionsChanged = "permissions.changed"

// UpdateUserPermissions overwrites the target actor's permission override
// with the patch merged over its current value. The persist step is the
// only mandatory one; audit, notification and cache invalidation are
// best-effort and their failures are logged, never surfaced.
func (s *Service) UpdateUserPermissions(ctx context.Context, requestor *accounts.User, targetID int64, patch OverridePatch) (*accounts.User, error) {
	if err := s.validate.Struct(patch); err != nil {
		return nil, fmt.Errorf("permissions: invalid override patch: %w", httpx.ErrValidation)
	}
	if requestor == nil {
		return nil, fmt.Errorf("permissions: missing requestor identity: %w", httpx.ErrUnauthorized)
	}
	if targetID <= 0 {
		return nil, fmt.Errorf("permissions: invalid target id: %w", httpx.ErrValidation)
	}

	// The target-independent guard phase runs before the load so a
	// requestor without the base permission cannot probe which ids exist.
	if err := s.guard.AuthorizeUserMutation(ctx, requestor); err != nil {
		s.metrics.ObserveMutation(string(audit.EntityUser), "denied")
		return nil, err
	}

	lockKey := "user:" + strconv.FormatInt(targetID, 10)
	s.locks.Lock(lockKey)
	defer s.locks.Unlock(lockKey)

	target, err := s.accounts.GetUser(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.AuthorizeUserTarget(ctx, requestor, target); err != nil {
		s.metrics.ObserveMutation(string(audit.EntityUser), "denied")
		return nil, err
	}

	prior := s.resolver.EffectivePermissions(ctx, target)

	merged := patch.Apply(target.Override)
	updated, err := s.accounts.UpdateOverride(ctx, targetID, merged, target.Version)
	if err != nil {
		s.metrics.ObserveMutation(string(audit.EntityUser), "failed")
		return nil, fmt.Errorf("permissions: persist override for user %d: %w", targetID, err)
	}
	s.metrics.ObserveMutation(string(audit.EntityUser), "committed")

	next := s.resolver.EffectivePermissions(ctx, updated)
	s.afterCommit(ctx, audit.EntityUser,
		strconv.FormatInt(updated.ID, 10), updated.Name,
		prior, next, requestor,
		cache.ActorKey(updated.ID), cache.AllActorsKey,
	)
	return updated, nil
}

// UpdateRolePermissions replaces a role's default permission set.
func (s *Service) UpdateRolePermissions(ctx context.Context, requestor *accounts.User, roleName string, permissions []string) (*roles.Role, error) {
	if requestor == nil {
		return nil, fmt.Errorf("permissions: missing requestor identity: %w", httpx.ErrUnauthorized)
	}
	if roleName == "" {
		return nil, fmt.Errorf("permissions: role name required: %w", httpx.ErrValidation)
	}

	// The role guard only needs the role name, so the whole verdict
	// precedes the load.
	if err := s.guard.AuthorizeRoleUpdate(ctx, requestor, roleName); err != nil {
		s.metrics.ObserveMutation(string(audit.EntityRole), "denied")
		return nil, err
	}

	lockKey := "role:" + roleName
	s.locks.Lock(lockKey)
	defer s.locks.Unlock(lockKey)

	role, err := s.roles.GetRole(ctx, roleName)
	if err != nil {
		return nil, err
	}

	prior := role.Permissions
	updated, err := s.roles.UpdateRolePermissions(ctx, roleName, normalizeKeys(permissions))
	if err != nil {
		s.metrics.ObserveMutation(string(audit.EntityRole), "failed")
		return nil, fmt.Errorf("permissions: persist role %s: %w", roleName, err)
	}
	s.metrics.ObserveMutation(string(audit.EntityRole), "committed")

	// Role defaults feed every member's effective view, so the whole
	// actor keyspace is stale, not just the role entry.
	s.afterCommit(ctx, audit.EntityRole,
		updated.Name, updated.Name,
		prior, updated.Permissions, requestor,
		cache.RoleKey(updated.Name), cache.AllActorsKey, "actor-",
	)
	return updated, nil
}

// ApplyPreset replaces a role's default set with a named preset bundle.
func (s *Service) ApplyPreset(ctx context.Context, requestor *accounts.User, roleName string, presetID int64) (*roles.Role, error) {
	if roleName == "" {
		return nil, fmt.Errorf("permissions: role name required: %w", httpx.ErrValidation)
	}
	// Guard before the preset lookup; an unauthorized caller must not
	// learn which preset ids exist.
	if err := s.guard.AuthorizeRoleUpdate(ctx, requestor, roleName); err != nil {
		s.metrics.ObserveMutation(string(audit.EntityRole), "denied")
		return nil, err
	}

	preset, err := s.roles.GetPreset(ctx, presetID)
	if err != nil {
		return nil, err
	}
	if preset.RoleName != roleName {
		return nil, fmt.Errorf("permissions: preset %d belongs to role %s: %w", presetID, preset.RoleName, httpx.ErrValidation)
	}
	return s.UpdateRolePermissions(ctx, requestor, roleName, preset.Permissions)
}

// afterCommit runs the best-effort side effects of a committed mutation:
// audit recording, change notification and cache invalidation. The steps
// are independent and run concurrently, but all of them are attempted
// before the enclosing request returns. Cache keys ending in "-" are
// treated as prefixes.
func (s *Service) afterCommit(ctx context.Context, kind audit.EntityKind, entityID, entityName string, prior, next []string, requestor *accounts.User, cacheKeys ...string) {
	added, removed := audit.Diff(prior, next)

	var g errgroup.Group
	g.Go(func() error {
		_, err := s.recorder.Record(ctx, kind, entityID, entityName, prior, next, audit.Requestor{
			ID:    requestor.ID,
			Role:  requestor.Role,
			Email: requestor.Email,
		})
		if err != nil {
			s.logger.Error("audit record failed",
				slog.String("step", "audit"),
				slog.String("entity", entityID),
				slog.Any("error", err),
			)
		}
		return nil
	})
	g.Go(func() error {
		if s.notifier == nil {
			return nil
		}
		err := s.notifier.Notify(ctx, EventPermissionsChanged, ChangeNotice{
			EntityKind: string(kind),
			EntityID:   entityID,
			EntityName: entityName,
			Added:      added,
			Removed:    removed,
			Requestor:  requestor.Email,
		})
		if err != nil {
			s.logger.Error("change notification failed",
				slog.String("step", "notify"),
				slog.String("entity", entityID),
				slog.Any("error", err),
			)
		}
		return nil
	})
	g.Go(func() error {
		if s.cache == nil {
			return nil
		}
		for _, key := range cacheKeys {
			var err error
			if len(key) > 0 && key[len(key)-1] == '-' {
				err = s.cache.InvalidatePrefix(ctx, key)
			} else {
				err = s.cache.Invalidate(ctx, key)
			}
			if err != nil {
				s.logger.Error("cache invalidation failed",
					slog.String("step", "cache"),
					slog.String("entity", entityID),
					slog.String("key", key),
					slog.Any("error", err),
				)
			}
		}
		return nil
	})
	_ = g.Wait()
}
