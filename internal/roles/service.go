package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stafflane/stafflane/internal/platform/cache"
	"github.com/stafflane/stafflane/internal/platform/httpx"
)

// Service handles role and preset registry logic.
type Service struct {
	repo   RepositoryPort
	cache  *cache.Store
	logger *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, store *cache.Store, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: store, logger: logger}
}

// GetRole fetches a role by name.
func (s *Service) GetRole(ctx context.Context, name string) (*Role, error) {
	return s.repo.GetRole(ctx, name)
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// CreateRole inserts a new role with its default permission set.
func (s *Service) CreateRole(ctx context.Context, name string, permissions []string) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("roles: role name required: %w", httpx.ErrValidation)
	}
	return s.repo.CreateRole(ctx, name, dedupe(permissions))
}

// UpdateRolePermissions replaces a role's default permission set. Cache
// invalidation is the caller's responsibility: the mutation orchestrator
// owns the post-commit sequence.
func (s *Service) UpdateRolePermissions(ctx context.Context, name string, permissions []string) (*Role, error) {
	return s.repo.UpdateRolePermissions(ctx, name, dedupe(permissions))
}

// DeleteRole removes a role and invalidates its cached default set.
func (s *Service) DeleteRole(ctx context.Context, name string) error {
	if err := s.repo.DeleteRole(ctx, name); err != nil {
		return err
	}
	s.invalidateRole(ctx, name)
	return nil
}

// RoleDefaults returns the default permission set for a role. Unknown
// roles yield an empty set, not an error: a dangling role reference must
// grant nothing without breaking the permission check.
func (s *Service) RoleDefaults(ctx context.Context, name string) ([]string, error) {
	role, err := s.repo.GetRole(ctx, name)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return role.Permissions, nil
}

// GetPreset fetches a preset by id.
func (s *Service) GetPreset(ctx context.Context, id int64) (*Preset, error) {
	return s.repo.GetPreset(ctx, id)
}

// ListPresets returns the presets registered for a role.
func (s *Service) ListPresets(ctx context.Context, roleName string) ([]Preset, error) {
	return s.repo.ListPresets(ctx, roleName)
}

// CreatePreset registers a named permission bundle for a role.
func (s *Service) CreatePreset(ctx context.Context, roleName, presetName string, permissions []string) (*Preset, error) {
	roleName = strings.TrimSpace(roleName)
	presetName = strings.TrimSpace(presetName)
	if roleName == "" || presetName == "" {
		return nil, fmt.Errorf("roles: preset requires role and preset name: %w", httpx.ErrValidation)
	}
	if _, err := s.repo.GetRole(ctx, roleName); err != nil {
		return nil, err
	}
	return s.repo.CreatePreset(ctx, roleName, presetName, dedupe(permissions))
}

// UpdatePreset replaces a preset's name and bundle.
func (s *Service) UpdatePreset(ctx context.Context, id int64, presetName string, permissions []string) (*Preset, error) {
	presetName = strings.TrimSpace(presetName)
	if presetName == "" {
		return nil, fmt.Errorf("roles: preset name required: %w", httpx.ErrValidation)
	}
	return s.repo.UpdatePreset(ctx, id, presetName, dedupe(permissions))
}

// DeletePreset removes a preset.
func (s *Service) DeletePreset(ctx context.Context, id int64) error {
	return s.repo.DeletePreset(ctx, id)
}

func (s *Service) invalidateRole(ctx context.Context, name string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, cache.RoleKey(name)); err != nil {
		s.logger.Warn("role cache invalidate", slog.String("role", name), slog.Any("error", err))
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, httpx.ErrNotFound)
}

func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	result := make([]string, 0, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, key)
	}
	return result
}
