package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stafflane/stafflane/internal/platform/httpx"
)

// RepositoryPort defines data access methods for roles and presets.
type RepositoryPort interface {
	GetRole(ctx context.Context, name string) (*Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	CreateRole(ctx context.Context, name string, permissions []string) (*Role, error)
	UpdateRolePermissions(ctx context.Context, name string, permissions []string) (*Role, error)
	DeleteRole(ctx context.Context, name string) error

	GetPreset(ctx context.Context, id int64) (*Preset, error)
	ListPresets(ctx context.Context, roleName string) ([]Preset, error)
	CreatePreset(ctx context.Context, roleName, presetName string, permissions []string) (*Preset, error)
	UpdatePreset(ctx context.Context, id int64, presetName string, permissions []string) (*Preset, error)
	DeletePreset(ctx context.Context, id int64) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetRole fetches a role by name.
func (r *Repository) GetRole(ctx context.Context, name string) (*Role, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT role_name, permissions, created_at, updated_at FROM roles WHERE role_name = $1`, name)
	var role Role
	if err := row.Scan(&role.Name, &role.Permissions, &role.CreatedAt, &role.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("roles: %s: %w", name, httpx.ErrNotFound)
		}
		return nil, err
	}
	return &role, nil
}

// ListRoles returns all roles ordered by name.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT role_name, permissions, created_at, updated_at FROM roles ORDER BY role_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.Name, &role.Permissions, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, role)
	}
	return result, rows.Err()
}

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, name string, permissions []string) (*Role, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO roles (role_name, permissions, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING role_name, permissions, created_at, updated_at`,
		name, permissions)
	var role Role
	if err := row.Scan(&role.Name, &role.Permissions, &role.CreatedAt, &role.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("roles: %s: %w", name, httpx.ErrDuplicate)
		}
		return nil, err
	}
	return &role, nil
}

// UpdateRolePermissions replaces the default permission set of a role.
func (r *Repository) UpdateRolePermissions(ctx context.Context, name string, permissions []string) (*Role, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE roles SET permissions = $1, updated_at = NOW()
		WHERE role_name = $2
		RETURNING role_name, permissions, created_at, updated_at`,
		permissions, name)
	var role Role
	if err := row.Scan(&role.Name, &role.Permissions, &role.CreatedAt, &role.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("roles: %s: %w", name, httpx.ErrNotFound)
		}
		return nil, err
	}
	return &role, nil
}

// DeleteRole removes a role by name.
func (r *Repository) DeleteRole(ctx context.Context, name string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE role_name = $1`, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("roles: %s: %w", name, httpx.ErrNotFound)
	}
	return nil
}

// GetPreset fetches a preset by id.
func (r *Repository) GetPreset(ctx context.Context, id int64) (*Preset, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, role_name, preset_name, permissions, created_at, updated_at
		FROM role_presets WHERE id = $1`, id)
	return scanPreset(row)
}

// ListPresets returns all presets for a role ordered by name.
func (r *Repository) ListPresets(ctx context.Context, roleName string) ([]Preset, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, role_name, preset_name, permissions, created_at, updated_at
		FROM role_presets WHERE role_name = $1 ORDER BY preset_name`, roleName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Preset
	for rows.Next() {
		preset, err := scanPreset(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *preset)
	}
	return result, rows.Err()
}

// CreatePreset inserts a new preset.
func (r *Repository) CreatePreset(ctx context.Context, roleName, presetName string, permissions []string) (*Preset, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO role_presets (role_name, preset_name, permissions, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING id, role_name, preset_name, permissions, created_at, updated_at`,
		roleName, presetName, permissions)
	preset, err := scanPreset(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("roles: preset %s/%s: %w", roleName, presetName, httpx.ErrDuplicate)
		}
		return nil, err
	}
	return preset, nil
}

// UpdatePreset replaces the name and permission bundle of a preset.
func (r *Repository) UpdatePreset(ctx context.Context, id int64, presetName string, permissions []string) (*Preset, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE role_presets SET preset_name = $1, permissions = $2, updated_at = NOW()
		WHERE id = $3
		RETURNING id, role_name, preset_name, permissions, created_at, updated_at`,
		presetName, permissions, id)
	preset, err := scanPreset(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("roles: preset %d: %w", id, httpx.ErrNotFound)
		}
		return nil, err
	}
	return preset, nil
}

// DeletePreset removes a preset by id.
func (r *Repository) DeletePreset(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM role_presets WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("roles: preset %d: %w", id, httpx.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPreset(row rowScanner) (*Preset, error) {
	var preset Preset
	if err := row.Scan(
		&preset.ID,
		&preset.RoleName,
		&preset.PresetName,
		&preset.Permissions,
		&preset.CreatedAt,
		&preset.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &preset, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ RepositoryPort = (*Repository)(nil)
