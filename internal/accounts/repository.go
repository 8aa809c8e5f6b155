package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stafflane/stafflane/internal/platform/httpx"
	"github.com/stafflane/stafflane/internal/shared"
)

// RepositoryPort defines data access methods for actor profiles.
type RepositoryPort interface {
	GetUser(ctx context.Context, id int64) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpdateOverride(ctx context.Context, id int64, ov Override, expectedVersion int64) (*User, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, name, email, role, is_active, is_acknowledged,
	front_permissions, back_permissions, removed_default_permissions,
	version, created_at, updated_at`

// GetUser fetches one actor profile by id.
func (r *Repository) GetUser(ctx context.Context, id int64) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("accounts: user %d: %w", id, httpx.ErrNotFound)
		}
		return nil, err
	}
	return user, nil
}

// ListUsers returns every actor profile ordered by id.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// UpdateOverride persists the merged override with a conditional write on
// the version column. A stale expectedVersion yields ErrVersionConflict.
func (r *Repository) UpdateOverride(ctx context.Context, id int64, ov Override, expectedVersion int64) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE users
		SET is_acknowledged = $1,
		    front_permissions = $2,
		    back_permissions = $3,
		    removed_default_permissions = $4,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $5 AND version = $6
		RETURNING `+userColumns,
		ov.IsAcknowledged,
		ov.FrontPermissions,
		ov.BackPermissions,
		ov.RemovedDefaultPermissions,
		id, expectedVersion,
	)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the user vanished or another process bumped the
			// version between our read and write.
			if _, getErr := r.GetUser(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, fmt.Errorf("accounts: user %d: %w", id, shared.ErrVersionConflict)
		}
		return nil, err
	}
	return user, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var user User
	if err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Role,
		&user.IsActive,
		&user.Override.IsAcknowledged,
		&user.Override.FrontPermissions,
		&user.Override.BackPermissions,
		&user.Override.RemovedDefaultPermissions,
		&user.Version,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}

var _ RepositoryPort = (*Repository)(nil)
