package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TimelineFilters narrows a change-log report query.
type TimelineFilters struct {
	EntityID    string
	RequestorID int64
	From        time.Time
	To          time.Time
	Page        int
	PageSize    int
}

// RepositoryPort defines persistence for the append-only change logs.
type RepositoryPort interface {
	Insert(ctx context.Context, kind EntityKind, entry ChangeLog) (*ChangeLog, error)
	Latest(ctx context.Context, kind EntityKind, entityID string) (*ChangeLog, error)
	Timeline(ctx context.Context, kind EntityKind, filters TimelineFilters, limit, offset int) ([]ChangeLog, error)
}

// Repository provides PostgreSQL backed persistence. One table per entity
// kind; rows are only ever inserted.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func tableFor(kind EntityKind) (string, error) {
	switch kind {
	case EntityUser:
		return "user_permission_change_logs", nil
	case EntityRole:
		return "role_permission_change_logs", nil
	default:
		return "", fmt.Errorf("audit: unknown entity kind %q", kind)
	}
}

// Insert appends one immutable log entry.
func (r *Repository) Insert(ctx context.Context, kind EntityKind, entry ChangeLog) (*ChangeLog, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO `+table+` (logged_at, entity_id, entity_name, permissions,
			permissions_added, permissions_removed,
			requestor_id, requestor_role, requestor_email)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		entry.LoggedAt, entry.EntityID, entry.EntityName, entry.Permissions,
		entry.PermissionsAdded, entry.PermissionsRemoved,
		entry.Requestor.ID, entry.Requestor.Role, entry.Requestor.Email,
	)
	if err := row.Scan(&entry.ID); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Latest returns the most recently written entry for an entity, nil when
// the entity has no history yet.
func (r *Repository) Latest(ctx context.Context, kind EntityKind, entityID string) (*ChangeLog, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	row := r.pool.QueryRow(ctx, `
		SELECT id, logged_at, entity_id, entity_name, permissions,
			permissions_added, permissions_removed,
			requestor_id, requestor_role, requestor_email
		FROM `+table+`
		WHERE entity_id = $1
		ORDER BY logged_at DESC, id DESC
		LIMIT 1`, entityID)
	entry, err := scanChangeLog(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return entry, nil
}

// Timeline returns entries matching the filters, newest first.
func (r *Repository) Timeline(ctx context.Context, kind EntityKind, filters TimelineFilters, limit, offset int) ([]ChangeLog, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, logged_at, entity_id, entity_name, permissions,
			permissions_added, permissions_removed,
			requestor_id, requestor_role, requestor_email
		FROM `+table+`
		WHERE ($1 = '' OR entity_id = $1)
		  AND ($2::bigint = 0 OR requestor_id = $2)
		  AND ($3::timestamptz IS NULL OR logged_at >= $3)
		  AND ($4::timestamptz IS NULL OR logged_at <= $4)
		ORDER BY logged_at DESC, id DESC
		LIMIT $5 OFFSET $6`,
		filters.EntityID, filters.RequestorID,
		optionalTime(filters.From), optionalTime(filters.To),
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ChangeLog
	for rows.Next() {
		entry, err := scanChangeLog(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *entry)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChangeLog(row rowScanner) (*ChangeLog, error) {
	var entry ChangeLog
	if err := row.Scan(
		&entry.ID,
		&entry.LoggedAt,
		&entry.EntityID,
		&entry.EntityName,
		&entry.Permissions,
		&entry.PermissionsAdded,
		&entry.PermissionsRemoved,
		&entry.Requestor.ID,
		&entry.Requestor.Role,
		&entry.Requestor.Email,
	); err != nil {
		return nil, err
	}
	return &entry, nil
}

func optionalTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

var _ RepositoryPort = (*Repository)(nil)
