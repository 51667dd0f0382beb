package postgres

import (
	"context"
	"time"

	"github.com/eslschool/esladmin/internal/auth/domain"
	"github.com/jackc/pgx/v5"
)

type rolesRepo struct {
	db      querier
	timeout time.Duration
}

func (r *rolesRepo) GetRoleByName(ctx context.Context, name string) (domain.Role, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var role domain.Role
	err := r.db.QueryRow(ctx, `SELECT id, name, created_at FROM roles WHERE name = $1`, name).
		Scan(&role.ID, &role.Name, &role.CreatedAt)
	if err != nil {
		return domain.Role{}, mapErr(err)
	}
	role.CreatedAt = role.CreatedAt.UTC()
	return role, nil
}

func (r *rolesRepo) ListRoles(ctx context.Context) ([]domain.Role, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.Query(ctx, `SELECT id, name, created_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Role, error) {
		var role domain.Role
		err := row.Scan(&role.ID, &role.Name, &role.CreatedAt)
		role.CreatedAt = role.CreatedAt.UTC()
		return role, err
	})
}

func (r *rolesRepo) CreateRole(ctx context.Context, role domain.Role) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.Exec(ctx, `INSERT INTO roles (id, name, created_at) VALUES ($1, $2, $3)`,
		role.ID, role.Name, role.CreatedAt)
	return mapErr(err)
}

func (r *rolesRepo) AssignRole(ctx context.Context, userID, roleID string) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.Exec(ctx, `
INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)
ON CONFLICT (user_id, role_id) DO NOTHING`, userID, roleID)
	return mapErr(err)
}

func (r *rolesRepo) ListUserRoleNames(ctx context.Context, userID string) ([]string, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.Query(ctx, `
SELECT r.name
FROM user_roles ur
JOIN roles r ON r.id = ur.role_id
WHERE ur.user_id = $1
ORDER BY r.name`, userID)
	if err != nil {
		return nil, err
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}
