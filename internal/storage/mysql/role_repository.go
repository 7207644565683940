package mysql

import (
	"context"

	"github.com/meridianhq/platform/internal/domain"
)

type roleRepository struct {
	db *DB
}

func scanRole(row interface{ Scan(dest ...interface{}) error }) (*domain.Role, error) {
	var r domain.Role
	if err := row.Scan(&r.ID, &r.Name, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *roleRepository) Create(ctx context.Context, role *domain.Role) error {
	_, err := r.db.exec(ctx).ExecContext(ctx,
		"INSERT INTO roles (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)",
		role.ID, role.Name, role.CreatedAt, role.UpdatedAt)
	if err != nil {
		return mapError(err, "role")
	}
	return nil
}

func (r *roleRepository) Update(ctx context.Context, role *domain.Role) error {
	_, err := r.db.exec(ctx).ExecContext(ctx,
		"UPDATE roles SET name=?, updated_at=? WHERE id=?", role.Name, role.UpdatedAt, role.ID)
	if err != nil {
		return mapError(err, "role")
	}
	return nil
}

func (r *roleRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.exec(ctx).ExecContext(ctx, "DELETE FROM roles WHERE id = ?", id)
	if err != nil {
		return mapError(err, "role")
	}
	return nil
}

func (r *roleRepository) GetByID(ctx context.Context, id string) (*domain.Role, error) {
	row := r.db.exec(ctx).QueryRowContext(ctx, "SELECT id, name, created_at, updated_at FROM roles WHERE id = ?", id)
	role, err := scanRole(row)
	if err != nil {
		return nil, mapError(err, "role")
	}
	return role, nil
}

func (r *roleRepository) GetByName(ctx context.Context, name string) (*domain.Role, error) {
	row := r.db.exec(ctx).QueryRowContext(ctx, "SELECT id, name, created_at, updated_at FROM roles WHERE name = ?", name)
	role, err := scanRole(row)
	if err != nil {
		return nil, mapError(err, "role")
	}
	return role, nil
}

func (r *roleRepository) List(ctx context.Context) ([]domain.Role, error) {
	rows, err := r.db.exec(ctx).QueryContext(ctx, "SELECT id, name, created_at, updated_at FROM roles ORDER BY name")
	if err != nil {
		return nil, mapError(err, "role")
	}
	defer rows.Close()

	var out []domain.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, mapError(err, "role")
		}
		out = append(out, *role)
	}
	return out, rows.Err()
}
