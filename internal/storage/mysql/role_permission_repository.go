package mysql

import (
	"context"

	"github.com/meridianhq/platform/internal/domain"
)

type rolePermissionRepository struct {
	db *DB
}

func (r *rolePermissionRepository) Get(ctx context.Context, roleID, permissionID string) (*domain.RolePermission, error) {
	var rp domain.RolePermission
	err := r.db.exec(ctx).QueryRowContext(ctx,
		"SELECT id, role_id, permission_id, granted FROM role_permissions WHERE role_id = ? AND permission_id = ?",
		roleID, permissionID).Scan(&rp.ID, &rp.RoleID, &rp.PermissionID, &rp.Granted)
	if err != nil {
		return nil, mapError(err, "role_permission")
	}
	return &rp, nil
}

func (r *rolePermissionRepository) Upsert(ctx context.Context, roleID, permissionID string, granted bool) error {
	_, err := r.db.exec(ctx).ExecContext(ctx,
		`INSERT INTO role_permissions (id, role_id, permission_id, granted) VALUES (?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE granted = VALUES(granted)`,
		newID(), roleID, permissionID, granted)
	if err != nil {
		return mapError(err, "role_permission")
	}
	return nil
}

func (r *rolePermissionRepository) ListByRole(ctx context.Context, roleID string) ([]domain.RolePermission, error) {
	rows, err := r.db.exec(ctx).QueryContext(ctx,
		"SELECT id, role_id, permission_id, granted FROM role_permissions WHERE role_id = ?", roleID)
	if err != nil {
		return nil, mapError(err, "role_permission")
	}
	defer rows.Close()

	var out []domain.RolePermission
	for rows.Next() {
		var rp domain.RolePermission
		if err := rows.Scan(&rp.ID, &rp.RoleID, &rp.PermissionID, &rp.Granted); err != nil {
			return nil, mapError(err, "role_permission")
		}
		out = append(out, rp)
	}
	return out, rows.Err()
}
