package mysql

import (
	"context"

	"github.com/meridianhq/platform/internal/domain"
)

type modelRolePermissionRepository struct {
	db *DB
}

func (r *modelRolePermissionRepository) Get(ctx context.Context, modelID, roleID, permissionID string) (*domain.ModelRolePermission, error) {
	var mrp domain.ModelRolePermission
	err := r.db.exec(ctx).QueryRowContext(ctx,
		`SELECT id, model_id, role_id, permission_id, allowed FROM model_role_permissions
		 WHERE model_id = ? AND role_id = ? AND permission_id = ?`,
		modelID, roleID, permissionID).Scan(&mrp.ID, &mrp.ModelID, &mrp.RoleID, &mrp.PermissionID, &mrp.Allowed)
	if err != nil {
		return nil, mapError(err, "model_role_permission")
	}
	return &mrp, nil
}

func (r *modelRolePermissionRepository) Upsert(ctx context.Context, modelID, roleID, permissionID string, allowed bool) error {
	_, err := r.db.exec(ctx).ExecContext(ctx,
		`INSERT INTO model_role_permissions (id, model_id, role_id, permission_id, allowed) VALUES (?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE allowed = VALUES(allowed)`,
		newID(), modelID, roleID, permissionID, allowed)
	if err != nil {
		return mapError(err, "model_role_permission")
	}
	return nil
}

func (r *modelRolePermissionRepository) ListByModel(ctx context.Context, modelID string) ([]domain.ModelRolePermission, error) {
	rows, err := r.db.exec(ctx).QueryContext(ctx,
		"SELECT id, model_id, role_id, permission_id, allowed FROM model_role_permissions WHERE model_id = ?", modelID)
	if err != nil {
		return nil, mapError(err, "model_role_permission")
	}
	defer rows.Close()

	var out []domain.ModelRolePermission
	for rows.Next() {
		var mrp domain.ModelRolePermission
		if err := rows.Scan(&mrp.ID, &mrp.ModelID, &mrp.RoleID, &mrp.PermissionID, &mrp.Allowed); err != nil {
			return nil, mapError(err, "model_role_permission")
		}
		out = append(out, mrp)
	}
	return out, rows.Err()
}

func (r *modelRolePermissionRepository) DeleteByModel(ctx context.Context, modelID string) error {
	_, err := r.db.exec(ctx).ExecContext(ctx, "DELETE FROM model_role_permissions WHERE model_id = ?", modelID)
	if err != nil {
		return mapError(err, "model_role_permission")
	}
	return nil
}
