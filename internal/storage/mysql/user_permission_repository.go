package mysql

import (
	"context"

	"github.com/meridianhq/platform/internal/domain"
)

type userPermissionRepository struct {
	db *DB
}

func (r *userPermissionRepository) Get(ctx context.Context, userID, permissionID string) (*domain.UserPermission, error) {
	var up domain.UserPermission
	err := r.db.exec(ctx).QueryRowContext(ctx,
		"SELECT id, user_id, permission_id, granted FROM user_permissions WHERE user_id = ? AND permission_id = ?",
		userID, permissionID).Scan(&up.ID, &up.UserID, &up.PermissionID, &up.Granted)
	if err != nil {
		return nil, mapError(err, "user_permission")
	}
	return &up, nil
}

func (r *userPermissionRepository) Upsert(ctx context.Context, userID, permissionID string, granted bool) error {
	_, err := r.db.exec(ctx).ExecContext(ctx,
		`INSERT INTO user_permissions (id, user_id, permission_id, granted) VALUES (?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE granted = VALUES(granted)`,
		newID(), userID, permissionID, granted)
	if err != nil {
		return mapError(err, "user_permission")
	}
	return nil
}

func (r *userPermissionRepository) Delete(ctx context.Context, userID, permissionID string) error {
	_, err := r.db.exec(ctx).ExecContext(ctx,
		"DELETE FROM user_permissions WHERE user_id = ? AND permission_id = ?", userID, permissionID)
	if err != nil {
		return mapError(err, "user_permission")
	}
	return nil
}

func (r *userPermissionRepository) ListByUser(ctx context.Context, userID string) ([]domain.UserPermission, error) {
	rows, err := r.db.exec(ctx).QueryContext(ctx,
		"SELECT id, user_id, permission_id, granted FROM user_permissions WHERE user_id = ?", userID)
	if err != nil {
		return nil, mapError(err, "user_permission")
	}
	defer rows.Close()

	var out []domain.UserPermission
	for rows.Next() {
		var up domain.UserPermission
		if err := rows.Scan(&up.ID, &up.UserID, &up.PermissionID, &up.Granted); err != nil {
			return nil, mapError(err, "user_permission")
		}
		out = append(out, up)
	}
	return out, rows.Err()
}
