package mysql

import (
	"context"

	"github.com/meridianhq/platform/internal/domain"
)

// permissionRepository backs the Permission Catalog (spec.md §4.1): a fixed
// set of feature and model-action permission keys, seeded once at startup
// and otherwise read-only.
type permissionRepository struct {
	db *DB
}

func scanPermission(row interface{ Scan(dest ...interface{}) error }) (*domain.Permission, error) {
	var p domain.Permission
	if err := row.Scan(&p.ID, &p.Key, &p.Name, &p.Category); err != nil {
		return nil, err
	}
	return &p, nil
}

// Ensure inserts the permission if its key is unseen, otherwise returns the
// existing row unchanged. This makes catalog seeding idempotent across
// restarts (spec.md §4.1: "reconciled, never duplicated").
func (r *permissionRepository) Ensure(ctx context.Context, key, name string, category domain.PermissionCategory) (*domain.Permission, error) {
	existing, err := r.Resolve(ctx, key)
	if err == nil {
		return existing, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	id := newID()

	_, err = r.db.exec(ctx).ExecContext(ctx,
		"INSERT INTO permissions (id, `key`, name, category) VALUES (?, ?, ?, ?)", id, key, name, string(category))
	if err != nil {
		return nil, mapError(err, "permission")
	}

	return &domain.Permission{ID: id, Key: key, Name: name, Category: category}, nil
}

func (r *permissionRepository) Resolve(ctx context.Context, key string) (*domain.Permission, error) {
	row := r.db.exec(ctx).QueryRowContext(ctx, "SELECT id, `key`, name, category FROM permissions WHERE `key` = ?", key)
	p, err := scanPermission(row)
	if err != nil {
		return nil, mapError(err, "permission")
	}
	return p, nil
}

func (r *permissionRepository) List(ctx context.Context) ([]domain.Permission, error) {
	rows, err := r.db.exec(ctx).QueryContext(ctx, "SELECT id, `key`, name, category FROM permissions ORDER BY category, `key`")
	if err != nil {
		return nil, mapError(err, "permission")
	}
	defer rows.Close()

	var out []domain.Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, mapError(err, "permission")
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
