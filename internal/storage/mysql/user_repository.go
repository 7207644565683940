package mysql

import (
	"context"

	"github.com/meridianhq/platform/internal/domain"
)

type userRepository struct {
	db *DB
}

const userColumns = "id, email, password_hash, name, role_id, is_active, created_at, updated_at"

func scanUser(row interface{ Scan(dest ...interface{}) error }) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.RoleID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := r.db.exec(ctx).ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, name, role_id, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.Name, u.RoleID, u.IsActive, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return mapError(err, "user")
	}
	return nil
}

func (r *userRepository) Update(ctx context.Context, u *domain.User) error {
	_, err := r.db.exec(ctx).ExecContext(ctx,
		"UPDATE users SET email=?, password_hash=?, name=?, role_id=?, is_active=?, updated_at=? WHERE id=?",
		u.Email, u.PasswordHash, u.Name, u.RoleID, u.IsActive, u.UpdatedAt, u.ID)
	if err != nil {
		return mapError(err, "user")
	}
	return nil
}

func (r *userRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.exec(ctx).ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return mapError(err, "user")
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.exec(ctx).QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	u, err := scanUser(row)
	if err != nil {
		return nil, mapError(err, "user")
	}
	return r.withRole(ctx, u)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.exec(ctx).QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", email)
	u, err := scanUser(row)
	if err != nil {
		return nil, mapError(err, "user")
	}
	return r.withRole(ctx, u)
}

func (r *userRepository) withRole(ctx context.Context, u *domain.User) (*domain.User, error) {
	role, err := (&roleRepository{db: r.db}).GetByID(ctx, u.RoleID)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	u.Role = role
	return u, nil
}

func (r *userRepository) List(ctx context.Context, limit, skip int) ([]domain.User, int, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.exec(ctx).QueryContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY created_at DESC LIMIT ? OFFSET ?", limit, skip)
	if err != nil {
		return nil, 0, mapError(err, "user")
	}
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, mapError(err, "user")
		}
		out = append(out, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapError(err, "user")
	}

	var total int
	if err := r.db.exec(ctx).QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&total); err != nil {
		return nil, 0, mapError(err, "user")
	}

	return out, total, nil
}
