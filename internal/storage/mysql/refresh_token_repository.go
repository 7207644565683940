package mysql

import (
	"context"
	"database/sql"
	"time"

	"github.com/meridianhq/platform/internal/domain"
	apierrors "github.com/meridianhq/platform/pkg/errors"
)

type refreshTokenRepository struct {
	db *DB
}

const refreshTokenColumns = "id, token_hash, user_id, created_at, expires_at, revoked, revoked_at, replaced_by_id, created_by_ip"

func scanRefreshToken(row interface{ Scan(dest ...interface{}) error }) (*domain.RefreshToken, error) {
	var t domain.RefreshToken
	var revokedAt sql.NullTime
	var replacedByID sql.NullString

	if err := row.Scan(&t.ID, &t.TokenHash, &t.UserID, &t.CreatedAt, &t.ExpiresAt, &t.Revoked,
		&revokedAt, &replacedByID, &t.CreatedByIP); err != nil {
		return nil, err
	}

	if revokedAt.Valid {
		ts := revokedAt.Time
		t.RevokedAt = &ts
	}
	if replacedByID.Valid {
		t.ReplacedByID = &replacedByID.String
	}

	return &t, nil
}

func (r *refreshTokenRepository) Create(ctx context.Context, t *domain.RefreshToken) error {
	_, err := r.db.exec(ctx).ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, token_hash, user_id, created_at, expires_at, revoked, created_by_ip)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.TokenHash, t.UserID, t.CreatedAt, t.ExpiresAt, t.Revoked, t.CreatedByIP)
	if err != nil {
		return mapError(err, "refresh_token")
	}
	return nil
}

func (r *refreshTokenRepository) GetByID(ctx context.Context, id string) (*domain.RefreshToken, error) {
	row := r.db.exec(ctx).QueryRowContext(ctx, "SELECT "+refreshTokenColumns+" FROM refresh_tokens WHERE id = ?", id)
	t, err := scanRefreshToken(row)
	if err != nil {
		return nil, mapError(err, "refresh_token")
	}
	return t, nil
}

// Rotate marks oldID consumed (revoked, pointing at the replacement) and
// inserts newToken, atomically under the caller's transaction — spec.md
// §4.11's refresh-token-reuse-detection requires both to commit together.
// The UPDATE is conditioned on revoked = FALSE so two concurrent rotations
// of the same token can't both succeed: the loser's RowsAffected is 0 and
// it returns Unauthorized without inserting a replacement.
func (r *refreshTokenRepository) Rotate(ctx context.Context, oldID string, newToken *domain.RefreshToken) error {
	now := time.Now()
	res, err := r.db.exec(ctx).ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked = TRUE, revoked_at = ?, replaced_by_id = ? WHERE id = ? AND revoked = FALSE",
		now, newToken.ID, oldID)
	if err != nil {
		return mapError(err, "refresh_token")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return mapError(err, "refresh_token")
	}
	if n == 0 {
		return apierrors.NewUnauthorizedError("refresh token already rotated or revoked, please log in again")
	}

	return r.Create(ctx, newToken)
}

func (r *refreshTokenRepository) Revoke(ctx context.Context, id string) error {
	_, err := r.db.exec(ctx).ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked = TRUE, revoked_at = ? WHERE id = ?", time.Now(), id)
	if err != nil {
		return mapError(err, "refresh_token")
	}
	return nil
}

func (r *refreshTokenRepository) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := r.db.exec(ctx).ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked = TRUE, revoked_at = ? WHERE user_id = ? AND revoked = FALSE",
		time.Now(), userID)
	if err != nil {
		return mapError(err, "refresh_token")
	}
	return nil
}

// DeleteExpired purges tokens that expired more than olderThan seconds ago,
// run periodically by the background cleanup worker (spec.md §4.11).
func (r *refreshTokenRepository) DeleteExpired(ctx context.Context, olderThan int) (int64, error) {
	cutoff := time.Now().Add(-time.Duration(olderThan) * time.Second)

	res, err := r.db.exec(ctx).ExecContext(ctx, "DELETE FROM refresh_tokens WHERE expires_at < ?", cutoff)
	if err != nil {
		return 0, mapError(err, "refresh_token")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapError(err, "refresh_token")
	}
	return n, nil
}
