package mysql

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/platform/internal/domain"
	apierrors "github.com/meridianhq/platform/pkg/errors"
)

// TestRefreshTokenRepository_Rotate_Success verifies a clean rotation
// revokes the old row and inserts the replacement within one transaction.
func TestRefreshTokenRepository_Rotate_Success(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &refreshTokenRepository{db: db}

	newToken := &domain.RefreshToken{
		ID: "new-1", TokenHash: "hash", UserID: "user-1",
		CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour),
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE refresh_tokens SET revoked = TRUE, revoked_at = ?, replaced_by_id = ? WHERE id = ? AND revoked = FALSE")).
		WithArgs(sqlmock.AnyArg(), newToken.ID, "old-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO refresh_tokens (id, token_hash, user_id, created_at, expires_at, revoked, created_by_ip)")).
		WithArgs(newToken.ID, newToken.TokenHash, newToken.UserID, newToken.CreatedAt, newToken.ExpiresAt, newToken.Revoked, newToken.CreatedByIP).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := db.WithTransaction(context.Background(), func(ctx context.Context) error {
		return repo.Rotate(ctx, "old-1", newToken)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestRefreshTokenRepository_Rotate_AlreadyRotated verifies that when the
// old token was already consumed by a racing rotation (RowsAffected == 0),
// Rotate returns Unauthorized and never inserts a second replacement — the
// property spec.md §5 requires for concurrent POST /auth/token calls
// presenting the same refresh token.
func TestRefreshTokenRepository_Rotate_AlreadyRotated(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &refreshTokenRepository{db: db}

	newToken := &domain.RefreshToken{
		ID: "new-2", TokenHash: "hash", UserID: "user-1",
		CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour),
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE refresh_tokens SET revoked = TRUE, revoked_at = ?, replaced_by_id = ? WHERE id = ? AND revoked = FALSE")).
		WithArgs(sqlmock.AnyArg(), newToken.ID, "old-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := db.WithTransaction(context.Background(), func(ctx context.Context) error {
		return repo.Rotate(ctx, "old-1", newToken)
	})
	require.Error(t, err)
	assert.True(t, apierrors.IsUnauthorized(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
