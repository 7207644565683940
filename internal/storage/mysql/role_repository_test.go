package mysql

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/platform/internal/domain"
	apierrors "github.com/meridianhq/platform/pkg/errors"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return New(conn), mock
}

func TestRoleRepository_GetByName_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &roleRepository{db: db}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, created_at, updated_at FROM roles WHERE name = ?")).
		WithArgs("Ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByName(context.Background(), "Ghost")
	require.Error(t, err)
	assert.True(t, apierrors.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleRepository_Create_DuplicateName(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &roleRepository{db: db}

	now := time.Now()
	role := &domain.Role{ID: "role-1", Name: "Admin", CreatedAt: now, UpdatedAt: now}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO roles (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)")).
		WithArgs(role.ID, role.Name, role.CreatedAt, role.UpdatedAt).
		WillReturnError(&mysqldriver.MySQLError{Number: errCodeDuplicateEntry, Message: "Duplicate entry 'Admin' for key 'name'"})

	err := repo.Create(context.Background(), role)
	require.Error(t, err)
	assert.True(t, apierrors.IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleRepository_List(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &roleRepository{db: db}

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "name", "created_at", "updated_at"}).
		AddRow("role-1", "Admin", now, now).
		AddRow("role-2", "Viewer", now, now)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, created_at, updated_at FROM roles ORDER BY name")).
		WillReturnRows(rows)

	roles, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, "Admin", roles[0].Name)
	assert.Equal(t, "Viewer", roles[1].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}
