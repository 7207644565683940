package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	mysqldriver "github.com/go-sql-driver/mysql"

	"github.com/meridianhq/platform/internal/storage"
	apierrors "github.com/meridianhq/platform/pkg/errors"
)

// DB wraps the pooled *sql.DB connection and provides access to every
// repository implementation.
type DB struct {
	conn *sql.DB
}

// New wraps an already-opened connection pool (see Connect).
func New(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

// Close closes the underlying pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Repositories returns all repositories backed by this database.
func (db *DB) Repositories() *storage.Repositories {
	return &storage.Repositories{
		Models:               &modelRepository{db: db},
		Records:              &recordRepository{db: db},
		Permissions:          &permissionRepository{db: db},
		RolePermissions:      &rolePermissionRepository{db: db},
		UserPermissions:      &userPermissionRepository{db: db},
		ModelRolePermissions: &modelRolePermissionRepository{db: db},
		Users:                &userRepository{db: db},
		Roles:                &roleRepository{db: db},
		RefreshTokens:        &refreshTokenRepository{db: db},
		Audit:                &auditRepository{db: db},
	}
}

// WithTransaction implements storage.Transactor: it begins a transaction,
// stashes it in the context so repository calls made with that context
// participate in it, and commits or rolls back based on fn's error.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	txCtx := context.WithValue(ctx, txKey{}, tx)

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("rolling back transaction: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

type txKey struct{}

// executor is satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (db *DB) exec(ctx context.Context) executor {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db.conn
}

// MySQL error codes this layer maps to domain errors.
const (
	errCodeDuplicateEntry = 1062
	errCodeForeignKey     = 1452
	errCodeRowIsReferenced = 1451
)

// mapError converts driver errors to the pkg/errors hierarchy spec.md §7
// names. Callers that need a more specific error (e.g. naming the violated
// field) should check the raw error themselves before falling back to this.
func mapError(err error, resource string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apierrors.NewNotFoundError(resource, "")
	}
	var mysqlErr *mysqldriver.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case errCodeDuplicateEntry:
			return apierrors.NewConflictError(fmt.Sprintf("%s: duplicate entry", resource), mysqlErr.Message)
		case errCodeForeignKey, errCodeRowIsReferenced:
			return apierrors.NewValidationError("", fmt.Sprintf("%s: foreign key violation", resource))
		}
	}
	return apierrors.NewStorageError(err)
}
