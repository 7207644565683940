// Package storage defines the repository interfaces the service layer
// depends on, independent of the concrete MySQL implementation in
// internal/storage/mysql.
package storage

import (
	"context"

	"github.com/meridianhq/platform/internal/domain"
)

// ModelFilter narrows ModelRepository.List.
type ModelFilter struct {
	OnlyPublished bool
}

// ModelRepository persists ModelDefinition rows and their ModelVersion
// history (spec.md §4.4).
type ModelRepository interface {
	Create(ctx context.Context, m *domain.ModelDefinition) error
	Update(ctx context.Context, m *domain.ModelDefinition) error
	GetByID(ctx context.Context, id string) (*domain.ModelDefinition, error)
	GetByName(ctx context.Context, name string) (*domain.ModelDefinition, error)
	// GetByRouteTable matches a case-insensitive name or tableName, as used
	// by Record Service model resolution (spec.md §4.8.1).
	GetByRouteTable(ctx context.Context, routeName string) (*domain.ModelDefinition, error)
	List(ctx context.Context, filter ModelFilter) ([]domain.ModelDefinition, error)
	Delete(ctx context.Context, id string) error

	CreateVersion(ctx context.Context, v *domain.ModelVersion) error
	LatestVersion(ctx context.Context, modelID string) (*domain.ModelVersion, error)
	GetVersion(ctx context.Context, modelID string, versionNumber int) (*domain.ModelVersion, error)
	ListVersions(ctx context.Context, modelID string, limit int) ([]domain.ModelVersion, error)
	MaxVersionNumber(ctx context.Context, modelID string) (int, error)
	DeleteVersions(ctx context.Context, modelID string) error
}

// RecordRepository persists generic Record rows (spec.md §4.8).
type RecordRepository interface {
	Insert(ctx context.Context, r *domain.Record) error
	Update(ctx context.Context, r *domain.Record) error
	FindByID(ctx context.Context, modelID, id string) (*domain.Record, error)
	// FindByDataField lists records of a model whose data[field] equals
	// value, used by relation resolution (spec.md §4.8.2).
	FindByDataField(ctx context.Context, modelID, field string, value interface{}, limit int) ([]domain.Record, error)
	List(ctx context.Context, modelID string, limit, skip int, ownerID *string) ([]domain.Record, int, error)
	// ListForUniqueness fetches up to cap records of a model for linking
	// composite-uniqueness comparison (spec.md §4.8.3).
	ListForUniqueness(ctx context.Context, modelID string, cap int) ([]domain.Record, error)
	Delete(ctx context.Context, modelID, id string) error
	DeleteAllForModel(ctx context.Context, modelID string) error
	CountForModel(ctx context.Context, modelID string) (int, error)
	// RecentForModel returns up to limit most-recently-created records,
	// used by the Relation Suggestor (spec.md §4.10).
	RecentForModel(ctx context.Context, modelID string, limit int) ([]domain.Record, error)
}

// PermissionRepository persists the Permission Catalog (spec.md §4.1).
type PermissionRepository interface {
	Ensure(ctx context.Context, key, name string, category domain.PermissionCategory) (*domain.Permission, error)
	Resolve(ctx context.Context, key string) (*domain.Permission, error)
	List(ctx context.Context) ([]domain.Permission, error)
}

// RolePermissionRepository persists global role-level grant overrides.
type RolePermissionRepository interface {
	Get(ctx context.Context, roleID, permissionID string) (*domain.RolePermission, error)
	Upsert(ctx context.Context, roleID, permissionID string, granted bool) error
	ListByRole(ctx context.Context, roleID string) ([]domain.RolePermission, error)
}

// UserPermissionRepository persists per-user grant overrides.
type UserPermissionRepository interface {
	Get(ctx context.Context, userID, permissionID string) (*domain.UserPermission, error)
	Upsert(ctx context.Context, userID, permissionID string, granted bool) error
	Delete(ctx context.Context, userID, permissionID string) error
	ListByUser(ctx context.Context, userID string) ([]domain.UserPermission, error)
}

// ModelRolePermissionRepository persists per-(model, role, permission) grants.
type ModelRolePermissionRepository interface {
	Get(ctx context.Context, modelID, roleID, permissionID string) (*domain.ModelRolePermission, error)
	Upsert(ctx context.Context, modelID, roleID, permissionID string, allowed bool) error
	ListByModel(ctx context.Context, modelID string) ([]domain.ModelRolePermission, error)
	DeleteByModel(ctx context.Context, modelID string) error
}

// UserRepository persists identity-store User rows (spec.md §4.2).
type UserRepository interface {
	Create(ctx context.Context, u *domain.User) error
	Update(ctx context.Context, u *domain.User) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	List(ctx context.Context, limit, skip int) ([]domain.User, int, error)
}

// RoleRepository persists identity-store Role rows.
type RoleRepository interface {
	Create(ctx context.Context, r *domain.Role) error
	Update(ctx context.Context, r *domain.Role) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.Role, error)
	GetByName(ctx context.Context, name string) (*domain.Role, error)
	List(ctx context.Context) ([]domain.Role, error)
}

// RefreshTokenRepository persists refresh-token lineage (spec.md §4.11).
type RefreshTokenRepository interface {
	Create(ctx context.Context, t *domain.RefreshToken) error
	GetByID(ctx context.Context, id string) (*domain.RefreshToken, error)
	// Rotate revokes oldID and inserts newToken. The revoke is conditioned on
	// oldID still being unrevoked: if a concurrent rotation already consumed
	// it, Rotate affects zero rows and returns Unauthorized instead of
	// inserting newToken, so at most one caller of a racing pair ever mints
	// a usable replacement (spec.md §5, §4.11).
	Rotate(ctx context.Context, oldID string, newToken *domain.RefreshToken) error
	Revoke(ctx context.Context, id string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context, olderThan int) (int64, error)
}

// AuditRepository persists append-only AuditLog rows (spec.md §4.9).
type AuditRepository interface {
	Append(ctx context.Context, a *domain.AuditLog) error
	Recent(ctx context.Context, limit int) ([]domain.AuditLog, error)
}

// Repositories bundles every repository so services can be constructed with
// a single dependency.
type Repositories struct {
	Models               ModelRepository
	Records              RecordRepository
	Permissions          PermissionRepository
	RolePermissions      RolePermissionRepository
	UserPermissions      UserPermissionRepository
	ModelRolePermissions ModelRolePermissionRepository
	Users                UserRepository
	Roles                RoleRepository
	RefreshTokens        RefreshTokenRepository
	Audit                AuditRepository
}

// Transactor runs fn within a database transaction; repositories invoked
// with the returned context participate in that transaction.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
