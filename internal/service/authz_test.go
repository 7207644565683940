package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridianhq/platform/internal/domain"
	"github.com/meridianhq/platform/internal/storage"
	apierrors "github.com/meridianhq/platform/pkg/errors"
)

type fakeUserRepo struct {
	users map[string]*domain.User
}

func (f *fakeUserRepo) Create(ctx context.Context, u *domain.User) error { return nil }
func (f *fakeUserRepo) Update(ctx context.Context, u *domain.User) error { return nil }
func (f *fakeUserRepo) Delete(ctx context.Context, id string) error      { return nil }
func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, apierrors.NewNotFoundError("user", id)
}
func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return nil, apierrors.NewNotFoundError("user", email)
}
func (f *fakeUserRepo) List(ctx context.Context, limit, skip int) ([]domain.User, int, error) {
	all := make([]domain.User, 0, len(f.users))
	for _, u := range f.users {
		all = append(all, *u)
	}
	total := len(all)
	if skip > total {
		skip = total
	}
	end := skip + limit
	if end > total {
		end = total
	}
	return all[skip:end], total, nil
}

type fakeModelRepo struct {
	models map[string]*domain.ModelDefinition
}

func (f *fakeModelRepo) Create(ctx context.Context, m *domain.ModelDefinition) error { return nil }
func (f *fakeModelRepo) Update(ctx context.Context, m *domain.ModelDefinition) error { return nil }
func (f *fakeModelRepo) GetByID(ctx context.Context, id string) (*domain.ModelDefinition, error) {
	return nil, apierrors.NewNotFoundError("model", id)
}
func (f *fakeModelRepo) GetByName(ctx context.Context, name string) (*domain.ModelDefinition, error) {
	if m, ok := f.models[name]; ok {
		return m, nil
	}
	return nil, apierrors.NewNotFoundError("model", name)
}
func (f *fakeModelRepo) GetByRouteTable(ctx context.Context, routeName string) (*domain.ModelDefinition, error) {
	return f.GetByName(ctx, routeName)
}
func (f *fakeModelRepo) List(ctx context.Context, filter storage.ModelFilter) ([]domain.ModelDefinition, error) {
	var out []domain.ModelDefinition
	for _, m := range f.models {
		out = append(out, *m)
	}
	return out, nil
}
func (f *fakeModelRepo) Delete(ctx context.Context, id string) error { return nil }
func (f *fakeModelRepo) CreateVersion(ctx context.Context, v *domain.ModelVersion) error {
	return nil
}
func (f *fakeModelRepo) LatestVersion(ctx context.Context, modelID string) (*domain.ModelVersion, error) {
	return nil, apierrors.NewNotFoundError("model_version", modelID)
}
func (f *fakeModelRepo) GetVersion(ctx context.Context, modelID string, versionNumber int) (*domain.ModelVersion, error) {
	return nil, apierrors.NewNotFoundError("model_version", modelID)
}
func (f *fakeModelRepo) ListVersions(ctx context.Context, modelID string, limit int) ([]domain.ModelVersion, error) {
	return nil, nil
}
func (f *fakeModelRepo) MaxVersionNumber(ctx context.Context, modelID string) (int, error) {
	return 0, nil
}
func (f *fakeModelRepo) DeleteVersions(ctx context.Context, modelID string) error { return nil }

type fakePermissionRepo struct {
	byKey map[string]*domain.Permission
}

func (f *fakePermissionRepo) Ensure(ctx context.Context, key, name string, category domain.PermissionCategory) (*domain.Permission, error) {
	return nil, nil
}
func (f *fakePermissionRepo) Resolve(ctx context.Context, key string) (*domain.Permission, error) {
	if p, ok := f.byKey[key]; ok {
		return p, nil
	}
	return nil, apierrors.NewNotFoundError("permission", key)
}
func (f *fakePermissionRepo) List(ctx context.Context) ([]domain.Permission, error) { return nil, nil }

type fakeRolePermissionRepo struct {
	granted map[string]bool // roleID+"|"+permissionID -> granted
}

func (f *fakeRolePermissionRepo) Get(ctx context.Context, roleID, permissionID string) (*domain.RolePermission, error) {
	if g, ok := f.granted[roleID+"|"+permissionID]; ok {
		return &domain.RolePermission{RoleID: roleID, PermissionID: permissionID, Granted: g}, nil
	}
	return nil, apierrors.NewNotFoundError("role_permission", roleID)
}
func (f *fakeRolePermissionRepo) Upsert(ctx context.Context, roleID, permissionID string, granted bool) error {
	return nil
}
func (f *fakeRolePermissionRepo) ListByRole(ctx context.Context, roleID string) ([]domain.RolePermission, error) {
	return nil, nil
}

type fakeUserPermissionRepo struct {
	granted map[string]bool // userID+"|"+permissionID -> granted
}

func (f *fakeUserPermissionRepo) Get(ctx context.Context, userID, permissionID string) (*domain.UserPermission, error) {
	if g, ok := f.granted[userID+"|"+permissionID]; ok {
		return &domain.UserPermission{UserID: userID, PermissionID: permissionID, Granted: g}, nil
	}
	return nil, apierrors.NewNotFoundError("user_permission", userID)
}
func (f *fakeUserPermissionRepo) Upsert(ctx context.Context, userID, permissionID string, granted bool) error {
	return nil
}
func (f *fakeUserPermissionRepo) Delete(ctx context.Context, userID, permissionID string) error {
	return nil
}
func (f *fakeUserPermissionRepo) ListByUser(ctx context.Context, userID string) ([]domain.UserPermission, error) {
	return nil, nil
}

type fakeModelRolePermissionRepo struct {
	allowed map[string]bool // modelID+"|"+roleID+"|"+permissionID -> allowed
}

func (f *fakeModelRolePermissionRepo) Get(ctx context.Context, modelID, roleID, permissionID string) (*domain.ModelRolePermission, error) {
	if a, ok := f.allowed[modelID+"|"+roleID+"|"+permissionID]; ok {
		return &domain.ModelRolePermission{ModelID: modelID, RoleID: roleID, PermissionID: permissionID, Allowed: a}, nil
	}
	return nil, apierrors.NewNotFoundError("model_role_permission", modelID)
}
func (f *fakeModelRolePermissionRepo) Upsert(ctx context.Context, modelID, roleID, permissionID string, allowed bool) error {
	return nil
}
func (f *fakeModelRolePermissionRepo) ListByModel(ctx context.Context, modelID string) ([]domain.ModelRolePermission, error) {
	return nil, nil
}
func (f *fakeModelRolePermissionRepo) DeleteByModel(ctx context.Context, modelID string) error {
	return nil
}

// TestMergedModelPermissions_UserPermissionOverridesModelRolePermission
// verifies the merged view's highest-priority layer: a per-user override on
// a MODEL.* permission key must win even when ModelRolePermission denies
// it, per spec.md §4.3's "UserPermission → ModelRolePermission →
// RolePermission → false" contract.
func TestMergedModelPermissions_UserPermissionOverridesModelRolePermission(t *testing.T) {
	ctx := context.Background()

	role := &domain.Role{ID: "role-1", Name: "Viewer"}
	user := &domain.User{ID: "user-1", RoleID: "role-1", Role: role}
	model := &domain.ModelDefinition{ID: "model-1", Name: "Article", Published: true}

	readPerm := &domain.Permission{ID: "perm-read", Key: domain.PermModelRead, Category: domain.PermissionCategoryModelAction}

	authz := NewAuthz(
		&fakeUserRepo{users: map[string]*domain.User{"user-1": user}},
		&fakeModelRepo{models: map[string]*domain.ModelDefinition{"Article": model}},
		nil,
		&fakePermissionRepo{byKey: map[string]*domain.Permission{domain.PermModelRead: readPerm}},
		&fakeRolePermissionRepo{granted: map[string]bool{}},
		&fakeUserPermissionRepo{granted: map[string]bool{"user-1|perm-read": true}},
		&fakeModelRolePermissionRepo{allowed: map[string]bool{"model-1|role-1|perm-read": false}},
	)

	rows, err := authz.MergedModelPermissions(ctx, "user-1", "user-1", false)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.True(t, rows[0].Read, "a granted UserPermission override must win over a denying ModelRolePermission")
}
