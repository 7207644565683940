package service

import (
	"context"

	"github.com/meridianhq/platform/internal/domain"
	"github.com/meridianhq/platform/internal/storage"
	apierrors "github.com/meridianhq/platform/pkg/errors"
)

// Authz is the layered RBAC engine: permission catalog → role-permission →
// model-role-permission → user-permission override, with an ownership
// fallback (spec.md §4.3).
type Authz struct {
	users                storage.UserRepository
	models               storage.ModelRepository
	records              storage.RecordRepository
	permissions          storage.PermissionRepository
	rolePermissions      storage.RolePermissionRepository
	userPermissions      storage.UserPermissionRepository
	modelRolePermissions storage.ModelRolePermissionRepository
}

func NewAuthz(
	users storage.UserRepository,
	models storage.ModelRepository,
	records storage.RecordRepository,
	permissions storage.PermissionRepository,
	rolePermissions storage.RolePermissionRepository,
	userPermissions storage.UserPermissionRepository,
	modelRolePermissions storage.ModelRolePermissionRepository,
) *Authz {
	return &Authz{
		users: users, models: models, records: records,
		permissions: permissions, rolePermissions: rolePermissions,
		userPermissions: userPermissions, modelRolePermissions: modelRolePermissions,
	}
}

// loadUser relies on UserRepository.GetByID eagerly resolving Role.
func (a *Authz) loadUser(ctx context.Context, userID string) (*domain.User, error) {
	return a.users.GetByID(ctx, userID)
}

// IsFeatureAllowed implements the feature check (spec.md §4.3).
func (a *Authz) IsFeatureAllowed(ctx context.Context, userID, key string) (bool, error) {
	user, err := a.loadUser(ctx, userID)
	if err != nil {
		return false, err
	}
	if user.IsAdmin() {
		return true, nil
	}

	perm, err := a.permissions.Resolve(ctx, key)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	if up, err := a.userPermissions.Get(ctx, userID, perm.ID); err == nil {
		return up.Granted, nil
	} else if !apierrors.IsNotFound(err) {
		return false, err
	}

	if rp, err := a.rolePermissions.Get(ctx, user.RoleID, perm.ID); err == nil {
		return rp.Granted, nil
	} else if !apierrors.IsNotFound(err) {
		return false, err
	}

	return false, nil
}

// Authorize implements the model-action check (spec.md §4.3).
func (a *Authz) Authorize(ctx context.Context, userID, modelName, action string, recordID *string) (bool, error) {
	model, err := a.models.GetByName(ctx, modelName)
	if err != nil {
		return false, err
	}

	user, err := a.loadUser(ctx, userID)
	if err != nil {
		return false, err
	}
	if user.IsAdmin() {
		return true, nil
	}

	permKey := domain.ModelActionKey(action)
	if permKey == "" {
		return false, apierrors.NewValidationError("action", "unknown action: "+action)
	}

	perm, err := a.permissions.Resolve(ctx, permKey)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return false, apierrors.NewNotInitializedError("permission key missing: " + permKey)
		}
		return false, err
	}

	if mrp, err := a.modelRolePermissions.Get(ctx, model.ID, user.RoleID, perm.ID); err == nil {
		return mrp.Allowed, nil
	} else if !apierrors.IsNotFound(err) {
		return false, err
	}

	if rp, err := a.rolePermissions.Get(ctx, user.RoleID, perm.ID); err == nil {
		return rp.Granted, nil
	} else if !apierrors.IsNotFound(err) {
		return false, err
	}

	if (action == "READ" || action == "UPDATE" || action == "DELETE") && model.OwnerField != nil && recordID != nil {
		rec, err := a.records.FindByID(ctx, model.ID, *recordID)
		if err != nil {
			if apierrors.IsNotFound(err) {
				return false, nil
			}
			return false, err
		}
		if rec.OwnerID != nil && *rec.OwnerID == userID {
			return true, nil
		}
		if rec.Data.GetString(*model.OwnerField) == userID {
			return true, nil
		}
	}

	return false, nil
}

// ListPermissions returns the full seeded permission catalog.
func (a *Authz) ListPermissions(ctx context.Context) ([]domain.Permission, error) {
	return a.permissions.List(ctx)
}

// GrantRoleFeature upserts a role-level feature grant (spec.md §6.1
// `POST /rbac/grant/role`).
func (a *Authz) GrantRoleFeature(ctx context.Context, roleID, key string, granted bool) error {
	perm, err := a.permissions.Resolve(ctx, key)
	if err != nil {
		return err
	}
	return a.rolePermissions.Upsert(ctx, roleID, perm.ID, granted)
}

// GrantUserFeature upserts a per-user feature override, applying the
// feature-grant safety rule from spec.md §4.3: granting a feature the
// user's role already grants is a no-op; revoking a role-granted feature
// at the user level is rejected with Conflict. Returns noop=true when the
// grant request matched what the role already provides.
func (a *Authz) GrantUserFeature(ctx context.Context, userID, key string, granted bool) (noop bool, err error) {
	user, err := a.loadUser(ctx, userID)
	if err != nil {
		return false, err
	}
	perm, err := a.permissions.Resolve(ctx, key)
	if err != nil {
		return false, err
	}

	roleGranted := false
	if rp, err := a.rolePermissions.Get(ctx, user.RoleID, perm.ID); err == nil {
		roleGranted = rp.Granted
	} else if !apierrors.IsNotFound(err) {
		return false, err
	}

	if !granted && roleGranted {
		return false, apierrors.NewConflictError("cannot revoke role-granted feature at user level", key)
	}
	if granted && roleGranted {
		return true, nil
	}
	return false, a.userPermissions.Upsert(ctx, userID, perm.ID, granted)
}

// GrantModelRolePermissions upserts a batch of per-(model, role, action)
// grants, normalizing an `ALL` entry to the four CRUD actions (spec.md §6.1
// `POST /rbac/models/permissions`).
func (a *Authz) GrantModelRolePermissions(ctx context.Context, modelID, roleID string, actions []string) error {
	for _, action := range normalizeActions(actions) {
		permKey := domain.ModelActionKey(action)
		if permKey == "" {
			return apierrors.NewValidationError("permissions", "unknown action: "+action)
		}
		perm, err := a.permissions.Resolve(ctx, permKey)
		if err != nil {
			return err
		}
		if err := a.modelRolePermissions.Upsert(ctx, modelID, roleID, perm.ID, true); err != nil {
			return err
		}
	}
	return nil
}

// resolveModelPermission implements the merged-view priority for a single
// (model, action) pair: UserPermission → ModelRolePermission →
// RolePermission → false (spec.md §4.3). Unlike Authorize, it never falls
// back to ownership — the merged view reports standing grants, not what a
// specific record would allow.
func (a *Authz) resolveModelPermission(ctx context.Context, userID, roleID, modelID, action string) (bool, error) {
	permKey := domain.ModelActionKey(action)
	if permKey == "" {
		return false, apierrors.NewValidationError("action", "unknown action: "+action)
	}

	perm, err := a.permissions.Resolve(ctx, permKey)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	if up, err := a.userPermissions.Get(ctx, userID, perm.ID); err == nil {
		return up.Granted, nil
	} else if !apierrors.IsNotFound(err) {
		return false, err
	}

	if mrp, err := a.modelRolePermissions.Get(ctx, modelID, roleID, perm.ID); err == nil {
		return mrp.Allowed, nil
	} else if !apierrors.IsNotFound(err) {
		return false, err
	}

	if rp, err := a.rolePermissions.Get(ctx, roleID, perm.ID); err == nil {
		return rp.Granted, nil
	} else if !apierrors.IsNotFound(err) {
		return false, err
	}

	return false, nil
}

// MergedModelPermissions implements the merged view (spec.md §4.3).
// Non-admin callers requesting another user's view require MANAGE_FEATURES.
func (a *Authz) MergedModelPermissions(ctx context.Context, actingUserID, targetUserID string, includeUnpublished bool) ([]domain.MergedModelPermissions, error) {
	if actingUserID != targetUserID {
		allowed, err := a.IsFeatureAllowed(ctx, actingUserID, domain.FeatureManageFeatures)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, apierrors.NewPermissionError("view merged permissions for", "user "+targetUserID)
		}
	}

	user, err := a.loadUser(ctx, targetUserID)
	if err != nil {
		return nil, err
	}

	models, err := a.models.List(ctx, storage.ModelFilter{OnlyPublished: !includeUnpublished})
	if err != nil {
		return nil, err
	}

	var out []domain.MergedModelPermissions
	for _, m := range models {
		row := domain.MergedModelPermissions{ModelID: m.ID, ModelName: m.Name}

		if user.IsAdmin() {
			row.Create, row.Read, row.Update, row.Delete = true, true, true, true
			out = append(out, row)
			continue
		}

		for _, actionKey := range []struct {
			action string
			set    *bool
		}{
			{"CREATE", &row.Create}, {"READ", &row.Read}, {"UPDATE", &row.Update}, {"DELETE", &row.Delete},
		} {
			allowed, err := a.resolveModelPermission(ctx, targetUserID, user.RoleID, m.ID, actionKey.action)
			if err != nil {
				return nil, err
			}
			*actionKey.set = allowed
		}
		out = append(out, row)
	}
	return out, nil
}
