package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridianhq/platform/internal/domain"
	apierrors "github.com/meridianhq/platform/pkg/errors"
)

type fakeRoleRepo struct {
	roles map[string]*domain.Role
}

func (f *fakeRoleRepo) Create(ctx context.Context, r *domain.Role) error { return nil }
func (f *fakeRoleRepo) Update(ctx context.Context, r *domain.Role) error { return nil }
func (f *fakeRoleRepo) Delete(ctx context.Context, id string) error      { return nil }
func (f *fakeRoleRepo) GetByID(ctx context.Context, id string) (*domain.Role, error) {
	if r, ok := f.roles[id]; ok {
		return r, nil
	}
	return nil, apierrors.NewNotFoundError("role", id)
}
func (f *fakeRoleRepo) GetByName(ctx context.Context, name string) (*domain.Role, error) {
	for _, r := range f.roles {
		if r.Name == name {
			return r, nil
		}
	}
	return nil, apierrors.NewNotFoundError("role", name)
}
func (f *fakeRoleRepo) List(ctx context.Context) ([]domain.Role, error) {
	out := make([]domain.Role, 0, len(f.roles))
	for _, r := range f.roles {
		out = append(out, *r)
	}
	return out, nil
}

type fakeRecordRepo struct {
	records []*domain.Record
}

func (f *fakeRecordRepo) Insert(ctx context.Context, r *domain.Record) error {
	f.records = append(f.records, r)
	return nil
}
func (f *fakeRecordRepo) Update(ctx context.Context, r *domain.Record) error {
	for i, existing := range f.records {
		if existing.ID == r.ID {
			f.records[i] = r
			return nil
		}
	}
	return apierrors.NewNotFoundError("record", r.ID)
}
func (f *fakeRecordRepo) FindByID(ctx context.Context, modelID, id string) (*domain.Record, error) {
	for _, r := range f.records {
		if r.ModelID == modelID && r.ID == id {
			return r, nil
		}
	}
	return nil, apierrors.NewNotFoundError("record", id)
}
func (f *fakeRecordRepo) FindByDataField(ctx context.Context, modelID, field string, value interface{}, limit int) ([]domain.Record, error) {
	var out []domain.Record
	for _, r := range f.records {
		if r.ModelID != modelID {
			continue
		}
		if r.Data[field] == value {
			out = append(out, *r)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}
func (f *fakeRecordRepo) List(ctx context.Context, modelID string, limit, skip int, ownerID *string) ([]domain.Record, int, error) {
	var out []domain.Record
	for _, r := range f.records {
		if r.ModelID == modelID {
			out = append(out, *r)
		}
	}
	return out, len(out), nil
}
func (f *fakeRecordRepo) ListForUniqueness(ctx context.Context, modelID string, cap int) ([]domain.Record, error) {
	var out []domain.Record
	for _, r := range f.records {
		if r.ModelID == modelID {
			out = append(out, *r)
		}
	}
	return out, nil
}
func (f *fakeRecordRepo) Delete(ctx context.Context, modelID, id string) error { return nil }
func (f *fakeRecordRepo) DeleteAllForModel(ctx context.Context, modelID string) error {
	return nil
}
func (f *fakeRecordRepo) CountForModel(ctx context.Context, modelID string) (int, error) {
	return 0, nil
}
func (f *fakeRecordRepo) RecentForModel(ctx context.Context, modelID string, limit int) ([]domain.Record, error) {
	return nil, nil
}

func newSystemModelFixture() (*RecordService, string, string) {
	userModel := &domain.ModelDefinition{ID: "model-user", Name: "User", IsSystem: true, Published: true}
	roleModel := &domain.ModelDefinition{ID: "model-role", Name: "Role", IsSystem: true, Published: true}

	models := &fakeModelRepo{models: map[string]*domain.ModelDefinition{
		"User": userModel,
		"Role": roleModel,
	}}

	schemaJSON := json.RawMessage(`{"fields":[]}`)
	versions := map[string]*domain.ModelVersion{
		userModel.ID: {ID: "v-user", ModelID: userModel.ID, VersionNumber: 1, JSON: schemaJSON},
		roleModel.ID: {ID: "v-role", ModelID: roleModel.ID, VersionNumber: 1, JSON: schemaJSON},
	}
	modelsWithVersions := &modelRepoWithVersions{fakeModelRepo: models, versions: versions}

	role := &domain.Role{ID: "role-1", Name: "Admin"}
	user := &domain.User{ID: "user-1", Email: "alice@example.com", Name: "Alice", RoleID: role.ID}

	identity := NewIdentityStore(
		&fakeUserRepo{users: map[string]*domain.User{user.ID: user}},
		&fakeRoleRepo{roles: map[string]*domain.Role{role.ID: role}},
		nil, 4,
	)

	records := &fakeRecordRepo{records: []*domain.Record{
		{ID: "rolerec-1", ModelID: roleModel.ID, ModelName: "Role", Data: domain.RecordData{"id": role.ID, "name": role.Name}},
		// mirrorData["roleId"] stores the origin role id, per updateSystemRecord's
		// known behavior — this is the stale value Get/List must remap.
		{ID: "userrec-1", ModelID: userModel.ID, ModelName: "User", Data: domain.RecordData{
			"id": user.ID, "email": user.Email, "name": user.Name, "roleId": role.ID,
		}},
	}}

	rs := NewRecordService(nil, modelsWithVersions, records, identity, nil, 4)
	return rs, user.ID, "userrec-1"
}

// TestRecordService_Get_SystemUser_RemapsRoleIDToRoleRecordID verifies
// spec.md §4.8.5: Get on a User accepts either the origin id or the mirror
// record id, and in both cases reports roleId as the Role record's mirror
// id rather than the raw origin role id updateSystemRecord stores.
func TestRecordService_Get_SystemUser_RemapsRoleIDToRoleRecordID(t *testing.T) {
	rs, originID, mirrorID := newSystemModelFixture()
	ctx := context.Background()

	rec, err := rs.Get(ctx, "User", originID)
	require.NoError(t, err)
	require.Equal(t, "rolerec-1", rec.Data["roleId"], "Get-by-origin-id must remap roleId to the Role record id")

	rec2, err := rs.Get(ctx, "User", mirrorID)
	require.NoError(t, err)
	require.Equal(t, "rolerec-1", rec2.Data["roleId"], "Get-by-mirror-id must remap roleId to the Role record id")
}

// TestRecordService_List_SystemUser_ReadsOriginTable verifies spec.md
// §4.8.5's List contract: the page comes from the origin table, not the
// records mirror, so List can never surface a mirror gone stale.
func TestRecordService_List_SystemUser_ReadsOriginTable(t *testing.T) {
	rs, _, _ := newSystemModelFixture()
	ctx := context.Background()

	recs, total, err := rs.List(ctx, "User", 20, 0, false, "")
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, recs, 1)
	require.Equal(t, "alice@example.com", recs[0].Data["email"])
	require.Equal(t, "rolerec-1", recs[0].Data["roleId"])
}

// modelRepoWithVersions layers LatestVersion onto fakeModelRepo so
// ResolvePublishedModel can parse a schema.
type modelRepoWithVersions struct {
	*fakeModelRepo
	versions map[string]*domain.ModelVersion
}

func (m *modelRepoWithVersions) LatestVersion(ctx context.Context, modelID string) (*domain.ModelVersion, error) {
	if v, ok := m.versions[modelID]; ok {
		return v, nil
	}
	return nil, apierrors.NewNotFoundError("model_version", modelID)
}
