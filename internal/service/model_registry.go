package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/meridianhq/platform/internal/domain"
	"github.com/meridianhq/platform/internal/storage"
	apierrors "github.com/meridianhq/platform/pkg/errors"
	"github.com/meridianhq/platform/pkg/utils"
)

// builtinFields is the fallback field list for the reserved system targets
// User and Role when no ModelVersion has been published for them yet
// (spec.md §4.4 relation-target validation).
var builtinFields = map[string][]string{
	"User": {"id", "email", "name", "roleId", "isActive"},
	"Role": {"id", "name"},
}

// allFourActions is what an RBAC entry of ["ALL"] expands to.
var allFourActions = []string{"CREATE", "READ", "UPDATE", "DELETE"}

func normalizeActions(actions []string) []string {
	for _, a := range actions {
		if strings.EqualFold(a, "ALL") {
			return allFourActions
		}
	}
	return actions
}

// ModelRegistry implements the ModelDefinition/ModelVersion state machine
// (spec.md §4.4).
type ModelRegistry struct {
	tx          storage.Transactor
	models      storage.ModelRepository
	records     storage.RecordRepository
	modelRoles  storage.ModelRolePermissionRepository
	roles       storage.RoleRepository
	permissions *PermissionCatalog
	artifacts   *ArtifactWriter
	audit       *AuditLog
}

func NewModelRegistry(
	tx storage.Transactor,
	models storage.ModelRepository,
	records storage.RecordRepository,
	modelRoles storage.ModelRolePermissionRepository,
	roles storage.RoleRepository,
	permissions *PermissionCatalog,
	artifacts *ArtifactWriter,
	audit *AuditLog,
) *ModelRegistry {
	return &ModelRegistry{
		tx: tx, models: models, records: records, modelRoles: modelRoles,
		roles: roles, permissions: permissions, artifacts: artifacts, audit: audit,
	}
}

// Create validates the schema and relation targets, then inserts a DRAFT
// (version=0, published=false). No ModelVersion is created.
func (r *ModelRegistry) Create(ctx context.Context, name string, tableName, ownerField *string, rawJSON []byte, isSystem bool) (*domain.ModelDefinition, error) {
	schema, err := domain.ParseAndValidateSchema(rawJSON)
	if err != nil {
		return nil, err
	}

	if err := r.validateRelationTargets(ctx, name, schema); err != nil {
		return nil, err
	}

	if _, err := r.models.GetByName(ctx, name); err == nil {
		return nil, apierrors.NewConflictError("model name already exists", name)
	} else if !apierrors.IsNotFound(err) {
		return nil, err
	}

	now := time.Now()
	m := &domain.ModelDefinition{
		ID:         utils.GenerateID(),
		Name:       name,
		TableName:  tableName,
		OwnerField: ownerField,
		JSON:       rawJSON,
		Version:    0,
		Published:  false,
		IsSystem:   isSystem,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := r.models.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Update replaces a draft's json after re-validating. Does not touch
// version or create a ModelVersion.
func (r *ModelRegistry) Update(ctx context.Context, id string, rawJSON []byte) (*domain.ModelDefinition, error) {
	m, err := r.models.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.IsSystem {
		return nil, apierrors.NewPermissionError("update", "system model "+m.Name)
	}

	schema, err := domain.ParseAndValidateSchema(rawJSON)
	if err != nil {
		return nil, err
	}
	if err := r.validateRelationTargets(ctx, m.Name, schema); err != nil {
		return nil, err
	}

	m.JSON = rawJSON
	m.UpdatedAt = time.Now()
	if err := r.models.Update(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Publish computes the next version, snapshots json into a new ModelVersion,
// rewrites ModelRolePermission rows from the draft's rbac map, and writes
// the artifact. Artifact rename failure surfaces PartialFailure while the
// database state remains committed (spec.md §4.4, §7).
func (r *ModelRegistry) Publish(ctx context.Context, id, publishedBy string) (*domain.ModelDefinition, error) {
	if err := r.permissions.VerifySeeded(ctx); err != nil {
		return nil, err
	}

	var published *domain.ModelDefinition
	var artifactErr error

	err := r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		m, err := r.models.GetByID(ctx, id)
		if err != nil {
			return err
		}

		schema, err := domain.ParseAndValidateSchema(m.JSON)
		if err != nil {
			return err
		}
		if err := r.validateRelationTargets(ctx, m.Name, schema); err != nil {
			return err
		}

		maxVersion, err := r.models.MaxVersionNumber(ctx, m.ID)
		if err != nil {
			return err
		}
		newVersion := maxVersion + 1
		now := time.Now()

		m.Version = newVersion
		m.Published = true
		m.PublishedAt = &now
		m.PublishedBy = &publishedBy
		if err := r.models.Update(ctx, m); err != nil {
			return err
		}

		if err := r.models.CreateVersion(ctx, &domain.ModelVersion{
			ID: utils.GenerateID(), ModelID: m.ID, VersionNumber: newVersion,
			JSON: m.JSON, CreatedBy: publishedBy, CreatedAt: now,
		}); err != nil {
			return err
		}

		if err := r.modelRoles.DeleteByModel(ctx, m.ID); err != nil {
			return err
		}
		for roleName, actions := range schema.RBAC {
			role, err := r.roles.GetByName(ctx, roleName)
			if err != nil {
				if apierrors.IsNotFound(err) {
					continue
				}
				return err
			}
			for _, action := range normalizeActions(actions) {
				key := domain.ModelActionKey(action)
				if key == "" {
					continue
				}
				perm, err := r.permissions.Resolve(ctx, key)
				if err != nil {
					return err
				}
				if perm == nil {
					continue
				}
				if err := r.modelRoles.Upsert(ctx, m.ID, role.ID, perm.ID, true); err != nil {
					return err
				}
			}
		}

		published = m
		artifactErr = r.artifacts.Write(m, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if artifactErr != nil {
		r.audit.Append(ctx, &publishedBy, domain.AuditModelPublishFileFailed, &published.ID, &published.Name, nil, map[string]interface{}{
			"error": artifactErr.Error(),
		})
		return published, apierrors.NewPartialFailureError("model published but artifact write failed; re-publish to retry", artifactErr.Error())
	}

	return published, nil
}

// Unpublish clears publish state and best-effort removes the artifact.
func (r *ModelRegistry) Unpublish(ctx context.Context, id string) (*domain.ModelDefinition, error) {
	m, err := r.models.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.IsSystem {
		return nil, apierrors.NewPermissionError("unpublish", "system model "+m.Name)
	}

	err = r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		m.Published = false
		m.PublishedAt = nil
		m.PublishedBy = nil
		m.UpdatedAt = time.Now()
		if err := r.models.Update(ctx, m); err != nil {
			return err
		}
		return r.modelRoles.DeleteByModel(ctx, m.ID)
	})
	if err != nil {
		return nil, err
	}

	_ = r.artifacts.Delete(m.Name)
	return m, nil
}

// Delete refuses system models, refuses when other models reference this
// one by relation or when records exist unless force=true.
func (r *ModelRegistry) Delete(ctx context.Context, id string, force bool) error {
	m, err := r.models.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if m.IsSystem {
		return apierrors.NewPermissionError("delete", "system model "+m.Name)
	}

	if !force {
		referencing, err := r.findReferencingModels(ctx, m.Name)
		if err != nil {
			return err
		}
		if len(referencing) > 0 {
			return apierrors.NewConflictError("model is referenced by other models' relations", referencing)
		}

		count, err := r.records.CountForModel(ctx, m.ID)
		if err != nil {
			return err
		}
		if count > 0 {
			return apierrors.NewConflictError(fmt.Sprintf("model has %d existing records", count), nil)
		}
	}

	err = r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := r.modelRoles.DeleteByModel(ctx, m.ID); err != nil {
			return err
		}
		if err := r.records.DeleteAllForModel(ctx, m.ID); err != nil {
			return err
		}
		if err := r.models.DeleteVersions(ctx, m.ID); err != nil {
			return err
		}
		return r.models.Delete(ctx, m.ID)
	})
	if err != nil {
		return err
	}

	_ = r.artifacts.Delete(m.Name)
	return nil
}

// referencingField names a model and field that relates to a deleted target.
type referencingField struct {
	ModelName string `json:"modelName"`
	FieldName string `json:"fieldName"`
}

func (r *ModelRegistry) findReferencingModels(ctx context.Context, targetName string) ([]referencingField, error) {
	all, err := r.models.List(ctx, storage.ModelFilter{})
	if err != nil {
		return nil, err
	}

	var out []referencingField
	for _, m := range all {
		if m.Name == targetName {
			continue
		}
		schema, err := domain.ParseAndValidateSchema(m.JSON)
		if err != nil {
			continue
		}
		for _, f := range schema.RelationFields() {
			if f.Relation.Model == targetName {
				out = append(out, referencingField{ModelName: m.Name, FieldName: f.Name})
			}
		}
	}
	return out, nil
}

// Revert replaces the draft json with a historical snapshot, re-validated
// against the current published ecosystem. Does not bump version.
func (r *ModelRegistry) Revert(ctx context.Context, id string, targetVersion int, actorID string) (*domain.ModelDefinition, error) {
	m, err := r.models.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.IsSystem {
		return nil, apierrors.NewPermissionError("revert", "system model "+m.Name)
	}

	snapshot, err := r.models.GetVersion(ctx, m.ID, targetVersion)
	if err != nil {
		return nil, err
	}

	schema, err := domain.ParseAndValidateSchema(snapshot.JSON)
	if err != nil {
		return nil, err
	}
	if err := r.validateRelationTargets(ctx, m.Name, schema); err != nil {
		return nil, err
	}

	m.JSON = snapshot.JSON
	m.UpdatedAt = time.Now()
	if err := r.models.Update(ctx, m); err != nil {
		return nil, err
	}

	r.audit.Append(ctx, &actorID, domain.AuditModelRevert, &m.ID, &m.Name, nil, map[string]interface{}{
		"targetVersion": targetVersion,
	})

	return m, nil
}

// PublishHistorical loads a snapshot, replaces the draft, then runs the
// normal publish flow — history is append-only, version numbers are never
// reused.
func (r *ModelRegistry) PublishHistorical(ctx context.Context, id string, version int, publishedBy string) (*domain.ModelDefinition, error) {
	m, err := r.models.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.IsSystem {
		return nil, apierrors.NewPermissionError("publish historical version of", "system model "+m.Name)
	}

	snapshot, err := r.models.GetVersion(ctx, m.ID, version)
	if err != nil {
		return nil, err
	}

	m.JSON = snapshot.JSON
	m.UpdatedAt = time.Now()
	if err := r.models.Update(ctx, m); err != nil {
		return nil, err
	}

	return r.Publish(ctx, id, publishedBy)
}

func (r *ModelRegistry) GetByID(ctx context.Context, id string) (*domain.ModelDefinition, error) {
	return r.models.GetByID(ctx, id)
}

func (r *ModelRegistry) GetByName(ctx context.Context, name string) (*domain.ModelDefinition, error) {
	return r.models.GetByName(ctx, name)
}

func (r *ModelRegistry) List(ctx context.Context, onlyPublished bool) ([]domain.ModelDefinition, error) {
	return r.models.List(ctx, storage.ModelFilter{OnlyPublished: onlyPublished})
}

func (r *ModelRegistry) ListVersions(ctx context.Context, modelID string, limit int) ([]domain.ModelVersion, error) {
	return r.models.ListVersions(ctx, modelID, limit)
}

func (r *ModelRegistry) GetVersion(ctx context.Context, modelID string, version int) (*domain.ModelVersion, error) {
	return r.models.GetVersion(ctx, modelID, version)
}

// validateRelationTargets enforces spec.md §4.4's relation-target rules:
// the target must exist and be published, the referenced field must exist
// in the target's latest published snapshot, many-to-many and
// self-reference are rejected. Reserved system targets (User, Role) fall
// back to a built-in field list when unpublished.
func (r *ModelRegistry) validateRelationTargets(ctx context.Context, ownModelName string, schema *domain.Schema) error {
	for _, f := range schema.RelationFields() {
		rel := f.Relation

		if rel.Model == ownModelName {
			return apierrors.NewValidationError(f.Name, "self-referencing relations are rejected")
		}

		if builtin, ok := builtinFields[rel.Model]; ok {
			target, err := r.models.GetByName(ctx, rel.Model)
			if err != nil && !apierrors.IsNotFound(err) {
				return err
			}
			if target != nil && target.Published {
				if err := r.requireFieldInLatestSnapshot(ctx, target, rel.Field); err != nil {
					return err
				}
				continue
			}
			if !containsString(builtin, rel.Field) {
				return apierrors.NewValidationError(f.Name, fmt.Sprintf("relation target field %q not found on built-in model %q", rel.Field, rel.Model))
			}
			continue
		}

		target, err := r.models.GetByName(ctx, rel.Model)
		if err != nil {
			if apierrors.IsNotFound(err) {
				return apierrors.NewValidationError(f.Name, fmt.Sprintf("relation target model %q does not exist", rel.Model))
			}
			return err
		}
		if !target.Published {
			return apierrors.NewValidationError(f.Name, fmt.Sprintf("relation target model %q is not published", rel.Model))
		}
		if err := r.requireFieldInLatestSnapshot(ctx, target, rel.Field); err != nil {
			return err
		}
	}
	return nil
}

func (r *ModelRegistry) requireFieldInLatestSnapshot(ctx context.Context, target *domain.ModelDefinition, fieldName string) error {
	if fieldName == "id" {
		return nil
	}
	latest, err := r.models.LatestVersion(ctx, target.ID)
	if err != nil {
		return err
	}
	targetSchema, err := domain.ParseAndValidateSchema(latest.JSON)
	if err != nil {
		return err
	}
	if _, ok := targetSchema.FieldByName(fieldName); !ok {
		return apierrors.NewValidationError("", fmt.Sprintf("field %q not found on target model %q", fieldName, target.Name))
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
