package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/meridianhq/platform/internal/domain"
	"github.com/meridianhq/platform/internal/storage"
	"github.com/meridianhq/platform/pkg/auth"
	apierrors "github.com/meridianhq/platform/pkg/errors"
	"github.com/meridianhq/platform/pkg/expression"
	"github.com/meridianhq/platform/pkg/utils"
)

// uniquenessScanCap bounds the linking-model composite-uniqueness scan and
// the mirror-record scan of a system-model delete (spec.md §4.8.3, §5).
const uniquenessScanCap = 2000

// RecordService is the generic CRUD engine with dual-write semantics for
// system entities, relation resolution, uniqueness enforcement on linking
// models, and owner resolution (spec.md §4.8).
type RecordService struct {
	tx         storage.Transactor
	models     storage.ModelRepository
	records    storage.RecordRepository
	identity   *IdentityStore
	audit      *AuditLog
	hashRounds int
	defaults   *expression.Engine
}

func NewRecordService(tx storage.Transactor, models storage.ModelRepository, records storage.RecordRepository, identity *IdentityStore, audit *AuditLog, hashRounds int) *RecordService {
	return &RecordService{tx: tx, models: models, records: records, identity: identity, audit: audit, hashRounds: hashRounds, defaults: expression.NewEngine()}
}

// resolvedModel bundles the definition (authoritative for ownerField,
// isSystem, routing) with the latest published snapshot (authoritative for
// validation) — spec.md §4.8.1.
type resolvedModel struct {
	def    *domain.ModelDefinition
	schema *domain.Schema
}

// ResolvePublishedModel implements spec.md §4.8.1.
func (s *RecordService) ResolvePublishedModel(ctx context.Context, routeName string) (*resolvedModel, error) {
	def, err := s.models.GetByRouteTable(ctx, routeName)
	if err != nil {
		return nil, err
	}
	if !def.Published {
		return nil, apierrors.NewNotFoundError("model", routeName)
	}
	latest, err := s.models.LatestVersion(ctx, def.ID)
	if err != nil {
		return nil, err
	}
	schema, err := domain.ParseAndValidateSchema(latest.JSON)
	if err != nil {
		return nil, err
	}
	return &resolvedModel{def: def, schema: schema}, nil
}

func isSystemModelName(name string) bool {
	return name == "User" || name == "Role"
}

// Create validates and stores a new record, dispatching to the system-model
// dual-write path when applicable (spec.md §4.8.5).
func (s *RecordService) Create(ctx context.Context, routeName string, payload domain.RecordData, actingUserID string) (*domain.Record, error) {
	rm, err := s.ResolvePublishedModel(ctx, routeName)
	if err != nil {
		return nil, err
	}

	payload = payload.Clone()
	if err := s.applyDefaults(rm.schema, payload); err != nil {
		return nil, err
	}
	if err := s.validateAndResolveRelations(ctx, rm.schema, payload); err != nil {
		return nil, err
	}
	if err := s.checkLinkingUniqueness(ctx, rm.def, rm.schema, payload, ""); err != nil {
		return nil, err
	}

	ownerID, err := s.resolveOwner(ctx, rm.def, payload, actingUserID)
	if err != nil {
		return nil, err
	}

	if rm.def.IsSystem && isSystemModelName(rm.def.Name) {
		return s.createSystemRecord(ctx, rm, payload, ownerID, actingUserID)
	}

	now := time.Now()
	latestVersionID, err := s.latestVersionID(ctx, rm.def.ID)
	if err != nil {
		return nil, err
	}

	rec := &domain.Record{
		ID: utils.GenerateID(), ModelID: rm.def.ID, ModelName: rm.def.Name,
		ModelVersionID: latestVersionID, Data: payload, OwnerID: ownerID,
		CreatedAt: now, UpdatedAt: now,
	}

	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.records.Insert(ctx, rec); err != nil {
			return err
		}
		return s.audit.AppendTx(ctx, &actingUserID, domain.AuditRecordCreate, &rm.def.ID, &rm.def.Name, &rec.ID, nil)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *RecordService) latestVersionID(ctx context.Context, modelID string) (*string, error) {
	v, err := s.models.LatestVersion(ctx, modelID)
	if err != nil {
		return nil, err
	}
	id := v.ID
	return &id, nil
}

// Get reads a record by id. For the User/Role system models id may be
// either the origin-table id or the mirror record id; the result always
// reflects the origin row, not a possibly stale mirror copy (spec.md
// §4.8.5: "the mirror cannot drift").
func (s *RecordService) Get(ctx context.Context, routeName, id string) (*domain.Record, error) {
	rm, err := s.ResolvePublishedModel(ctx, routeName)
	if err != nil {
		return nil, err
	}

	if rm.def.IsSystem && isSystemModelName(rm.def.Name) {
		return s.getSystemRecord(ctx, rm, id)
	}
	return s.records.FindByID(ctx, rm.def.ID, id)
}

// List reads a page of records, optionally scoped to the acting user's own
// records via ownerOnly (spec.md §4.7). For the User/Role system models
// this reads the origin table directly rather than the records mirror
// (spec.md §4.8.5), so an update that only reaches the origin row — never
// possible here since updateSystemRecord writes both — still can't surface
// a stale mirror through List.
func (s *RecordService) List(ctx context.Context, routeName string, limit, skip int, ownerOnly bool, actingUserID string) ([]domain.Record, int, error) {
	rm, err := s.ResolvePublishedModel(ctx, routeName)
	if err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}
	if skip < 0 {
		skip = 0
	}

	if rm.def.IsSystem && isSystemModelName(rm.def.Name) {
		return s.listSystemRecords(ctx, rm, limit, skip)
	}

	var owner *string
	if ownerOnly {
		owner = &actingUserID
	}
	return s.records.List(ctx, rm.def.ID, limit, skip, owner)
}

// getSystemRecord implements the Get half of spec.md §4.8.5 for User/Role:
// id is resolved to the origin row first, then projected back into a
// Record view built fresh from that row.
func (s *RecordService) getSystemRecord(ctx context.Context, rm *resolvedModel, id string) (*domain.Record, error) {
	originID, err := s.resolveSystemOriginID(ctx, rm, id)
	if err != nil {
		return nil, err
	}

	switch rm.def.Name {
	case "User":
		user, err := s.identity.FindUserByID(ctx, originID)
		if err != nil {
			return nil, err
		}
		return s.userToRecord(ctx, rm, user)
	case "Role":
		role, err := s.identity.FindRoleByID(ctx, originID)
		if err != nil {
			return nil, err
		}
		return s.roleToRecord(ctx, rm, role)
	}
	return nil, apierrors.NewNotFoundError("record", id)
}

// listSystemRecords implements the List half of spec.md §4.8.5: it pages
// the origin table and projects each row into a Record view, rather than
// paging the records mirror.
func (s *RecordService) listSystemRecords(ctx context.Context, rm *resolvedModel, limit, skip int) ([]domain.Record, int, error) {
	switch rm.def.Name {
	case "User":
		users, total, err := s.identity.ListUsers(ctx, limit, skip)
		if err != nil {
			return nil, 0, err
		}
		out := make([]domain.Record, 0, len(users))
		for i := range users {
			rec, err := s.userToRecord(ctx, rm, &users[i])
			if err != nil {
				return nil, 0, err
			}
			out = append(out, *rec)
		}
		return out, total, nil

	case "Role":
		roles, err := s.identity.ListRoles(ctx)
		if err != nil {
			return nil, 0, err
		}
		total := len(roles)
		start := skip
		if start > total {
			start = total
		}
		end := start + limit
		if end > total {
			end = total
		}
		page := roles[start:end]
		out := make([]domain.Record, 0, len(page))
		for i := range page {
			rec, err := s.roleToRecord(ctx, rm, &page[i])
			if err != nil {
				return nil, 0, err
			}
			out = append(out, *rec)
		}
		return out, total, nil
	}
	return nil, 0, apierrors.NewNotFoundError("record", rm.def.Name)
}

// roleMirrorRecordID resolves a Role origin id to its mirror record id, so
// a User's roleId can be reported as the Role record id callers already
// use to address /api/role/:id, not the raw origin role id
// (spec.md §4.8.5).
func (s *RecordService) roleMirrorRecordID(ctx context.Context, roleID string) (string, error) {
	if roleID == "" {
		return "", nil
	}
	roleModel, err := s.models.GetByName(ctx, "Role")
	if err != nil {
		return "", err
	}
	mirror, err := s.findMirrorByOriginID(ctx, roleModel.ID, roleID)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return "", nil
		}
		return "", err
	}
	return mirror.ID, nil
}

// userToRecord projects an origin User row into the Record shape callers
// expect, merging in any mirror-only custom fields and remapping roleId to
// the Role record id (spec.md §4.8.5).
func (s *RecordService) userToRecord(ctx context.Context, rm *resolvedModel, user *domain.User) (*domain.Record, error) {
	data, err := s.loadOrInitMirrorData(ctx, rm.def.ID, user.ID, domain.RecordData{})
	if err != nil {
		return nil, err
	}
	delete(data, "password")
	data["id"] = user.ID
	data["email"] = user.Email
	data["name"] = user.Name

	roleRecordID, err := s.roleMirrorRecordID(ctx, user.RoleID)
	if err != nil {
		return nil, err
	}
	if roleRecordID != "" {
		data["roleId"] = roleRecordID
	} else {
		delete(data, "roleId")
	}

	rec := &domain.Record{
		ID: user.ID, ModelID: rm.def.ID, ModelName: rm.def.Name,
		Data: data, CreatedAt: user.CreatedAt, UpdatedAt: user.UpdatedAt,
	}
	if mirror, err := s.findMirrorByOriginID(ctx, rm.def.ID, user.ID); err == nil {
		rec.ID = mirror.ID
		rec.OwnerID = mirror.OwnerID
		rec.ModelVersionID = mirror.ModelVersionID
	} else if !apierrors.IsNotFound(err) {
		return nil, err
	}
	return rec, nil
}

// roleToRecord projects an origin Role row into the Record shape callers
// expect, merging in any mirror-only custom fields (spec.md §4.8.5).
func (s *RecordService) roleToRecord(ctx context.Context, rm *resolvedModel, role *domain.Role) (*domain.Record, error) {
	data, err := s.loadOrInitMirrorData(ctx, rm.def.ID, role.ID, domain.RecordData{})
	if err != nil {
		return nil, err
	}
	data["id"] = role.ID
	data["name"] = role.Name

	rec := &domain.Record{
		ID: role.ID, ModelID: rm.def.ID, ModelName: rm.def.Name,
		Data: data, CreatedAt: role.CreatedAt, UpdatedAt: role.UpdatedAt,
	}
	if mirror, err := s.findMirrorByOriginID(ctx, rm.def.ID, role.ID); err == nil {
		rec.ID = mirror.ID
		rec.OwnerID = mirror.OwnerID
		rec.ModelVersionID = mirror.ModelVersionID
	} else if !apierrors.IsNotFound(err) {
		return nil, err
	}
	return rec, nil
}

// Update merges payload into the existing record within a single
// transaction (spec.md §5: merge-then-write is the only application-level
// read-modify-write).
func (s *RecordService) Update(ctx context.Context, routeName, id string, payload domain.RecordData, actingUserID string) (*domain.Record, error) {
	rm, err := s.ResolvePublishedModel(ctx, routeName)
	if err != nil {
		return nil, err
	}

	if rm.def.IsSystem && isSystemModelName(rm.def.Name) {
		return s.updateSystemRecord(ctx, rm, id, payload, actingUserID)
	}

	existing, err := s.records.FindByID(ctx, rm.def.ID, id)
	if err != nil {
		return nil, err
	}

	merged := existing.Data.Clone()
	for k, v := range payload {
		merged[k] = v
	}

	if err := s.validateAndResolveRelations(ctx, rm.schema, merged); err != nil {
		return nil, err
	}
	if err := s.checkLinkingUniqueness(ctx, rm.def, rm.schema, merged, id); err != nil {
		return nil, err
	}

	existing.Data = merged
	existing.UpdatedAt = time.Now()

	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.records.Update(ctx, existing); err != nil {
			return err
		}
		return s.audit.AppendTx(ctx, &actingUserID, domain.AuditRecordUpdate, &rm.def.ID, &rm.def.Name, &existing.ID, nil)
	})
	if err != nil {
		return nil, err
	}
	return existing, nil
}

// Delete soft-deletes a record (or, for system models, the origin row and
// its mirror together).
func (s *RecordService) Delete(ctx context.Context, routeName, id, actingUserID string) error {
	rm, err := s.ResolvePublishedModel(ctx, routeName)
	if err != nil {
		return err
	}

	if rm.def.IsSystem && isSystemModelName(rm.def.Name) {
		return s.deleteSystemRecord(ctx, rm, id, actingUserID)
	}

	return s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.records.Delete(ctx, rm.def.ID, id); err != nil {
			return err
		}
		return s.audit.AppendTx(ctx, &actingUserID, domain.AuditRecordDelete, &rm.def.ID, &rm.def.Name, &id, nil)
	})
}

// expressionDefaultPrefix marks a Field.Default string as an expression to
// evaluate rather than a literal value, e.g. "=TODAY()" or "=UPPER(name)".
const expressionDefaultPrefix = "="

// applyDefaults fills missing fields from their schema default before
// validation runs. A default beginning with "=" is compiled and evaluated
// against the rest of the payload; any other default is used as a literal.
func (s *RecordService) applyDefaults(schema *domain.Schema, payload domain.RecordData) error {
	for _, f := range schema.Fields {
		if _, present := payload[f.Name]; present || f.Default == nil {
			continue
		}

		expr, ok := f.Default.(string)
		if !ok || !strings.HasPrefix(expr, expressionDefaultPrefix) {
			payload[f.Name] = f.Default
			continue
		}

		env := make(map[string]interface{}, len(payload))
		for k, v := range payload {
			env[k] = v
		}
		result, err := s.defaults.Evaluate(strings.TrimPrefix(expr, expressionDefaultPrefix), env)
		if err != nil {
			return apierrors.NewValidationError(f.Name, fmt.Sprintf("default expression failed: %v", err))
		}
		payload[f.Name] = result
	}
	return nil
}

// validateAndResolveRelations implements spec.md §4.8.2: required/type
// checks plus relation resolution, mutating payload in place so stored
// relation values are always canonical ids (or arrays of ids).
func (s *RecordService) validateAndResolveRelations(ctx context.Context, schema *domain.Schema, payload domain.RecordData) error {
	for _, f := range schema.Fields {
		v, present := payload[f.Name]

		if f.Required && !present {
			return apierrors.NewValidationError(f.Name, "field is required")
		}
		if !present {
			continue
		}

		if f.Type != domain.FieldTypeRelation {
			if err := checkPrimitiveType(f, v); err != nil {
				return err
			}
			continue
		}

		rel := f.Relation
		if rel.Type.IsArray() {
			list, ok := v.([]interface{})
			if !ok {
				return apierrors.NewValidationError(f.Name, "expected an array of relation target ids")
			}
			resolved := make([]interface{}, 0, len(list))
			for _, item := range list {
				id, err := s.resolveSingleTarget(ctx, rel.Model, rel.Field, item)
				if err != nil {
					return err
				}
				resolved = append(resolved, id)
			}
			payload[f.Name] = resolved
		} else {
			id, err := s.resolveSingleTarget(ctx, rel.Model, rel.Field, v)
			if err != nil {
				return err
			}
			payload[f.Name] = id
		}
	}
	return nil
}

func checkPrimitiveType(f domain.Field, v interface{}) error {
	switch f.Type {
	case domain.FieldTypeString, domain.FieldTypeDate:
		if _, ok := v.(string); !ok {
			return apierrors.NewValidationError(f.Name, "expected a string")
		}
	case domain.FieldTypeNumber:
		switch v.(type) {
		case float64, int, int64:
		default:
			return apierrors.NewValidationError(f.Name, "expected a number")
		}
	case domain.FieldTypeBoolean:
		if _, ok := v.(bool); !ok {
			return apierrors.NewValidationError(f.Name, "expected a boolean")
		}
	case domain.FieldTypeStringArray:
		if _, ok := v.([]interface{}); !ok {
			return apierrors.NewValidationError(f.Name, "expected an array of strings")
		}
	case domain.FieldTypeJSON:
		// any JSON value is acceptable
	}
	return nil
}

// resolveSingleTarget implements spec.md §4.8.2's single-target resolution.
func (s *RecordService) resolveSingleTarget(ctx context.Context, targetModelName, targetFieldName string, v interface{}) (string, error) {
	if targetModelName == "User" {
		return s.resolveUserLike(ctx, v)
	}

	target, err := s.models.GetByName(ctx, targetModelName)
	if err != nil {
		return "", err
	}
	if !target.Published {
		return "", apierrors.NewValidationError("", fmt.Sprintf("relation target model %q is not published", targetModelName))
	}

	str, ok := v.(string)
	if !ok {
		return "", apierrors.NewValidationError("", "relation value must be a string id")
	}

	if rec, err := s.records.FindByID(ctx, target.ID, str); err == nil {
		return rec.ID, nil
	} else if !apierrors.IsNotFound(err) {
		return "", err
	}

	matches, err := s.records.FindByDataField(ctx, target.ID, targetFieldName, v, 2)
	if err != nil {
		return "", err
	}
	switch len(matches) {
	case 0:
		return "", apierrors.NewValidationError("", fmt.Sprintf("no %s record matches %s=%v", targetModelName, targetFieldName, v))
	case 1:
		return matches[0].ID, nil
	default:
		return "", apierrors.NewAmbiguousError(fmt.Sprintf("multiple %s records match %s=%v", targetModelName, targetFieldName, v))
	}
}

// resolveUserLike implements the User special-case resolution shared by
// relation resolution and owner resolution (spec.md §4.8.2, §4.8.4):
// (a) direct user id, (b) email, (c) a User-model mirror record id whose
// data carries an email-like field.
func (s *RecordService) resolveUserLike(ctx context.Context, v interface{}) (string, error) {
	str, ok := v.(string)
	if !ok {
		return "", apierrors.NewValidationError("", "user relation value must be a string")
	}

	if u, err := s.identity.FindUserByID(ctx, str); err == nil {
		return u.ID, nil
	} else if !apierrors.IsNotFound(err) {
		return "", err
	}

	if u, err := s.identity.FindUserByEmail(ctx, str); err == nil {
		return u.ID, nil
	} else if !apierrors.IsNotFound(err) {
		return "", err
	}

	userModel, err := s.models.GetByName(ctx, "User")
	if err == nil {
		if rec, err := s.records.FindByID(ctx, userModel.ID, str); err == nil {
			for _, key := range []string{"email", "emailAddress", "userEmail", "username", "name"} {
				if email := rec.Data.GetString(key); email != "" {
					if u, err := s.identity.FindUserByEmail(ctx, email); err == nil {
						return u.ID, nil
					}
				}
			}
		}
	}

	return "", apierrors.NewValidationError("", fmt.Sprintf("could not resolve user reference %q", str))
}

// checkLinkingUniqueness implements spec.md §4.8.3. excludeID lets Update
// compare against other records without flagging itself.
func (s *RecordService) checkLinkingUniqueness(ctx context.Context, def *domain.ModelDefinition, schema *domain.Schema, payload domain.RecordData, excludeID string) error {
	fields := schema.SingleTargetRelationFields()
	if len(fields) < 2 {
		return nil
	}

	tuple := make(map[string]string, len(fields))
	for _, f := range fields {
		v, ok := payload[f.Name]
		if !ok || v == nil {
			return nil // uniqueness only enforced when all fields are set
		}
		str, ok := v.(string)
		if !ok {
			return nil
		}
		tuple[f.Name] = str
	}

	existing, err := s.records.ListForUniqueness(ctx, def.ID, uniquenessScanCap)
	if err != nil {
		return err
	}

	for _, rec := range existing {
		if rec.ID == excludeID {
			continue
		}
		matches := true
		for _, f := range fields {
			if rec.Data.GetString(f.Name) != tuple[f.Name] {
				matches = false
				break
			}
		}
		if matches {
			return apierrors.NewConflictError("a record with this combination of relations already exists", tuple)
		}
	}
	return nil
}

// resolveOwner implements spec.md §4.8.4.
func (s *RecordService) resolveOwner(ctx context.Context, def *domain.ModelDefinition, payload domain.RecordData, actingUserID string) (*string, error) {
	var candidate interface{}
	if v, ok := payload["ownerId"]; ok {
		candidate = v
	} else if def.OwnerField != nil {
		if v, ok := payload[*def.OwnerField]; ok {
			candidate = v
		}
	}

	var ownerID string
	if candidate != nil {
		resolved, err := s.resolveUserLike(ctx, candidate)
		if err != nil {
			return nil, apierrors.NewValidationError("ownerId", "could not resolve explicit owner")
		}
		ownerID = resolved
	} else if actingUserID != "" {
		if _, err := s.identity.FindUserByID(ctx, actingUserID); err == nil {
			ownerID = actingUserID
		}
	}

	if ownerID == "" {
		return nil, nil
	}

	if def.OwnerField != nil {
		if _, ok := payload[*def.OwnerField]; !ok {
			payload[*def.OwnerField] = ownerID
		}
	}

	return &ownerID, nil
}

// findMirrorByOriginID locates a system model's mirror record by scanning
// for data.id == originID (spec.md §4.8.5).
func (s *RecordService) findMirrorByOriginID(ctx context.Context, modelID, originID string) (*domain.Record, error) {
	matches, err := s.records.FindByDataField(ctx, modelID, "id", originID, 1)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, apierrors.NewNotFoundError("record", originID)
	}
	return &matches[0], nil
}

// resolveRoleOriginID resolves a roleId payload value that may be either a
// system role id or a Role-model mirror record id (spec.md §4.8.5).
func (s *RecordService) resolveRoleOriginID(ctx context.Context, v interface{}) (string, error) {
	str, ok := v.(string)
	if !ok {
		return "", apierrors.NewValidationError("roleId", "must be a string")
	}

	if role, err := s.identity.FindRoleByID(ctx, str); err == nil {
		return role.ID, nil
	} else if !apierrors.IsNotFound(err) {
		return "", err
	}

	roleModel, err := s.models.GetByName(ctx, "Role")
	if err != nil {
		return "", apierrors.NewValidationError("roleId", "could not resolve role reference")
	}
	rec, err := s.records.FindByID(ctx, roleModel.ID, str)
	if err != nil {
		return "", apierrors.NewValidationError("roleId", "could not resolve role reference")
	}
	if originID := rec.Data.GetString("id"); originID != "" {
		if role, err := s.identity.FindRoleByID(ctx, originID); err == nil {
			return role.ID, nil
		}
	}
	return "", apierrors.NewValidationError("roleId", "could not resolve role reference")
}

// resolveSystemOriginID maps a supplied id, which may be an origin-table id
// or a mirror record id, to the origin id (spec.md §4.8.5).
func (s *RecordService) resolveSystemOriginID(ctx context.Context, rm *resolvedModel, id string) (string, error) {
	switch rm.def.Name {
	case "User":
		if u, err := s.identity.FindUserByID(ctx, id); err == nil {
			return u.ID, nil
		} else if !apierrors.IsNotFound(err) {
			return "", err
		}
	case "Role":
		if r, err := s.identity.FindRoleByID(ctx, id); err == nil {
			return r.ID, nil
		} else if !apierrors.IsNotFound(err) {
			return "", err
		}
	}

	rec, err := s.records.FindByID(ctx, rm.def.ID, id)
	if err != nil {
		return "", err
	}
	if originID := rec.Data.GetString("id"); originID != "" {
		return originID, nil
	}
	var origin struct {
		ID string `json:"id"`
	}
	if raw, ok := rec.Data["_origin"]; ok {
		if m, ok := raw.(map[string]interface{}); ok {
			if oid, ok := m["id"].(string); ok {
				origin.ID = oid
			}
		}
	}
	if origin.ID != "" {
		return origin.ID, nil
	}
	return "", apierrors.NewNotFoundError("record", id)
}

// createSystemRecord implements spec.md §4.8.5's Create User/Role dual-write:
// origin row and mirror record are created in one transaction.
func (s *RecordService) createSystemRecord(ctx context.Context, rm *resolvedModel, payload domain.RecordData, ownerID *string, actingUserID string) (*domain.Record, error) {
	var mirror *domain.Record

	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		mirrorData := payload.Clone()
		now := time.Now()
		var originID, action string

		switch rm.def.Name {
		case "User":
			email := payload.GetString("email")
			if email == "" {
				return apierrors.NewValidationError("email", "email is required")
			}

			var passwordHash string
			if pw, ok := payload["password"].(string); ok && pw != "" {
				hash, err := auth.HashPasswordWithRounds(pw, s.hashRounds)
				if err != nil {
					return apierrors.NewInternalError("hashing password", err)
				}
				passwordHash = hash
			}

			var roleID string
			if rv, ok := payload["roleId"]; ok {
				rid, err := s.resolveRoleOriginID(ctx, rv)
				if err != nil {
					return err
				}
				roleID = rid
			}

			user := &domain.User{
				ID: utils.GenerateID(), Email: email, PasswordHash: passwordHash,
				Name: payload.GetString("name"), RoleID: roleID, IsActive: true,
				CreatedAt: now, UpdatedAt: now,
			}
			if err := s.identity.CreateUserDirect(ctx, user); err != nil {
				return err
			}

			delete(mirrorData, "password")
			mirrorData["id"] = user.ID
			mirrorData["email"] = user.Email
			originID = user.ID
			action = domain.AuditSystemUserCreate

		case "Role":
			name := payload.GetString("name")
			if name == "" {
				return apierrors.NewValidationError("name", "name is required")
			}

			role := &domain.Role{ID: utils.GenerateID(), Name: name, CreatedAt: now, UpdatedAt: now}
			if err := s.identity.CreateRoleDirect(ctx, role); err != nil {
				return err
			}

			mirrorData["id"] = role.ID
			mirrorData["name"] = role.Name
			originID = role.ID
			action = domain.AuditSystemRoleCreate
		}

		latestVersionID, err := s.latestVersionID(ctx, rm.def.ID)
		if err != nil {
			return err
		}

		rec := &domain.Record{
			ID: utils.GenerateID(), ModelID: rm.def.ID, ModelName: rm.def.Name,
			ModelVersionID: latestVersionID, Data: mirrorData, OwnerID: ownerID,
			CreatedAt: now, UpdatedAt: now,
		}
		if err := s.records.Insert(ctx, rec); err != nil {
			return err
		}
		mirror = rec

		return s.audit.AppendTx(ctx, &actingUserID, action, &rm.def.ID, &rm.def.Name, &originID, nil)
	})
	if err != nil {
		return nil, err
	}
	return mirror, nil
}

// updateSystemRecord implements spec.md §4.8.5's Update User/Role
// dual-write: the supplied id may be an origin id or a mirror record id.
func (s *RecordService) updateSystemRecord(ctx context.Context, rm *resolvedModel, id string, payload domain.RecordData, actingUserID string) (*domain.Record, error) {
	var mirror *domain.Record

	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		originID, err := s.resolveSystemOriginID(ctx, rm, id)
		if err != nil {
			return err
		}

		var action string

		switch rm.def.Name {
		case "User":
			user, err := s.identity.FindUserByID(ctx, originID)
			if err != nil {
				return err
			}
			if email, ok := payload["email"].(string); ok && email != "" {
				user.Email = email
			}
			if name, ok := payload["name"].(string); ok {
				user.Name = name
			}
			if pw, ok := payload["password"].(string); ok && pw != "" {
				hash, err := auth.HashPasswordWithRounds(pw, s.hashRounds)
				if err != nil {
					return apierrors.NewInternalError("hashing password", err)
				}
				user.PasswordHash = hash
			}
			if rv, ok := payload["roleId"]; ok {
				rid, err := s.resolveRoleOriginID(ctx, rv)
				if err != nil {
					return err
				}
				user.RoleID = rid
			}
			if err := s.identity.UpdateUser(ctx, user); err != nil {
				return err
			}

			mirrorData, err := s.loadOrInitMirrorData(ctx, rm.def.ID, originID, payload)
			if err != nil {
				return err
			}
			delete(mirrorData, "password")
			mirrorData["id"] = user.ID
			mirrorData["email"] = user.Email
			mirrorData["roleId"] = user.RoleID
			mirror, err = s.upsertMirror(ctx, rm, originID, mirrorData)
			if err != nil {
				return err
			}
			action = domain.AuditSystemUserUpdate

		case "Role":
			role, err := s.identity.FindRoleByID(ctx, originID)
			if err != nil {
				return err
			}
			if name, ok := payload["name"].(string); ok && name != "" {
				role.Name = name
			}
			if err := s.identity.UpdateRole(ctx, role); err != nil {
				return err
			}

			mirrorData, err := s.loadOrInitMirrorData(ctx, rm.def.ID, originID, payload)
			if err != nil {
				return err
			}
			mirrorData["id"] = role.ID
			mirrorData["name"] = role.Name
			mirror, err = s.upsertMirror(ctx, rm, originID, mirrorData)
			if err != nil {
				return err
			}
			action = domain.AuditSystemRoleUpdate
		}

		return s.audit.AppendTx(ctx, &actingUserID, action, &rm.def.ID, &rm.def.Name, &originID, nil)
	})
	if err != nil {
		return nil, err
	}
	return mirror, nil
}

// loadOrInitMirrorData returns the existing mirror's data merged with
// payload, or payload alone if no mirror exists yet (spec.md §4.8.5:
// "if absent create the mirror").
func (s *RecordService) loadOrInitMirrorData(ctx context.Context, modelID, originID string, payload domain.RecordData) (domain.RecordData, error) {
	existing, err := s.findMirrorByOriginID(ctx, modelID, originID)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return payload.Clone(), nil
		}
		return nil, err
	}
	merged := existing.Data.Clone()
	for k, v := range payload {
		merged[k] = v
	}
	return merged, nil
}

func (s *RecordService) upsertMirror(ctx context.Context, rm *resolvedModel, originID string, data domain.RecordData) (*domain.Record, error) {
	existing, err := s.findMirrorByOriginID(ctx, rm.def.ID, originID)
	if err != nil {
		if !apierrors.IsNotFound(err) {
			return nil, err
		}
		now := time.Now()
		latestVersionID, err := s.latestVersionID(ctx, rm.def.ID)
		if err != nil {
			return nil, err
		}
		rec := &domain.Record{
			ID: utils.GenerateID(), ModelID: rm.def.ID, ModelName: rm.def.Name,
			ModelVersionID: latestVersionID, Data: data, CreatedAt: now, UpdatedAt: now,
		}
		if err := s.records.Insert(ctx, rec); err != nil {
			return nil, err
		}
		return rec, nil
	}

	existing.Data = data
	existing.UpdatedAt = time.Now()
	if err := s.records.Update(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// deleteSystemRecord implements spec.md §4.8.5's Delete User/Role
// dual-write: origin row and all matching mirror records are removed
// together.
func (s *RecordService) deleteSystemRecord(ctx context.Context, rm *resolvedModel, id, actingUserID string) error {
	return s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		originID, err := s.resolveSystemOriginID(ctx, rm, id)
		if err != nil {
			return err
		}

		var action string
		switch rm.def.Name {
		case "User":
			if err := s.identity.DeleteUser(ctx, originID); err != nil {
				return err
			}
			action = domain.AuditSystemUserDelete
		case "Role":
			if err := s.identity.DeleteRole(ctx, originID); err != nil {
				return err
			}
			action = domain.AuditSystemRoleDelete
		}

		mirrors, err := s.records.FindByDataField(ctx, rm.def.ID, "id", originID, uniquenessScanCap)
		if err != nil {
			return err
		}
		for _, mirror := range mirrors {
			if err := s.records.Delete(ctx, rm.def.ID, mirror.ID); err != nil {
				return err
			}
		}

		return s.audit.AppendTx(ctx, &actingUserID, action, &rm.def.ID, &rm.def.Name, &originID, nil)
	})
}
