package domain

import (
	"encoding/json"

	apierrors "github.com/meridianhq/platform/pkg/errors"
)

// wrappedSchema is the `{definition:{fields:[...]}, rbac:{...}}` shape
// spec.md §3 allows as an alternative to the direct `{fields:[...]}` shape.
type wrappedSchema struct {
	Definition *struct {
		Fields []Field `json:"fields"`
	} `json:"definition"`
	RBAC map[string][]string `json:"rbac"`
}

var allowedFieldTypes = map[FieldType]bool{
	FieldTypeString:      true,
	FieldTypeNumber:      true,
	FieldTypeBoolean:     true,
	FieldTypeDate:        true,
	FieldTypeJSON:        true,
	FieldTypeStringArray: true,
	FieldTypeRelation:    true,
}

var allowedRelationTypes = map[RelationType]bool{
	RelationOneToOne:  true,
	RelationOneToMany: true,
	RelationManyToOne: true,
	// many-to-many is intentionally absent; rejected explicitly below so the
	// error message names the real reason rather than "unknown type".
}

// ParseAndValidateSchema implements the Schema Validator (C5): a pure
// function decoding a ModelDefinition/ModelVersion `json` payload into a
// Schema and rejecting the shapes spec.md §4.5 names.
func ParseAndValidateSchema(raw json.RawMessage) (*Schema, error) {
	var direct struct {
		Fields []Field `json:"fields"`
	}
	var asMap map[string]interface{}
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil, apierrors.NewValidationError("", "schema payload must be a JSON object")
	}

	var fields []Field
	var rbac map[string][]string

	if _, hasDefinition := asMap["definition"]; hasDefinition {
		var w wrappedSchema
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, apierrors.NewValidationError("", "malformed wrapped schema")
		}
		if w.Definition == nil {
			return nil, apierrors.NewValidationError("fields", "missing fields")
		}
		fields = w.Definition.Fields
		rbac = w.RBAC
	} else {
		if err := json.Unmarshal(raw, &direct); err != nil {
			return nil, apierrors.NewValidationError("", "malformed schema")
		}
		fields = direct.Fields
	}

	if fields == nil {
		return nil, apierrors.NewValidationError("fields", "missing fields")
	}

	seen := make(map[string]bool, len(fields))
	for i := range fields {
		f := fields[i]
		if f.Name == "" {
			return nil, apierrors.NewValidationError("fields", "field missing name")
		}
		if f.Type == "" {
			return nil, apierrors.NewValidationError(f.Name, "field missing type")
		}
		if seen[f.Name] {
			return nil, apierrors.NewValidationError(f.Name, "duplicate field name")
		}
		seen[f.Name] = true

		if !allowedFieldTypes[f.Type] {
			return nil, apierrors.NewValidationError(f.Name, "unknown field type: "+string(f.Type))
		}

		if f.Type == FieldTypeRelation {
			if f.Relation == nil || f.Relation.Model == "" || f.Relation.Field == "" || f.Relation.Type == "" {
				return nil, apierrors.NewValidationError(f.Name, "relation field requires relation.model, relation.field and relation.type")
			}
			if f.Relation.Type == RelationManyToMany {
				return nil, apierrors.NewValidationError(f.Name, "many-to-many relations are rejected; use an explicit linking model")
			}
			if !allowedRelationTypes[f.Relation.Type] {
				return nil, apierrors.NewValidationError(f.Name, "unknown relation type: "+string(f.Relation.Type))
			}
		}
	}

	return &Schema{Fields: fields, RBAC: rbac}, nil
}
