package domain

// FieldType is the set of primitive and structural types a Field may declare.
type FieldType string

const (
	FieldTypeString      FieldType = "string"
	FieldTypeNumber      FieldType = "number"
	FieldTypeBoolean     FieldType = "boolean"
	FieldTypeDate        FieldType = "date"
	FieldTypeJSON        FieldType = "json"
	FieldTypeStringArray FieldType = "string[]"
	FieldTypeRelation    FieldType = "relation"
)

// RelationType is the cardinality of a relation field.
type RelationType string

const (
	RelationOneToOne   RelationType = "one-to-one"
	RelationOneToMany  RelationType = "one-to-many"
	RelationManyToOne  RelationType = "many-to-one"
	RelationManyToMany RelationType = "many-to-many"
)

// IsArray reports whether the relation stores a list of target ids rather
// than a single scalar id (spec.md §4.8.2).
func (r RelationType) IsArray() bool {
	return r == RelationOneToMany || r == RelationManyToMany
}

// IsSingleTarget reports whether the relation is a candidate field for
// linking-model composite uniqueness (spec.md §4.8.3): many-to-one or
// one-to-one only.
func (r RelationType) IsSingleTarget() bool {
	return r == RelationManyToOne || r == RelationOneToOne
}

// Relation describes the target of a relation-typed field.
type Relation struct {
	Model string       `json:"model"`
	Field string       `json:"field"`
	Type  RelationType `json:"type"`
}

// Field is one entry of a Schema's field list.
type Field struct {
	Name     string      `json:"name"`
	Type     FieldType   `json:"type"`
	Required bool        `json:"required,omitempty"`
	Unique   bool        `json:"unique,omitempty"`
	Default  interface{} `json:"default,omitempty"`
	Relation *Relation   `json:"relation,omitempty"`
}

// Schema is the normalized form of a ModelDefinition/ModelVersion's `json`
// payload: spec.md §3 allows either a direct `{fields:[...]}` object or a
// wrapped `{definition:{fields:[...]}, rbac:{...}}` object; both decode to
// this shape via ParseAndValidateSchema.
type Schema struct {
	Fields []Field             `json:"fields"`
	RBAC   map[string][]string `json:"rbac,omitempty"`
}

// RelationFields returns the schema's relation-typed fields, in declaration
// order.
func (s *Schema) RelationFields() []Field {
	var out []Field
	for _, f := range s.Fields {
		if f.Type == FieldTypeRelation {
			out = append(out, f)
		}
	}
	return out
}

// SingleTargetRelationFields returns relation fields whose cardinality is
// many-to-one or one-to-one — the candidates for linking-model composite
// uniqueness (spec.md §4.8.3).
func (s *Schema) SingleTargetRelationFields() []Field {
	var out []Field
	for _, f := range s.RelationFields() {
		if f.Relation != nil && f.Relation.Type.IsSingleTarget() {
			out = append(out, f)
		}
	}
	return out
}

// FieldByName looks up a field by name, case-sensitively (field names are
// required unique within a schema by the Schema Validator).
func (s *Schema) FieldByName(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FieldNames returns the schema's field names, always including "id" first
// per the Relation Suggestor's normalized field list (spec.md §4.10).
func (s *Schema) FieldNames() []string {
	names := []string{"id"}
	for _, f := range s.Fields {
		if f.Name == "id" {
			continue
		}
		names = append(names, f.Name)
	}
	return names
}
