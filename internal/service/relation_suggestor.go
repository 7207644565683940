package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/meridianhq/platform/internal/domain"
	"github.com/meridianhq/platform/internal/storage"
)

// curatedSystemModels is the fixed, always-available set of system relation
// targets (spec.md §4.10), identified by synthetic "system:<key>" ids since
// they may or may not have a corresponding published ModelDefinition.
var curatedSystemModels = []struct {
	key, name string
	fields    []string
}{
	{key: "user", name: "User", fields: []string{"id", "email", "name", "roleId", "isActive"}},
	{key: "role", name: "Role", fields: []string{"id", "name"}},
}

// RelationSample is one entry of a candidate's preview list.
type RelationSample struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// RelationCandidate is one row of a suggest() response (spec.md §4.10).
type RelationCandidate struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	TableName    string           `json:"tableName"`
	Version      int              `json:"version"`
	DisplayField string           `json:"displayField"`
	Fields       []string         `json:"fields"`
	RecordCount  int              `json:"recordCount"`
	Samples      []RelationSample `json:"samples"`
}

// RelationSuggestOptions bounds a suggest() call.
type RelationSuggestOptions struct {
	Query       string
	Limit       int
	SampleLimit int
}

// RelationSuggestor proposes candidate target models for a relation-picker
// UI (spec.md §4.10, C10).
type RelationSuggestor struct {
	models  storage.ModelRepository
	records storage.RecordRepository
}

func NewRelationSuggestor(models storage.ModelRepository, records storage.RecordRepository) *RelationSuggestor {
	return &RelationSuggestor{models: models, records: records}
}

var preferredDisplayFields = []string{"name", "title", "label", "displayName"}

// inferDisplayField picks the field suggest() uses to build a candidate's
// sample labels: the first of the preferred names present in fieldNames,
// else the first string-typed field, else the first field at all.
func inferDisplayField(schema *domain.Schema) string {
	names := make(map[string]bool, len(schema.Fields))
	for _, f := range schema.Fields {
		names[f.Name] = true
	}
	for _, candidate := range preferredDisplayFields {
		if names[candidate] {
			return candidate
		}
	}
	for _, f := range schema.Fields {
		if f.Type == domain.FieldTypeString {
			return f.Name
		}
	}
	if len(schema.Fields) > 0 {
		return schema.Fields[0].Name
	}
	return "id"
}

// Suggest implements spec.md §4.10. baseModelID is excluded from the
// result set so a model can never relate to itself via the picker.
func (rs *RelationSuggestor) Suggest(ctx context.Context, baseModelID string, opts RelationSuggestOptions) ([]RelationCandidate, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	sampleLimit := opts.SampleLimit
	if sampleLimit <= 0 || sampleLimit > 10 {
		sampleLimit = 10
	}
	q := strings.ToLower(strings.TrimSpace(opts.Query))

	var out []RelationCandidate

	defs, err := rs.models.List(ctx, storage.ModelFilter{OnlyPublished: true})
	if err != nil {
		return nil, err
	}
	for _, def := range defs {
		if def.ID == baseModelID {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(def.Name), q) {
			continue
		}
		candidate, err := rs.buildPublishedCandidate(ctx, &def, sampleLimit)
		if err != nil {
			return nil, err
		}
		out = append(out, *candidate)
		if len(out) >= limit {
			return out, nil
		}
	}

	for _, sys := range curatedSystemModels {
		if q != "" && !strings.Contains(strings.ToLower(sys.name), q) {
			continue
		}
		if alreadyPublished(out, sys.name) {
			continue
		}
		candidate, err := rs.buildCuratedCandidate(ctx, sys.key, sys.name, sys.fields, sampleLimit)
		if err != nil {
			return nil, err
		}
		out = append(out, *candidate)
		if len(out) >= limit {
			break
		}
	}

	return out, nil
}

func alreadyPublished(candidates []RelationCandidate, name string) bool {
	for _, c := range candidates {
		if c.Name == name {
			return true
		}
	}
	return false
}

func (rs *RelationSuggestor) buildPublishedCandidate(ctx context.Context, def *domain.ModelDefinition, sampleLimit int) (*RelationCandidate, error) {
	latest, err := rs.models.LatestVersion(ctx, def.ID)
	if err != nil {
		return nil, err
	}
	schema, err := domain.ParseAndValidateSchema(latest.JSON)
	if err != nil {
		return nil, err
	}
	displayField := inferDisplayField(schema)

	count, err := rs.records.CountForModel(ctx, def.ID)
	if err != nil {
		return nil, err
	}
	recent, err := rs.records.RecentForModel(ctx, def.ID, sampleLimit)
	if err != nil {
		return nil, err
	}

	return &RelationCandidate{
		ID:           def.ID,
		Name:         def.Name,
		TableName:    def.RouteTable(),
		Version:      latest.VersionNumber,
		DisplayField: displayField,
		Fields:       schema.FieldNames(),
		RecordCount:  count,
		Samples:      toSamples(recent, displayField),
	}, nil
}

// buildCuratedCandidate builds a candidate for a curated system model. If a
// matching published ModelDefinition exists (e.g. the operator published a
// User model mirror), its live record data backs the samples; otherwise the
// candidate is schema-only with no samples.
func (rs *RelationSuggestor) buildCuratedCandidate(ctx context.Context, key, name string, fields []string, sampleLimit int) (*RelationCandidate, error) {
	synthID := fmt.Sprintf("system:%s", key)

	def, err := rs.models.GetByName(ctx, name)
	if err != nil || !def.Published {
		return &RelationCandidate{
			ID: synthID, Name: name, TableName: strings.ToLower(name),
			Version: 1, DisplayField: fields[1%len(fields)], Fields: fields,
		}, nil
	}

	count, err := rs.records.CountForModel(ctx, def.ID)
	if err != nil {
		return nil, err
	}
	displayField := fields[0]
	for _, f := range fields {
		if f == "name" || f == "email" {
			displayField = f
			break
		}
	}
	recent, err := rs.records.RecentForModel(ctx, def.ID, sampleLimit)
	if err != nil {
		return nil, err
	}

	return &RelationCandidate{
		ID: synthID, Name: name, TableName: def.RouteTable(),
		Version: def.Version, DisplayField: displayField, Fields: fields,
		RecordCount: count, Samples: toSamples(recent, displayField),
	}, nil
}

func toSamples(records []domain.Record, displayField string) []RelationSample {
	out := make([]RelationSample, 0, len(records))
	for _, rec := range records {
		label := rec.Data.GetString(displayField)
		if label == "" {
			label = fmt.Sprintf("%v", rec.Data[displayField])
		}
		out = append(out, RelationSample{ID: rec.ID, Label: label})
	}
	return out
}
