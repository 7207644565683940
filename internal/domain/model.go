package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// ModelDefinition is a named draft/published schema container (spec.md §3).
type ModelDefinition struct {
	ID          string
	Name        string
	TableName   *string
	OwnerField  *string
	JSON        json.RawMessage
	Version     int
	Published   bool
	PublishedAt *time.Time
	PublishedBy *string
	IsSystem    bool
	FilePath    *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RouteTable returns the lowercased path segment the Dynamic Route Fabric
// mounts this model under: the table-name alias if set, else the model
// name (spec.md §4.7).
func (m *ModelDefinition) RouteTable() string {
	if m.TableName != nil && *m.TableName != "" {
		return strings.ToLower(*m.TableName)
	}
	return strings.ToLower(m.Name)
}

// ModelVersion is an immutable schema snapshot (spec.md §3).
type ModelVersion struct {
	ID            string
	ModelID       string
	VersionNumber int
	JSON          json.RawMessage
	CreatedBy     string
	CreatedAt     time.Time
}

// PublishedArtifact is the on-disk shape written by the Artifact Writer
// (spec.md §6.2).
type PublishedArtifact struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	TableName   *string         `json:"tableName"`
	OwnerField  *string         `json:"ownerField"`
	Version     int             `json:"version"`
	PublishedAt string          `json:"publishedAt"`
	IsSystem    bool            `json:"isSystem"`
	Definition  json.RawMessage `json:"definition"`
}
