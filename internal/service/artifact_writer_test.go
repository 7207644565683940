package service

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridianhq/platform/internal/domain"
)

// TestArtifactWriter_Write_UnwrapsWrappedSchema guards against the
// artifact's definition field double-wrapping a model authored in the
// {definition:{fields:...},rbac:{...}} shape spec.md §3 allows: the
// artifact's definition must directly contain fields (spec.md §6.2).
func TestArtifactWriter_Write_UnwrapsWrappedSchema(t *testing.T) {
	dir := t.TempDir()
	w := NewArtifactWriter(dir)

	wrapped := `{"definition":{"fields":[{"name":"title","type":"string"}]},"rbac":{"Admin":["CREATE"]}}`
	m := &domain.ModelDefinition{
		ID: "m-1", Name: "Article", Version: 1,
		JSON: json.RawMessage(wrapped),
	}

	require.NoError(t, w.Write(m, time.Now()))

	raw, err := os.ReadFile(filepath.Join(dir, "Article.json"))
	require.NoError(t, err)

	var artifact struct {
		Definition struct {
			Fields []domain.Field         `json:"fields"`
			RBAC   map[string][]string    `json:"rbac"`
			Nested map[string]interface{} `json:"definition"`
		} `json:"definition"`
	}
	require.NoError(t, json.Unmarshal(raw, &artifact))

	require.Len(t, artifact.Definition.Fields, 1)
	require.Equal(t, "title", artifact.Definition.Fields[0].Name)
	require.Nil(t, artifact.Definition.Nested, "definition must not be double-wrapped")
	require.Equal(t, []string{"CREATE"}, artifact.Definition.RBAC["Admin"])
}

// TestArtifactWriter_Write_BareShapePassesThrough confirms the already-bare
// {fields:[...]} shape still round-trips unchanged.
func TestArtifactWriter_Write_BareShapePassesThrough(t *testing.T) {
	dir := t.TempDir()
	w := NewArtifactWriter(dir)

	bare := `{"fields":[{"name":"name","type":"string","required":true}]}`
	m := &domain.ModelDefinition{
		ID: "m-2", Name: "Contact", Version: 1,
		JSON: json.RawMessage(bare),
	}

	require.NoError(t, w.Write(m, time.Now()))

	raw, err := os.ReadFile(filepath.Join(dir, "Contact.json"))
	require.NoError(t, err)

	var artifact struct {
		Definition domain.Schema `json:"definition"`
	}
	require.NoError(t, json.Unmarshal(raw, &artifact))
	require.Len(t, artifact.Definition.Fields, 1)
	require.True(t, artifact.Definition.Fields[0].Required)
}
