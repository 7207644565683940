package service

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/meridianhq/platform/internal/domain"
)

// ArtifactWriter writes a published model's serialized JSON to
// <MODELS_DIR>/<sanitized-name>.json with an atomic write-then-rename
// discipline (spec.md §4.6).
type ArtifactWriter struct {
	modelsDir string
}

func NewArtifactWriter(modelsDir string) *ArtifactWriter {
	return &ArtifactWriter{modelsDir: modelsDir}
}

func sanitizeName(name string) string {
	return strings.ReplaceAll(name, " ", "_")
}

// Path returns the final artifact path for a model name.
func (w *ArtifactWriter) Path(name string) string {
	return filepath.Join(w.modelsDir, sanitizeName(name)+".json")
}

// Write serializes the artifact and atomically replaces the final file:
// write to a unique temp path with an exclusive create flag, then rename
// onto the final path. The temp file is removed on any failure.
func (w *ArtifactWriter) Write(m *domain.ModelDefinition, publishedAt time.Time) error {
	// m.JSON may be either the bare {fields:[...]} shape or the wrapped
	// {definition:{fields:...},rbac:{...}} shape (spec.md §3); normalize
	// through the Schema Validator so the artifact's definition field always
	// directly contains fields, never double-wrapped (spec.md §6.2).
	schema, err := domain.ParseAndValidateSchema(m.JSON)
	if err != nil {
		return fmt.Errorf("normalizing schema for artifact: %w", err)
	}
	definition, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("marshaling normalized schema: %w", err)
	}

	artifact := domain.PublishedArtifact{
		ID:          m.ID,
		Name:        m.Name,
		TableName:   m.TableName,
		OwnerField:  m.OwnerField,
		Version:     m.Version,
		PublishedAt: publishedAt.UTC().Format(time.RFC3339),
		IsSystem:    m.IsSystem,
		Definition:  definition,
	}

	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling artifact: %w", err)
	}

	if err := os.MkdirAll(w.modelsDir, 0o755); err != nil {
		return fmt.Errorf("creating models directory: %w", err)
	}

	token, err := randomToken()
	if err != nil {
		return fmt.Errorf("generating temp token: %w", err)
	}
	tmpPath := filepath.Join(w.modelsDir, sanitizeName(m.Name)+"."+token+".tmp")

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("creating temp artifact file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp artifact file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing temp artifact file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp artifact file: %w", err)
	}

	if err := os.Rename(tmpPath, w.Path(m.Name)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming artifact into place: %w", err)
	}

	return nil
}

// Delete best-effort removes the artifact for a model name. Missing files
// are not an error.
func (w *ArtifactWriter) Delete(name string) error {
	err := os.Remove(w.Path(name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func randomToken() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
