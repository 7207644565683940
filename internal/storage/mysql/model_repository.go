package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/meridianhq/platform/internal/domain"
	"github.com/meridianhq/platform/internal/storage"
)

type modelRepository struct {
	db *DB
}

const modelColumns = "id, name, table_name, owner_field, json_payload, version, published, published_at, published_by, is_system, file_path, created_at, updated_at"

func scanModel(row interface{ Scan(dest ...interface{}) error }) (*domain.ModelDefinition, error) {
	var m domain.ModelDefinition
	var tableName, ownerField, publishedBy, filePath sql.NullString
	var publishedAt sql.NullTime
	var rawJSON []byte

	if err := row.Scan(&m.ID, &m.Name, &tableName, &ownerField, &rawJSON, &m.Version,
		&m.Published, &publishedAt, &publishedBy, &m.IsSystem, &filePath, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}

	if tableName.Valid {
		m.TableName = &tableName.String
	}
	if ownerField.Valid {
		m.OwnerField = &ownerField.String
	}
	if publishedBy.Valid {
		m.PublishedBy = &publishedBy.String
	}
	if filePath.Valid {
		m.FilePath = &filePath.String
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		m.PublishedAt = &t
	}
	m.JSON = json.RawMessage(rawJSON)

	return &m, nil
}

func (r *modelRepository) Create(ctx context.Context, m *domain.ModelDefinition) error {
	_, err := r.db.exec(ctx).ExecContext(ctx,
		`INSERT INTO model_definitions (id, name, table_name, owner_field, json_payload, version, published, is_system, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Name, m.TableName, m.OwnerField, []byte(m.JSON), m.Version, m.Published, m.IsSystem, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return mapError(err, "model")
	}
	return nil
}

func (r *modelRepository) Update(ctx context.Context, m *domain.ModelDefinition) error {
	_, err := r.db.exec(ctx).ExecContext(ctx,
		`UPDATE model_definitions SET table_name=?, owner_field=?, json_payload=?, version=?, published=?,
		 published_at=?, published_by=?, file_path=?, updated_at=? WHERE id=?`,
		m.TableName, m.OwnerField, []byte(m.JSON), m.Version, m.Published, m.PublishedAt, m.PublishedBy, m.FilePath, m.UpdatedAt, m.ID)
	if err != nil {
		return mapError(err, "model")
	}
	return nil
}

func (r *modelRepository) GetByID(ctx context.Context, id string) (*domain.ModelDefinition, error) {
	row := r.db.exec(ctx).QueryRowContext(ctx, "SELECT "+modelColumns+" FROM model_definitions WHERE id = ?", id)
	m, err := scanModel(row)
	if err != nil {
		return nil, mapError(err, "model")
	}
	return m, nil
}

func (r *modelRepository) GetByName(ctx context.Context, name string) (*domain.ModelDefinition, error) {
	row := r.db.exec(ctx).QueryRowContext(ctx, "SELECT "+modelColumns+" FROM model_definitions WHERE name = ?", name)
	m, err := scanModel(row)
	if err != nil {
		return nil, mapError(err, "model")
	}
	return m, nil
}

func (r *modelRepository) GetByRouteTable(ctx context.Context, routeName string) (*domain.ModelDefinition, error) {
	row := r.db.exec(ctx).QueryRowContext(ctx,
		"SELECT "+modelColumns+" FROM model_definitions WHERE LOWER(name) = ? OR LOWER(IFNULL(table_name,'')) = ?",
		strings.ToLower(routeName), strings.ToLower(routeName))
	m, err := scanModel(row)
	if err != nil {
		return nil, mapError(err, "model")
	}
	return m, nil
}

func (r *modelRepository) List(ctx context.Context, filter storage.ModelFilter) ([]domain.ModelDefinition, error) {
	q := "SELECT " + modelColumns + " FROM model_definitions"
	if filter.OnlyPublished {
		q += " WHERE published = TRUE"
	}
	q += " ORDER BY name"

	rows, err := r.db.exec(ctx).QueryContext(ctx, q)
	if err != nil {
		return nil, mapError(err, "model")
	}
	defer rows.Close()

	var out []domain.ModelDefinition
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, mapError(err, "model")
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (r *modelRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.exec(ctx).ExecContext(ctx, "DELETE FROM model_definitions WHERE id = ?", id)
	if err != nil {
		return mapError(err, "model")
	}
	return nil
}

func (r *modelRepository) CreateVersion(ctx context.Context, v *domain.ModelVersion) error {
	_, err := r.db.exec(ctx).ExecContext(ctx,
		`INSERT INTO model_versions (id, model_id, version_number, json_payload, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		v.ID, v.ModelID, v.VersionNumber, []byte(v.JSON), v.CreatedBy, v.CreatedAt)
	if err != nil {
		return mapError(err, "model_version")
	}
	return nil
}

func scanVersion(row interface{ Scan(dest ...interface{}) error }) (*domain.ModelVersion, error) {
	var v domain.ModelVersion
	var rawJSON []byte
	if err := row.Scan(&v.ID, &v.ModelID, &v.VersionNumber, &rawJSON, &v.CreatedBy, &v.CreatedAt); err != nil {
		return nil, err
	}
	v.JSON = json.RawMessage(rawJSON)
	return &v, nil
}

func (r *modelRepository) LatestVersion(ctx context.Context, modelID string) (*domain.ModelVersion, error) {
	row := r.db.exec(ctx).QueryRowContext(ctx,
		`SELECT id, model_id, version_number, json_payload, created_by, created_at
		 FROM model_versions WHERE model_id = ? ORDER BY version_number DESC LIMIT 1`, modelID)
	v, err := scanVersion(row)
	if err != nil {
		return nil, mapError(err, "model_version")
	}
	return v, nil
}

func (r *modelRepository) GetVersion(ctx context.Context, modelID string, versionNumber int) (*domain.ModelVersion, error) {
	row := r.db.exec(ctx).QueryRowContext(ctx,
		`SELECT id, model_id, version_number, json_payload, created_by, created_at
		 FROM model_versions WHERE model_id = ? AND version_number = ?`, modelID, versionNumber)
	v, err := scanVersion(row)
	if err != nil {
		return nil, mapError(err, "model_version")
	}
	return v, nil
}

func (r *modelRepository) ListVersions(ctx context.Context, modelID string, limit int) ([]domain.ModelVersion, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.exec(ctx).QueryContext(ctx,
		`SELECT id, model_id, version_number, json_payload, created_by, created_at
		 FROM model_versions WHERE model_id = ? ORDER BY version_number DESC LIMIT ?`, modelID, limit)
	if err != nil {
		return nil, mapError(err, "model_version")
	}
	defer rows.Close()

	var out []domain.ModelVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, mapError(err, "model_version")
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (r *modelRepository) MaxVersionNumber(ctx context.Context, modelID string) (int, error) {
	var max sql.NullInt64
	err := r.db.exec(ctx).QueryRowContext(ctx,
		"SELECT MAX(version_number) FROM model_versions WHERE model_id = ?", modelID).Scan(&max)
	if err != nil {
		return 0, mapError(err, "model_version")
	}
	return int(max.Int64), nil
}

func (r *modelRepository) DeleteVersions(ctx context.Context, modelID string) error {
	_, err := r.db.exec(ctx).ExecContext(ctx, "DELETE FROM model_versions WHERE model_id = ?", modelID)
	if err != nil {
		return mapError(err, "model_version")
	}
	return nil
}
