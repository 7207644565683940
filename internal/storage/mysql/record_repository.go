package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"

	"github.com/meridianhq/platform/internal/domain"
	"github.com/meridianhq/platform/pkg/query"
)

// recordRepository stores every Record, regardless of model, in a single
// generic table keyed by model_id with an opaque JSON data column (spec.md
// §3, §4.8). This replaces the teacher's per-model dynamic-DDL table: there
// is no schema-driven CREATE TABLE step, so a model publish never touches
// database structure, only rows in model_definitions/model_versions.
type recordRepository struct {
	db *DB
}

const recordColumns = "id, model_id, model_name, model_version_id, data_payload, owner_id, created_at, updated_at, deleted_at"

func scanRecord(row interface{ Scan(dest ...interface{}) error }) (*domain.Record, error) {
	var r domain.Record
	var modelVersionID, ownerID sql.NullString
	var deletedAt sql.NullTime
	var rawData []byte

	if err := row.Scan(&r.ID, &r.ModelID, &r.ModelName, &modelVersionID, &rawData, &ownerID,
		&r.CreatedAt, &r.UpdatedAt, &deletedAt); err != nil {
		return nil, err
	}

	if modelVersionID.Valid {
		r.ModelVersionID = &modelVersionID.String
	}
	if ownerID.Valid {
		r.OwnerID = &ownerID.String
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		r.DeletedAt = &t
	}

	var data domain.RecordData
	if err := json.Unmarshal(rawData, &data); err != nil {
		return nil, err
	}
	r.Data = data

	return &r, nil
}

func (r *recordRepository) Insert(ctx context.Context, rec *domain.Record) error {
	raw, err := json.Marshal(rec.Data)
	if err != nil {
		return err
	}

	_, err = r.db.exec(ctx).ExecContext(ctx,
		`INSERT INTO records (id, model_id, model_name, model_version_id, data_payload, owner_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ModelID, rec.ModelName, rec.ModelVersionID, raw, rec.OwnerID, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return mapError(err, rec.ModelName)
	}
	return nil
}

func (r *recordRepository) Update(ctx context.Context, rec *domain.Record) error {
	raw, err := json.Marshal(rec.Data)
	if err != nil {
		return err
	}

	_, err = r.db.exec(ctx).ExecContext(ctx,
		`UPDATE records SET data_payload = ?, model_version_id = ?, owner_id = ?, updated_at = ?
		 WHERE id = ? AND model_id = ? AND deleted_at IS NULL`,
		raw, rec.ModelVersionID, rec.OwnerID, rec.UpdatedAt, rec.ID, rec.ModelID)
	if err != nil {
		return mapError(err, rec.ModelName)
	}
	return nil
}

func (r *recordRepository) FindByID(ctx context.Context, modelID, id string) (*domain.Record, error) {
	row := r.db.exec(ctx).QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM records WHERE id = ? AND model_id = ? AND deleted_at IS NULL", id, modelID)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, mapError(err, "record")
	}
	return rec, nil
}

// FindByDataField matches records whose JSON data[field] equals value,
// used by relation resolution (spec.md §4.8.2) and by the system-model
// mirror lookup on data.id (spec.md §4.8.5).
func (r *recordRepository) FindByDataField(ctx context.Context, modelID, field string, value interface{}, limit int) ([]domain.Record, error) {
	if limit <= 0 {
		limit = 50
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.exec(ctx).QueryContext(ctx,
		"SELECT "+recordColumns+" FROM records WHERE model_id = ? AND deleted_at IS NULL AND JSON_EXTRACT(data_payload, ?) = CAST(? AS JSON) LIMIT ?",
		modelID, "$."+field, raw, limit)
	if err != nil {
		return nil, mapError(err, "record")
	}
	defer rows.Close()

	return collectRecords(rows)
}

func (r *recordRepository) List(ctx context.Context, modelID string, limit, skip int, ownerID *string) ([]domain.Record, int, error) {
	b := query.From("records").
		Select([]string{"id", "model_id", "model_name", "model_version_id", "data_payload", "owner_id", "created_at", "updated_at", "deleted_at"}).
		Where("`records`.`model_id` = ?", modelID).
		ExcludeDeleted()

	if ownerID != nil {
		b = b.Where("`records`.`owner_id` = ?", *ownerID)
	}
	b = b.OrderBy("created_at", "DESC").Limit(limit)

	result := b.Build()
	if skip > 0 {
		result.SQL += " OFFSET " + strconv.Itoa(skip)
	}

	rows, err := r.db.exec(ctx).QueryContext(ctx, result.SQL, result.Params...)
	if err != nil {
		return nil, 0, mapError(err, "record")
	}
	defer rows.Close()

	records, err := collectRecords(rows)
	if err != nil {
		return nil, 0, err
	}

	total, err := r.countWithOwner(ctx, modelID, ownerID)
	if err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

func (r *recordRepository) countWithOwner(ctx context.Context, modelID string, ownerID *string) (int, error) {
	q := "SELECT COUNT(*) FROM records WHERE model_id = ? AND deleted_at IS NULL"
	args := []interface{}{modelID}
	if ownerID != nil {
		q += " AND owner_id = ?"
		args = append(args, *ownerID)
	}

	var count int
	if err := r.db.exec(ctx).QueryRowContext(ctx, q, args...).Scan(&count); err != nil {
		return 0, mapError(err, "record")
	}
	return count, nil
}

func (r *recordRepository) ListForUniqueness(ctx context.Context, modelID string, cap int) ([]domain.Record, error) {
	rows, err := r.db.exec(ctx).QueryContext(ctx,
		"SELECT "+recordColumns+" FROM records WHERE model_id = ? AND deleted_at IS NULL LIMIT ?", modelID, cap)
	if err != nil {
		return nil, mapError(err, "record")
	}
	defer rows.Close()

	return collectRecords(rows)
}

func (r *recordRepository) Delete(ctx context.Context, modelID, id string) error {
	_, err := r.db.exec(ctx).ExecContext(ctx,
		"UPDATE records SET deleted_at = NOW() WHERE id = ? AND model_id = ? AND deleted_at IS NULL", id, modelID)
	if err != nil {
		return mapError(err, "record")
	}
	return nil
}

func (r *recordRepository) DeleteAllForModel(ctx context.Context, modelID string) error {
	_, err := r.db.exec(ctx).ExecContext(ctx, "DELETE FROM records WHERE model_id = ?", modelID)
	if err != nil {
		return mapError(err, "record")
	}
	return nil
}

func (r *recordRepository) CountForModel(ctx context.Context, modelID string) (int, error) {
	return r.countWithOwner(ctx, modelID, nil)
}

func (r *recordRepository) RecentForModel(ctx context.Context, modelID string, limit int) ([]domain.Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.exec(ctx).QueryContext(ctx,
		"SELECT "+recordColumns+" FROM records WHERE model_id = ? AND deleted_at IS NULL ORDER BY created_at DESC LIMIT ?", modelID, limit)
	if err != nil {
		return nil, mapError(err, "record")
	}
	defer rows.Close()

	return collectRecords(rows)
}

func collectRecords(rows *sql.Rows) ([]domain.Record, error) {
	var out []domain.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, mapError(err, "record")
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}
