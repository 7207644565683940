package mysql

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/meridianhq/platform/internal/domain"
)

type auditRepository struct {
	db *DB
}

func (r *auditRepository) Append(ctx context.Context, a *domain.AuditLog) error {
	raw, err := json.Marshal(a.Details)
	if err != nil {
		return err
	}

	_, err = r.db.exec(ctx).ExecContext(ctx,
		`INSERT INTO audit_logs (id, user_id, action, model_id, model_name, record_id, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Action, a.ModelID, a.ModelName, a.RecordID, raw, a.CreatedAt)
	if err != nil {
		return mapError(err, "audit_log")
	}
	return nil
}

// Recent returns the most recent entries with sensitive fields redacted at
// read time (spec.md §4.9, §9: redaction happens on read so the raw data
// remains available for forensic inspection if ever needed directly).
func (r *auditRepository) Recent(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.exec(ctx).QueryContext(ctx,
		`SELECT id, user_id, action, model_id, model_name, record_id, details, created_at
		 FROM audit_logs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, mapError(err, "audit_log")
	}
	defer rows.Close()

	var out []domain.AuditLog
	for rows.Next() {
		var a domain.AuditLog
		var userID, modelID, modelName, recordID sql.NullString
		var rawDetails []byte

		if err := rows.Scan(&a.ID, &userID, &a.Action, &modelID, &modelName, &recordID, &rawDetails, &a.CreatedAt); err != nil {
			return nil, mapError(err, "audit_log")
		}

		if userID.Valid {
			a.UserID = &userID.String
		}
		if modelID.Valid {
			a.ModelID = &modelID.String
		}
		if modelName.Valid {
			a.ModelName = &modelName.String
		}
		if recordID.Valid {
			a.RecordID = &recordID.String
		}

		a.Details = domain.RedactDetails(rawDetails)
		out = append(out, a)
	}
	return out, rows.Err()
}
