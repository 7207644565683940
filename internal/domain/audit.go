package domain

import (
	"encoding/json"
	"time"
)

// AuditLog is an append-only event record (spec.md §3, §4.9).
type AuditLog struct {
	ID        string
	UserID    *string
	Action    string
	ModelID   *string
	ModelName *string
	RecordID  *string
	Details   json.RawMessage
	CreatedAt time.Time
}

// Audit action names used by components across the system.
const (
	AuditModelPublishFileFailed = "MODEL_PUBLISH_FILE_FAILED"
	AuditModelRevert            = "MODEL_REVERT"
	AuditSystemUserCreate       = "SYSTEM_USER_CREATE"
	AuditSystemRoleCreate       = "SYSTEM_ROLE_CREATE"
	AuditSystemUserUpdate       = "SYSTEM_USER_UPDATE"
	AuditSystemRoleUpdate       = "SYSTEM_ROLE_UPDATE"
	AuditSystemUserDelete       = "SYSTEM_USER_DELETE"
	AuditSystemRoleDelete       = "SYSTEM_ROLE_DELETE"
	AuditRefreshTokenRotated    = "REFRESH_TOKEN_ROTATED"
	AuditRecordCreate           = "RECORD_CREATE"
	AuditRecordUpdate           = "RECORD_UPDATE"
	AuditRecordDelete           = "RECORD_DELETE"
)

// sensitiveKeys is the fixed redaction set from spec.md §4.9.
var sensitiveKeys = map[string]bool{
	"password": true, "pwd": true, "token": true, "refreshToken": true,
	"tokenHash": true, "ssn": true, "creditCard": true, "cvv": true,
	"ipAddress": true, "authorization": true, "headers": true, "body": true,
	"payload": true, "email": true,
}

const maxUnredactedStringLength = 1000

const redactedPlaceholder = "[REDACTED]"

// RedactDetails returns a deep copy of details with sensitive keys and
// over-long strings replaced, recursively over nested objects and arrays
// (spec.md §4.9, invariant 9 in §8). Redaction is done at read time, not
// write time (spec.md §9), so the stored raw details are never mutated.
func RedactDetails(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	redacted := redactValue(v)
	out, err := json.Marshal(redacted)
	if err != nil {
		return raw
	}
	return out
}

func redactValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			if sensitiveKeys[k] {
				out[k] = redactedPlaceholder
				continue
			}
			out[k] = redactValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = redactValue(val)
		}
		return out
	case string:
		if len(t) > maxUnredactedStringLength {
			return redactedPlaceholder
		}
		return t
	default:
		return v
	}
}
