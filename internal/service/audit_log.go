package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/meridianhq/platform/internal/domain"
	"github.com/meridianhq/platform/internal/storage"
	"github.com/meridianhq/platform/pkg/utils"
)

// AuditLog is the append-only event stream (spec.md §4.9). Readers get a
// redacted view; writers always see raw structured details.
type AuditLog struct {
	repo storage.AuditRepository
}

func NewAuditLog(repo storage.AuditRepository) *AuditLog {
	return &AuditLog{repo: repo}
}

// Append records an event. Failures are logged rather than propagated to
// the caller's mutation path when invoked as a fire-and-forget side effect;
// callers that need the audit write in the same transaction as a data
// mutation should use AppendTx instead.
func (a *AuditLog) Append(ctx context.Context, userID *string, action string, modelID, modelName, recordID *string, details interface{}) {
	if err := a.AppendTx(ctx, userID, action, modelID, modelName, recordID, details); err != nil {
		log.Printf("audit log append failed: %v", err)
	}
}

// AppendTx records an event and returns any storage error, letting the
// caller fold the audit write into its own transaction (spec.md §4.8.6:
// "all mutations emit an audit entry in the same transaction").
func (a *AuditLog) AppendTx(ctx context.Context, userID *string, action string, modelID, modelName, recordID *string, details interface{}) error {
	raw, err := json.Marshal(details)
	if err != nil {
		raw = json.RawMessage("{}")
	}

	entry := &domain.AuditLog{
		ID:        utils.GenerateID(),
		UserID:    userID,
		Action:    action,
		ModelID:   modelID,
		ModelName: modelName,
		RecordID:  recordID,
		Details:   raw,
		CreatedAt: time.Now(),
	}
	return a.repo.Append(ctx, entry)
}

// Recent returns redacted entries, clamping the requested count to [1,100]
// (spec.md §4.9). Redaction happens here, at read time, over whatever details
// the repository returns; the MySQL repository has already redacted them, so
// this is a second pass.
func (a *AuditLog) Recent(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}
	entries, err := a.repo.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Details = domain.RedactDetails(entries[i].Details)
	}
	return entries, nil
}
