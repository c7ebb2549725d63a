package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Audit actions recorded by the engine.
const (
	AuditEvidenceViewed    = "evidence.viewed"
	AuditEvidenceExported  = "evidence.exported"
	AuditReviewUpserted    = "review.upserted"
	AuditReviewLocked      = "review.locked"
	AuditCycleCreated      = "cycle.created"
	AuditCycleUpdated      = "cycle.updated"
	AuditRoleChanged       = "membership.role_changed"
)

// Auditor appends write-once audit entries. Entries are observability records,
// not scoring state: callers log a failed append and carry on.
type Auditor struct {
	repo AuditRepository
}

// NewAuditor constructs an Auditor.
func NewAuditor(repo AuditRepository) *Auditor {
	return &Auditor{repo: repo}
}

// Record appends one entry. The payload is marshalled to JSON.
func (a *Auditor) Record(ctx context.Context, workspaceID, actorUserID, action string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return a.repo.RecordAudit(ctx, AuditEntry{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		ActorUserID: actorUserID,
		Action:      action,
		Payload:     body,
		OccurredAt:  time.Now().UTC(),
	})
}
