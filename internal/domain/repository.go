package domain

import (
	"context"
	"time"
)

// LedgerRepository reads the activity ledger and the task/doc/goal records the
// scoring engine aggregates. All reads are workspace-scoped snapshots; the
// engine never writes through this interface.
type LedgerRepository interface {
	ListEvents(ctx context.Context, workspaceID string) ([]ActivityEvent, error)
	ListTasks(ctx context.Context, workspaceID string) ([]Task, error)
	ListDocs(ctx context.Context, workspaceID string) ([]Doc, error)
	ListKeyResults(ctx context.Context, workspaceID string) ([]KeyResult, error)
}

// MembershipRepository manages workspace membership rows.
type MembershipRepository interface {
	GetMembership(ctx context.Context, workspaceID, userID string) (*Membership, error)
	ListMemberships(ctx context.Context, workspaceID string) ([]Membership, error)
	UpdateRole(ctx context.Context, workspaceID, userID string, role Role) error
}

// CycleRepository persists performance cycles.
type CycleRepository interface {
	CreateCycle(ctx context.Context, cycle PerformanceCycle) error
	UpdateCycle(ctx context.Context, cycle PerformanceCycle) error
	GetCycle(ctx context.Context, workspaceID, cycleID string) (*PerformanceCycle, error)
	ListCycles(ctx context.Context, workspaceID string) ([]PerformanceCycle, error)
}

// ReviewChange is the merge payload for a review upsert. Nil pointer fields are
// left unchanged; a pointer to the empty string clears the stored value.
type ReviewChange struct {
	WorkspaceID string
	CycleID     string
	UserID      string
	ManagerNote *string
	FinalRating *string
	Lock        bool
	UpdatedBy   string
	Now         time.Time
}

// ReviewRepository persists performance reviews.
//
// ApplyReviewChange must be a single atomic conditional write: it merges the
// change into the row (creating it when absent) only while the stored
// locked_at is null, and reports applied=false when the row was already
// locked. The returned review is the stored row after the attempt either way.
type ReviewRepository interface {
	GetReview(ctx context.Context, workspaceID, cycleID, userID string) (*PerformanceReview, error)
	ListReviewsByCycle(ctx context.Context, workspaceID, cycleID string) ([]PerformanceReview, error)
	ApplyReviewChange(ctx context.Context, change ReviewChange) (*PerformanceReview, bool, error)
}

// AuditRepository appends audit entries. Implementations also stage the entry
// for downstream delivery (outbox) in the same transaction.
type AuditRepository interface {
	RecordAudit(ctx context.Context, entry AuditEntry) error
}
