package domain

import "time"

// Role is a workspace membership role. The owner role is assigned exactly once,
// to the workspace creator, and never changes afterwards.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
)

// Valid reports whether the status is one of the known values.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusDone:
		return true
	}
	return false
}

// CycleStatus is the lifecycle state of a performance cycle. Transitions are
// unrestricted among the three values; only authorization gates them.
type CycleStatus string

const (
	CycleStatusDraft  CycleStatus = "draft"
	CycleStatusOpen   CycleStatus = "open"
	CycleStatusClosed CycleStatus = "closed"
)

// Valid reports whether the status is one of the known values.
func (s CycleStatus) Valid() bool {
	switch s {
	case CycleStatusDraft, CycleStatusOpen, CycleStatusClosed:
		return true
	}
	return false
}

// EventType classifies entries in the workspace activity ledger.
type EventType string

const (
	EventTaskCompleted   EventType = "task_completed"
	EventDocUpdated      EventType = "doc_updated"
	EventGoalUpdated     EventType = "goal_updated"
	EventComment         EventType = "comment"
	EventReview          EventType = "review"
	EventBlockerResolved EventType = "blocker_resolved"
)

// Valid reports whether the event type is one of the known values.
func (t EventType) Valid() bool {
	switch t {
	case EventTaskCompleted, EventDocUpdated, EventGoalUpdated, EventComment, EventReview, EventBlockerResolved:
		return true
	}
	return false
}

// CountsAsCollaboration reports whether the event contributes to the
// collaboration signal.
func (t EventType) CountsAsCollaboration() bool {
	switch t {
	case EventComment, EventReview, EventBlockerResolved:
		return true
	}
	return false
}

// ActivityEvent is an immutable ledger entry appended by the collaboration product.
type ActivityEvent struct {
	ID          string
	WorkspaceID string
	ActorUserID string
	Type        EventType
	CreatedAt   time.Time
}

// Task is read from the collaboration store; this service never mutates it.
type Task struct {
	ID          string
	WorkspaceID string
	AssigneeID  string
	Status      TaskStatus
	Difficulty  int
	DueAt       *time.Time
	UpdatedAt   time.Time
}

// Doc is read from the collaboration store.
type Doc struct {
	ID          string
	WorkspaceID string
	UpdatedBy   string
	UpdatedAt   time.Time
}

// KeyResult is a measurable unit under a goal, progress in [0,100].
type KeyResult struct {
	ID          string
	WorkspaceID string
	GoalID      string
	UpdatedBy   string
	Progress    float64
	UpdatedAt   time.Time
}

// Membership binds a user to a workspace with a role.
type Membership struct {
	WorkspaceID string
	UserID      string
	Role        Role
	CreatedAt   time.Time
}

// CycleWeights is the per-cycle weight configuration. The four weights must sum
// to 100 within a 0.001 tolerance, each in [0,100].
type CycleWeights struct {
	Execution     float64 `json:"execution"`
	Docs          float64 `json:"docs"`
	Goals         float64 `json:"goals"`
	Collaboration float64 `json:"collaboration"`
}

// Sum returns the total of the four weights.
func (w CycleWeights) Sum() float64 {
	return w.Execution + w.Docs + w.Goals + w.Collaboration
}

// PerformanceCycle is a named evaluation period with period bounds, a status,
// and a weight configuration.
type PerformanceCycle struct {
	ID          string
	WorkspaceID string
	Title       string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Status      CycleStatus
	Weights     CycleWeights
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ContainsInstant reports whether ts falls within the cycle period, bounds inclusive.
func (c PerformanceCycle) ContainsInstant(ts time.Time) bool {
	return !ts.Before(c.PeriodStart) && !ts.After(c.PeriodEnd)
}

// PerformanceReview holds the manager-entered fields for one member in one
// cycle. Once LockedAt is set the row is frozen for the normal write path.
type PerformanceReview struct {
	WorkspaceID string
	CycleID     string
	UserID      string
	ManagerNote *string
	FinalRating *string
	LockedAt    *time.Time
	UpdatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Locked reports whether the review has been finalized.
func (r PerformanceReview) Locked() bool {
	return r.LockedAt != nil
}

// RawSignals carries the four raw activity counters for one member.
// Execution is a difficulty sum; the rest are counts.
type RawSignals struct {
	Execution     int `json:"execution"`
	Docs          int `json:"docs"`
	Goals         int `json:"goals"`
	Collaboration int `json:"collaboration"`
}

// IsZero reports whether no signal registered any activity.
func (s RawSignals) IsZero() bool {
	return s.Execution == 0 && s.Docs == 0 && s.Goals == 0 && s.Collaboration == 0
}

// NormalizedSignals carries the normalized [0,1] counterparts of RawSignals.
type NormalizedSignals struct {
	Execution     float64 `json:"execution"`
	Docs          float64 `json:"docs"`
	Goals         float64 `json:"goals"`
	Collaboration float64 `json:"collaboration"`
}

// EvidencePack is the derived, never-persisted summary of one member's activity
// within one cycle's period. It is recomputed from the ledger on every read.
type EvidencePack struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	Raw         RawSignals
	Normalized  NormalizedSignals
	Highlights  []string
}

// AuditEntry is a write-once observability record of who read or changed what.
type AuditEntry struct {
	ID          string
	WorkspaceID string
	ActorUserID string
	Action      string
	Payload     []byte
	OccurredAt  time.Time
}
