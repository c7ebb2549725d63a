package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oh-my-collab/performance-service/internal/domain"
	"github.com/oh-my-collab/performance-service/internal/events"
	"github.com/oh-my-collab/performance-service/internal/observability"
)

// Repository provides Postgres-backed persistence for signal ledgers,
// memberships, cycles, reviews, and the audit outbox. Every operation scopes
// its transaction with set_config('app.workspace_id', ...) so row-level
// security policies see the caller's workspace.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) beginScoped(ctx context.Context, workspaceID string) (pgx.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, "SELECT set_config('app.workspace_id', $1, true)", workspaceID); err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	return tx, nil
}

// ListEvents returns every activity event in the workspace.
func (r *Repository) ListEvents(ctx context.Context, workspaceID string) ([]domain.ActivityEvent, error) {
	const query = `SELECT event_id, workspace_id, actor_user_id, event_type, created_at
        FROM activity_events WHERE workspace_id=$1`

	tx, err := r.beginScoped(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ActivityEvent, 0)
	for rows.Next() {
		var event domain.ActivityEvent
		if err := rows.Scan(&event.ID, &event.WorkspaceID, &event.ActorUserID, &event.Type, &event.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, tx.Commit(ctx)
}

// ListTasks returns every task in the workspace.
func (r *Repository) ListTasks(ctx context.Context, workspaceID string) ([]domain.Task, error) {
	const query = `SELECT task_id, workspace_id, assignee_id, status, difficulty, due_at, updated_at
        FROM tasks WHERE workspace_id=$1`

	tx, err := r.beginScoped(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Task, 0)
	for rows.Next() {
		var task domain.Task
		if err := rows.Scan(&task.ID, &task.WorkspaceID, &task.AssigneeID, &task.Status, &task.Difficulty, &task.DueAt, &task.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, tx.Commit(ctx)
}

// ListDocs returns every doc in the workspace.
func (r *Repository) ListDocs(ctx context.Context, workspaceID string) ([]domain.Doc, error) {
	const query = `SELECT doc_id, workspace_id, updated_by, updated_at
        FROM docs WHERE workspace_id=$1`

	tx, err := r.beginScoped(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Doc, 0)
	for rows.Next() {
		var doc domain.Doc
		if err := rows.Scan(&doc.ID, &doc.WorkspaceID, &doc.UpdatedBy, &doc.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, tx.Commit(ctx)
}

// ListKeyResults returns every key result in the workspace.
func (r *Repository) ListKeyResults(ctx context.Context, workspaceID string) ([]domain.KeyResult, error) {
	const query = `SELECT key_result_id, workspace_id, goal_id, updated_by, progress, updated_at
        FROM key_results WHERE workspace_id=$1`

	tx, err := r.beginScoped(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.KeyResult, 0)
	for rows.Next() {
		var kr domain.KeyResult
		if err := rows.Scan(&kr.ID, &kr.WorkspaceID, &kr.GoalID, &kr.UpdatedBy, &kr.Progress, &kr.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, kr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, tx.Commit(ctx)
}

// GetMembership returns the membership row, or nil when the user is not a member.
func (r *Repository) GetMembership(ctx context.Context, workspaceID, userID string) (*domain.Membership, error) {
	const query = `SELECT workspace_id, user_id, role, created_at
        FROM memberships WHERE workspace_id=$1 AND user_id=$2`

	tx, err := r.beginScoped(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var membership domain.Membership
	err = tx.QueryRow(ctx, query, workspaceID, userID).
		Scan(&membership.WorkspaceID, &membership.UserID, &membership.Role, &membership.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tx.Commit(ctx)
		}
		return nil, err
	}
	return &membership, tx.Commit(ctx)
}

// ListMemberships returns the workspace roster ordered by user ID.
func (r *Repository) ListMemberships(ctx context.Context, workspaceID string) ([]domain.Membership, error) {
	const query = `SELECT workspace_id, user_id, role, created_at
        FROM memberships WHERE workspace_id=$1 ORDER BY user_id`

	tx, err := r.beginScoped(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Membership, 0)
	for rows.Next() {
		var membership domain.Membership
		if err := rows.Scan(&membership.WorkspaceID, &membership.UserID, &membership.Role, &membership.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, membership)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, tx.Commit(ctx)
}

// UpdateRole sets a member's role.
func (r *Repository) UpdateRole(ctx context.Context, workspaceID, userID string, role domain.Role) error {
	tx, err := r.beginScoped(ctx, workspaceID)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE memberships SET role=$3 WHERE workspace_id=$1 AND user_id=$2`,
		workspaceID, userID, role)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.Errorf(domain.KindNotFound, "membership %s/%s not found", workspaceID, userID)
	}
	return tx.Commit(ctx)
}

// CreateCycle inserts a new cycle row.
func (r *Repository) CreateCycle(ctx context.Context, cycle domain.PerformanceCycle) error {
	const stmt = `INSERT INTO performance_cycles
        (cycle_id, workspace_id, title, period_start, period_end, status,
         weight_execution, weight_docs, weight_goals, weight_collaboration,
         created_by, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`

	tx, err := r.beginScoped(ctx, cycle.WorkspaceID)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, stmt,
		cycle.ID,
		cycle.WorkspaceID,
		cycle.Title,
		cycle.PeriodStart,
		cycle.PeriodEnd,
		cycle.Status,
		cycle.Weights.Execution,
		cycle.Weights.Docs,
		cycle.Weights.Goals,
		cycle.Weights.Collaboration,
		cycle.CreatedBy,
		cycle.CreatedAt,
		cycle.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// UpdateCycle replaces the mutable columns of an existing cycle.
func (r *Repository) UpdateCycle(ctx context.Context, cycle domain.PerformanceCycle) error {
	const stmt = `UPDATE performance_cycles SET
        title=$3, period_start=$4, period_end=$5, status=$6,
        weight_execution=$7, weight_docs=$8, weight_goals=$9, weight_collaboration=$10,
        updated_at=$11
        WHERE workspace_id=$1 AND cycle_id=$2`

	tx, err := r.beginScoped(ctx, cycle.WorkspaceID)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, stmt,
		cycle.WorkspaceID,
		cycle.ID,
		cycle.Title,
		cycle.PeriodStart,
		cycle.PeriodEnd,
		cycle.Status,
		cycle.Weights.Execution,
		cycle.Weights.Docs,
		cycle.Weights.Goals,
		cycle.Weights.Collaboration,
		cycle.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.Errorf(domain.KindNotFound, "cycle %s not found in workspace %s", cycle.ID, cycle.WorkspaceID)
	}
	return tx.Commit(ctx)
}

// GetCycle returns a cycle, or nil when it does not exist.
func (r *Repository) GetCycle(ctx context.Context, workspaceID, cycleID string) (*domain.PerformanceCycle, error) {
	const query = cycleColumns + ` WHERE workspace_id=$1 AND cycle_id=$2`

	tx, err := r.beginScoped(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	cycle, err := scanCycle(tx.QueryRow(ctx, query, workspaceID, cycleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tx.Commit(ctx)
		}
		return nil, err
	}
	return cycle, tx.Commit(ctx)
}

// ListCycles returns the workspace's cycles, newest period first.
func (r *Repository) ListCycles(ctx context.Context, workspaceID string) ([]domain.PerformanceCycle, error) {
	const query = cycleColumns + ` WHERE workspace_id=$1 ORDER BY period_start DESC, cycle_id`

	tx, err := r.beginScoped(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.PerformanceCycle, 0)
	for rows.Next() {
		cycle, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *cycle)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, tx.Commit(ctx)
}

const cycleColumns = `SELECT cycle_id, workspace_id, title, period_start, period_end, status,
        weight_execution, weight_docs, weight_goals, weight_collaboration,
        created_by, created_at, updated_at
        FROM performance_cycles`

func scanCycle(row pgx.Row) (*domain.PerformanceCycle, error) {
	var cycle domain.PerformanceCycle
	err := row.Scan(
		&cycle.ID,
		&cycle.WorkspaceID,
		&cycle.Title,
		&cycle.PeriodStart,
		&cycle.PeriodEnd,
		&cycle.Status,
		&cycle.Weights.Execution,
		&cycle.Weights.Docs,
		&cycle.Weights.Goals,
		&cycle.Weights.Collaboration,
		&cycle.CreatedBy,
		&cycle.CreatedAt,
		&cycle.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &cycle, nil
}

const reviewColumns = `SELECT workspace_id, cycle_id, user_id, manager_note, final_rating,
        locked_at, updated_by, created_at, updated_at
        FROM performance_reviews`

// GetReview returns a review row, or nil when none exists.
func (r *Repository) GetReview(ctx context.Context, workspaceID, cycleID, userID string) (*domain.PerformanceReview, error) {
	const query = reviewColumns + ` WHERE workspace_id=$1 AND cycle_id=$2 AND user_id=$3`

	tx, err := r.beginScoped(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	review, err := scanReview(tx.QueryRow(ctx, query, workspaceID, cycleID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tx.Commit(ctx)
		}
		return nil, err
	}
	return review, tx.Commit(ctx)
}

// ListReviewsByCycle returns a cycle's reviews ordered by user ID.
func (r *Repository) ListReviewsByCycle(ctx context.Context, workspaceID, cycleID string) ([]domain.PerformanceReview, error) {
	const query = reviewColumns + ` WHERE workspace_id=$1 AND cycle_id=$2 ORDER BY user_id`

	tx, err := r.beginScoped(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, query, workspaceID, cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.PerformanceReview, 0)
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *review)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, tx.Commit(ctx)
}

func scanReview(row pgx.Row) (*domain.PerformanceReview, error) {
	var review domain.PerformanceReview
	err := row.Scan(
		&review.WorkspaceID,
		&review.CycleID,
		&review.UserID,
		&review.ManagerNote,
		&review.FinalRating,
		&review.LockedAt,
		&review.UpdatedBy,
		&review.CreatedAt,
		&review.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &review, nil
}

// ApplyReviewChange merges a review change in one conditional statement. The
// ON CONFLICT update only fires while locked_at is still NULL, so losing the
// race against a lock surfaces as zero returned rows instead of a silent
// overwrite of a sealed review.
func (r *Repository) ApplyReviewChange(ctx context.Context, change domain.ReviewChange) (*domain.PerformanceReview, bool, error) {
	const stmt = `INSERT INTO performance_reviews
        (workspace_id, cycle_id, user_id, manager_note, final_rating, locked_at, updated_by, created_at, updated_at)
        VALUES ($1,$2,$3,
                CASE WHEN $4::boolean THEN $5 END,
                CASE WHEN $6::boolean THEN $7 END,
                CASE WHEN $8::boolean THEN $9::timestamptz END,
                $10,$9,$9)
        ON CONFLICT (workspace_id, cycle_id, user_id) DO UPDATE SET
                manager_note = CASE WHEN $4::boolean THEN $5 ELSE performance_reviews.manager_note END,
                final_rating = CASE WHEN $6::boolean THEN $7 ELSE performance_reviews.final_rating END,
                locked_at    = CASE WHEN $8::boolean THEN $9::timestamptz ELSE performance_reviews.locked_at END,
                updated_by   = $10,
                updated_at   = $9
        WHERE performance_reviews.locked_at IS NULL
        RETURNING workspace_id, cycle_id, user_id, manager_note, final_rating, locked_at, updated_by, created_at, updated_at`

	tx, err := r.beginScoped(ctx, change.WorkspaceID)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	review, err := scanReview(tx.QueryRow(ctx, stmt,
		change.WorkspaceID,
		change.CycleID,
		change.UserID,
		change.ManagerNote != nil,
		nullableText(change.ManagerNote),
		change.FinalRating != nil,
		nullableText(change.FinalRating),
		change.Lock,
		change.Now,
		change.UpdatedBy,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// The row exists and is already locked; hand back the stored state.
			if commitErr := tx.Commit(ctx); commitErr != nil {
				return nil, false, commitErr
			}
			stored, getErr := r.GetReview(ctx, change.WorkspaceID, change.CycleID, change.UserID)
			return stored, false, getErr
		}
		return nil, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	if change.Lock && review.LockedAt != nil {
		observability.RecordReviewLocked(*review.LockedAt)
	}
	return review, true, nil
}

// nullableText maps a provided-but-empty string to SQL NULL so an explicit
// empty value clears the stored field.
func nullableText(value *string) interface{} {
	if value == nil || *value == "" {
		return nil
	}
	return *value
}

// RecordAudit persists the audit row and stages its outbox event in a single
// transaction, so delivery can never race ahead of the table.
func (r *Repository) RecordAudit(ctx context.Context, entry domain.AuditEntry) error {
	tx, err := r.beginScoped(ctx, entry.WorkspaceID)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO audit_log (entry_id, workspace_id, actor_user_id, action, payload, occurred_at)
         VALUES ($1,$2,$3,$4,$5,$6)`,
		entry.ID,
		entry.WorkspaceID,
		entry.ActorUserID,
		entry.Action,
		entry.Payload,
		entry.OccurredAt,
	)
	if err != nil {
		return err
	}

	if err := insertOutbox(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(domain.AuditEntry) string
}

var eventCatalog = map[string]EventMetadata{
	"audit.recorded": {
		Topic:         "audit_events",
		SchemaSubject: "audit_events-value",
		PartitionKeyFn: func(e domain.AuditEntry) string {
			return e.WorkspaceID
		},
	},
}

func insertOutbox(ctx context.Context, tx pgx.Tx, entry domain.AuditEntry) error {
	const eventType = "audit.recorded"

	meta := eventCatalog[eventType]
	if meta.Topic == "" {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	body, err := json.Marshal(events.AuditRecorded{
		EntryID:     entry.ID,
		WorkspaceID: entry.WorkspaceID,
		ActorUserID: entry.ActorUserID,
		Action:      entry.Action,
		Payload:     entry.Payload,
		OccurredAt:  entry.OccurredAt,
	})
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO outbox (workspace_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		entry.WorkspaceID,
		"audit_entry",
		entry.ID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		meta.PartitionKeyFn(entry),
		body,
		fmt.Sprintf("%s:%s", entry.ID, eventType),
	)
	return err
}
