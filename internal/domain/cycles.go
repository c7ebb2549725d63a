package domain

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// weightSumTolerance bounds the accepted drift from a 100 total.
const weightSumTolerance = 0.001

// ValidateWeights checks the cycle weight invariant: each weight in [0,100]
// and the four summing to 100 within tolerance.
func ValidateWeights(w CycleWeights) error {
	for _, weight := range []float64{w.Execution, w.Docs, w.Goals, w.Collaboration} {
		if weight < 0 || weight > 100 {
			return Errorf(KindInvalidInput, "each weight must be between 0 and 100, got %g", weight)
		}
	}
	if math.Abs(w.Sum()-100) > weightSumTolerance {
		return Errorf(KindInvalidInput, "weights must sum to 100, got %g", w.Sum())
	}
	return nil
}

// CreateCycleInput is the payload for creating a performance cycle.
type CreateCycleInput struct {
	WorkspaceID string
	Title       string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Weights     CycleWeights
	Status      CycleStatus // empty defaults to draft
	CreatedBy   string
}

// UpdateCycleInput carries the partial fields of a cycle update. Nil fields are
// left unchanged.
type UpdateCycleInput struct {
	WorkspaceID string
	CycleID     string
	Title       *string
	PeriodStart *time.Time
	PeriodEnd   *time.Time
	Weights     *CycleWeights
	Status      *CycleStatus
}

// CycleService owns performance cycle records and their validation. Status
// transitions are unrestricted among draft/open/closed; callers own workflow
// discipline and the service only persists the requested status.
type CycleService struct {
	cycles CycleRepository
}

// NewCycleService constructs a CycleService.
func NewCycleService(cycles CycleRepository) *CycleService {
	return &CycleService{cycles: cycles}
}

// Create validates and persists a new cycle. All validation happens before the
// write; a rejected cycle leaves no partial state.
func (s *CycleService) Create(ctx context.Context, input CreateCycleInput) (*PerformanceCycle, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, Errorf(KindInvalidInput, "title is required")
	}
	if input.PeriodStart.IsZero() || input.PeriodEnd.IsZero() {
		return nil, Errorf(KindInvalidInput, "period_start and period_end are required")
	}
	if input.PeriodEnd.Before(input.PeriodStart) {
		return nil, Errorf(KindInvalidInput, "period_end must not precede period_start")
	}
	if err := ValidateWeights(input.Weights); err != nil {
		return nil, err
	}

	status := input.Status
	if status == "" {
		status = CycleStatusDraft
	}
	if !status.Valid() {
		return nil, Errorf(KindInvalidInput, "unknown cycle status %q", status)
	}

	now := time.Now().UTC()
	cycle := PerformanceCycle{
		ID:          uuid.NewString(),
		WorkspaceID: input.WorkspaceID,
		Title:       strings.TrimSpace(input.Title),
		PeriodStart: input.PeriodStart.UTC(),
		PeriodEnd:   input.PeriodEnd.UTC(),
		Status:      status,
		Weights:     input.Weights,
		CreatedBy:   input.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.cycles.CreateCycle(ctx, cycle); err != nil {
		return nil, err
	}
	return &cycle, nil
}

// Update merges the provided fields into an existing cycle and re-validates the
// result. Setting the current status again is accepted and changes nothing else.
func (s *CycleService) Update(ctx context.Context, input UpdateCycleInput) (*PerformanceCycle, error) {
	cycle, err := s.cycles.GetCycle(ctx, input.WorkspaceID, input.CycleID)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, Errorf(KindNotFound, "cycle %s not found in workspace %s", input.CycleID, input.WorkspaceID)
	}

	if input.Title != nil {
		if strings.TrimSpace(*input.Title) == "" {
			return nil, Errorf(KindInvalidInput, "title must not be empty")
		}
		cycle.Title = strings.TrimSpace(*input.Title)
	}
	if input.PeriodStart != nil {
		cycle.PeriodStart = input.PeriodStart.UTC()
	}
	if input.PeriodEnd != nil {
		cycle.PeriodEnd = input.PeriodEnd.UTC()
	}
	if cycle.PeriodEnd.Before(cycle.PeriodStart) {
		return nil, Errorf(KindInvalidInput, "period_end must not precede period_start")
	}
	if input.Weights != nil {
		if err := ValidateWeights(*input.Weights); err != nil {
			return nil, err
		}
		cycle.Weights = *input.Weights
	}
	if input.Status != nil {
		if !input.Status.Valid() {
			return nil, Errorf(KindInvalidInput, "unknown cycle status %q", *input.Status)
		}
		cycle.Status = *input.Status
	}
	cycle.UpdatedAt = time.Now().UTC()

	if err := s.cycles.UpdateCycle(ctx, *cycle); err != nil {
		return nil, err
	}
	return cycle, nil
}

// Get fetches a cycle by ID within a workspace.
func (s *CycleService) Get(ctx context.Context, workspaceID, cycleID string) (*PerformanceCycle, error) {
	cycle, err := s.cycles.GetCycle(ctx, workspaceID, cycleID)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, Errorf(KindNotFound, "cycle %s not found in workspace %s", cycleID, workspaceID)
	}
	return cycle, nil
}

// ListByWorkspace returns the workspace's cycles, newest period first.
func (s *CycleService) ListByWorkspace(ctx context.Context, workspaceID string) ([]PerformanceCycle, error) {
	cycles, err := s.cycles.ListCycles(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i].PeriodStart.After(cycles[j].PeriodStart) })
	return cycles, nil
}
