// Package memory provides an in-memory store for local development and unit
// tests. It implements every domain repository behind one mutex, so the
// review lock's conditional write is atomic here as well. The store is always
// passed in explicitly; nothing looks it up through package state.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/oh-my-collab/performance-service/internal/domain"
)

type reviewKey struct {
	workspaceID string
	cycleID     string
	userID      string
}

// Store holds all engine state in process memory.
type Store struct {
	mu          sync.RWMutex
	events      map[string][]domain.ActivityEvent
	tasks       map[string][]domain.Task
	docs        map[string][]domain.Doc
	keyResults  map[string][]domain.KeyResult
	memberships map[string]map[string]domain.Membership
	cycles      map[string]map[string]domain.PerformanceCycle
	reviews     map[reviewKey]domain.PerformanceReview
	audits      []domain.AuditEntry
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		events:      make(map[string][]domain.ActivityEvent),
		tasks:       make(map[string][]domain.Task),
		docs:        make(map[string][]domain.Doc),
		keyResults:  make(map[string][]domain.KeyResult),
		memberships: make(map[string]map[string]domain.Membership),
		cycles:      make(map[string]map[string]domain.PerformanceCycle),
		reviews:     make(map[reviewKey]domain.PerformanceReview),
	}
}

// AddEvent appends a ledger event.
func (s *Store) AddEvent(event domain.ActivityEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	s.events[event.WorkspaceID] = append(s.events[event.WorkspaceID], event)
}

// AddTask stores a task record.
func (s *Store) AddTask(task domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	s.tasks[task.WorkspaceID] = append(s.tasks[task.WorkspaceID], task)
}

// AddDoc stores a doc record.
func (s *Store) AddDoc(doc domain.Doc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	s.docs[doc.WorkspaceID] = append(s.docs[doc.WorkspaceID], doc)
}

// AddKeyResult stores a key result record.
func (s *Store) AddKeyResult(kr domain.KeyResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if kr.ID == "" {
		kr.ID = uuid.NewString()
	}
	s.keyResults[kr.WorkspaceID] = append(s.keyResults[kr.WorkspaceID], kr)
}

// AddMembership stores a membership row.
func (s *Store) AddMembership(m domain.Membership) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.memberships[m.WorkspaceID] == nil {
		s.memberships[m.WorkspaceID] = make(map[string]domain.Membership)
	}
	s.memberships[m.WorkspaceID][m.UserID] = m
}

// ListEvents implements domain.LedgerRepository.
func (s *Store) ListEvents(_ context.Context, workspaceID string) ([]domain.ActivityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ActivityEvent(nil), s.events[workspaceID]...), nil
}

// ListTasks implements domain.LedgerRepository.
func (s *Store) ListTasks(_ context.Context, workspaceID string) ([]domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Task(nil), s.tasks[workspaceID]...), nil
}

// ListDocs implements domain.LedgerRepository.
func (s *Store) ListDocs(_ context.Context, workspaceID string) ([]domain.Doc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Doc(nil), s.docs[workspaceID]...), nil
}

// ListKeyResults implements domain.LedgerRepository.
func (s *Store) ListKeyResults(_ context.Context, workspaceID string) ([]domain.KeyResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.KeyResult(nil), s.keyResults[workspaceID]...), nil
}

// GetMembership implements domain.MembershipRepository.
func (s *Store) GetMembership(_ context.Context, workspaceID, userID string) (*domain.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memberships[workspaceID][userID]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

// ListMemberships implements domain.MembershipRepository.
func (s *Store) ListMemberships(_ context.Context, workspaceID string) ([]domain.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Membership, 0, len(s.memberships[workspaceID]))
	for _, m := range s.memberships[workspaceID] {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// UpdateRole implements domain.MembershipRepository.
func (s *Store) UpdateRole(_ context.Context, workspaceID, userID string, role domain.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memberships[workspaceID][userID]
	if !ok {
		return domain.Errorf(domain.KindNotFound, "membership %s/%s not found", workspaceID, userID)
	}
	m.Role = role
	s.memberships[workspaceID][userID] = m
	return nil
}

// CreateCycle implements domain.CycleRepository.
func (s *Store) CreateCycle(_ context.Context, cycle domain.PerformanceCycle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cycles[cycle.WorkspaceID] == nil {
		s.cycles[cycle.WorkspaceID] = make(map[string]domain.PerformanceCycle)
	}
	s.cycles[cycle.WorkspaceID][cycle.ID] = cycle
	return nil
}

// UpdateCycle implements domain.CycleRepository.
func (s *Store) UpdateCycle(_ context.Context, cycle domain.PerformanceCycle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cycles[cycle.WorkspaceID][cycle.ID]; !ok {
		return domain.Errorf(domain.KindNotFound, "cycle %s not found", cycle.ID)
	}
	s.cycles[cycle.WorkspaceID][cycle.ID] = cycle
	return nil
}

// GetCycle implements domain.CycleRepository.
func (s *Store) GetCycle(_ context.Context, workspaceID, cycleID string) (*domain.PerformanceCycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cycle, ok := s.cycles[workspaceID][cycleID]
	if !ok {
		return nil, nil
	}
	return &cycle, nil
}

// ListCycles implements domain.CycleRepository.
func (s *Store) ListCycles(_ context.Context, workspaceID string) ([]domain.PerformanceCycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.PerformanceCycle, 0, len(s.cycles[workspaceID]))
	for _, cycle := range s.cycles[workspaceID] {
		out = append(out, cycle)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodStart.After(out[j].PeriodStart) })
	return out, nil
}

// GetReview implements domain.ReviewRepository.
func (s *Store) GetReview(_ context.Context, workspaceID, cycleID, userID string) (*domain.PerformanceReview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	review, ok := s.reviews[reviewKey{workspaceID, cycleID, userID}]
	if !ok {
		return nil, nil
	}
	return &review, nil
}

// ListReviewsByCycle implements domain.ReviewRepository.
func (s *Store) ListReviewsByCycle(_ context.Context, workspaceID, cycleID string) ([]domain.PerformanceReview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.PerformanceReview, 0)
	for key, review := range s.reviews {
		if key.workspaceID == workspaceID && key.cycleID == cycleID {
			out = append(out, review)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// ApplyReviewChange implements domain.ReviewRepository. The merge, the lock
// check, and the lock stamp all happen under one mutex hold.
func (s *Store) ApplyReviewChange(_ context.Context, change domain.ReviewChange) (*domain.PerformanceReview, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := reviewKey{change.WorkspaceID, change.CycleID, change.UserID}
	review, ok := s.reviews[key]
	if !ok {
		review = domain.PerformanceReview{
			WorkspaceID: change.WorkspaceID,
			CycleID:     change.CycleID,
			UserID:      change.UserID,
			CreatedAt:   change.Now,
		}
	}
	if review.Locked() {
		frozen := review
		return &frozen, false, nil
	}

	if change.ManagerNote != nil {
		review.ManagerNote = nilIfEmpty(*change.ManagerNote)
	}
	if change.FinalRating != nil {
		review.FinalRating = nilIfEmpty(*change.FinalRating)
	}
	if change.Lock {
		lockedAt := change.Now
		review.LockedAt = &lockedAt
	}
	review.UpdatedBy = change.UpdatedBy
	review.UpdatedAt = change.Now

	s.reviews[key] = review
	stored := review
	return &stored, true, nil
}

// RecordAudit implements domain.AuditRepository.
func (s *Store) RecordAudit(_ context.Context, entry domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, entry)
	return nil
}

// AuditEntries returns a copy of the recorded audit log.
func (s *Store) AuditEntries() []domain.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.AuditEntry(nil), s.audits...)
}

func nilIfEmpty(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
