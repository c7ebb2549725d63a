package domain

import (
	"context"
	"time"
)

// UpsertReviewInput is the merge payload for a review write. Nil note/rating
// pointers leave the stored value unchanged; empty strings clear it.
type UpsertReviewInput struct {
	WorkspaceID string
	CycleID     string
	UserID      string
	ManagerNote *string
	FinalRating *string
	Lock        bool
	UpdatedBy   string
}

// ReviewService owns the manager-entered review fields and the one-way lock.
//
// The lock check is not check-then-act: the repository's Apply is a single
// conditional write that only succeeds while the stored row is unlocked, so
// two concurrent finalizations cannot both win.
type ReviewService struct {
	reviews ReviewRepository
	cycles  CycleRepository
}

// NewReviewService constructs a ReviewService.
func NewReviewService(reviews ReviewRepository, cycles CycleRepository) *ReviewService {
	return &ReviewService{reviews: reviews, cycles: cycles}
}

// Upsert merges the provided fields into the (cycle, user) review row, creating
// it on first write. When Lock is set, lockedAt is stamped as part of the same
// write. A locked row rejects every upsert, including note-only ones.
func (s *ReviewService) Upsert(ctx context.Context, input UpsertReviewInput) (*PerformanceReview, error) {
	cycle, err := s.cycles.GetCycle(ctx, input.WorkspaceID, input.CycleID)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, Errorf(KindNotFound, "cycle %s not found in workspace %s", input.CycleID, input.WorkspaceID)
	}

	review, applied, err := s.reviews.ApplyReviewChange(ctx, ReviewChange{
		WorkspaceID: input.WorkspaceID,
		CycleID:     input.CycleID,
		UserID:      input.UserID,
		ManagerNote: input.ManagerNote,
		FinalRating: input.FinalRating,
		Lock:        input.Lock,
		UpdatedBy:   input.UpdatedBy,
		Now:         time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, Errorf(KindReviewLocked, "review for user %s in cycle %s is locked", input.UserID, input.CycleID)
	}
	return review, nil
}

// Get returns the stored review row, or an empty unlocked row when none exists
// yet. Reads always succeed regardless of lock state.
func (s *ReviewService) Get(ctx context.Context, workspaceID, cycleID, userID string) (*PerformanceReview, error) {
	review, err := s.reviews.GetReview(ctx, workspaceID, cycleID, userID)
	if err != nil {
		return nil, err
	}
	if review == nil {
		return &PerformanceReview{WorkspaceID: workspaceID, CycleID: cycleID, UserID: userID}, nil
	}
	return review, nil
}
