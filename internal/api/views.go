package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/oh-my-collab/performance-service/internal/domain"
)

// CreateCycleRequest is the payload for POST /v1/workspaces/{ws}/cycles.
type CreateCycleRequest struct {
	Title       string              `json:"title"`
	PeriodStart time.Time           `json:"periodStart"`
	PeriodEnd   time.Time           `json:"periodEnd"`
	Weights     domain.CycleWeights `json:"weights"`
	Status      string              `json:"status,omitempty"`
}

// UpdateCycleRequest carries a partial cycle update; absent fields are left
// unchanged.
type UpdateCycleRequest struct {
	Title       *string              `json:"title,omitempty"`
	PeriodStart *time.Time           `json:"periodStart,omitempty"`
	PeriodEnd   *time.Time           `json:"periodEnd,omitempty"`
	Weights     *domain.CycleWeights `json:"weights,omitempty"`
	Status      *string              `json:"status,omitempty"`
}

// UpsertReviewRequest is the review merge payload. A nil note or rating leaves
// the stored value alone; an explicit empty string clears it.
type UpsertReviewRequest struct {
	ManagerNote *string `json:"managerNote,omitempty"`
	FinalRating *string `json:"finalRating,omitempty"`
	Lock        bool    `json:"lock,omitempty"`
}

// UpdateMembershipRequest sets a member's role.
type UpdateMembershipRequest struct {
	Role string `json:"role"`
}

// CycleView exposes a performance cycle.
type CycleView struct {
	CycleID     string              `json:"cycleId"`
	WorkspaceID string              `json:"workspaceId"`
	Title       string              `json:"title"`
	PeriodStart time.Time           `json:"periodStart"`
	PeriodEnd   time.Time           `json:"periodEnd"`
	Status      string              `json:"status"`
	Weights     domain.CycleWeights `json:"weights"`
	CreatedBy   string              `json:"createdBy"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

// ListCyclesResponse packages list results.
type ListCyclesResponse struct {
	Items []CycleView `json:"items"`
}

// EvidencePackView is the derived pack section of an evidence read.
type EvidencePackView struct {
	PeriodStart time.Time                `json:"periodStart"`
	PeriodEnd   time.Time                `json:"periodEnd"`
	Raw         domain.RawSignals        `json:"raw"`
	Normalized  domain.NormalizedSignals `json:"normalized"`
	Highlights  []string                 `json:"highlights"`
}

// EvidenceResponse merges the recomputed pack with the stored review fields so
// the preview score is never stale, even after lock.
type EvidenceResponse struct {
	EvidencePack EvidencePackView `json:"evidencePack"`
	ScorePreview float64          `json:"scorePreview"`
	ManagerNote  *string          `json:"managerNote"`
	FinalRating  *string          `json:"finalRating"`
	LockedAt     *time.Time       `json:"lockedAt"`
}

// ExportRowView is the per-member export payload consumed by the external
// collaborator; its field set is a compatibility contract.
type ExportRowView struct {
	UserID           string     `json:"userId"`
	ScorePreview     float64    `json:"scorePreview"`
	FinalRating      *string    `json:"finalRating"`
	ManagerNote      *string    `json:"managerNote"`
	LockedAt         *time.Time `json:"lockedAt"`
	ExecutionRaw     int        `json:"executionRaw"`
	DocsRaw          int        `json:"docsRaw"`
	GoalsRaw         int        `json:"goalsRaw"`
	CollaborationRaw int        `json:"collaborationRaw"`
}

// ExportResponse packages an export run.
type ExportResponse struct {
	CycleID string          `json:"cycleId"`
	Items   []ExportRowView `json:"items"`
}

// ReviewView exposes the stored review row.
type ReviewView struct {
	WorkspaceID string     `json:"workspaceId"`
	CycleID     string     `json:"cycleId"`
	UserID      string     `json:"userId"`
	ManagerNote *string    `json:"managerNote"`
	FinalRating *string    `json:"finalRating"`
	LockedAt    *time.Time `json:"lockedAt"`
	UpdatedBy   string     `json:"updatedBy,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// UpsertReviewResponse wraps the merged review.
type UpsertReviewResponse struct {
	Review ReviewView `json:"review"`
}

// MembershipView exposes one roster entry.
type MembershipView struct {
	WorkspaceID string    `json:"workspaceId"`
	UserID      string    `json:"userId"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ListMembershipsResponse packages the roster.
type ListMembershipsResponse struct {
	Items []MembershipView `json:"items"`
}

// MemberScoreView is one dashboard entry.
type MemberScoreView struct {
	UserID     string                   `json:"userId"`
	Raw        domain.RawSignals        `json:"raw"`
	Normalized domain.NormalizedSignals `json:"normalized"`
	Score      float64                  `json:"score"`
}

// WorkspaceSummaryView carries the dashboard headline numbers.
type WorkspaceSummaryView struct {
	WeeklyDoneTaskCount int     `json:"weeklyDoneTaskCount"`
	GoalAchievementRate float64 `json:"goalAchievementRate"`
	UpcomingDueCount    int     `json:"upcomingDueCount"`
}

// InsightsResponse is the workspace dashboard payload.
type InsightsResponse struct {
	WorkspaceID string               `json:"workspaceId"`
	GeneratedAt time.Time            `json:"generatedAt"`
	Members     []MemberScoreView    `json:"members"`
	Summary     WorkspaceSummaryView `json:"summary"`
}

func toCycleView(cycle domain.PerformanceCycle) CycleView {
	return CycleView{
		CycleID:     cycle.ID,
		WorkspaceID: cycle.WorkspaceID,
		Title:       cycle.Title,
		PeriodStart: cycle.PeriodStart,
		PeriodEnd:   cycle.PeriodEnd,
		Status:      string(cycle.Status),
		Weights:     cycle.Weights,
		CreatedBy:   cycle.CreatedBy,
		CreatedAt:   cycle.CreatedAt,
		UpdatedAt:   cycle.UpdatedAt,
	}
}

func toEvidenceView(evidence domain.Evidence, review domain.PerformanceReview) EvidenceResponse {
	return EvidenceResponse{
		EvidencePack: EvidencePackView{
			PeriodStart: evidence.Pack.PeriodStart,
			PeriodEnd:   evidence.Pack.PeriodEnd,
			Raw:         evidence.Pack.Raw,
			Normalized:  evidence.Pack.Normalized,
			Highlights:  evidence.Pack.Highlights,
		},
		ScorePreview: evidence.ScorePreview,
		ManagerNote:  review.ManagerNote,
		FinalRating:  review.FinalRating,
		LockedAt:     review.LockedAt,
	}
}

func toExportRowView(row domain.ExportRow) ExportRowView {
	return ExportRowView{
		UserID:           row.UserID,
		ScorePreview:     row.ScorePreview,
		FinalRating:      row.FinalRating,
		ManagerNote:      row.ManagerNote,
		LockedAt:         row.LockedAt,
		ExecutionRaw:     row.Raw.Execution,
		DocsRaw:          row.Raw.Docs,
		GoalsRaw:         row.Raw.Goals,
		CollaborationRaw: row.Raw.Collaboration,
	}
}

func toReviewView(review domain.PerformanceReview) ReviewView {
	return ReviewView{
		WorkspaceID: review.WorkspaceID,
		CycleID:     review.CycleID,
		UserID:      review.UserID,
		ManagerNote: review.ManagerNote,
		FinalRating: review.FinalRating,
		LockedAt:    review.LockedAt,
		UpdatedBy:   review.UpdatedBy,
		UpdatedAt:   review.UpdatedAt,
	}
}

func toMembershipView(membership domain.Membership) MembershipView {
	return MembershipView{
		WorkspaceID: membership.WorkspaceID,
		UserID:      membership.UserID,
		Role:        string(membership.Role),
		CreatedAt:   membership.CreatedAt,
	}
}

func toInsightsView(insights domain.WorkspaceInsights) InsightsResponse {
	members := make([]MemberScoreView, 0, len(insights.Members))
	for _, member := range insights.Members {
		members = append(members, MemberScoreView{
			UserID:     member.UserID,
			Raw:        member.Raw,
			Normalized: member.Normalized,
			Score:      member.Score,
		})
	}
	return InsightsResponse{
		WorkspaceID: insights.WorkspaceID,
		GeneratedAt: insights.GeneratedAt,
		Members:     members,
		Summary: WorkspaceSummaryView{
			WeeklyDoneTaskCount: insights.Summary.WeeklyDoneTaskCount,
			GoalAchievementRate: insights.Summary.GoalAchievementRate,
			UpcomingDueCount:    insights.Summary.UpcomingDueCount,
		},
	}
}

// writeDomainError maps kind-tagged domain errors onto stable HTTP codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch domain.KindOf(err) {
	case domain.KindInvalidInput:
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case domain.KindUnauthorized:
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	case domain.KindForbidden:
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case domain.KindNotFound:
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case domain.KindInvalidRoleChange:
		writeError(w, http.StatusConflict, "invalid_role_change", err.Error())
	case domain.KindReviewLocked:
		writeError(w, http.StatusConflict, "review_locked", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
