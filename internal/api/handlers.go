// Package api exposes HTTP handlers for the performance service.
package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/oh-my-collab/performance-service/internal/auth"
	"github.com/oh-my-collab/performance-service/internal/cache"
	"github.com/oh-my-collab/performance-service/internal/domain"
	"github.com/oh-my-collab/performance-service/internal/observability"
)

// Handler coordinates HTTP requests with the domain services.
type Handler struct {
	scorer   *domain.Scorer
	evidence *domain.EvidenceBuilder
	cycles   *domain.CycleService
	reviews  *domain.ReviewService
	roles    *domain.RoleGuard
	auditor  *domain.Auditor
	insights cache.InsightsCache
	logger   *zap.Logger
}

// NewHandler builds a Handler.
func NewHandler(
	scorer *domain.Scorer,
	evidence *domain.EvidenceBuilder,
	cycles *domain.CycleService,
	reviews *domain.ReviewService,
	roles *domain.RoleGuard,
	auditor *domain.Auditor,
	insights cache.InsightsCache,
	logger *zap.Logger,
) *Handler {
	if insights == nil {
		insights = cache.NoopCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		scorer:   scorer,
		evidence: evidence,
		cycles:   cycles,
		reviews:  reviews,
		roles:    roles,
		auditor:  auditor,
		insights: insights,
		logger:   logger,
	}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/workspaces/", h.workspaces)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// workspaces dispatches /v1/workspaces/{ws}/... by path segments.
func (h *Handler) workspaces(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/workspaces/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) < 2 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "not_found", "unknown route")
		return
	}
	workspaceID := parts[0]

	switch parts[1] {
	case "insights":
		if len(parts) == 2 && r.Method == http.MethodGet {
			h.getInsights(w, r, workspaceID)
			return
		}
	case "cycles":
		switch len(parts) {
		case 2:
			switch r.Method {
			case http.MethodPost:
				h.createCycle(w, r, workspaceID)
			case http.MethodGet:
				h.listCycles(w, r, workspaceID)
			default:
				writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
			}
			return
		case 3:
			switch r.Method {
			case http.MethodGet:
				h.getCycle(w, r, workspaceID, parts[2])
			case http.MethodPatch:
				h.updateCycle(w, r, workspaceID, parts[2])
			default:
				writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
			}
			return
		case 4:
			switch parts[3] {
			case "evidence":
				if r.Method == http.MethodGet {
					h.getEvidence(w, r, workspaceID, parts[2])
					return
				}
			case "export":
				if r.Method == http.MethodGet {
					h.exportCycle(w, r, workspaceID, parts[2])
					return
				}
			}
		case 5:
			if parts[3] == "reviews" {
				switch r.Method {
				case http.MethodGet:
					h.getReview(w, r, workspaceID, parts[2], parts[4])
				case http.MethodPut:
					h.upsertReview(w, r, workspaceID, parts[2], parts[4])
				default:
					writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
				}
				return
			}
		}
	case "memberships":
		switch len(parts) {
		case 2:
			if r.Method == http.MethodGet {
				h.listMemberships(w, r, workspaceID)
				return
			}
		case 3:
			if r.Method == http.MethodPatch {
				h.updateMembershipRole(w, r, workspaceID, parts[2])
				return
			}
		}
	}

	writeError(w, http.StatusNotFound, "not_found", "unknown route")
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request, scope string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(scope) && !claims.HasScope(auth.ScopePerformanceWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return nil, false
	}
	return claims, true
}

func (h *Handler) getInsights(w http.ResponseWriter, r *http.Request, workspaceID string) {
	claims, ok := h.caller(w, r, auth.ScopePerformanceRead)
	if !ok {
		return
	}
	if _, err := h.roles.RequireMember(r.Context(), workspaceID, claims.Subject); err != nil {
		writeDomainError(w, err)
		return
	}

	// ?fresh=1 skips the snapshot and recomputes from the ledger.
	if r.URL.Query().Get("fresh") != "1" {
		if cached, err := h.insights.Get(r.Context(), workspaceID); err != nil {
			h.logger.Warn("insights cache read failed", zap.String("workspace_id", workspaceID), zap.Error(err))
		} else if cached != nil {
			writeJSON(w, http.StatusOK, toInsightsView(*cached))
			return
		}
	}

	insights, err := h.scorer.WorkspaceInsights(r.Context(), workspaceID, time.Time{})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.insights.Set(r.Context(), *insights); err != nil {
		h.logger.Warn("insights cache write failed", zap.String("workspace_id", workspaceID), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, toInsightsView(*insights))
}

func (h *Handler) getEvidence(w http.ResponseWriter, r *http.Request, workspaceID, cycleID string) {
	claims, ok := h.caller(w, r, auth.ScopePerformanceRead)
	if !ok {
		return
	}

	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing user_id parameter")
		return
	}

	if _, err := h.roles.RequireAdmin(r.Context(), workspaceID, claims.Subject); err != nil {
		writeDomainError(w, err)
		return
	}

	evidence, err := h.evidence.Build(r.Context(), workspaceID, cycleID, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	review, err := h.reviews.Get(r.Context(), workspaceID, cycleID, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	observability.RecordEvidenceBuilt(time.Now().UTC())

	h.audit(r, workspaceID, claims.Subject, domain.AuditEvidenceViewed, map[string]string{
		"cycle_id": cycleID,
		"user_id":  userID,
	})

	writeJSON(w, http.StatusOK, toEvidenceView(*evidence, *review))
}

func (h *Handler) exportCycle(w http.ResponseWriter, r *http.Request, workspaceID, cycleID string) {
	claims, ok := h.caller(w, r, auth.ScopePerformanceRead)
	if !ok {
		return
	}
	if _, err := h.roles.RequireAdmin(r.Context(), workspaceID, claims.Subject); err != nil {
		writeDomainError(w, err)
		return
	}

	rows, err := h.evidence.ExportCycle(r.Context(), workspaceID, cycleID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	h.audit(r, workspaceID, claims.Subject, domain.AuditEvidenceExported, map[string]string{
		"cycle_id": cycleID,
	})

	items := make([]ExportRowView, 0, len(rows))
	for _, row := range rows {
		items = append(items, toExportRowView(row))
	}
	writeJSON(w, http.StatusOK, ExportResponse{CycleID: cycleID, Items: items})
}

func (h *Handler) createCycle(w http.ResponseWriter, r *http.Request, workspaceID string) {
	claims, ok := h.caller(w, r, auth.ScopePerformanceWrite)
	if !ok {
		return
	}
	if _, err := h.roles.RequireAdmin(r.Context(), workspaceID, claims.Subject); err != nil {
		writeDomainError(w, err)
		return
	}

	var req CreateCycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	cycle, err := h.cycles.Create(r.Context(), domain.CreateCycleInput{
		WorkspaceID: workspaceID,
		Title:       req.Title,
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
		Weights:     req.Weights,
		Status:      domain.CycleStatus(req.Status),
		CreatedBy:   claims.Subject,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	h.audit(r, workspaceID, claims.Subject, domain.AuditCycleCreated, map[string]string{
		"cycle_id": cycle.ID,
		"title":    cycle.Title,
	})

	writeJSON(w, http.StatusCreated, toCycleView(*cycle))
}

func (h *Handler) updateCycle(w http.ResponseWriter, r *http.Request, workspaceID, cycleID string) {
	claims, ok := h.caller(w, r, auth.ScopePerformanceWrite)
	if !ok {
		return
	}
	if _, err := h.roles.RequireAdmin(r.Context(), workspaceID, claims.Subject); err != nil {
		writeDomainError(w, err)
		return
	}

	var req UpdateCycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	var status *domain.CycleStatus
	if req.Status != nil {
		s := domain.CycleStatus(*req.Status)
		status = &s
	}

	cycle, err := h.cycles.Update(r.Context(), domain.UpdateCycleInput{
		WorkspaceID: workspaceID,
		CycleID:     cycleID,
		Title:       req.Title,
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
		Weights:     req.Weights,
		Status:      status,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	h.audit(r, workspaceID, claims.Subject, domain.AuditCycleUpdated, map[string]string{
		"cycle_id": cycle.ID,
	})

	writeJSON(w, http.StatusOK, toCycleView(*cycle))
}

func (h *Handler) getCycle(w http.ResponseWriter, r *http.Request, workspaceID, cycleID string) {
	claims, ok := h.caller(w, r, auth.ScopePerformanceRead)
	if !ok {
		return
	}
	if _, err := h.roles.RequireMember(r.Context(), workspaceID, claims.Subject); err != nil {
		writeDomainError(w, err)
		return
	}

	cycle, err := h.cycles.Get(r.Context(), workspaceID, cycleID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCycleView(*cycle))
}

func (h *Handler) listCycles(w http.ResponseWriter, r *http.Request, workspaceID string) {
	claims, ok := h.caller(w, r, auth.ScopePerformanceRead)
	if !ok {
		return
	}
	if _, err := h.roles.RequireMember(r.Context(), workspaceID, claims.Subject); err != nil {
		writeDomainError(w, err)
		return
	}

	cycles, err := h.cycles.ListByWorkspace(r.Context(), workspaceID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]CycleView, 0, len(cycles))
	for _, cycle := range cycles {
		items = append(items, toCycleView(cycle))
	}
	writeJSON(w, http.StatusOK, ListCyclesResponse{Items: items})
}

func (h *Handler) upsertReview(w http.ResponseWriter, r *http.Request, workspaceID, cycleID, userID string) {
	claims, ok := h.caller(w, r, auth.ScopePerformanceWrite)
	if !ok {
		return
	}
	if _, err := h.roles.RequireAdmin(r.Context(), workspaceID, claims.Subject); err != nil {
		writeDomainError(w, err)
		return
	}

	var req UpsertReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	review, err := h.reviews.Upsert(r.Context(), domain.UpsertReviewInput{
		WorkspaceID: workspaceID,
		CycleID:     cycleID,
		UserID:      userID,
		ManagerNote: req.ManagerNote,
		FinalRating: req.FinalRating,
		Lock:        req.Lock,
		UpdatedBy:   claims.Subject,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	action := domain.AuditReviewUpserted
	if req.Lock {
		action = domain.AuditReviewLocked
	}
	h.audit(r, workspaceID, claims.Subject, action, map[string]string{
		"cycle_id": cycleID,
		"user_id":  userID,
	})

	writeJSON(w, http.StatusOK, UpsertReviewResponse{Review: toReviewView(*review)})
}

func (h *Handler) getReview(w http.ResponseWriter, r *http.Request, workspaceID, cycleID, userID string) {
	claims, ok := h.caller(w, r, auth.ScopePerformanceRead)
	if !ok {
		return
	}

	var err error
	if userID == claims.Subject {
		_, err = h.roles.RequireMember(r.Context(), workspaceID, claims.Subject)
	} else {
		_, err = h.roles.RequireAdmin(r.Context(), workspaceID, claims.Subject)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	review, err := h.reviews.Get(r.Context(), workspaceID, cycleID, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReviewView(*review))
}

func (h *Handler) listMemberships(w http.ResponseWriter, r *http.Request, workspaceID string) {
	claims, ok := h.caller(w, r, auth.ScopePerformanceRead)
	if !ok {
		return
	}
	if _, err := h.roles.RequireMember(r.Context(), workspaceID, claims.Subject); err != nil {
		writeDomainError(w, err)
		return
	}

	memberships, err := h.roles.ListMemberships(r.Context(), workspaceID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]MembershipView, 0, len(memberships))
	for _, membership := range memberships {
		items = append(items, toMembershipView(membership))
	}
	writeJSON(w, http.StatusOK, ListMembershipsResponse{Items: items})
}

func (h *Handler) updateMembershipRole(w http.ResponseWriter, r *http.Request, workspaceID, targetUserID string) {
	claims, ok := h.caller(w, r, auth.ScopePerformanceWrite)
	if !ok {
		return
	}

	var req UpdateMembershipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	membership, err := h.roles.UpdateMembershipRole(r.Context(), workspaceID, claims.Subject, targetUserID, domain.Role(req.Role))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// The roster feeds the dashboard, so a role change drops its snapshot.
	if err := h.insights.Invalidate(r.Context(), workspaceID); err != nil {
		h.logger.Warn("insights cache invalidation failed", zap.String("workspace_id", workspaceID), zap.Error(err))
	}

	h.audit(r, workspaceID, claims.Subject, domain.AuditRoleChanged, map[string]string{
		"user_id": targetUserID,
		"role":    req.Role,
	})

	writeJSON(w, http.StatusOK, toMembershipView(*membership))
}

// audit appends an entry best-effort: a failed append is logged and the
// request still succeeds.
func (h *Handler) audit(r *http.Request, workspaceID, actorUserID, action string, payload any) {
	if h.auditor == nil {
		return
	}
	if err := h.auditor.Record(r.Context(), workspaceID, actorUserID, action, payload); err != nil {
		h.logger.Warn("audit append failed",
			zap.String("workspace_id", workspaceID),
			zap.String("action", action),
			zap.Error(err))
	}
}
