package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/oh-my-collab/performance-service/internal/auth"
	"github.com/oh-my-collab/performance-service/internal/domain"
	"github.com/oh-my-collab/performance-service/internal/persistence/memory"
)

const testWorkspace = "ws-1"

type fixture struct {
	store *memory.Store
	mux   *http.ServeMux
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	now := time.Now().UTC()
	store.AddMembership(domain.Membership{WorkspaceID: testWorkspace, UserID: "owner-1", Role: domain.RoleOwner, CreatedAt: now})
	store.AddMembership(domain.Membership{WorkspaceID: testWorkspace, UserID: "admin-1", Role: domain.RoleAdmin, CreatedAt: now})
	store.AddMembership(domain.Membership{WorkspaceID: testWorkspace, UserID: "member-1", Role: domain.RoleMember, CreatedAt: now})

	handler := NewHandler(
		domain.NewScorer(store, store),
		domain.NewEvidenceBuilder(store, store, store, store),
		domain.NewCycleService(store),
		domain.NewReviewService(store, store),
		domain.NewRoleGuard(store),
		domain.NewAuditor(store),
		nil,
		zaptest.NewLogger(t),
	)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	return &fixture{store: store, mux: mux}
}

func (f *fixture) do(t *testing.T, method, path, userID string, scopes []string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		scopeSet := make(map[string]struct{}, len(scopes))
		for _, scope := range scopes {
			scopeSet[scope] = struct{}{}
		}
		claims := &auth.Claims{Subject: userID, Scopes: scopeSet, ExpiresAt: time.Now().Add(time.Hour)}
		req = req.WithContext(auth.WithClaims(req.Context(), claims))
	}

	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) seedCycle(t *testing.T, weights domain.CycleWeights) domain.PerformanceCycle {
	t.Helper()
	cycle := domain.PerformanceCycle{
		ID:          "cycle-1",
		WorkspaceID: testWorkspace,
		Title:       "2026 H2",
		PeriodStart: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC),
		Status:      domain.CycleStatusOpen,
		Weights:     weights,
		CreatedBy:   "owner-1",
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	require.NoError(t, f.store.CreateCycle(context.Background(), cycle))
	return cycle
}

func readScopes() []string  { return []string{auth.ScopePerformanceRead} }
func writeScopes() []string { return []string{auth.ScopePerformanceWrite} }

func errorType(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload["type"]
}

func TestGetInsights(t *testing.T) {
	f := newFixture(t)
	f.store.AddTask(domain.Task{ID: "t1", WorkspaceID: testWorkspace, AssigneeID: "member-1", Status: domain.TaskStatusDone, Difficulty: 3, UpdatedAt: time.Now().UTC().Add(-time.Hour)})

	rec := f.do(t, http.MethodGet, "/v1/workspaces/ws-1/insights", "member-1", readScopes(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp InsightsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, testWorkspace, resp.WorkspaceID)
	require.Len(t, resp.Members, 3)
	require.Equal(t, "member-1", resp.Members[0].UserID)
	require.InDelta(t, 0.4, resp.Members[0].Score, 0.0001)
}

func TestGetInsightsRequiresMembership(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/workspaces/ws-1/insights", "outsider", readScopes(), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "forbidden", errorType(t, rec))
}

func TestUnauthenticatedRequestIsRejected(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/workspaces/ws-1/insights", "", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "unauthorized", errorType(t, rec))
}

func TestMissingScopeIsRejected(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/workspaces/ws-1/insights", "member-1", []string{"other:scope"}, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCycleLifecycle(t *testing.T) {
	f := newFixture(t)

	create := CreateCycleRequest{
		Title:       "2026 H2",
		PeriodStart: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		Weights:     domain.CycleWeights{Execution: 40, Docs: 20, Goals: 25, Collaboration: 15},
	}
	rec := f.do(t, http.MethodPost, "/v1/workspaces/ws-1/cycles", "admin-1", writeScopes(), create)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created CycleView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.CycleID)
	require.Equal(t, "draft", created.Status)
	require.Equal(t, "admin-1", created.CreatedBy)

	rec = f.do(t, http.MethodGet, "/v1/workspaces/ws-1/cycles", "member-1", readScopes(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list ListCyclesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)

	status := "open"
	rec = f.do(t, http.MethodPatch, "/v1/workspaces/ws-1/cycles/"+created.CycleID, "admin-1", writeScopes(), UpdateCycleRequest{Status: &status})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated CycleView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	require.Equal(t, "open", updated.Status)
}

func TestCreateCycleAuthorization(t *testing.T) {
	f := newFixture(t)

	create := CreateCycleRequest{
		Title:       "2026 H2",
		PeriodStart: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		Weights:     domain.CycleWeights{Execution: 40, Docs: 20, Goals: 25, Collaboration: 15},
	}
	rec := f.do(t, http.MethodPost, "/v1/workspaces/ws-1/cycles", "member-1", writeScopes(), create)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateCycleRejectsBadWeights(t *testing.T) {
	f := newFixture(t)

	create := CreateCycleRequest{
		Title:       "broken",
		PeriodStart: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		Weights:     domain.CycleWeights{Execution: 70, Docs: 20, Goals: 25, Collaboration: 15},
	}
	rec := f.do(t, http.MethodPost, "/v1/workspaces/ws-1/cycles", "admin-1", writeScopes(), create)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "validation_failed", errorType(t, rec))
}

func TestGetMissingCycle(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/workspaces/ws-1/cycles/missing", "member-1", readScopes(), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "not_found", errorType(t, rec))
}

func TestGetEvidenceContract(t *testing.T) {
	f := newFixture(t)
	cycle := f.seedCycle(t, domain.CycleWeights{Execution: 100})
	f.store.AddTask(domain.Task{ID: "t1", WorkspaceID: testWorkspace, AssigneeID: "member-1", Status: domain.TaskStatusDone, Difficulty: 3, UpdatedAt: time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)})

	rec := f.do(t, http.MethodGet, "/v1/workspaces/ws-1/cycles/"+cycle.ID+"/evidence?user_id=member-1", "admin-1", readScopes(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp EvidenceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 3, resp.EvidencePack.Raw.Execution)
	require.InDelta(t, 100.0, resp.ScorePreview, 0.0001)
	require.Nil(t, resp.ManagerNote)
	require.Nil(t, resp.LockedAt)
	require.NotEmpty(t, resp.EvidencePack.Highlights)

	// Raw JSON must carry the contract field names.
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	for _, key := range []string{"evidencePack", "scorePreview", "managerNote", "finalRating", "lockedAt"} {
		require.Contains(t, raw, key)
	}

	// The read lands in the audit log.
	entries := f.store.AuditEntries()
	require.Len(t, entries, 1)
	require.Equal(t, domain.AuditEvidenceViewed, entries[0].Action)
	require.Equal(t, "admin-1", entries[0].ActorUserID)
}

func TestGetEvidenceAuthorization(t *testing.T) {
	f := newFixture(t)
	cycle := f.seedCycle(t, domain.CycleWeights{Execution: 100})

	// Evidence reads are admin-gated, even for a member's own pack.
	rec := f.do(t, http.MethodGet, "/v1/workspaces/ws-1/cycles/"+cycle.ID+"/evidence?user_id=member-1", "member-1", readScopes(), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/workspaces/ws-1/cycles/"+cycle.ID+"/evidence?user_id=member-1", "admin-1", readScopes(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/workspaces/ws-1/cycles/"+cycle.ID+"/evidence", "admin-1", readScopes(), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/workspaces/ws-1/cycles/missing/evidence?user_id=member-1", "admin-1", readScopes(), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportCycle(t *testing.T) {
	f := newFixture(t)
	cycle := f.seedCycle(t, domain.CycleWeights{Execution: 100})
	f.store.AddTask(domain.Task{ID: "t1", WorkspaceID: testWorkspace, AssigneeID: "member-1", Status: domain.TaskStatusDone, Difficulty: 4, UpdatedAt: time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)})

	rec := f.do(t, http.MethodGet, "/v1/workspaces/ws-1/cycles/"+cycle.ID+"/export", "owner-1", readScopes(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ExportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, cycle.ID, resp.CycleID)
	require.Len(t, resp.Items, 3)
	require.Equal(t, "admin-1", resp.Items[0].UserID)

	var rows struct {
		Items []map[string]json.RawMessage `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	for _, key := range []string{"userId", "scorePreview", "finalRating", "managerNote", "lockedAt", "executionRaw", "docsRaw", "goalsRaw", "collaborationRaw"} {
		require.Contains(t, rows.Items[0], key)
	}

	rec = f.do(t, http.MethodGet, "/v1/workspaces/ws-1/cycles/"+cycle.ID+"/export", "member-1", readScopes(), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReviewUpsertAndLock(t *testing.T) {
	f := newFixture(t)
	cycle := f.seedCycle(t, domain.CycleWeights{Execution: 100})
	path := "/v1/workspaces/ws-1/cycles/" + cycle.ID + "/reviews/member-1"

	note := "훌륭한 실행력"
	rec := f.do(t, http.MethodPut, path, "admin-1", writeScopes(), UpsertReviewRequest{ManagerNote: &note})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp UpsertReviewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, note, *resp.Review.ManagerNote)
	require.Nil(t, resp.Review.LockedAt)

	rating := "A"
	rec = f.do(t, http.MethodPut, path, "admin-1", writeScopes(), UpsertReviewRequest{FinalRating: &rating, Lock: true})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Review.LockedAt)
	require.Equal(t, note, *resp.Review.ManagerNote)

	// Locked rows reject every further write.
	rec = f.do(t, http.MethodPut, path, "admin-1", writeScopes(), UpsertReviewRequest{ManagerNote: &note})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "review_locked", errorType(t, rec))

	// Reads still succeed after lock.
	rec = f.do(t, http.MethodGet, path, "member-1", readScopes(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view ReviewView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal(t, rating, *view.FinalRating)

	// The lock write shows up under its own audit action.
	actions := make([]string, 0)
	for _, entry := range f.store.AuditEntries() {
		actions = append(actions, entry.Action)
	}
	require.Contains(t, actions, domain.AuditReviewUpserted)
	require.Contains(t, actions, domain.AuditReviewLocked)
}

func TestReviewAuthorization(t *testing.T) {
	f := newFixture(t)
	cycle := f.seedCycle(t, domain.CycleWeights{Execution: 100})
	path := "/v1/workspaces/ws-1/cycles/" + cycle.ID + "/reviews/member-1"

	note := "note"
	rec := f.do(t, http.MethodPut, path, "member-1", writeScopes(), UpsertReviewRequest{ManagerNote: &note})
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Members read their own review and no one else's.
	rec = f.do(t, http.MethodGet, path, "member-1", readScopes(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/workspaces/ws-1/cycles/"+cycle.ID+"/reviews/owner-1", "member-1", readScopes(), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpsertReviewUnknownCycle(t *testing.T) {
	f := newFixture(t)

	note := "note"
	rec := f.do(t, http.MethodPut, "/v1/workspaces/ws-1/cycles/missing/reviews/member-1", "admin-1", writeScopes(), UpsertReviewRequest{ManagerNote: &note})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMembershipRoleChange(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPatch, "/v1/workspaces/ws-1/memberships/member-1", "owner-1", writeScopes(), UpdateMembershipRequest{Role: "admin"})
	require.Equal(t, http.StatusOK, rec.Code)

	var view MembershipView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal(t, "admin", view.Role)

	// Admins cannot change roles.
	rec = f.do(t, http.MethodPatch, "/v1/workspaces/ws-1/memberships/member-1", "admin-1", writeScopes(), UpdateMembershipRequest{Role: "member"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	// The owner role can never be granted.
	rec = f.do(t, http.MethodPatch, "/v1/workspaces/ws-1/memberships/member-1", "owner-1", writeScopes(), UpdateMembershipRequest{Role: "owner"})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "invalid_role_change", errorType(t, rec))
}

func TestListMemberships(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/workspaces/ws-1/memberships", "member-1", readScopes(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ListMembershipsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 3)
	require.Equal(t, "admin-1", resp.Items[0].UserID)
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/workspaces/ws-1/unknown", "member-1", readScopes(), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBearerTokenRoundTrip(t *testing.T) {
	f := newFixture(t)
	cfg := auth.Config{Secret: "test-secret", Issuer: "collab.identity"}
	wrapped := auth.NewMiddleware(cfg).Wrap(f.mux)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":    "member-1",
		"iss":    cfg.Issuer,
		"exp":    time.Now().Add(time.Hour).Unix(),
		"scopes": []string{auth.ScopePerformanceRead},
	})
	signed, err := token.SignedString([]byte(cfg.Secret))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/workspaces/ws-1/insights", nil)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", signed))
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// No token at all is stopped by the middleware.
	req = httptest.NewRequest(http.MethodGet, "/v1/workspaces/ws-1/insights", nil)
	rec = httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// A signed token without an exp claim is rejected, not a crash.
	noExpiry := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":    "member-1",
		"iss":    cfg.Issuer,
		"scopes": []string{auth.ScopePerformanceRead},
	})
	signed, err = noExpiry.SignedString([]byte(cfg.Secret))
	require.NoError(t, err)

	req = httptest.NewRequest(http.MethodGet, "/v1/workspaces/ws-1/insights", nil)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", signed))
	rec = httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
