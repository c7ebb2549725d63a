// Package domain implements the contribution scoring and performance review
// engine: workspace-wide contribution scores, cycle-scoped evidence packs,
// cycle management, and the one-way review lock.
package domain

import (
	"context"
	"math"
	"sort"
	"time"
)

// Fixed dashboard blend weights. Cycle-scoped scoring uses per-cycle weights
// instead; these only feed the workspace dashboard.
const (
	dashboardTaskWeight   = 0.40
	dashboardDocsWeight   = 0.20
	dashboardGoalWeight   = 0.25
	dashboardCollabWeight = 0.15
)

// MemberScore is one member's dashboard contribution entry.
type MemberScore struct {
	UserID     string
	Raw        RawSignals
	Normalized NormalizedSignals
	Score      float64
}

// WorkspaceSummary carries the workspace-level headline numbers.
type WorkspaceSummary struct {
	WeeklyDoneTaskCount int
	GoalAchievementRate float64
	UpcomingDueCount    int
}

// WorkspaceInsights is the full dashboard payload for one workspace.
type WorkspaceInsights struct {
	WorkspaceID string
	GeneratedAt time.Time
	Members     []MemberScore
	Summary     WorkspaceSummary
}

// Scorer computes workspace-wide contribution scores over the activity ledger.
// It holds no state beyond its injected repositories and is safe for
// concurrent use.
type Scorer struct {
	ledger      LedgerRepository
	memberships MembershipRepository
}

// NewScorer constructs a Scorer.
func NewScorer(ledger LedgerRepository, memberships MembershipRepository) *Scorer {
	return &Scorer{ledger: ledger, memberships: memberships}
}

// WorkspaceInsights aggregates raw signals for every member (and any non-member
// who shows up as an assignee, editor, or event actor), normalizes each metric
// against the workspace top performer, and blends them with the fixed
// dashboard weights. Results are sorted by score descending.
func (s *Scorer) WorkspaceInsights(ctx context.Context, workspaceID string, ref time.Time) (*WorkspaceInsights, error) {
	if ref.IsZero() {
		ref = time.Now().UTC()
	}

	tasks, err := s.ledger.ListTasks(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	docs, err := s.ledger.ListDocs(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	keyResults, err := s.ledger.ListKeyResults(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	events, err := s.ledger.ListEvents(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	members, err := s.memberships.ListMemberships(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	signals := tallySignals(tasks, docs, keyResults, events, nil)
	for _, m := range members {
		if _, ok := signals[m.UserID]; !ok {
			signals[m.UserID] = RawSignals{}
		}
	}

	maxima := maxSignals(signals)
	scores := make([]MemberScore, 0, len(signals))
	for userID, raw := range signals {
		normalized := normalizeSignals(raw, maxima)
		score := dashboardTaskWeight*normalized.Execution +
			dashboardDocsWeight*normalized.Docs +
			dashboardGoalWeight*normalized.Goals +
			dashboardCollabWeight*normalized.Collaboration
		scores = append(scores, MemberScore{
			UserID:     userID,
			Raw:        raw,
			Normalized: normalized,
			Score:      round4(score),
		})
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].UserID < scores[j].UserID
	})

	return &WorkspaceInsights{
		WorkspaceID: workspaceID,
		GeneratedAt: ref,
		Members:     scores,
		Summary:     summarize(tasks, keyResults, ref),
	}, nil
}

// tallySignals folds the ledger records into per-user raw counters. A nil
// within predicate means no period bound.
func tallySignals(tasks []Task, docs []Doc, keyResults []KeyResult, events []ActivityEvent, within func(time.Time) bool) map[string]RawSignals {
	signals := make(map[string]RawSignals)
	bump := func(userID string, fn func(*RawSignals)) {
		if userID == "" {
			return
		}
		s := signals[userID]
		fn(&s)
		signals[userID] = s
	}

	for _, task := range tasks {
		if task.Status != TaskStatusDone {
			continue
		}
		if within != nil && !within(task.UpdatedAt) {
			continue
		}
		difficulty := task.Difficulty
		bump(task.AssigneeID, func(s *RawSignals) { s.Execution += difficulty })
	}
	for _, doc := range docs {
		if within != nil && !within(doc.UpdatedAt) {
			continue
		}
		bump(doc.UpdatedBy, func(s *RawSignals) { s.Docs++ })
	}
	for _, kr := range keyResults {
		if within != nil && !within(kr.UpdatedAt) {
			continue
		}
		bump(kr.UpdatedBy, func(s *RawSignals) { s.Goals++ })
	}
	for _, event := range events {
		if !event.Type.CountsAsCollaboration() {
			continue
		}
		if within != nil && !within(event.CreatedAt) {
			continue
		}
		bump(event.ActorUserID, func(s *RawSignals) { s.Collaboration++ })
	}

	return signals
}

// maxSignals finds the per-category maximum across all users.
func maxSignals(signals map[string]RawSignals) RawSignals {
	var maxima RawSignals
	for _, s := range signals {
		if s.Execution > maxima.Execution {
			maxima.Execution = s.Execution
		}
		if s.Docs > maxima.Docs {
			maxima.Docs = s.Docs
		}
		if s.Goals > maxima.Goals {
			maxima.Goals = s.Goals
		}
		if s.Collaboration > maxima.Collaboration {
			maxima.Collaboration = s.Collaboration
		}
	}
	return maxima
}

// normalizeSignals scales raw counters against per-category maxima. The
// divisor is clamped to at least 1 so an all-zero metric normalizes to zero
// instead of dividing by zero.
func normalizeSignals(raw, maxima RawSignals) NormalizedSignals {
	norm := func(value, max int) float64 {
		divisor := max
		if divisor < 1 {
			divisor = 1
		}
		return float64(value) / float64(divisor)
	}
	return NormalizedSignals{
		Execution:     norm(raw.Execution, maxima.Execution),
		Docs:          norm(raw.Docs, maxima.Docs),
		Goals:         norm(raw.Goals, maxima.Goals),
		Collaboration: norm(raw.Collaboration, maxima.Collaboration),
	}
}

func summarize(tasks []Task, keyResults []KeyResult, ref time.Time) WorkspaceSummary {
	var summary WorkspaceSummary

	weekAgo := ref.Add(-7 * 24 * time.Hour)
	dueHorizon := ref.Add(3 * 24 * time.Hour)
	for _, task := range tasks {
		if task.Status == TaskStatusDone {
			if !task.UpdatedAt.Before(weekAgo) && !task.UpdatedAt.After(ref) {
				summary.WeeklyDoneTaskCount++
			}
			continue
		}
		if task.DueAt != nil && !task.DueAt.Before(ref) && !task.DueAt.After(dueHorizon) {
			summary.UpcomingDueCount++
		}
	}

	if len(keyResults) > 0 {
		var total float64
		for _, kr := range keyResults {
			total += kr.Progress
		}
		summary.GoalAchievementRate = round2(total / float64(len(keyResults)))
	}

	return summary
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
