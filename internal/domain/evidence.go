package domain

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Evidence couples the derived pack with the cycle-weighted preview score on
// the 0-100 scale.
type Evidence struct {
	Pack         EvidencePack
	ScorePreview float64
}

// ExportRow is the per-member payload handed to the export collaborator.
type ExportRow struct {
	UserID       string
	ScorePreview float64
	FinalRating  *string
	ManagerNote  *string
	LockedAt     *time.Time
	Raw          RawSignals
}

// EvidenceBuilder recomputes evidence packs from the ledger on every read.
// Packs are never cached or persisted, so a pack read after a review is locked
// still reflects the live ledger.
type EvidenceBuilder struct {
	ledger      LedgerRepository
	cycles      CycleRepository
	memberships MembershipRepository
	reviews     ReviewRepository
}

// NewEvidenceBuilder constructs an EvidenceBuilder.
func NewEvidenceBuilder(ledger LedgerRepository, cycles CycleRepository, memberships MembershipRepository, reviews ReviewRepository) *EvidenceBuilder {
	return &EvidenceBuilder{ledger: ledger, cycles: cycles, memberships: memberships, reviews: reviews}
}

// Build computes the evidence pack for one member within one cycle's period.
//
// Normalization baseline: the workspace-wide per-category maximum within the
// same period, clamped to at least 1. The member's own signals participate in
// the maximum, so a sole top performer normalizes to 1.0 while zero raw
// activity always normalizes to zero.
func (b *EvidenceBuilder) Build(ctx context.Context, workspaceID, cycleID, userID string) (*Evidence, error) {
	cycle, err := b.cycles.GetCycle(ctx, workspaceID, cycleID)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, Errorf(KindNotFound, "cycle %s not found in workspace %s", cycleID, workspaceID)
	}

	signals, doneCounts, err := b.periodSignals(ctx, workspaceID, *cycle)
	if err != nil {
		return nil, err
	}

	evidence := buildMemberEvidence(*cycle, userID, signals, doneCounts)
	return &evidence, nil
}

// ExportCycle produces one row per workspace member with raw counters, preview
// score, and the stored review fields, sorted by user ID for stable output.
func (b *EvidenceBuilder) ExportCycle(ctx context.Context, workspaceID, cycleID string) ([]ExportRow, error) {
	cycle, err := b.cycles.GetCycle(ctx, workspaceID, cycleID)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, Errorf(KindNotFound, "cycle %s not found in workspace %s", cycleID, workspaceID)
	}

	members, err := b.memberships.ListMemberships(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	reviews, err := b.reviews.ListReviewsByCycle(ctx, workspaceID, cycleID)
	if err != nil {
		return nil, err
	}
	reviewByUser := make(map[string]PerformanceReview, len(reviews))
	for _, review := range reviews {
		reviewByUser[review.UserID] = review
	}

	signals, doneCounts, err := b.periodSignals(ctx, workspaceID, *cycle)
	if err != nil {
		return nil, err
	}

	rows := make([]ExportRow, 0, len(members))
	for _, member := range members {
		evidence := buildMemberEvidence(*cycle, member.UserID, signals, doneCounts)
		row := ExportRow{
			UserID:       member.UserID,
			ScorePreview: evidence.ScorePreview,
			Raw:          evidence.Pack.Raw,
		}
		if review, ok := reviewByUser[member.UserID]; ok {
			row.FinalRating = review.FinalRating
			row.ManagerNote = review.ManagerNote
			row.LockedAt = review.LockedAt
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].UserID < rows[j].UserID })
	return rows, nil
}

// periodSignals tallies raw signals for every user active inside the cycle
// period, plus the per-user count of done tasks used for highlights.
func (b *EvidenceBuilder) periodSignals(ctx context.Context, workspaceID string, cycle PerformanceCycle) (map[string]RawSignals, map[string]int, error) {
	tasks, err := b.ledger.ListTasks(ctx, workspaceID)
	if err != nil {
		return nil, nil, err
	}
	docs, err := b.ledger.ListDocs(ctx, workspaceID)
	if err != nil {
		return nil, nil, err
	}
	keyResults, err := b.ledger.ListKeyResults(ctx, workspaceID)
	if err != nil {
		return nil, nil, err
	}
	events, err := b.ledger.ListEvents(ctx, workspaceID)
	if err != nil {
		return nil, nil, err
	}

	signals := tallySignals(tasks, docs, keyResults, events, cycle.ContainsInstant)

	doneCounts := make(map[string]int)
	for _, task := range tasks {
		if task.Status != TaskStatusDone || task.AssigneeID == "" {
			continue
		}
		if !cycle.ContainsInstant(task.UpdatedAt) {
			continue
		}
		doneCounts[task.AssigneeID]++
	}
	return signals, doneCounts, nil
}

func buildMemberEvidence(cycle PerformanceCycle, userID string, signals map[string]RawSignals, doneCounts map[string]int) Evidence {
	raw := signals[userID]
	maxima := maxSignals(signals)
	normalized := normalizeSignals(raw, maxima)

	preview := normalized.Execution*cycle.Weights.Execution +
		normalized.Docs*cycle.Weights.Docs +
		normalized.Goals*cycle.Weights.Goals +
		normalized.Collaboration*cycle.Weights.Collaboration

	return Evidence{
		Pack: EvidencePack{
			PeriodStart: cycle.PeriodStart,
			PeriodEnd:   cycle.PeriodEnd,
			Raw:         raw,
			Normalized:  normalized,
			Highlights:  buildHighlights(cycle, raw, doneCounts[userID]),
		},
		ScorePreview: round2(preview),
	}
}

// buildHighlights renders 2-5 short manager-facing summaries of the raw counts.
func buildHighlights(cycle PerformanceCycle, raw RawSignals, doneCount int) []string {
	highlights := make([]string, 0, 5)
	if raw.Execution > 0 {
		highlights = append(highlights, fmt.Sprintf("실행 %d건, 난이도 합산 %d점", doneCount, raw.Execution))
	}
	if raw.Docs > 0 {
		highlights = append(highlights, fmt.Sprintf("문서 업데이트 %d건", raw.Docs))
	}
	if raw.Goals > 0 {
		highlights = append(highlights, fmt.Sprintf("목표 키 결과 업데이트 %d건", raw.Goals))
	}
	if raw.Collaboration > 0 {
		highlights = append(highlights, fmt.Sprintf("협업 이벤트 %d건 (댓글·리뷰·블로커 해결)", raw.Collaboration))
	}
	if len(highlights) == 0 {
		highlights = append(highlights, "평가 기간 내 기록된 활동이 없습니다")
	}
	highlights = append(highlights, fmt.Sprintf("집계 기간 %s ~ %s",
		cycle.PeriodStart.Format("2006-01-02"), cycle.PeriodEnd.Format("2006-01-02")))
	return highlights
}
