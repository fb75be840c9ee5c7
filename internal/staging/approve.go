package staging

import (
	"context"
	"fmt"
	"time"

	"mnemos/internal/knowledge"
	"mnemos/internal/logging"
	"mnemos/internal/threat"
	"mnemos/internal/types"
)

// ApproveResult reports what the approval flow did with an item.
type ApproveResult struct {
	Merged   bool
	Waived   bool
	RecordID string
	Report   types.ThreatReport
}

// Approve promotes a quarantined item into the knowledge store.
// editorText, when non-empty, replaces the staged answer and marks a
// human editor as involved. After the merge the threat scorer runs
// again over the final text. A still-suspicious result with an editor
// attached becomes a recorded waiver; without an editor the just-merged
// record is removed and the item flips to rejected. The second scan is
// what keeps an "approve everything" curator from laundering payloads
// into the store.
func (q *Queue) Approve(ctx context.Context, store *knowledge.Store, scorer *threat.Scorer, id, editorText, editor string) (ApproveResult, error) {
	var res ApproveResult
	if store == nil || scorer == nil {
		return res, fmt.Errorf("approve requires a knowledge store and threat scorer")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	idx := q.findPendingLocked(id)
	if idx < 0 {
		return res, fmt.Errorf("no pending staging item: %s", id)
	}
	item := q.items[idx]

	answer := item.Answer
	if editorText != "" {
		answer = editorText
	}

	ingest, err := store.Ingest(ctx, []types.Candidate{{
		Question:   item.Question,
		Answer:     answer,
		Confidence: item.Confidence,
	}}, item.Path, "curator-approved")
	if err != nil {
		return res, fmt.Errorf("failed to merge approved item: %w", err)
	}
	res.Merged = ingest.Added > 0

	record := store.FindByQuestion(item.Question)
	if record != nil {
		res.RecordID = record.ID
	}

	// Second gate: scan the text that actually landed, not the text
	// that was staged. An editor override changes what gets scanned.
	res.Report = scorer.Scan(item.Question, answer)

	if !res.Report.Suspicious {
		q.items[idx].Status = types.StatusApproved
		logging.Staging("approved %s into store (record=%s)", id, res.RecordID)
		return res, q.rewriteLocked()
	}

	if editorText != "" {
		// A human read the suspicious content and chose to keep it.
		review := types.SafetyReview{
			Waived:     true,
			Editor:     editor,
			Reasons:    res.Report.Reasons,
			ReviewedAt: time.Now().UTC(),
		}
		if record != nil {
			if err := store.AttachSafetyReview(record.ID, review); err != nil {
				logging.Get(logging.CategoryStaging).Warn("failed to attach waiver: %v", err)
			}
		}
		if err := q.waivers.Append(waiverRecord{
			Time:    time.Now().UTC(),
			ItemID:  id,
			Editor:  editor,
			Score:   res.Report.Score,
			Reasons: res.Report.Reasons,
		}); err != nil {
			logging.Get(logging.CategoryStaging).Warn("failed to append waiver record: %v", err)
		}

		res.Waived = true
		q.items[idx].Status = types.StatusApproved
		q.items[idx].Tags = append(q.items[idx].Tags, "waived")
		logging.Staging("approved %s with safety waiver by %q (score=%.1f)", id, editor, res.Report.Score)
		return res, q.rewriteLocked()
	}

	// No editor involved: undo the merge and reject. Only a record this
	// approval added is removed; a pre-existing duplicate stays.
	if record != nil && ingest.Added > 0 {
		if err := store.Remove(record.ID); err != nil {
			logging.Get(logging.CategoryStaging).Warn("failed to remove record after safety re-scan: %v", err)
		}
	}
	res.Merged = false
	res.RecordID = ""

	q.items[idx].Status = types.StatusRejected
	q.items[idx].Tags = append(q.items[idx].Tags, "reject:"+RejectReasonAutoSafety)
	if err := q.removals.Append(removalRecord{
		Time:     time.Now().UTC(),
		ItemID:   id,
		Path:     item.Path,
		Question: item.Question,
		Reason:   RejectReasonAutoSafety,
		Score:    res.Report.Score,
		Reasons:  res.Report.Reasons,
	}); err != nil {
		logging.Get(logging.CategoryStaging).Warn("failed to append removal record: %v", err)
	}

	logging.Staging("auto-rejected %s on safety re-scan (score=%.1f)", id, res.Report.Score)
	return res, q.rewriteLocked()
}
