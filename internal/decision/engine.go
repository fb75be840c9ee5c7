// Package decision routes extracted candidates to one of three terminal
// outcomes: auto-merge into the knowledge store, quarantine for curator
// review, or hard rejection. Every candidate leaves one line in the
// validation log; hard rejections additionally land in the removal
// ledger and are never staged.
package decision

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"mnemos/internal/config"
	"mnemos/internal/extract"
	"mnemos/internal/knowledge"
	"mnemos/internal/logging"
	"mnemos/internal/staging"
	"mnemos/internal/threat"
	"mnemos/internal/types"
)

const (
	validationFile = "validation.ndjson"
	removalFile    = "removals.ndjson"

	// Re-scanned files produce the same candidates back to back; a
	// repeat within this window is decided but not re-logged.
	logDedupWindow = 60 * time.Second
)

// Outcome is what the engine did with one candidate.
type Outcome struct {
	Decision types.Decision
	Report   types.ThreatReport
	// Confidence is the effective confidence after validation dampening.
	Confidence float64
	Staged     *types.StagingItem
}

// Engine applies the merge/quarantine/reject policy.
type Engine struct {
	cfg    config.DecisionConfig
	scorer *threat.Scorer
	store  *knowledge.Store
	queue  *staging.Queue

	validation *logging.AuditTrail
	removals   *logging.AuditTrail

	mu       sync.Mutex
	lastSeen map[string]time.Time
	now      func() time.Time
}

// New builds an engine writing its ledgers under dir.
func New(dir string, cfg config.DecisionConfig, scorer *threat.Scorer, store *knowledge.Store, queue *staging.Queue) (*Engine, error) {
	if scorer == nil || store == nil || queue == nil {
		return nil, fmt.Errorf("decision engine requires scorer, store, and queue")
	}

	validation, err := logging.NewAuditTrail(filepath.Join(dir, validationFile))
	if err != nil {
		return nil, err
	}
	removals, err := logging.NewAuditTrail(filepath.Join(dir, removalFile))
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:        cfg,
		scorer:     scorer,
		store:      store,
		queue:      queue,
		validation: validation,
		removals:   removals,
		lastSeen:   make(map[string]time.Time),
		now:        time.Now,
	}, nil
}

// validationRecord is one line in the validation log.
type validationRecord struct {
	Time       time.Time      `json:"time"`
	OriginFile string         `json:"origin_file"`
	Question   string         `json:"question"`
	Decision   types.Decision `json:"decision"`
	Confidence float64        `json:"confidence"`
	Score      float64        `json:"score"`
	Reasons    []string       `json:"reasons,omitempty"`
}

// removalRecord is one line in the removal ledger.
type removalRecord struct {
	Time       time.Time `json:"time"`
	OriginFile string    `json:"origin_file"`
	Question   string    `json:"question"`
	Score      float64   `json:"score"`
	Reasons    []string  `json:"reasons"`
}

// Decide routes one candidate. originFile is the project-relative source
// the candidate was extracted from; source labels the producer for the
// stored record.
func (e *Engine) Decide(ctx context.Context, cand types.Candidate, originFile, source string) (Outcome, error) {
	out := Outcome{Report: e.scorer.Scan(cand.Question, cand.Answer)}

	ok, conf := extract.Validate(cand)
	out.Confidence = conf

	switch {
	case ok && !out.Report.Suspicious &&
		out.Report.Score < e.cfg.MergeScoreMax &&
		conf >= e.cfg.MergeConfMin:
		out.Decision = types.DecisionAutoMerged

	case out.Report.Score > e.cfg.HardRejectScore:
		out.Decision = types.DecisionRejected

	default:
		out.Decision = types.DecisionQuarantined
	}

	e.logValidation(cand, originFile, out)

	switch out.Decision {
	case types.DecisionRejected:
		// Never staged: the removal ledger is the only trace.
		if err := e.removals.Append(removalRecord{
			Time:       e.now().UTC(),
			OriginFile: originFile,
			Question:   cand.Question,
			Score:      out.Report.Score,
			Reasons:    out.Report.Reasons,
		}); err != nil {
			logging.Get(logging.CategoryDecision).Warn("failed to append removal record: %v", err)
		}
		logging.Decision("hard-rejected candidate from %s (score=%.1f)", originFile, out.Report.Score)
		return out, nil

	case types.DecisionAutoMerged:
		merged := cand
		merged.Confidence = conf
		if _, err := e.store.Ingest(ctx, []types.Candidate{merged}, originFile, source); err != nil {
			return out, fmt.Errorf("failed to merge candidate: %w", err)
		}
		logging.Decision("auto-merged candidate from %s (conf=%.2f, score=%.1f)",
			originFile, conf, out.Report.Score)
		return out, nil

	default:
		item, staged, err := e.queue.Quarantine(cand, originFile, out.Report,
			quarantineMessage(ok, conf, out.Report, e.cfg))
		if err != nil {
			return out, fmt.Errorf("failed to stage candidate: %w", err)
		}
		if staged {
			out.Staged = &item
		}
		return out, nil
	}
}

// DecideAll routes a batch from one file and returns per-decision counts.
func (e *Engine) DecideAll(ctx context.Context, candidates []types.Candidate, originFile, source string) (map[types.Decision]int, error) {
	counts := make(map[types.Decision]int)
	for _, cand := range candidates {
		out, err := e.Decide(ctx, cand, originFile, source)
		if err != nil {
			return counts, err
		}
		counts[out.Decision]++
	}
	return counts, nil
}

func quarantineMessage(valid bool, conf float64, report types.ThreatReport, cfg config.DecisionConfig) string {
	switch {
	case report.Suspicious:
		return "flagged: " + strings.Join(report.Reasons, ", ")
	case !valid:
		return "failed validation"
	case conf < cfg.MergeConfMin:
		return fmt.Sprintf("confidence %.2f below auto-merge threshold", conf)
	default:
		return fmt.Sprintf("threat score %.1f above auto-merge ceiling", report.Score)
	}
}

// logValidation appends one decision line, suppressing repeats of the
// same candidate within the dedup window.
func (e *Engine) logValidation(cand types.Candidate, originFile string, out Outcome) {
	key := originFile + "\x00" + strings.Join(strings.Fields(strings.ToLower(cand.Question)), " ")

	e.mu.Lock()
	now := e.now()
	if seen, ok := e.lastSeen[key]; ok && now.Sub(seen) < logDedupWindow {
		e.mu.Unlock()
		return
	}
	// Expired entries no longer suppress anything; dropping them here
	// keeps the map bounded by the window on a long-running daemon.
	for k, seen := range e.lastSeen {
		if now.Sub(seen) >= logDedupWindow {
			delete(e.lastSeen, k)
		}
	}
	e.lastSeen[key] = now
	e.mu.Unlock()

	if err := e.validation.Append(validationRecord{
		Time:       now.UTC(),
		OriginFile: originFile,
		Question:   cand.Question,
		Decision:   out.Decision,
		Confidence: out.Confidence,
		Score:      out.Report.Score,
		Reasons:    out.Report.Reasons,
	}); err != nil {
		logging.Get(logging.CategoryDecision).Warn("failed to append validation record: %v", err)
	}
}
